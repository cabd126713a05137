package stats

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whiteNoise(seed uint64, n int) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestGetCriticalValues(t *testing.T) {
	tests := []struct {
		nobs  int
		model Model
		want  CriticalValues
	}{
		{25, ConstantNoTrend, CriticalValues{"1%": -3.724, "2.5%": -3.318, "5%": -2.986, "10%": -2.633}},
		{26, ConstantNoTrend, CriticalValues{"1%": -3.568, "2.5%": -3.213, "5%": -2.921, "10%": -2.599}},
		{100, NoConstantNoTrend, CriticalValues{"1%": -2.588, "2.5%": -2.234, "5%": -1.944, "10%": -1.614}},
		{250, ConstantTrend, CriticalValues{"1%": -3.995, "2.5%": -3.683, "5%": -3.427, "10%": -3.137}},
		{500, ConstantNoTrend, CriticalValues{"1%": -3.443, "2.5%": -3.127, "5%": -2.867, "10%": -2.570}},
		{501, ConstantTrend, CriticalValues{"1%": -3.963, "2.5%": -3.660, "5%": -3.413, "10%": -3.128}},
		{10, NoConstantNoTrend, CriticalValues{"1%": -2.661, "2.5%": -2.273, "5%": -1.995, "10%": -1.609}},
	}

	for _, tt := range tests {
		got := GetCriticalValues(tt.nobs, tt.model)
		assert.Equal(t, tt.want, got, "nobs=%d model=%s", tt.nobs, tt.model)
	}
}

func TestSchwertMaxLag(t *testing.T) {
	assert.Equal(t, 12, SchwertMaxLag(100))
	assert.Equal(t, 12, SchwertMaxLag(99))
	assert.Equal(t, 7, SchwertMaxLag(10))
	assert.Equal(t, 0, SchwertMaxLag(0))
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel("")
	require.NoError(t, err)
	assert.Equal(t, ConstantNoTrend, m)

	m, err = ParseModel("constant_trend")
	require.NoError(t, err)
	assert.Equal(t, ConstantTrend, m)

	_, err = ParseModel("quadratic")
	assert.Error(t, err)
}

func TestADF_SelectsMinimumAIC(t *testing.T) {
	y := whiteNoise(3, 200)

	res, err := ADF(y, AutoLag, ConstantNoTrend)
	require.NoError(t, err)

	require.Len(t, res.AICByLag, SchwertMaxLag(len(y)-1)+1)
	for lag, aic := range res.AICByLag {
		assert.GreaterOrEqual(t, aic, res.Result.AIC, "lag %d beats the selected lag", lag)
	}
	assert.Equal(t, res.AICByLag[res.LagUsed], res.Result.AIC)

	again, err := ADF(y, AutoLag, ConstantNoTrend)
	require.NoError(t, err)
	assert.Equal(t, res.LagUsed, again.LagUsed)
	assert.Equal(t, res.TStat, again.TStat)
	assert.Equal(t, res.Result.Coefficients, again.Result.Coefficients)
}

func TestADF_WhiteNoiseIsStationary(t *testing.T) {
	y := whiteNoise(42, 300)

	for _, model := range []Model{NoConstantNoTrend, ConstantNoTrend, ConstantTrend} {
		res, err := ADF(y, AutoLag, model)
		require.NoError(t, err)

		assert.Equal(t, 300, res.NObs)
		assert.Equal(t, GetCriticalValues(300, model), res.CriticalValues)
		assert.True(t, res.StationaryAt(Significance1), "model %s tstat %.3f", model, res.TStat)
	}
}

func TestADF_TStatIsOnLevelColumn(t *testing.T) {
	y := whiteNoise(5, 120)

	res, err := ADF(y, 2, NoConstantNoTrend)
	require.NoError(t, err)
	assert.Equal(t, res.Result.TStats[0], res.TStat)

	res, err = ADF(y, 2, ConstantTrend)
	require.NoError(t, err)
	assert.Equal(t, res.Result.TStats[1], res.TStat)
	assert.Len(t, res.AICByLag, 3)
	// 常数 + 水平 + 趋势 + 滞后差分
	assert.Len(t, res.Result.Coefficients, 3+res.LagUsed)
}

func TestADF_ExplicitMaxLagClamped(t *testing.T) {
	y := whiteNoise(9, 30)

	res, err := ADF(y, 100, ConstantNoTrend)
	require.Error(t, err, "clamped lag still leaves too few rows for the largest lag")
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Nil(t, res)

	res, err = ADF(y, 3, ConstantNoTrend)
	require.NoError(t, err)
	assert.Len(t, res.AICByLag, 4)
}

func TestMinObservations(t *testing.T) {
	for _, model := range []Model{NoConstantNoTrend, ConstantNoTrend, ConstantTrend} {
		for _, maxLag := range []int{AutoLag, 0, 3} {
			n := MinObservations(maxLag, model)

			_, err := ADF(whiteNoise(uint64(n), n), maxLag, model)
			assert.NoError(t, err, "%s maxLag=%d n=%d", model, maxLag, n)

			_, err = ADF(whiteNoise(uint64(n), n-1), maxLag, model)
			assert.ErrorIs(t, err, ErrInsufficientData, "%s maxLag=%d n=%d", model, maxLag, n-1)
		}
	}
	assert.Equal(t, 10, MinObservations(3, ConstantNoTrend))
}

func TestADF_InsufficientData(t *testing.T) {
	_, err := ADF([]float64{1}, AutoLag, ConstantNoTrend)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ADF([]float64{1, 2}, AutoLag, ConstantNoTrend)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ADF(nil, AutoLag, ConstantNoTrend)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestADF_UnknownModel(t *testing.T) {
	_, err := ADF(whiteNoise(1, 50), AutoLag, Model("bogus"))
	assert.Error(t, err)
}
