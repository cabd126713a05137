package stats

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOLS_SinglePredictorNoConstant(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 3 * v
	}

	res, err := OLS(y, Vector(x), false)
	require.NoError(t, err)

	require.Len(t, res.Coefficients, 1)
	assert.InDelta(t, 3.0, res.Coefficients[0], 1e-12)
	assert.InDelta(t, 3.0, res.Slope(), 1e-12)
	assert.Equal(t, 1, res.K)
	assert.Equal(t, len(x), res.N)
	for _, r := range res.Residuals {
		assert.InDelta(t, 0, r, 1e-10)
	}
}

func TestOLS_WithConstant(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	noise := []float64{0.1, -0.2, 0.05, 0.15, -0.1, 0.0, -0.05, 0.05}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1 + 2*v + noise[i]
	}

	res, err := OLS(y, Vector(x), true)
	require.NoError(t, err)

	require.Len(t, res.Coefficients, 2)
	assert.InDelta(t, 1.0, res.Coefficients[0], 0.3)
	assert.InDelta(t, 2.0, res.Coefficients[1], 0.1)
	assert.Equal(t, res.Coefficients[1], res.Slope())
	assert.Equal(t, res.TStats[1], res.TStat, "t-stat belongs to the first true predictor")
	assert.True(t, res.Constant)
	assert.Greater(t, res.TStat, 10.0)
}

func TestOLS_StandardErrorsAndAIC(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2.1, 3.9, 6.2, 7.8, 10.1}

	res, err := OLS(y, Vector(x), true)
	require.NoError(t, err)

	rss := 0.0
	for _, r := range res.Residuals {
		rss += r * r
	}
	assert.InDelta(t, rss, res.RSS, 1e-12)

	// 简单线性回归的斜率标准误：sqrt(σ²/Σ(x-x̄)²)
	sigma2 := rss / float64(len(x)-2)
	sxx := 10.0
	assert.InDelta(t, math.Sqrt(sigma2/sxx), res.StdErrors[1], 1e-9)
	assert.InDelta(t, res.Coefficients[1]/res.StdErrors[1], res.TStat, 1e-9)

	wantAIC := math.Log(rss/5) + 2*float64(2+1)/5
	assert.InDelta(t, wantAIC, res.AIC, 1e-12)
}

// 正规方程正交性：Xᵗ(y - Xb) ≈ 0
func TestOLS_ResidualsOrthogonalToDesign(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	const n, p = 120, 4
	design := make(Matrix, n)
	y := make([]float64, n)
	for i := range design {
		design[i] = make([]float64, p)
		for j := range design[i] {
			design[i][j] = rng.NormFloat64() * float64(j+1)
		}
		y[i] = 0.5 - 1.2*design[i][0] + 0.3*design[i][2] + rng.NormFloat64()
	}

	for _, addConstant := range []bool{false, true} {
		res, err := OLS(y, design, addConstant)
		require.NoError(t, err)

		for j := 0; j < p; j++ {
			dot := 0.0
			for i := 0; i < n; i++ {
				dot += design[i][j] * res.Residuals[i]
			}
			assert.InDelta(t, 0, dot, 1e-8, "column %d (constant=%v)", j, addConstant)
		}
		if addConstant {
			sum := 0.0
			for _, r := range res.Residuals {
				sum += r
			}
			assert.InDelta(t, 0, sum, 1e-8)
		}
	}
}

func TestOLS_Errors(t *testing.T) {
	tests := []struct {
		name        string
		y           []float64
		x           Design
		addConstant bool
		wantErr     error
	}{
		{
			name:    "zero column is singular",
			y:       []float64{1, 2, 3, 4},
			x:       Matrix{{1, 0}, {2, 0}, {3, 0}, {4, 0}},
			wantErr: ErrSingularMatrix,
		},
		{
			name:        "constant predictor collinear with intercept",
			y:           []float64{1, 2, 3, 4},
			x:           Vector{5, 5, 5, 5},
			addConstant: true,
			wantErr:     ErrSingularMatrix,
		},
		{
			name:        "observations equal parameters",
			y:           []float64{1, 2},
			x:           Vector{1, 2},
			addConstant: true,
			wantErr:     ErrInsufficientData,
		},
		{
			name:    "length mismatch",
			y:       []float64{1, 2, 3},
			x:       Vector{1, 2},
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "ragged matrix",
			y:       []float64{1, 2, 3},
			x:       Matrix{{1, 2}, {3}, {4, 5}},
			wantErr: ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := OLS(tt.y, tt.x, tt.addConstant)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
		})
	}
}
