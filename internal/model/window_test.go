package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_PushEvictsOldest(t *testing.T) {
	r := NewRingFrom([]int{1, 2, 3})
	r.Push(4)
	r.Push(5)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Equal(t, []int{3, 4, 5}, r.Values())

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestRing_SetLastAndEmpty(t *testing.T) {
	empty := NewRingFrom[float64](nil)
	_, ok := empty.Last()
	assert.False(t, ok)
	assert.False(t, empty.SetLast(1))
	empty.Push(1)
	assert.Zero(t, empty.Len())

	r := NewRingFrom([]float64{1, 2})
	r.Push(3)
	require.True(t, r.SetLast(9))
	assert.Equal(t, []float64{2, 9}, r.Values())
}

func TestRing_ValuesIsCopy(t *testing.T) {
	r := NewRingFrom([]int{1, 2, 3})
	v := r.Values()
	v[0] = 100
	assert.Equal(t, 1, r.At(0))
}

func TestNewPairWindow_Misaligned(t *testing.T) {
	_, err := NewPairWindow([]int64{1, 2}, []float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func newTestWindow(t *testing.T) *PairWindow {
	t.Helper()
	w, err := NewPairWindow(
		[]int64{60, 120, 180, 240},
		[]float64{10, 11, 12, 13},
		[]float64{20, 21, 22, 23},
	)
	require.NoError(t, err)
	return w
}

func TestPairWindow_SlideCarriesOtherLegForward(t *testing.T) {
	w := newTestWindow(t)

	w.Slide(300, Leg1, 14)

	assert.Equal(t, 4, w.Len())
	assert.Equal(t, []int64{120, 180, 240, 300}, w.Timestamps())
	assert.Equal(t, []float64{11, 12, 13, 14}, w.Prices(Leg1))
	assert.Equal(t, []float64{21, 22, 23, 23}, w.Prices(Leg2), "leg 2 repeats its last price")

	ts, ok := w.NewestTime()
	require.True(t, ok)
	assert.Equal(t, int64(300), ts)
}

func TestPairWindow_ReviseInPlace(t *testing.T) {
	w := newTestWindow(t)

	w.Revise(Leg2, 23.5)

	assert.Equal(t, 4, w.Len())
	assert.Equal(t, []int64{60, 120, 180, 240}, w.Timestamps())
	assert.Equal(t, []float64{20, 21, 22, 23.5}, w.Prices(Leg2))
	assert.Equal(t, []float64{10, 11, 12, 13}, w.Prices(Leg1))

	p, ok := w.LatestPrice(Leg2)
	require.True(t, ok)
	assert.Equal(t, 23.5, p)
}

func TestPairWindow_CapacityIsFixed(t *testing.T) {
	w := newTestWindow(t)

	for i := int64(0); i < 50; i++ {
		leg := Leg1
		if i%3 == 0 {
			leg = Leg2
		}
		w.Slide(300+60*i, leg, float64(i))
		assert.Equal(t, 4, w.Len())
		assert.Len(t, w.Prices(Leg1), 4)
		assert.Len(t, w.Prices(Leg2), 4)
	}
	assert.Equal(t, 4, w.Cap())
}

func TestCandle_StartSeconds(t *testing.T) {
	c := Candle{StartTime: 1_700_000_060_000}
	assert.Equal(t, int64(1_700_000_060), c.StartSeconds())
	assert.Equal(t, int64(1_700_000_060_000), c.Start().UnixMilli())
}

func TestKlineTopic(t *testing.T) {
	topic := KlineTopic("15", "BTCUSDT")
	assert.Equal(t, "kline.15.BTCUSDT", topic)

	interval, symbol, ok := ParseKlineTopic(topic)
	require.True(t, ok)
	assert.Equal(t, "15", interval)
	assert.Equal(t, "BTCUSDT", symbol)

	for _, bad := range []string{"tickers.BTCUSDT", "kline.15", "kline..BTCUSDT", "kline.15."} {
		_, _, ok := ParseKlineTopic(bad)
		assert.False(t, ok, bad)
	}
}
