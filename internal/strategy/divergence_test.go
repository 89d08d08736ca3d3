package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/signal"
)

func TestDivergenceDetection(t *testing.T) {
	lows := []histPivot{{hist: -2, price: 100}, {hist: -1.5, price: 95}}
	assert.True(t, bullishDivergence(lows, 5, 0.618))
	assert.False(t, bullishDivergence(lows[:1], 5, 0.618))

	weak := []histPivot{{hist: -2, price: 100}, {hist: -1, price: 95}}
	assert.False(t, bullishDivergence(weak, 5, 0.618), "histogram low too shallow against the ratio")

	confirming := []histPivot{{hist: -2, price: 100}, {hist: -1.5, price: 105}}
	assert.False(t, bullishDivergence(confirming, 5, 0.618), "higher price low is not a divergence")

	highs := []histPivot{{hist: 2, price: 100}, {hist: 1.5, price: 105}}
	assert.True(t, bearishDivergence(highs, 5, 0.618))
	assert.False(t, bearishDivergence([]histPivot{{hist: 2, price: 100}, {hist: 2.5, price: 105}}, 5, 0.618))
}

func TestPushPivotKeepsNewest(t *testing.T) {
	var ps []histPivot
	for i := 0; i < maxPivots+5; i++ {
		ps = pushPivot(ps, histPivot{hist: float64(i)})
	}
	require.Len(t, ps, maxPivots)
	assert.Equal(t, float64(maxPivots+4), ps[len(ps)-1].hist)
	assert.Equal(t, 5.0, ps[0].hist)
}

func TestMACDDivergenceBracketExit(t *testing.T) {
	s := &MACDDivergence{state: 1, stop: 95, target: 110, qty: 0.5}
	series := NewSeries(0)
	bar := closedBar(0, 100)
	bar.Low = 94
	series.Push(bar)
	ctx := &Context{Symbol: "AAPL", Bars: series, refPrice: 100, defaultQty: 1}

	require.NoError(t, s.Next(ctx))
	rec := ctx.Recorded()
	require.Len(t, rec, 1)
	assert.Equal(t, signal.Sell, rec[0].Side)
	assert.Equal(t, 0.5, rec[0].Quantity)
	assert.Zero(t, s.state)
}

func TestMACDDivergenceValidatesLengths(t *testing.T) {
	_, _, err := Builtin().Build("macd_divergence", map[string]float64{"fast_length": 34, "slow_length": 13})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, inst, err := Builtin().Build("macd_divergence", nil)
	require.NoError(t, err)
	assert.Equal(t, 34+9+1+1+5, inst.Warmup)
}

func TestMACDDivergenceQuietOnFlatTape(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 50
	}
	assert.Empty(t, feedCloses(t, "macd_divergence", nil, closes))
}

func tunnelParams(extra map[string]float64) map[string]float64 {
	p := map[string]float64{
		"ma1_period": 2, "ma1_type": 0,
		"ma3_period": 4, "ma3_type": 0,
		"ma5_period": 2, "ma5_type": 1,
		"filter_period": 3,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func TestVegasTunnelCrossAndTarget(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 9, 14, 15}
	got := feedCloses(t, "vegas_double_tunnel", tunnelParams(nil), closes)
	require.Len(t, got, 2)
	require.Contains(t, got, 7)
	assert.Equal(t, signal.Buy, got[7].Side)
	require.Contains(t, got, 8)
	assert.Equal(t, signal.Sell, got[8].Side)
	assert.Equal(t, "tunnel long bracket hit", got[8].Reason)
}

func TestVegasTunnelRespectsDirection(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 9, 14, 15}
	got := feedCloses(t, "vegas_double_tunnel", tunnelParams(map[string]float64{"direction": 2}), closes)
	assert.Empty(t, got)

	_, _, err := Builtin().Build("vegas_double_tunnel", tunnelParams(map[string]float64{"ma3_period": 2}))
	assert.ErrorIs(t, err, ErrInvalidParam)
}
