package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const equalityThreshold = 1e-2

func TestSMA(t *testing.T) {
	assert.InDelta(t, 4.0, SMA([]float64{1, 2, 3, 4, 5}, 3), equalityThreshold)
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 3)))
}

func TestEMASeedsWithSMA(t *testing.T) {
	out := EMA([]float64{1, 2, 3, 4}, 3)
	require.Len(t, out, 4)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], equalityThreshold)
	// k = 0.5: 4*0.5 + 2*0.5
	assert.InDelta(t, 3.0, out[3], equalityThreshold)
}

func TestRSIMonotonicSeries(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	assert.InDelta(t, 100.0, Last(RSI(up, 5)), equalityThreshold)

	down := []float64{8, 7, 6, 5, 4, 3, 2, 1}
	assert.InDelta(t, 0.0, Last(RSI(down, 5)), equalityThreshold)

	flat := []float64{5, 5, 5, 5, 5, 5}
	assert.InDelta(t, 50.0, Last(RSI(flat, 3)), equalityThreshold)
}

func TestRSIKnownValue(t *testing.T) {
	// Gains 1,0,1 and loss 1 over n=4: avgG=0.5 (2/4), avgL=0.25 -> rs=2 -> 66.67
	closes := []float64{10, 11, 11, 10, 11}
	assert.InDelta(t, 66.67, Last(RSI(closes, 4)), equalityThreshold)
}

func TestBollinger(t *testing.T) {
	bands, err := Bollinger([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, bands.Middle, equalityThreshold)
	assert.InDelta(t, 9.0, bands.Upper, equalityThreshold)
	assert.InDelta(t, 1.0, bands.Lower, equalityThreshold)

	_, err = Bollinger([]float64{1, 2}, 5, 2)
	assert.Error(t, err)
}
