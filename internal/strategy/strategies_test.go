package strategy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/signal"
)

func feedCloses(t *testing.T, name string, overrides map[string]float64, closes []float64) map[int]*signal.Intent {
	t.Helper()
	desc, inst, err := Builtin().Build(name, overrides)
	require.NoError(t, err)
	a := NewAdapter("AAPL", desc, inst, zerolog.Nop())
	out := make(map[int]*signal.Intent)
	for i, px := range closes {
		if got := a.Invoke(closedBar(i, px)); len(got) == 1 {
			out[i] = got[0]
		}
	}
	return out
}

func TestRSIEMAEntryAndExit(t *testing.T) {
	got := feedCloses(t, "rsi_ema", map[string]float64{"rsi_length": 3, "use_ema_filter": 0},
		[]float64{10, 9, 8, 7, 8, 9})
	require.Len(t, got, 2)
	require.Contains(t, got, 3)
	assert.Equal(t, signal.Buy, got[3].Side)
	require.Contains(t, got, 5)
	assert.Equal(t, signal.Sell, got[5].Side)
}

func TestRSIEMATrendFilterBlocksCounterTrendEntry(t *testing.T) {
	got := feedCloses(t, "rsi_ema", map[string]float64{"rsi_length": 3, "ema_length": 3},
		[]float64{10, 9, 8, 7})
	assert.Empty(t, got)
}

func TestRSIEMAAttachesTrailingStop(t *testing.T) {
	got := feedCloses(t, "rsi_ema", map[string]float64{
		"rsi_length": 3, "use_ema_filter": 0, "trail_activation_pct": 0.02, "trail_pct": 0.01,
	}, []float64{10, 9, 8, 7})
	require.Contains(t, got, 3)
	require.NotNil(t, got[3].Stop)
	assert.Equal(t, 0.02, got[3].Stop.ActivationPct)
	assert.Equal(t, 0.01, got[3].Stop.TrailPct)
}

func TestSMACross(t *testing.T) {
	got := feedCloses(t, "sma_cross", map[string]float64{"fast": 2, "slow": 3},
		[]float64{10, 9, 8, 7, 12, 1})
	require.Contains(t, got, 4)
	assert.Equal(t, signal.Buy, got[4].Side)
	require.Contains(t, got, 5)
	assert.Equal(t, signal.Sell, got[5].Side)

	_, _, err := Builtin().Build("sma_cross", map[string]float64{"fast": 30, "slow": 10})
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestBollingerRevert(t *testing.T) {
	got := feedCloses(t, "bollinger_revert", map[string]float64{"length": 5, "stddev": 1},
		[]float64{10, 10, 10, 10, 10, 5, 4})
	require.Len(t, got, 1)
	require.Contains(t, got, 5)
	assert.Equal(t, signal.Buy, got[5].Side)
}
