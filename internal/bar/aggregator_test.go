package bar

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/metrics"
	"livetrader-go/internal/signal"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func tick(price float64, offset time.Duration) signal.Tick {
	return signal.Tick{Symbol: "BTC/USD", Price: price, Size: 1, Ts: base.Add(offset)}
}

func TestScenarioSingleWindow(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	for i, px := range []float64{100, 105, 95, 102} {
		closed, err := agg.Add(tick(px, time.Duration(i*10)*time.Second))
		require.NoError(t, err)
		require.Empty(t, closed)
	}

	closed := agg.Advance(base.Add(time.Minute))
	require.Len(t, closed, 1)
	got := closed[0]
	require.True(t, got.Closed)
	require.Equal(t, 100.0, got.Open)
	require.Equal(t, 105.0, got.High)
	require.Equal(t, 95.0, got.Low)
	require.Equal(t, 102.0, got.Close)
	require.Equal(t, 4.0, got.Volume)
	require.Equal(t, base, got.Start)
	require.Equal(t, base.Add(time.Minute), got.End)
}

func TestOneBarPerElapsedBoundary(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	var closed []signal.Bar
	expectHigh := map[int]float64{}
	expectLow := map[int]float64{}
	ts := time.Duration(0)
	for ts < 5*time.Minute {
		px := 90 + rng.Float64()*20
		window := int(ts / time.Minute)
		if h, ok := expectHigh[window]; !ok || px > h {
			expectHigh[window] = px
		}
		if l, ok := expectLow[window]; !ok || px < l {
			expectLow[window] = px
		}
		out, err := agg.Add(tick(px, ts))
		require.NoError(t, err)
		closed = append(closed, out...)
		ts += time.Duration(1+rng.Intn(7)) * time.Second
	}
	closed = append(closed, agg.Advance(base.Add(5*time.Minute))...)

	require.Len(t, closed, 5)
	for i, b := range closed {
		require.Equal(t, base.Add(time.Duration(i)*time.Minute), b.Start)
		require.Equal(t, expectHigh[i], b.High, "bar %d high", i)
		require.Equal(t, expectLow[i], b.Low, "bar %d low", i)
	}
}

func TestOutOfOrderTickDropped(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	_, err = agg.Add(tick(100, 10*time.Second))
	require.NoError(t, err)
	_, err = agg.Add(tick(101, 20*time.Second))
	require.NoError(t, err)
	before, _ := agg.Current()

	_, err = agg.Add(tick(500, 15*time.Second))
	require.True(t, errors.Is(err, ErrOutOfOrder))
	require.Equal(t, uint64(1), agg.Rejected())

	after, _ := agg.Current()
	require.Equal(t, before, after)
}

func TestLateTickForClosedBarDropped(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	_, err = agg.Add(tick(100, 10*time.Second))
	require.NoError(t, err)
	require.Len(t, agg.Advance(base.Add(time.Minute)), 1)

	_, err = agg.Add(tick(90, 50*time.Second))
	require.ErrorIs(t, err, ErrOutOfOrder)
	cur, ok := agg.Current()
	require.True(t, ok)
	require.Equal(t, 0, cur.Ticks)
}

func TestSeededBarUsesPriorClose(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	_, err = agg.Add(tick(100, 0))
	require.NoError(t, err)
	_, err = agg.Add(tick(110, 30*time.Second))
	require.NoError(t, err)

	closed, err := agg.Add(tick(120, 70*time.Second))
	require.NoError(t, err)
	require.Len(t, closed, 1)

	cur, ok := agg.Current()
	require.True(t, ok)
	require.Equal(t, 110.0, cur.Open)
	require.Equal(t, 120.0, cur.High)
	require.Equal(t, 120.0, cur.Low)
	require.Equal(t, 120.0, cur.Close)
}

func TestGapEmitsFlatBars(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	_, err = agg.Add(tick(100, 0))
	require.NoError(t, err)
	closed, err := agg.Add(tick(104, 3*time.Minute+5*time.Second))
	require.NoError(t, err)
	require.Len(t, closed, 3)

	for _, b := range closed[1:] {
		require.Equal(t, 0, b.Ticks)
		require.Equal(t, 100.0, b.Open)
		require.Equal(t, 100.0, b.High)
		require.Equal(t, 100.0, b.Low)
		require.Equal(t, 100.0, b.Close)
		require.Zero(t, b.Volume)
	}
}

func TestTickThresholdClosesEarly(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute, WithTickThreshold(3))
	require.NoError(t, err)

	var closed []signal.Bar
	for i, px := range []float64{10, 11, 12, 13} {
		out, err := agg.Add(tick(px, time.Duration(i)*time.Second))
		require.NoError(t, err)
		closed = append(closed, out...)
	}
	require.Len(t, closed, 1)
	require.Equal(t, 12.0, closed[0].Close)
	require.Equal(t, 3, closed[0].Ticks)

	cur, ok := agg.Current()
	require.True(t, ok)
	require.Equal(t, 12.0, cur.Open)
	require.Equal(t, base.Add(time.Minute), cur.End)
}

func TestPauseSuppressesTimerClose(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)

	_, err = agg.Add(tick(100, 0))
	require.NoError(t, err)
	agg.Pause()
	require.Empty(t, agg.Advance(base.Add(2*time.Minute)))

	agg.Resume()
	require.Len(t, agg.Advance(base.Add(2*time.Minute)), 2)
}

func TestInvalidTick(t *testing.T) {
	agg, err := NewAggregator("BTC/USD", time.Minute)
	require.NoError(t, err)
	_, err = agg.Add(signal.Tick{Symbol: "ETH/USD", Price: 1, Ts: base})
	require.ErrorIs(t, err, ErrInvalidTick)
	_, err = agg.Add(signal.Tick{Symbol: "BTC/USD", Price: 0, Ts: base})
	require.ErrorIs(t, err, ErrInvalidTick)

	_, err = NewAggregator("BTC/USD", 0)
	require.Error(t, err)
}

func TestAggregatorCountsClosedBarsAndRejectedTicks(t *testing.T) {
	const sym = "METRIC/USD"
	agg, err := NewAggregator(sym, time.Minute)
	require.NoError(t, err)
	closedBefore := testutil.ToFloat64(metrics.BarsClosed.WithLabelValues(sym))
	rejectedBefore := testutil.ToFloat64(metrics.RejectedTicks.WithLabelValues(sym))

	at := func(px float64, offset time.Duration) signal.Tick {
		return signal.Tick{Symbol: sym, Price: px, Size: 1, Ts: base.Add(offset)}
	}
	_, err = agg.Add(at(100, 10*time.Second))
	require.NoError(t, err)
	_, err = agg.Add(at(99, 5*time.Second))
	require.ErrorIs(t, err, ErrOutOfOrder)

	// A tick three intervals later closes the open bar plus two gap bars.
	closed, err := agg.Add(at(101, 3*time.Minute+time.Second))
	require.NoError(t, err)
	require.Len(t, closed, 3)

	require.Equal(t, closedBefore+3, testutil.ToFloat64(metrics.BarsClosed.WithLabelValues(sym)))
	require.Equal(t, rejectedBefore+1, testutil.ToFloat64(metrics.RejectedTicks.WithLabelValues(sym)))
}
