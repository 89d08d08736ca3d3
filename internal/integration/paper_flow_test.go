package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/exchange"
	"livetrader-go/internal/live"
	"livetrader-go/internal/paper"
	"livetrader-go/internal/signal"
	"livetrader-go/internal/status"
	"livetrader-go/internal/strategy"
	"livetrader-go/internal/web"
)

var start = time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)

// replayFeed plays a fixed tape and then ends, like a feed whose upstream closed for good.
type replayFeed struct{ ticks []signal.Tick }

func (f replayFeed) Run(ctx context.Context, out chan<- signal.Tick) error {
	for _, tk := range f.ticks {
		select {
		case out <- tk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func tape(sym string, prices ...float64) []signal.Tick {
	out := make([]signal.Tick, len(prices))
	for i, px := range prices {
		out[i] = signal.Tick{Symbol: sym, Price: px, Size: 1, Side: 1, Ts: start.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestSMACrossRoundTripThroughPaperBroker(t *testing.T) {
	ledger := paper.NewLedger(16)
	fills := filepath.Join(t.TempDir(), "fills.jsonl")
	jsonl, err := paper.NewJSONLRecorder(fills)
	require.NoError(t, err)
	defer jsonl.Close()

	broker := paper.NewBroker(paper.NewAccount(1000, 0), zerolog.Nop(),
		paper.WithRecorders(ledger, jsonl),
		paper.WithClock(func() time.Time { return start }))

	tr, err := live.NewTrader(live.Settings{
		Symbols:       []string{"ETH/USD"},
		Strategy:      "sma_cross",
		Params:        map[string]float64{"fast": 2, "slow": 3},
		Qty:           1,
		Interval:      time.Hour,
		TickThreshold: 1,
		QueueSize:     16,
	}, strategy.Builtin(), broker, zerolog.Nop(), live.WithClock(func() time.Time { return start }))
	require.NoError(t, err)

	hub := web.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Consume(hubCtx, tr.Publisher().C())

	// Every tick closes a bar: the fast average crosses up on the 12 close and back down on the 8.
	feed := replayFeed{ticks: tape("ETH/USD", 10, 9, 8, 7, 9, 12, 12, 8)}
	require.NoError(t, tr.Run(context.Background(), feed))

	got := ledger.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, signal.Buy, got[0].Side)
	assert.InDelta(t, 12, got[0].Price, 1e-9)
	assert.Equal(t, signal.Sell, got[1].Side)
	assert.InDelta(t, 8, got[1].Price, 1e-9)

	require.Eventually(t, func() bool {
		snap, ok := hub.Latest()
		return ok && len(snap.Positions) == 0 && snap.Account.Cash == 996
	}, 2*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(web.NewRouter(hub))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap status.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.InDelta(t, 996, snap.Account.Cash, 1e-9)
	var placed int
	for _, n := range snap.Notices {
		if n.Kind == status.OrderPlaced {
			placed++
			assert.Equal(t, "ETH/USD", n.Symbol)
		}
	}
	assert.Equal(t, 2, placed)
}

func TestStubFeedReachesPaperBroker(t *testing.T) {
	tr, err := live.NewTrader(live.Settings{
		Symbols:       []string{"BTC/USDT"},
		Strategy:      "trend_follow",
		Params:        map[string]float64{"threshold": 0.0001, "window_sec": 60, "min_volume": 0},
		Qty:           0.001,
		Interval:      time.Minute,
		QueueSize:     64,
		PositionAware: true,
	}, strategy.Builtin(), paper.NewBroker(paper.NewAccount(1000, 0), zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)

	feed := exchange.NewFeed(exchange.ProviderStub, tr.Symbols(), zerolog.Nop(),
		exchange.WithStubInterval(5*time.Millisecond),
		exchange.WithStatusHook(tr.FeedStatus))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, feed) }()

	require.Eventually(t, func() bool {
		for _, n := range tr.Notices().Recent() {
			if n.Kind == status.OrderPlaced {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	pos, ok := tr.Cache().Position("BTC/USDT")
	require.True(t, ok)
	assert.Greater(t, pos.Qty, 0.0)
}
