package paper

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

func order(side signal.Side, qty, ref float64) execution.OrderRequest {
	return execution.OrderRequest{ClientOrderID: "c1", Symbol: "AAPL", Side: side, Qty: qty, Type: signal.Market, RefPrice: ref}
}

func TestBrokerFillsAndReports(t *testing.T) {
	ledger := NewLedger(4)
	b := NewBroker(NewAccount(1000, 0), zerolog.Nop(), WithRecorders(ledger))
	ctx := context.Background()

	res, err := b.PlaceOrder(ctx, order(signal.Buy, 2, 100))
	require.NoError(t, err)
	assert.Equal(t, "filled", res.Status)
	assert.Equal(t, "c1", res.ClientOrderID)
	assert.InDelta(t, 100, res.FilledAvgPrice, 1e-9)

	b.Mark("AAPL", 110)
	acct, err := b.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 800, acct.Cash, 1e-9)
	assert.InDelta(t, 1020, acct.Equity, 1e-9)

	pos, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, 2.0, pos[0].Qty)
	assert.InDelta(t, 20, pos[0].UnrealizedPL, 1e-9)
	assert.Len(t, ledger.Snapshot(), 1)
}

func TestBrokerRejectsShortsAndUnsupported(t *testing.T) {
	b := NewBroker(NewAccount(1000, 0), zerolog.Nop())
	ctx := context.Background()

	_, err := b.PlaceOrder(ctx, order(signal.Sell, 1, 100))
	assert.True(t, execution.IsRejected(err))

	stop := order(signal.Buy, 1, 100)
	stop.Type = signal.Stop
	_, err = b.PlaceOrder(ctx, stop)
	assert.True(t, execution.IsRejected(err))

	_, err = b.PlaceOrder(ctx, order(signal.Buy, 100, 100))
	assert.True(t, IsInsufficientFunds(err))
}

func TestBrokerSlippageAndLimits(t *testing.T) {
	b := NewBroker(NewAccount(10000, 0), zerolog.Nop(), WithSlippageBps(10))
	ctx := context.Background()

	res, err := b.PlaceOrder(ctx, order(signal.Buy, 1, 100))
	require.NoError(t, err)
	assert.InDelta(t, 100.1, res.FilledAvgPrice, 1e-9)

	lim := 100.0
	req := order(signal.Buy, 1, 100)
	req.Type, req.LimitPrice = signal.Limit, &lim
	_, err = b.PlaceOrder(ctx, req)
	assert.True(t, execution.IsRejected(err), "slipped price above the limit is not marketable")

	lim = 101
	res, err = b.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.InDelta(t, 100.1, res.FilledAvgPrice, 1e-9)
}
