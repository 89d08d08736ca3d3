package paper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

// BrokerOption configures a paper Broker.
type BrokerOption func(*Broker)

// WithSlippageBps worsens every fill by bps basis points against the trader.
func WithSlippageBps(bps float64) BrokerOption {
	return func(b *Broker) { b.slippage = decimal.NewFromFloat(bps).Div(decimal.NewFromInt(10000)) }
}

// WithRecorders adds fill sinks such as a Ledger or JSONLRecorder.
func WithRecorders(recs ...FillRecorder) BrokerOption {
	return func(b *Broker) { b.recorders = append(b.recorders, recs...) }
}

// WithClock replaces time.Now for fill timestamps.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// Broker fills orders against an in-memory Account at the intent's reference price.
// Market orders always fill; limit orders fill at the slipped price only when marketable; stop orders and
// short sales are rejected.
type Broker struct {
	account   *Account
	log       zerolog.Logger
	slippage  decimal.Decimal
	recorders []FillRecorder
	now       func() time.Time

	mu    sync.Mutex
	marks map[string]float64
}

// NewBroker wraps account.
func NewBroker(account *Account, log zerolog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{account: account, log: log, now: time.Now, marks: make(map[string]float64)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PlaceOrder simulates an immediate fill.
func (b *Broker) PlaceOrder(_ context.Context, req execution.OrderRequest) (execution.OrderResult, error) {
	if req.RefPrice <= 0 {
		return execution.OrderResult{}, execution.Rejected("no reference price for %s", req.Symbol)
	}
	b.mark(req.Symbol, req.RefPrice)

	px, err := b.fillPrice(req)
	if err != nil {
		return execution.OrderResult{}, err
	}
	if err := b.account.MarketFill(req.Symbol, req.Side, req.Qty, px); err != nil {
		return execution.OrderResult{}, &execution.RejectedError{Reason: err.Error()}
	}

	fill := execution.Fill{
		OrderID:       uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           req.Qty,
		Price:         px,
		Ts:            b.now(),
	}
	for _, rec := range b.recorders {
		rec.Record(fill)
	}
	b.log.Info().
		Str("sym", fill.Symbol).
		Str("side", string(fill.Side)).
		Float64("qty", fill.Qty).
		Float64("px", fill.Price).
		Str("intent", fill.ClientOrderID).
		Msg("paper fill")
	return execution.OrderResult{
		ID:             fill.OrderID,
		ClientOrderID:  fill.ClientOrderID,
		Status:         "filled",
		FilledQty:      fill.Qty,
		FilledAvgPrice: fill.Price,
		SubmittedAt:    fill.Ts,
	}, nil
}

func (b *Broker) fillPrice(req execution.OrderRequest) (float64, error) {
	ref := decimal.NewFromFloat(req.RefPrice)
	one := decimal.NewFromInt(1)
	var px decimal.Decimal
	switch req.Side {
	case signal.Buy:
		px = ref.Mul(one.Add(b.slippage))
	case signal.Sell:
		px = ref.Mul(one.Sub(b.slippage))
	default:
		return 0, execution.Rejected("unknown side %q", req.Side)
	}

	switch req.Type {
	case signal.Market, "":
	case signal.Limit:
		if req.LimitPrice == nil {
			return 0, execution.Rejected("limit order without limit price")
		}
		limit := decimal.NewFromFloat(*req.LimitPrice)
		if (req.Side == signal.Buy && px.GreaterThan(limit)) || (req.Side == signal.Sell && px.LessThan(limit)) {
			return 0, execution.Rejected("limit %s not marketable at %s", limit.String(), px.StringFixed(6))
		}
	default:
		return 0, execution.Rejected("paper broker does not support %s orders", req.Type)
	}
	f, _ := px.Float64()
	return f, nil
}

func (b *Broker) mark(symbol string, px float64) {
	b.mu.Lock()
	b.marks[symbol] = px
	b.mu.Unlock()
}

// Mark updates the price used to value open positions.
func (b *Broker) Mark(symbol string, px float64) {
	if px > 0 {
		b.mark(symbol, px)
	}
}

func (b *Broker) snapshot() Snapshot {
	b.mu.Lock()
	marks := make(map[string]float64, len(b.marks))
	for k, v := range b.marks {
		marks[k] = v
	}
	b.mu.Unlock()
	return b.account.Snapshot(marks)
}

// Account reports cash and marked equity.
func (b *Broker) Account(context.Context) (execution.Account, error) {
	snap := b.snapshot()
	return execution.Account{
		ID:          "paper",
		Status:      "ACTIVE",
		Currency:    "USD",
		Cash:        snap.Cash,
		Equity:      snap.Equity,
		BuyingPower: snap.Cash,
	}, nil
}

// Positions lists open positions sorted by symbol.
func (b *Broker) Positions(context.Context) ([]execution.Position, error) {
	snap := b.snapshot()
	out := make([]execution.Position, 0, len(snap.Positions))
	for sym, p := range snap.Positions {
		out = append(out, execution.Position{
			Symbol:        sym,
			Qty:           p.Qty,
			AvgEntryPrice: p.AvgCost,
			MarketValue:   p.MarketValue,
			UnrealizedPL:  p.Unrealized,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// OpenOrders is always empty: paper orders fill or are rejected immediately.
func (b *Broker) OpenOrders(context.Context) ([]execution.Order, error) { return nil, nil }

// IsInsufficientFunds reports whether err came from a cash shortfall.
func IsInsufficientFunds(err error) bool {
	var rej *execution.RejectedError
	return errors.As(err, &rej) && rej.Reason == errInsufficientCash.Error()
}
