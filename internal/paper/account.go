package paper

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

var (
	errInsufficientCash     = errors.New("insufficient cash for buy")
	errPositionLimit        = errors.New("position limit exceeded")
	errInsufficientPosition = errors.New("insufficient position to sell, shorting is not supported")
)

// dust is the quantity below which a position counts as closed. Quantities arrive as
// float64 from the position mirror, so a full close can be a hair off the booked amount.
var dust = decimal.New(1, -9)

type holding struct {
	qty      decimal.Decimal
	cost     decimal.Decimal // total cost basis of qty
	realized decimal.Decimal
	trades   int
}

func (h holding) avg() decimal.Decimal {
	if h.qty.IsZero() {
		return decimal.Zero
	}
	return h.cost.Div(h.qty)
}

// Account books long-only paper fills in decimal so cash and cost basis never drift.
type Account struct {
	mu           sync.Mutex
	startingCash decimal.Decimal
	cash         decimal.Decimal
	realized     decimal.Decimal
	maxPosition  decimal.Decimal
	holdings     map[string]holding
}

// PositionSnapshot is one symbol's position as of a Snapshot. Value fields are zero when
// the symbol has no mark yet.
type PositionSnapshot struct {
	Qty         float64
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
	Realized    float64
	Trades      int
}

// Snapshot is a copy of the account marked against the supplied prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// NewAccount starts an account with startingCash. A positive maxPositionPerSymbol caps each holding.
func NewAccount(startingCash, maxPositionPerSymbol float64) *Account {
	start := decimal.NewFromFloat(startingCash)
	return &Account{
		startingCash: start,
		cash:         start,
		maxPosition:  decimal.NewFromFloat(maxPositionPerSymbol),
		holdings:     make(map[string]holding),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash.InexactFloat64() }

// MarketFill books a fill of qty at price. Sells larger than the holding (within dust)
// are refused rather than opening a short.
func (a *Account) MarketFill(symbol string, side signal.Side, qty, price float64) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if price <= 0 {
		return errors.New("price must be positive")
	}
	q, px := decimal.NewFromFloat(qty), decimal.NewFromFloat(price)
	notional := q.Mul(px)

	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.holdings[symbol]

	switch side {
	case signal.Buy:
		if notional.GreaterThan(a.cash) {
			return errInsufficientCash
		}
		next := h.qty.Add(q)
		if a.maxPosition.IsPositive() && next.GreaterThan(a.maxPosition) {
			return errPositionLimit
		}
		a.cash = a.cash.Sub(notional)
		h.qty, h.cost = next, h.cost.Add(notional)

	case signal.Sell:
		if !h.qty.IsPositive() || q.GreaterThan(h.qty.Add(dust)) {
			return errInsufficientPosition
		}
		if q.GreaterThan(h.qty) {
			q, notional = h.qty, h.qty.Mul(px)
		}
		basis := h.avg().Mul(q)
		pnl := notional.Sub(basis)
		a.cash = a.cash.Add(notional)
		a.realized = a.realized.Add(pnl)
		h.realized = h.realized.Add(pnl)
		h.qty, h.cost = h.qty.Sub(q), h.cost.Sub(basis)
		if h.qty.LessThanOrEqual(dust) {
			h.qty, h.cost = decimal.Zero, decimal.Zero
		}

	default:
		return errors.New("unknown order side")
	}
	h.trades++
	a.holdings[symbol] = h
	return nil
}

// Snapshot returns open positions marked at prices. Closed holdings are left out.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.holdings))
	equity := a.cash
	for sym, h := range a.holdings {
		if h.qty.IsZero() {
			continue
		}
		ps := PositionSnapshot{
			Qty:      h.qty.InexactFloat64(),
			AvgCost:  h.avg().InexactFloat64(),
			Realized: h.realized.InexactFloat64(),
			Trades:   h.trades,
		}
		if mark, ok := prices[sym]; ok && mark > 0 {
			value := h.qty.Mul(decimal.NewFromFloat(mark))
			ps.MarketValue = value.InexactFloat64()
			ps.Unrealized = value.Sub(h.cost).InexactFloat64()
			equity = equity.Add(value)
		}
		positions[sym] = ps
	}
	return Snapshot{
		Cash:        a.cash.InexactFloat64(),
		RealizedPnL: a.realized.InexactFloat64(),
		Equity:      equity.InexactFloat64(),
		Positions:   positions,
	}
}

// AvailableCash reports cash free for new longs.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash.InexactFloat64()
}

// Position returns the held quantity for symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holdings[symbol].qty.InexactFloat64()
}

// RealizedPnL returns closed-trade profit and loss across all symbols.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized.InexactFloat64()
}
