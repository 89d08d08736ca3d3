package strategy

import (
	"time"

	"livetrader-go/internal/signal"
)

// PositionReader exposes the broker-mirrored position quantity (signed, negative for short).
type PositionReader interface {
	PositionQty(symbol string) float64
}

// Series is a bounded window of closed bars, oldest first.
type Series struct {
	bars     []signal.Bar
	capacity int
}

// NewSeries keeps at most capacity bars; capacity <= 0 selects 1000.
func NewSeries(capacity int) *Series {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Series{capacity: capacity}
}

// Push appends a closed bar, evicting the oldest once full.
func (s *Series) Push(b signal.Bar) {
	s.bars = append(s.bars, b)
	if over := len(s.bars) - s.capacity; over > 0 {
		s.bars = append(s.bars[:0], s.bars[over:]...)
	}
}

// Len returns the number of bars held.
func (s *Series) Len() int { return len(s.bars) }

// Last returns the most recent bar.
func (s *Series) Last() (signal.Bar, bool) {
	if len(s.bars) == 0 {
		return signal.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Ago returns the bar n positions back from the latest (0 is the latest).
func (s *Series) Ago(n int) (signal.Bar, bool) {
	idx := len(s.bars) - 1 - n
	if n < 0 || idx < 0 {
		return signal.Bar{}, false
	}
	return s.bars[idx], true
}

// Closes returns a copy of the close prices.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns a copy of the bar highs.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.High
	}
	return out
}

// Lows returns a copy of the bar lows.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Low
	}
	return out
}

// Typical returns (high+low+close)/3 per bar.
func (s *Series) Typical() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = (b.High + b.Low + b.Close) / 3
	}
	return out
}

// OrderOption tweaks an intent recorded through the context.
type OrderOption func(*signal.Intent)

// Qty overrides the default trade quantity.
func Qty(q float64) OrderOption { return func(i *signal.Intent) { i.Quantity = q } }

// LimitAt turns the order into a limit order.
func LimitAt(px float64) OrderOption {
	return func(i *signal.Intent) {
		i.LimitPrice = &px
		if i.Type == signal.Stop {
			i.Type = signal.StopLimit
		} else {
			i.Type = signal.Limit
		}
	}
}

// StopAt turns the order into a stop (or stop-limit) order.
func StopAt(px float64) OrderOption {
	return func(i *signal.Intent) {
		i.StopPrice = &px
		if i.Type == signal.Limit {
			i.Type = signal.StopLimit
		} else {
			i.Type = signal.Stop
		}
	}
}

// Trailing attaches a trailing stop to an entry.
func Trailing(activationPct, trailPct float64) OrderOption {
	return func(i *signal.Intent) {
		i.Stop = &signal.StopSpec{Type: signal.TrailingStop, ActivationPct: activationPct, TrailPct: trailPct}
	}
}

// Because records a human-readable reason.
func Because(reason string) OrderOption { return func(i *signal.Intent) { i.Reason = reason } }

// Context is the mock order surface handed to a strategy for one invocation.
// Buy, Sell and Close only record intents; nothing here reaches a broker.
type Context struct {
	Symbol string
	Bars   *Series
	Tick   signal.Tick
	Now    time.Time

	refPrice   float64
	defaultQty float64
	positions  PositionReader
	recorded   []*signal.Intent
}

// Price returns the reference price for this invocation (bar close or tick price).
func (c *Context) Price() float64 { return c.refPrice }

// Position returns the broker-mirrored signed quantity, zero when unknown.
func (c *Context) Position() float64 {
	if c.positions == nil {
		return 0
	}
	return c.positions.PositionQty(c.Symbol)
}

// Buy records a buy intent.
func (c *Context) Buy(opts ...OrderOption) { c.record(signal.Buy, false, opts) }

// Sell records a sell intent.
func (c *Context) Sell(opts ...OrderOption) { c.record(signal.Sell, false, opts) }

// Close records an exit of the current position; the side is taken from the position.
func (c *Context) Close(opts ...OrderOption) {
	pos := c.Position()
	side := signal.Sell
	if pos < 0 {
		side = signal.Buy
	}
	c.record(side, true, opts)
}

// Recorded returns the intents recorded so far.
func (c *Context) Recorded() []*signal.Intent { return c.recorded }

func (c *Context) record(side signal.Side, closing bool, opts []OrderOption) {
	in := signal.NewIntent(c.Symbol, side, c.defaultQty, signal.Market, c.Now)
	in.RefPrice = c.refPrice
	in.Close = closing
	if closing {
		in.Quantity = 0
		if pos := c.Position(); pos < 0 {
			in.Quantity = -pos
		} else {
			in.Quantity = pos
		}
	}
	for _, opt := range opts {
		opt(in)
	}
	c.recorded = append(c.recorded, in)
}
