// Package bar turns a per-symbol tick stream into fixed-interval synthetic bars.
package bar

import (
	"errors"
	"fmt"
	"time"

	"livetrader-go/internal/metrics"
	"livetrader-go/internal/signal"
)

var (
	// ErrOutOfOrder reports a tick older than the last tick already applied.
	ErrOutOfOrder = errors.New("tick out of order")
	// ErrInvalidTick reports a tick that cannot be applied (wrong symbol, non-positive price, negative size).
	ErrInvalidTick = errors.New("invalid tick")
)

// maxFillBars bounds how many empty bars are emitted for one gap; beyond it the aggregator jumps ahead.
const maxFillBars = 1 << 16

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTickThreshold closes a bar early once it has absorbed n ticks. Zero disables it.
func WithTickThreshold(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.threshold = n
		}
	}
}

// Aggregator holds at most one open bar for a single symbol.
// It is owned by one worker and is not safe for concurrent use.
type Aggregator struct {
	symbol    string
	interval  time.Duration
	threshold int

	cur       signal.Bar
	open      bool
	lastTick  time.Time
	prevClose float64
	paused    bool
	rejected  uint64
}

// NewAggregator builds an aggregator aligned to wall-clock multiples of interval.
func NewAggregator(symbol string, interval time.Duration, opts ...Option) (*Aggregator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("bar interval must be positive, got %s", interval)
	}
	a := &Aggregator{symbol: symbol, interval: interval}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Symbol returns the symbol this aggregator tracks.
func (a *Aggregator) Symbol() string { return a.symbol }

// Interval returns the configured bar width.
func (a *Aggregator) Interval() time.Duration { return a.interval }

// Add applies a tick and returns every bar it closed, oldest first.
// Out-of-order ticks are dropped and counted; they never alter an existing bar.
func (a *Aggregator) Add(tk signal.Tick) ([]signal.Bar, error) {
	if tk.Symbol != a.symbol || tk.Price <= 0 || tk.Size < 0 {
		return nil, ErrInvalidTick
	}
	if tk.Ts.Before(a.lastTick) || (a.open && tk.Ts.Before(a.cur.Start)) {
		a.rejected++
		metrics.RejectedTicks.WithLabelValues(a.symbol).Inc()
		return nil, ErrOutOfOrder
	}

	var closed []signal.Bar
	if !a.open {
		a.openBar(tk.Ts.Truncate(a.interval), tk.Price)
	} else {
		closed = a.roll(tk.Ts)
	}

	a.apply(tk)

	if a.threshold > 0 && a.cur.Ticks >= a.threshold {
		end := a.cur.End
		closed = append(closed, a.closeCurrent())
		a.cur = a.seeded(tk.Ts, end)
		a.open = true
	}
	return closed, nil
}

// Advance closes every bar whose end is at or before now. It does nothing while paused
// or before the first tick has opened a bar.
func (a *Aggregator) Advance(now time.Time) []signal.Bar {
	if a.paused || !a.open {
		return nil
	}
	return a.roll(now)
}

// Pause suppresses timer-driven closes until Resume.
func (a *Aggregator) Pause() { a.paused = true }

// Resume re-enables timer-driven closes.
func (a *Aggregator) Resume() { a.paused = false }

// Paused reports whether timer-driven closes are suppressed.
func (a *Aggregator) Paused() bool { return a.paused }

// Current returns a copy of the open bar, if any.
func (a *Aggregator) Current() (signal.Bar, bool) {
	return a.cur, a.open
}

// NextBoundary returns the end of the open bar, or the zero time when no bar is open.
func (a *Aggregator) NextBoundary() time.Time {
	if !a.open {
		return time.Time{}
	}
	return a.cur.End
}

// Rejected returns the number of ticks dropped as out of order.
func (a *Aggregator) Rejected() uint64 { return a.rejected }

func (a *Aggregator) roll(ts time.Time) []signal.Bar {
	var closed []signal.Bar
	for a.open && !ts.Before(a.cur.End) {
		start := a.cur.End
		closed = append(closed, a.closeCurrent())
		if len(closed) >= maxFillBars {
			start = ts.Truncate(a.interval)
		}
		a.cur = a.seeded(start, start.Add(a.interval))
		a.open = true
	}
	return closed
}

func (a *Aggregator) openBar(start time.Time, price float64) {
	a.cur = signal.Bar{
		Symbol: a.symbol,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Start:  start,
		End:    start.Add(a.interval),
	}
	a.open = true
}

// seeded opens the next bar at the prior close; high and low are replaced by the first tick.
func (a *Aggregator) seeded(start, end time.Time) signal.Bar {
	return signal.Bar{
		Symbol: a.symbol,
		Open:   a.prevClose,
		High:   a.prevClose,
		Low:    a.prevClose,
		Close:  a.prevClose,
		Start:  start,
		End:    end,
	}
}

func (a *Aggregator) apply(tk signal.Tick) {
	b := &a.cur
	if b.Ticks == 0 {
		b.High = tk.Price
		b.Low = tk.Price
	} else {
		if tk.Price > b.High {
			b.High = tk.Price
		}
		if tk.Price < b.Low {
			b.Low = tk.Price
		}
	}
	b.Close = tk.Price
	b.Volume += tk.Size
	b.Ticks++
	b.LastTick = tk.Ts
	a.lastTick = tk.Ts
}

func (a *Aggregator) closeCurrent() signal.Bar {
	out := a.cur
	out.Closed = true
	a.prevClose = out.Close
	a.open = false
	metrics.BarsClosed.WithLabelValues(a.symbol).Inc()
	return out
}
