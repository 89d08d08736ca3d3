package paper

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

// Ledger keeps the most recent fills in memory. A zero capacity keeps everything.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	fills    []execution.Fill
	dropped  uint64
}

// NewLedger returns a ledger retaining at most capacity fills.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{capacity: capacity, fills: make([]execution.Fill, 0, capacity)}
}

// Record appends fill, evicting the oldest one when the ledger is full.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capacity > 0 && len(l.fills) == l.capacity {
		copy(l.fills, l.fills[1:])
		l.fills = l.fills[:len(l.fills)-1]
		l.dropped++
	}
	l.fills = append(l.fills, fill)
}

// Snapshot returns the retained fills, oldest first.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]execution.Fill(nil), l.fills...)
}

// Fills returns the retained fills for one symbol.
func (l *Ledger) Fills(symbol string) []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []execution.Fill
	for _, f := range l.fills {
		if f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// Dropped counts fills evicted to respect the capacity.
func (l *Ledger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Reset clears all stored fills.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.dropped = 0
	l.mu.Unlock()
}

// Activity totals the retained fills of one symbol.
type Activity struct {
	Symbol    string
	Fills     int
	Bought    float64
	Sold      float64
	NetCash   float64 // sell proceeds minus buy cost
	LastPrice float64
	LastSide  signal.Side
}

// Summary totals the retained fills per symbol, sorted by symbol.
func (l *Ledger) Summary() []Activity {
	return Summarize(l.Snapshot())
}

// Summarize totals fills per symbol in decimal, sorted by symbol.
func Summarize(fills []execution.Fill) []Activity {
	type acc struct {
		bought, sold, cash decimal.Decimal
		act                Activity
	}
	by := make(map[string]*acc)
	for _, f := range fills {
		a := by[f.Symbol]
		if a == nil {
			a = &acc{act: Activity{Symbol: f.Symbol}}
			by[f.Symbol] = a
		}
		q, px := decimal.NewFromFloat(f.Qty), decimal.NewFromFloat(f.Price)
		switch f.Side {
		case signal.Buy:
			a.bought = a.bought.Add(q)
			a.cash = a.cash.Sub(q.Mul(px))
		case signal.Sell:
			a.sold = a.sold.Add(q)
			a.cash = a.cash.Add(q.Mul(px))
		}
		a.act.Fills++
		a.act.LastPrice, a.act.LastSide = f.Price, f.Side
	}
	out := make([]Activity, 0, len(by))
	for _, a := range by {
		a.act.Bought = a.bought.InexactFloat64()
		a.act.Sold = a.sold.InexactFloat64()
		a.act.NetCash = a.cash.InexactFloat64()
		out = append(out, a.act)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
