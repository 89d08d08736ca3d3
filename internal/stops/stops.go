// Package stops tracks trailing stops armed on entries and turns a crossed stop into a closing intent.
package stops

import (
	"sync"
	"time"

	"livetrader-go/internal/signal"
)

// DefaultTrailPct applies when an armed spec carries no trail distance.
const DefaultTrailPct = 0.015

// State is the tracking state of one armed stop.
type State struct {
	Symbol     string
	Side       signal.Side // side of the entry: Buy for a long, Sell for a short
	Qty        float64
	Entry      float64
	Activation float64
	Trail      float64
	Active     bool
	Extreme    float64
	Stop       float64
}

// Trigger describes a crossed stop.
type Trigger struct {
	State  State
	Price  float64
	Intent *signal.Intent
}

// Manager holds at most one trailing stop per symbol.
type Manager struct {
	mu    sync.Mutex
	stops map[string]*State
}

// NewManager returns an empty manager.
func NewManager() *Manager { return &Manager{stops: make(map[string]*State)} }

// Arm starts tracking a stop for an accepted entry, replacing any existing one.
func (m *Manager) Arm(symbol string, side signal.Side, qty, entry float64, spec signal.StopSpec) {
	if spec.Type != signal.TrailingStop || entry <= 0 || qty <= 0 {
		return
	}
	trail := spec.TrailPct
	if trail <= 0 {
		trail = DefaultTrailPct
	}
	st := &State{Symbol: symbol, Side: side, Qty: qty, Entry: entry, Activation: spec.ActivationPct, Trail: trail}
	m.mu.Lock()
	m.stops[symbol] = st
	m.mu.Unlock()
}

// Disarm drops the stop for symbol.
func (m *Manager) Disarm(symbol string) {
	m.mu.Lock()
	delete(m.stops, symbol)
	m.mu.Unlock()
}

// Get returns a copy of the armed state.
func (m *Manager) Get(symbol string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stops[symbol]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Update folds a trade price into the stop. When the price crosses an active stop the stop
// is disarmed and a closing market intent is returned.
func (m *Manager) Update(symbol string, price float64, at time.Time) (Trigger, bool) {
	if price <= 0 {
		return Trigger{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stops[symbol]
	if !ok {
		return Trigger{}, false
	}

	long := st.Side == signal.Buy
	if !st.Active {
		if (long && price >= st.Entry*(1+st.Activation)) || (!long && price <= st.Entry*(1-st.Activation)) {
			st.Active = true
			st.Extreme = price
		}
	}
	if !st.Active {
		return Trigger{}, false
	}

	if long {
		if price > st.Extreme {
			st.Extreme = price
		}
		st.Stop = st.Extreme * (1 - st.Trail)
	} else {
		if price < st.Extreme {
			st.Extreme = price
		}
		st.Stop = st.Extreme * (1 + st.Trail)
	}

	if (long && price <= st.Stop) || (!long && price >= st.Stop) {
		delete(m.stops, symbol)
		in := signal.NewIntent(symbol, st.Side.Opposite(), st.Qty, signal.Market, at)
		in.Close = true
		in.RefPrice = price
		in.Reason = "trailing stop"
		return Trigger{State: *st, Price: price, Intent: in}, true
	}
	return Trigger{}, false
}
