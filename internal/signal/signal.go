// Package signal standardizes payloads shared between data ingestion, strategy, and execution layers.
package signal

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Tick models the essential pieces of market data consumed by strategies.
type Tick struct {
	Symbol string
	Price  float64
	Size   float64
	Side   int // +1 buy, -1 sell (aggressor), 0 unknown
	Ts     time.Time
}

// Bar is a synthetic OHLCV aggregate built from ticks. Start is inclusive, End exclusive.
type Bar struct {
	Symbol   string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Ticks    int
	Start    time.Time
	End      time.Time
	LastTick time.Time
	Closed   bool
}

// Side enumerates order directions.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "buy"
	// Sell indicates a short order.
	Sell Side = "sell"
)

// Opposite returns the reverse direction.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType enumerates the order kinds a broker accepts.
type OrderType string

const (
	Market    OrderType = "market"
	Limit     OrderType = "limit"
	Stop      OrderType = "stop"
	StopLimit OrderType = "stop_limit"
)

// StopKind names the protective exit attached to an entry.
type StopKind string

// TrailingStop activates once price moves ActivationPct (a fraction, 0.01 = 1%) in favour, then trails by TrailPct.
const TrailingStop StopKind = "trailing"

// StopSpec carries protective exit parameters a strategy attaches to an entry intent.
type StopSpec struct {
	Type          StopKind
	ActivationPct float64
	TrailPct      float64
}

// Intent is a strategy's recorded wish to trade. It is consumed at most once.
type Intent struct {
	ID         string
	Symbol     string
	Side       Side
	Quantity   float64
	Type       OrderType
	LimitPrice *float64
	StopPrice  *float64
	Stop       *StopSpec
	// Close marks an exit of the whole current position; Quantity is resolved from the position.
	Close     bool
	RefPrice  float64
	Reason    string
	CreatedAt time.Time

	consumed atomic.Bool
}

// NewIntent stamps a fresh intent with a unique id.
func NewIntent(symbol string, side Side, qty float64, typ OrderType, ts time.Time) *Intent {
	if typ == "" {
		typ = Market
	}
	return &Intent{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Type:      typ,
		CreatedAt: ts,
	}
}

// MarkConsumed flags the intent as acted upon. Only the first caller gets true.
func (i *Intent) MarkConsumed() bool {
	return i.consumed.CompareAndSwap(false, true)
}

// Consumed reports whether the intent has already been acted upon.
func (i *Intent) Consumed() bool { return i.consumed.Load() }

func (i *Intent) String() string {
	return fmt.Sprintf("%s %s %.8g %s %s", i.ID, i.Side, i.Quantity, i.Symbol, i.Type)
}
