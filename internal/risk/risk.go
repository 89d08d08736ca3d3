// Package risk holds pre-trade limits applied before an order reaches the broker.
package risk

import (
	"fmt"
	"math"
)

// Limits bounds a single placement. A zero field disables that check.
type Limits struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MaxPositionQty      float64 `yaml:"max_position_qty"`
}

// Allow reports whether notional fits under the per-trade cap.
func (l Limits) Allow(notional float64) bool {
	if l.MaxNotionalPerTrade <= 0 {
		return true
	}
	return notional <= l.MaxNotionalPerTrade
}

// Check validates a signed quantity change at price against the current signed position.
// An order that shrinks the position is never held to the notional cap.
func (l Limits) Check(delta, price, position float64) error {
	reducing := math.Abs(position+delta) < math.Abs(position)
	if notional := math.Abs(delta * price); !reducing && !l.Allow(notional) {
		return fmt.Errorf("notional %.2f exceeds per-trade limit %.2f", notional, l.MaxNotionalPerTrade)
	}
	if l.MaxPositionQty > 0 {
		after := math.Abs(position + delta)
		if after > l.MaxPositionQty && after > math.Abs(position) {
			return fmt.Errorf("position %.4f would exceed limit %.4f", after, l.MaxPositionQty)
		}
	}
	return nil
}
