package status

import (
	"sort"
	"sync"

	"livetrader-go/internal/execution"
)

// Cache mirrors broker positions. Only the Refresher writes it; everything else reads copies.
type Cache struct {
	mu        sync.RWMutex
	positions map[string]execution.Position
	account   execution.Account
	orders    []execution.Order
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{positions: make(map[string]execution.Position)}
}

func (c *Cache) store(acct execution.Account, positions []execution.Position, orders []execution.Order) {
	next := make(map[string]execution.Position, len(positions))
	for _, p := range positions {
		next[p.Symbol] = p
	}
	c.mu.Lock()
	c.account = acct
	c.positions = next
	c.orders = append([]execution.Order(nil), orders...)
	c.mu.Unlock()
}

// Position returns the mirrored position for symbol.
func (c *Cache) Position(symbol string) (execution.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[symbol]
	return p, ok
}

// PositionQty returns the signed mirrored quantity, zero when flat or unknown.
func (c *Cache) PositionQty(symbol string) float64 {
	p, _ := c.Position(symbol)
	return p.Qty
}

// Positions returns all mirrored positions sorted by symbol.
func (c *Cache) Positions() []execution.Position {
	c.mu.RLock()
	out := make([]execution.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Account returns the last mirrored account summary.
func (c *Cache) Account() execution.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

// Orders returns the last mirrored open orders.
func (c *Cache) Orders() []execution.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]execution.Order(nil), c.orders...)
}
