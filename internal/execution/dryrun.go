package execution

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DryRun logs orders instead of sending them anywhere. Every order is accepted.
type DryRun struct {
	log zerolog.Logger

	mu     sync.Mutex
	placed []OrderRequest
}

// NewDryRun wraps a logger.
func NewDryRun(log zerolog.Logger) *DryRun { return &DryRun{log: log} }

// PlaceOrder logs the request and acknowledges it.
func (d *DryRun) PlaceOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	d.mu.Lock()
	d.placed = append(d.placed, req)
	d.mu.Unlock()
	d.log.Info().
		Str("sym", req.Symbol).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Float64("qty", req.Qty).
		Float64("px", req.RefPrice).
		Str("intent", req.ClientOrderID).
		Msg("submit order (dry run)")
	return OrderResult{ID: uuid.NewString(), ClientOrderID: req.ClientOrderID, Status: "accepted"}, nil
}

// Placed returns a copy of every request seen.
func (d *DryRun) Placed() []OrderRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]OrderRequest(nil), d.placed...)
}

func (d *DryRun) Account(context.Context) (Account, error) {
	return Account{ID: "dry-run", Status: "ACTIVE", Currency: "USD"}, nil
}

func (d *DryRun) Positions(context.Context) ([]Position, error) { return nil, nil }

func (d *DryRun) OpenOrders(context.Context) ([]Order, error) { return nil, nil }
