// Package execution turns recorded intents into broker orders under the placement rules.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livetrader-go/internal/signal"
)

// ErrPendingFull is returned when the deferred-intent queue is at capacity.
var ErrPendingFull = errors.New("pending intent queue full")

// OrderRequest is what a broker receives for one intent.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          signal.Side
	Qty           float64
	Type          signal.OrderType
	LimitPrice    *float64
	StopPrice     *float64
	RefPrice      float64
}

// OrderResult is the broker's acknowledgement of a placement.
type OrderResult struct {
	ID             string
	ClientOrderID  string
	Status         string
	FilledQty      float64
	FilledAvgPrice float64
	SubmittedAt    time.Time
}

// Account is the broker-side account summary.
type Account struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Currency    string  `json:"currency"`
	Cash        float64 `json:"cash"`
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
}

// Position is a broker-side holding. Qty is signed, negative for short.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
}

// Order is an open order as reported by the broker.
type Order struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"client_order_id"`
	Symbol        string           `json:"symbol"`
	Side          signal.Side      `json:"side"`
	Type          signal.OrderType `json:"type"`
	Qty           float64          `json:"qty"`
	FilledQty     float64          `json:"filled_qty"`
	LimitPrice    float64          `json:"limit_price,omitempty"`
	StopPrice     float64          `json:"stop_price,omitempty"`
	Status        string           `json:"status"`
	SubmittedAt   time.Time        `json:"submitted_at"`
}

// Broker is the order placement and account surface.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
	OpenOrders(ctx context.Context) ([]Order, error)
}

// RejectedError is a broker or pre-trade refusal of an order. Rejections are never retried.
type RejectedError struct {
	Code   int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("order rejected (%d): %s", e.Code, e.Reason)
	}
	return "order rejected: " + e.Reason
}

// Rejected builds a RejectedError without a code.
func Rejected(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

// RequestFor maps an intent onto a broker request. The intent id doubles as client order id.
func RequestFor(in *signal.Intent) OrderRequest {
	return OrderRequest{
		ClientOrderID: in.ID,
		Symbol:        in.Symbol,
		Side:          in.Side,
		Qty:           in.Quantity,
		Type:          in.Type,
		LimitPrice:    in.LimitPrice,
		StopPrice:     in.StopPrice,
		RefPrice:      in.RefPrice,
	}
}

// Fill is an executed quantity at a price, as recorded by simulated venues.
type Fill struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          signal.Side `json:"side"`
	Qty           float64     `json:"qty"`
	Price         float64     `json:"price"`
	Ts            time.Time   `json:"ts"`
}
