// Package alpaca implements the execution.Broker contract on the Alpaca trading SDK.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

const (
	PaperURL = "https://paper-api.alpaca.markets"
	LiveURL  = "https://api.alpaca.markets"
)

// Client adapts the SDK trading client. The SDK calls take no context, so a cancelled
// ctx is only honored before the request starts.
type Client struct {
	Base string

	api     *sdk.Client
	symbols map[string]string
}

// Option tweaks the SDK client options.
type Option func(*sdk.ClientOpts)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(o *sdk.ClientOpts) { o.HTTPClient = h }
}

// WithRetry bounds the SDK's retries on 429 and 5xx responses.
func WithRetry(limit int, delay time.Duration) Option {
	return func(o *sdk.ClientOpts) {
		o.RetryLimit = limit
		o.RetryDelay = delay
	}
}

// NewClient builds a client for base (PaperURL when empty). symbols are the configured
// trading symbols, used to map Alpaca's slash-less crypto position symbols back.
func NewClient(base, key, secret string, symbols []string, opts ...Option) *Client {
	if base == "" {
		base = PaperURL
	}
	base = strings.TrimRight(base, "/")
	o := sdk.ClientOpts{
		APIKey:     key,
		APISecret:  secret,
		BaseURL:    base,
		RetryLimit: 3,
		RetryDelay: time.Second,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		Base:    base,
		api:     sdk.NewClient(o),
		symbols: make(map[string]string, len(symbols)),
	}
	for _, s := range symbols {
		c.symbols[strings.ReplaceAll(s, "/", "")] = s
	}
	return c
}

// TimeInForce picks gtc for crypto pairs (BASE/QUOTE) and day for equities.
func TimeInForce(symbol string) sdk.TimeInForce {
	if strings.Contains(symbol, "/") {
		return sdk.GTC
	}
	return sdk.Day
}

// PlaceOrder submits one order. The intent id travels as client_order_id.
func (c *Client) PlaceOrder(ctx context.Context, req execution.OrderRequest) (execution.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return execution.OrderResult{}, err
	}
	qty := decimal.NewFromFloat(req.Qty)
	order := sdk.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          sdk.Side(req.Side),
		Type:          orderType(req.Type),
		TimeInForce:   TimeInForce(req.Symbol),
		ClientOrderID: req.ClientOrderID,
		LimitPrice:    decimalPtr(req.LimitPrice),
		StopPrice:     decimalPtr(req.StopPrice),
	}
	out, err := c.api.PlaceOrder(order)
	if err != nil {
		return execution.OrderResult{}, classify("place order", err)
	}
	return execution.OrderResult{
		ID:             out.ID,
		ClientOrderID:  out.ClientOrderID,
		Status:         out.Status,
		FilledQty:      out.FilledQty.InexactFloat64(),
		FilledAvgPrice: optFloat(out.FilledAvgPrice),
		SubmittedAt:    out.SubmittedAt,
	}, nil
}

// Account fetches the account summary.
func (c *Client) Account(ctx context.Context) (execution.Account, error) {
	if err := ctx.Err(); err != nil {
		return execution.Account{}, err
	}
	out, err := c.api.GetAccount()
	if err != nil {
		return execution.Account{}, classify("account", err)
	}
	return execution.Account{
		ID:          out.ID,
		Status:      out.Status,
		Currency:    out.Currency,
		Cash:        out.Cash.InexactFloat64(),
		Equity:      out.Equity.InexactFloat64(),
		BuyingPower: out.BuyingPower.InexactFloat64(),
	}, nil
}

// Positions fetches open positions. Short quantities come back negative.
func (c *Client) Positions(ctx context.Context) ([]execution.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := c.api.GetPositions()
	if err != nil {
		return nil, classify("positions", err)
	}
	positions := make([]execution.Position, 0, len(out))
	for _, p := range out {
		qty := p.Qty
		if p.Side == "short" && qty.IsPositive() {
			qty = qty.Neg()
		}
		positions = append(positions, execution.Position{
			Symbol:        c.symbol(p.Symbol),
			Qty:           qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			MarketValue:   optFloat(p.MarketValue),
			UnrealizedPL:  optFloat(p.UnrealizedPL),
		})
	}
	return positions, nil
}

// OpenOrders fetches orders that are not yet terminal.
func (c *Client) OpenOrders(ctx context.Context) ([]execution.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := c.api.GetOrders(sdk.GetOrdersRequest{Status: "open", Limit: 500})
	if err != nil {
		return nil, classify("open orders", err)
	}
	orders := make([]execution.Order, 0, len(out))
	for _, o := range out {
		orders = append(orders, execution.Order{
			ID:            o.ID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        c.symbol(o.Symbol),
			Side:          signal.Side(o.Side),
			Type:          signal.OrderType(o.Type),
			Qty:           optFloat(o.Qty),
			FilledQty:     o.FilledQty.InexactFloat64(),
			LimitPrice:    optFloat(o.LimitPrice),
			StopPrice:     optFloat(o.StopPrice),
			Status:        o.Status,
			SubmittedAt:   o.SubmittedAt,
		})
	}
	return orders, nil
}

func (c *Client) symbol(s string) string {
	if mapped, ok := c.symbols[s]; ok {
		return mapped
	}
	return s
}

// classify turns 403 and 422 API errors into broker rejections.
func classify(op string, err error) error {
	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusUnprocessableEntity {
			return &execution.RejectedError{Code: apiErr.StatusCode, Reason: apiErr.Message}
		}
		return fmt.Errorf("alpaca %s status %d: %s", op, apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("alpaca %s: %w", op, err)
}

func orderType(t signal.OrderType) sdk.OrderType {
	switch t {
	case signal.Limit:
		return sdk.Limit
	case signal.Stop:
		return sdk.Stop
	case signal.StopLimit:
		return sdk.StopLimit
	}
	return sdk.Market
}

func decimalPtr(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

func optFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
