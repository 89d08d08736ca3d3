package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "key", "secret", []string{"BTC/USD", "AAPL"},
		WithHTTPClient(srv.Client()), WithRetry(1, time.Millisecond))
}

// orderBody is the slice of the order payload these tests look at.
type orderBody struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price"`
	StopPrice     string `json:"stop_price"`
	ClientOrderID string `json:"client_order_id"`
}

func TestPlaceOrderSendsIntentAsClientOrderID(t *testing.T) {
	var got orderBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/orders", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"o-1","client_order_id":"` + got.ClientOrderID + `","status":"accepted","filled_qty":"0","filled_avg_price":null,"submitted_at":"2024-05-01T14:00:00Z"}`))
	})

	limit := 64000.5
	res, err := c.PlaceOrder(context.Background(), execution.OrderRequest{
		ClientOrderID: "intent-1", Symbol: "BTC/USD", Side: signal.Buy, Qty: 0.25, Type: signal.Limit, LimitPrice: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", res.ID)
	assert.Equal(t, "intent-1", res.ClientOrderID)
	assert.Zero(t, res.FilledAvgPrice)

	assert.Equal(t, "intent-1", got.ClientOrderID)
	assert.Equal(t, "0.25", got.Qty)
	assert.Equal(t, "gtc", got.TimeInForce)
	assert.Equal(t, "limit", got.Type)
	assert.Equal(t, "64000.5", got.LimitPrice)
	assert.Empty(t, got.StopPrice)
}

func TestEquityOrdersAreDay(t *testing.T) {
	assert.EqualValues(t, "day", TimeInForce("AAPL"))
	assert.EqualValues(t, "gtc", TimeInForce("ETH/USD"))
}

func TestCancelledContextSkipsRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Positions(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRejectionsAreTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":40310000,"message":"insufficient buying power"}`))
	})
	_, err := c.PlaceOrder(context.Background(), execution.OrderRequest{Symbol: "AAPL", Side: signal.Buy, Qty: 1})
	var rej *execution.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, 403, rej.Code)
	assert.Equal(t, "insufficient buying power", rej.Reason)
}

func TestServerErrorIsNotRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Account(context.Background())
	require.Error(t, err)
	assert.False(t, execution.IsRejected(err))
}

func TestAccountPositionsAndOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			_, _ = w.Write([]byte(`{"id":"acct","status":"ACTIVE","currency":"USD","cash":"1000.50","equity":"1500","buying_power":"2001"}`))
		case "/v2/positions":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSD","side":"long","qty":"0.5","avg_entry_price":"60000","market_value":"31000","unrealized_pl":"1000"},
				{"symbol":"AAPL","side":"short","qty":"3","avg_entry_price":"180","market_value":"-540","unrealized_pl":"0"}]`))
		case "/v2/orders":
			assert.Equal(t, "open", r.URL.Query().Get("status"))
			_, _ = w.Write([]byte(`[{"id":"o-9","client_order_id":"c-9","symbol":"AAPL","side":"sell","type":"limit","status":"new","qty":"2","filled_qty":"0","limit_price":"190"}]`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	acct, err := c.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000.5, acct.Cash, 1e-9)
	assert.InDelta(t, 2001, acct.BuyingPower, 1e-9)

	pos, err := c.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, "BTC/USD", pos[0].Symbol)
	assert.Equal(t, 0.5, pos[0].Qty)
	assert.Equal(t, -3.0, pos[1].Qty)

	orders, err := c.OpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, signal.Sell, orders[0].Side)
	assert.Equal(t, 190.0, orders[0].LimitPrice)
	assert.Zero(t, orders[0].StopPrice)
}
