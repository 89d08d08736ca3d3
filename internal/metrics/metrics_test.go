package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAdvancePerLabel(t *testing.T) {
	before := testutil.ToFloat64(OrdersTotal.WithLabelValues("ETH/USD", "buy"))
	OrdersTotal.WithLabelValues("ETH/USD", "buy").Inc()
	OrdersTotal.WithLabelValues("ETH/USD", "sell").Inc()
	if got := testutil.ToFloat64(OrdersTotal.WithLabelValues("ETH/USD", "buy")); got != before+1 {
		t.Fatalf("orders_total{buy} = %v, want %v", got, before+1)
	}

	dropped := testutil.ToFloat64(SnapshotsDropped)
	SnapshotsDropped.Inc()
	if got := testutil.ToFloat64(SnapshotsDropped); got != dropped+1 {
		t.Fatalf("snapshots_dropped_total = %v, want %v", got, dropped+1)
	}
}

func TestHandlerExposesTradingMetrics(t *testing.T) {
	TicksTotal.WithLabelValues("BTC/USD").Inc()
	RejectedTicks.WithLabelValues("BTC/USD").Inc()
	DeferredIntents.WithLabelValues("BTC/USD").Inc()
	OrdersTotal.WithLabelValues("BTC/USD", "sell").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"ticks_total", "rejected_ticks_total", "deferred_intents_total", "orders_total"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("%s missing from exposition", name)
		}
	}
}

func TestServeListens(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	defer srv.Close()
	if srv.Addr != "127.0.0.1:0" || srv.Handler == nil {
		t.Fatalf("unexpected server %+v", srv)
	}
}
