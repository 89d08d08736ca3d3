package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	RejectedTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rejected_ticks_total", Help: "Out-of-order ticks dropped by the aggregator"},
		[]string{"symbol"},
	)
	BarsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_closed_total", Help: "Synthetic bars finalized"},
		[]string{"symbol"},
	)
	StrategyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_errors_total", Help: "Strategy invocations that failed"},
		[]string{"strategy"},
	)
	SkippedInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "skipped_invocations_total", Help: "Invocations skipped for insufficient history"},
		[]string{"strategy"},
	)
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intents_total", Help: "Order intents produced by strategies"},
		[]string{"symbol", "side"},
	)
	DeferredIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "deferred_intents_total", Help: "Intents deferred by the placement rate limit"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_rejections_total", Help: "Orders rejected by the broker or pre-trade checks"},
		[]string{"symbol"},
	)
	SnapshotsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "snapshots_dropped_total", Help: "Status snapshots superseded before the display consumed them"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, RejectedTicks, BarsClosed,
		StrategyErrors, SkippedInvocations,
		IntentsTotal, DeferredIntents, OrdersTotal, OrderRejections,
		SnapshotsDropped,
	)
}

// Handler exposes the default registry for mounting on an existing router.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr in the background. Close the returned server to stop it.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
