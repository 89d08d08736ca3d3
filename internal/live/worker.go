package live

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/bar"
	"livetrader-go/internal/exchange"
	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
	"livetrader-go/internal/status"
	"livetrader-go/internal/stops"
	"livetrader-go/internal/strategy"
)

// event is one queue entry: a tick or a feed status change.
type event struct {
	tick   signal.Tick
	status *exchange.Status
}

// worker is the only goroutine touching its symbol's aggregator, adapter, resolver and stops.
type worker struct {
	symbol   string
	log      zerolog.Logger
	queue    chan event
	agg      *bar.Aggregator
	adapter  *strategy.Adapter
	resolver *execution.Resolver
	stops    *stops.Manager
	reporter *status.Reporter
	marker   Marker
	now      func() time.Time
}

func (t *Trader) newWorker(sym string, s Settings, reg *strategy.Registry) (*worker, error) {
	desc, inst, err := reg.Build(s.Strategy, s.Params)
	if err != nil {
		return nil, err
	}
	agg, err := bar.NewAggregator(sym, s.Interval, bar.WithTickThreshold(s.TickThreshold))
	if err != nil {
		return nil, err
	}
	log := t.log.With().Str("sym", sym).Logger()

	adapterOpts := []strategy.AdapterOption{strategy.WithDefaultQty(s.Qty), strategy.WithPositionReader(t.cache)}
	resolverOpts := []execution.Option{
		execution.WithMinInterval(s.MinOrderInterval),
		execution.WithMaxPending(s.MaxPending),
		execution.WithClock(t.now),
		execution.WithReporter(t.reporter),
	}
	if s.PositionAware {
		resolverOpts = append(resolverOpts, execution.WithPositions(t.cache))
	}
	if s.Risk != nil {
		resolverOpts = append(resolverOpts, execution.WithRiskLimits(*s.Risk))
	}

	w := &worker{
		symbol:   sym,
		log:      log,
		queue:    make(chan event, s.QueueSize),
		agg:      agg,
		adapter:  strategy.NewAdapter(sym, desc, inst, t.log, adapterOpts...),
		resolver: execution.NewResolver(t.broker, log, resolverOpts...),
		stops:    stops.NewManager(),
		reporter: t.reporter,
		now:      t.now,
	}
	if m, ok := t.broker.(Marker); ok {
		w.marker = m
	}
	return w, nil
}

// run blocks on the queue or on a timer set to the next bar boundary or deferred-intent
// eligibility, whichever is sooner. It returns once the queue is closed and drained.
func (w *worker) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	for {
		var wake <-chan time.Time
		if at, ok := w.nextWake(); ok {
			resetTimer(timer, at.Sub(w.now()))
			wake = timer.C
		} else {
			stopTimer(timer)
		}

		select {
		case ev, ok := <-w.queue:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case <-wake:
			w.onTimer(ctx, w.now())
		}
	}
}

func (w *worker) nextWake() (time.Time, bool) {
	var next time.Time
	if !w.agg.Paused() {
		next = w.agg.NextBoundary()
	}
	if at, ok := w.resolver.NextEligible(); ok && (next.IsZero() || at.Before(next)) {
		next = at
	}
	return next, !next.IsZero()
}

func (w *worker) handle(ctx context.Context, ev event) {
	if ev.status != nil {
		if ev.status.Up {
			w.agg.Resume()
		} else {
			w.agg.Pause()
		}
		return
	}
	tk := ev.tick
	closed, err := w.agg.Add(tk)
	if err != nil {
		w.log.Debug().Err(err).Time("ts", tk.Ts).Uint64("rejected", w.agg.Rejected()).Msg("tick rejected")
		return
	}
	if w.marker != nil {
		w.marker.Mark(tk.Symbol, tk.Price)
	}

	var intents []*signal.Intent
	if trig, ok := w.stops.Update(w.symbol, tk.Price, tk.Ts); ok {
		w.reporter.StopTriggered(w.symbol, trig.Price, trig.State.Stop)
		w.log.Info().Float64("px", trig.Price).Float64("stop", trig.State.Stop).Msg("trailing stop triggered")
		intents = append(intents, trig.Intent)
	}
	for _, b := range closed {
		intents = append(intents, w.adapter.Invoke(b)...)
	}
	intents = append(intents, w.adapter.InvokeTick(tk)...)
	w.resolve(ctx, intents)
}

func (w *worker) onTimer(ctx context.Context, now time.Time) {
	var intents []*signal.Intent
	for _, b := range w.agg.Advance(now) {
		intents = append(intents, w.adapter.Invoke(b)...)
	}
	w.resolve(ctx, intents)
}

// resolve submits intents (deferred ones first) and keeps trailing stops in step with what
// the broker accepted.
func (w *worker) resolve(ctx context.Context, intents []*signal.Intent) {
	var outcomes []execution.Outcome
	if len(intents) == 0 {
		if w.resolver.Pending() == 0 {
			return
		}
		outcomes = w.resolver.Retry(ctx)
	} else {
		outcomes = w.resolver.Resolve(ctx, intents)
	}
	for _, out := range outcomes {
		if out.Status != execution.StatusPlaced {
			continue
		}
		in := out.Intent
		if armed, ok := w.stops.Get(in.Symbol); ok && (in.Close || in.Side != armed.Side) {
			w.stops.Disarm(in.Symbol)
		}
		if in.Stop != nil && !in.Close {
			entry := out.Order.FilledAvgPrice
			if entry <= 0 {
				entry = in.RefPrice
			}
			qty := out.Order.FilledQty
			if qty <= 0 {
				qty = in.Quantity
			}
			w.stops.Arm(in.Symbol, in.Side, qty, entry, *in.Stop)
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}
