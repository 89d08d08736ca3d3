package strategy

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/metrics"
	"livetrader-go/internal/signal"
)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithDefaultQty sets the quantity used when a strategy does not size its own orders.
func WithDefaultQty(q float64) AdapterOption {
	return func(a *Adapter) {
		if q > 0 {
			a.defaultQty = q
		}
	}
}

// WithPositionReader lets strategies read the broker-mirrored position.
func WithPositionReader(p PositionReader) AdapterOption {
	return func(a *Adapter) { a.positions = p }
}

// WithHistory bounds how many closed bars the adapter keeps for indicators.
func WithHistory(n int) AdapterOption {
	return func(a *Adapter) { a.series = NewSeries(n) }
}

// Adapter drives one strategy instance for one symbol. It holds the strategy's decision
// functions and collects what they record, so a strategy written for closed bars can run
// behind a live feed. Not safe for concurrent use; each worker owns its adapter.
type Adapter struct {
	symbol     string
	desc       Descriptor
	inst       Instance
	log        zerolog.Logger
	series     *Series
	defaultQty float64
	positions  PositionReader
}

// NewAdapter binds a built strategy to a symbol.
func NewAdapter(symbol string, desc Descriptor, inst Instance, log zerolog.Logger, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		symbol:     symbol,
		desc:       desc,
		inst:       inst,
		log:        log.With().Str("strategy", desc.Name).Str("sym", symbol).Logger(),
		series:     NewSeries(0),
		defaultQty: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the adapted strategy's registered name.
func (a *Adapter) Name() string { return a.desc.Name }

// History returns the closed bars seen so far.
func (a *Adapter) History() *Series { return a.series }

// Invoke feeds a closed bar to the strategy and returns at most one intent.
// Without max(1, warmup) prior closed bars the call is a no-op. Strategy failures
// (returned errors or panics) are logged and yield no intents.
func (a *Adapter) Invoke(b signal.Bar) []*signal.Intent {
	if a.inst.Bar == nil {
		return nil
	}
	if !b.Closed {
		a.log.Warn().Time("start", b.Start).Msg("refusing to invoke strategy on an open bar")
		return nil
	}

	prior := a.series.Len()
	a.series.Push(b)
	need := a.inst.Warmup
	if need < 1 {
		need = 1
	}
	if prior < need {
		metrics.SkippedInvocations.WithLabelValues(a.desc.Name).Inc()
		a.log.Debug().Int("have", prior).Int("need", need).Msg("skipping invocation, insufficient history")
		return nil
	}

	ctx := a.newContext(b.Close, b.End)
	if err := a.call(func() error { return a.inst.Bar.Next(ctx) }); err != nil {
		metrics.StrategyErrors.WithLabelValues(a.desc.Name).Inc()
		a.log.Error().Err(err).Time("bar", b.Start).Msg("strategy invocation failed")
		return nil
	}
	return a.collect(ctx)
}

// InvokeTick feeds a tick to a tick-native strategy under the same failure policy as Invoke.
func (a *Adapter) InvokeTick(tk signal.Tick) []*signal.Intent {
	if a.inst.Tick == nil {
		return nil
	}
	ctx := a.newContext(tk.Price, tk.Ts)
	ctx.Tick = tk
	if err := a.call(func() error { return a.inst.Tick.OnTick(ctx, tk) }); err != nil {
		metrics.StrategyErrors.WithLabelValues(a.desc.Name).Inc()
		a.log.Error().Err(err).Time("tick", tk.Ts).Msg("strategy tick handler failed")
		return nil
	}
	return a.collect(ctx)
}

func (a *Adapter) newContext(ref float64, at time.Time) *Context {
	return &Context{
		Symbol:     a.symbol,
		Bars:       a.series,
		Now:        at,
		refPrice:   ref,
		defaultQty: a.defaultQty,
		positions:  a.positions,
	}
}

func (a *Adapter) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
			a.log.Debug().Bytes("stack", debug.Stack()).Msg("recovered strategy panic")
		}
	}()
	return fn()
}

// collect applies single-intent semantics: only the last recorded intent survives.
func (a *Adapter) collect(ctx *Context) []*signal.Intent {
	rec := ctx.Recorded()
	if len(rec) == 0 {
		return nil
	}
	if len(rec) > 1 {
		a.log.Warn().Int("recorded", len(rec)).Msg("strategy recorded several intents, keeping the last")
	}
	last := rec[len(rec)-1]
	if last.Quantity <= 0 {
		a.log.Debug().Str("side", string(last.Side)).Bool("close", last.Close).Msg("dropping intent without quantity")
		return nil
	}
	metrics.IntentsTotal.WithLabelValues(a.symbol, string(last.Side)).Inc()
	return []*signal.Intent{last}
}
