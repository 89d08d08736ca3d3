package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/metrics"
	"livetrader-go/internal/risk"
	"livetrader-go/internal/signal"
)

// DefaultMinInterval is the minimum spacing between placements for one symbol.
const DefaultMinInterval = 5 * time.Second

// DefaultMaxPending bounds the deferred-intent queue.
const DefaultMaxPending = 64

// Status classifies what happened to one intent during a resolve cycle.
type Status string

const (
	StatusPlaced    Status = "placed"
	StatusDeferred  Status = "deferred"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
	StatusSkipped   Status = "skipped"
)

// Outcome reports the fate of one intent.
type Outcome struct {
	Intent *signal.Intent
	Status Status
	Order  OrderResult
	Err    error
}

// PositionReader exposes the mirrored signed position for a symbol.
type PositionReader interface {
	PositionQty(symbol string) float64
}

// Reporter receives placement results (status notices, refresher kicks, trailing-stop arming).
type Reporter interface {
	OrderPlaced(in *signal.Intent, res OrderResult)
	OrderRejected(in *signal.Intent, err error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMinInterval sets the per-symbol placement spacing. Zero disables the limit.
func WithMinInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d >= 0 {
			r.minInterval = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRiskLimits enables the pre-trade check.
func WithRiskLimits(l risk.Limits) Option {
	return func(r *Resolver) { r.limits = &l }
}

// WithPositions enables position-aware sizing against the mirrored positions.
func WithPositions(p PositionReader) Option {
	return func(r *Resolver) { r.positions = p }
}

// WithMaxPending bounds the deferred queue.
func WithMaxPending(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxPending = n
		}
	}
}

// WithReporter forwards placement results upward.
func WithReporter(rep Reporter) Option {
	return func(r *Resolver) { r.reporter = rep }
}

// Resolver submits intents to a broker at most once each, spacing placements per symbol.
// Intents that arrive too early wait in a FIFO and keep their order relative to later
// intents for the same symbol.
type Resolver struct {
	broker      Broker
	log         zerolog.Logger
	now         func() time.Time
	minInterval time.Duration
	maxPending  int
	limits      *risk.Limits
	positions   PositionReader
	reporter    Reporter

	mu      sync.Mutex
	pending []*signal.Intent
	last    map[string]time.Time
}

// NewResolver builds a resolver in front of broker.
func NewResolver(broker Broker, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		broker:      broker,
		log:         log,
		now:         time.Now,
		minInterval: DefaultMinInterval,
		maxPending:  DefaultMaxPending,
		last:        make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs one cycle: deferred intents first, then the new ones in emission order.
// Deferred intents already waiting produce an outcome only once they are placed or refused.
func (r *Resolver) Resolve(ctx context.Context, intents []*signal.Intent) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	out := r.drain(ctx, at)
	for _, in := range intents {
		if in == nil {
			continue
		}
		if in.Consumed() {
			out = append(out, Outcome{Intent: in, Status: StatusDuplicate})
			continue
		}
		if r.waiting(in.Symbol) || !r.eligible(in.Symbol, at) {
			out = append(out, r.enqueue(in, at))
			continue
		}
		out = append(out, r.place(ctx, in, at))
	}
	return out
}

// Retry runs a cycle over deferred intents only.
func (r *Resolver) Retry(ctx context.Context) []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drain(ctx, r.now())
}

// NextEligible returns when the earliest deferred intent may be placed.
func (r *Resolver) NextEligible() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next time.Time
	for _, in := range r.pending {
		t := r.last[in.Symbol].Add(r.minInterval)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

// Pending returns the number of deferred intents.
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Resolver) drain(ctx context.Context, at time.Time) []Outcome {
	if len(r.pending) == 0 {
		return nil
	}
	var out []Outcome
	blocked := make(map[string]bool)
	keep := r.pending[:0]
	for _, in := range r.pending {
		if blocked[in.Symbol] || !r.eligible(in.Symbol, at) {
			blocked[in.Symbol] = true
			keep = append(keep, in)
			continue
		}
		out = append(out, r.place(ctx, in, at))
	}
	for i := len(keep); i < len(r.pending); i++ {
		r.pending[i] = nil
	}
	r.pending = keep
	return out
}

func (r *Resolver) waiting(symbol string) bool {
	for _, in := range r.pending {
		if in.Symbol == symbol {
			return true
		}
	}
	return false
}

func (r *Resolver) eligible(symbol string, at time.Time) bool {
	last, ok := r.last[symbol]
	return !ok || r.minInterval <= 0 || !at.Before(last.Add(r.minInterval))
}

func (r *Resolver) enqueue(in *signal.Intent, at time.Time) Outcome {
	if len(r.pending) >= r.maxPending {
		err := fmt.Errorf("%w (%d queued)", ErrPendingFull, len(r.pending))
		in.MarkConsumed()
		r.reject(in, err)
		return Outcome{Intent: in, Status: StatusRejected, Err: err}
	}
	r.pending = append(r.pending, in)
	metrics.DeferredIntents.WithLabelValues(in.Symbol).Inc()
	r.log.Debug().
		Str("sym", in.Symbol).
		Str("intent", in.ID).
		Time("eligible", r.last[in.Symbol].Add(r.minInterval)).
		Int("pending", len(r.pending)).
		Msg("intent deferred by placement rate limit")
	return Outcome{Intent: in, Status: StatusDeferred}
}

func (r *Resolver) place(ctx context.Context, in *signal.Intent, at time.Time) Outcome {
	if !in.MarkConsumed() {
		return Outcome{Intent: in, Status: StatusDuplicate}
	}

	req := RequestFor(in)
	if r.positions != nil {
		var skip string
		req, skip = sizeAgainstPosition(req, in.Close, r.positions.PositionQty(in.Symbol))
		if skip != "" {
			r.log.Info().Str("sym", in.Symbol).Str("side", string(in.Side)).Str("intent", in.ID).Msg(skip)
			return Outcome{Intent: in, Status: StatusSkipped}
		}
	}
	if r.limits != nil && !in.Close {
		var pos float64
		if r.positions != nil {
			pos = r.positions.PositionQty(in.Symbol)
		}
		delta := req.Qty
		if req.Side == signal.Sell {
			delta = -delta
		}
		if err := r.limits.Check(delta, req.RefPrice, pos); err != nil {
			rej := &RejectedError{Reason: "risk: " + err.Error()}
			r.reject(in, rej)
			return Outcome{Intent: in, Status: StatusRejected, Err: rej}
		}
	}

	r.last[in.Symbol] = at
	res, err := r.broker.PlaceOrder(ctx, req)
	if err != nil {
		r.reject(in, err)
		return Outcome{Intent: in, Status: StatusRejected, Err: err}
	}
	metrics.OrdersTotal.WithLabelValues(in.Symbol, string(req.Side)).Inc()
	r.log.Info().
		Str("sym", req.Symbol).
		Str("side", string(req.Side)).
		Float64("qty", req.Qty).
		Float64("px", req.RefPrice).
		Str("intent", in.ID).
		Str("order", res.ID).
		Msg("order placed")
	if r.reporter != nil {
		r.reporter.OrderPlaced(in, res)
	}
	return Outcome{Intent: in, Status: StatusPlaced, Order: res}
}

func (r *Resolver) reject(in *signal.Intent, err error) {
	metrics.OrderRejections.WithLabelValues(in.Symbol).Inc()
	r.log.Warn().Err(err).Str("sym", in.Symbol).Str("side", string(in.Side)).Str("intent", in.ID).Msg("order rejected")
	if r.reporter != nil {
		r.reporter.OrderRejected(in, err)
	}
}

// sizeAgainstPosition applies the one-position-per-symbol policy: an order against an open
// position only closes it, an order on the side already held is dropped, and a close
// intent takes its quantity from the position. A non-empty reason means skip.
func sizeAgainstPosition(req OrderRequest, closing bool, pos float64) (OrderRequest, string) {
	held := math.Abs(pos)
	if closing {
		if held == 0 {
			return req, "no position to close"
		}
		req.Qty = held
		req.Side = signal.Sell
		if pos < 0 {
			req.Side = signal.Buy
		}
		return req, ""
	}
	switch {
	case pos == 0:
		return req, ""
	case (pos > 0) == (req.Side == signal.Buy):
		return req, "position already open on this side"
	default:
		req.Qty = held
		return req, ""
	}
}
