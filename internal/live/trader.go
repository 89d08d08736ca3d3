// Package live runs strategies against a real-time tick stream: one worker per symbol,
// fed by a router, with a refresher publishing account status alongside.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/exchange"
	"livetrader-go/internal/execution"
	"livetrader-go/internal/risk"
	"livetrader-go/internal/signal"
	"livetrader-go/internal/status"
	"livetrader-go/internal/strategy"
)

// Feed is a tick source such as *exchange.Feed.
type Feed interface {
	Run(ctx context.Context, out chan<- signal.Tick) error
}

// Marker is implemented by brokers that value positions at the last seen price.
type Marker interface {
	Mark(symbol string, px float64)
}

// Settings are the per-run knobs shared by every worker.
type Settings struct {
	Symbols          []string
	Strategy         string
	Params           map[string]float64
	Qty              float64
	Interval         time.Duration
	TickThreshold    int
	MinOrderInterval time.Duration
	MaxPending       int
	QueueSize        int
	StatusInterval   time.Duration
	PositionAware    bool
	Risk             *risk.Limits
}

const defaultQueueSize = 1024

// Trader owns the workers, the status refresher and the publisher they feed.
// Run may be called once.
type Trader struct {
	log       zerolog.Logger
	broker    execution.Broker
	workers   map[string]*worker
	order     []string
	cache     *status.Cache
	notices   *status.Notices
	pub       *status.Publisher
	refresher *status.Refresher
	reporter  *status.Reporter

	statusCh chan exchange.Status
	done     chan struct{}
	once     sync.Once
	now      func() time.Time
}

// Option configures a Trader.
type Option func(*Trader)

// WithClock replaces time.Now for bar timers and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(t *Trader) {
		if now != nil {
			t.now = now
		}
	}
}

// WithPublisher shares an existing publisher, e.g. one a display endpoint already consumes.
func WithPublisher(p *status.Publisher) Option {
	return func(t *Trader) { t.pub = p }
}

// NewTrader builds one strategy instance and worker per symbol. Strategy and parameter
// errors surface here, before any market data flows.
func NewTrader(s Settings, reg *strategy.Registry, broker execution.Broker, log zerolog.Logger, opts ...Option) (*Trader, error) {
	if len(s.Symbols) == 0 {
		return nil, errors.New("live: no symbols")
	}
	if s.QueueSize <= 0 {
		s.QueueSize = defaultQueueSize
	}
	t := &Trader{
		log:      log,
		broker:   broker,
		workers:  make(map[string]*worker, len(s.Symbols)),
		cache:    status.NewCache(),
		notices:  status.NewNotices(0),
		statusCh: make(chan exchange.Status),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.pub == nil {
		t.pub = status.NewPublisher(0)
	}
	t.refresher = status.NewRefresher(broker, t.cache, t.pub, t.notices, log, status.WithInterval(s.StatusInterval))
	t.reporter = status.NewReporter(t.notices, t.refresher.Kick)

	for _, sym := range s.Symbols {
		if _, dup := t.workers[sym]; dup {
			continue
		}
		w, err := t.newWorker(sym, s, reg)
		if err != nil {
			return nil, fmt.Errorf("live: %s: %w", sym, err)
		}
		t.workers[sym] = w
		t.order = append(t.order, sym)
	}
	return t, nil
}

// Publisher exposes the snapshot stream. Exactly one consumer should read it.
func (t *Trader) Publisher() *status.Publisher { return t.pub }

// Cache exposes the mirrored broker state, read-only for callers.
func (t *Trader) Cache() *status.Cache { return t.cache }

// Notices exposes the notice ring.
func (t *Trader) Notices() *status.Notices { return t.notices }

// Symbols lists the symbols with a worker, in configuration order.
func (t *Trader) Symbols() []string { return append([]string(nil), t.order...) }

// FeedStatus is an exchange status hook. It is delivered to the router in order with the
// ticks that precede it and becomes a pause or resume on every worker.
func (t *Trader) FeedStatus(s exchange.Status) {
	select {
	case t.statusCh <- s:
	case <-t.done:
	}
}

// Run drives feed until ctx is cancelled or the feed fails permanently. On the way out the
// workers drain their queues, one last status refresh is published, and Run returns.
func (t *Trader) Run(ctx context.Context, feed Feed) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Orders still being drained at shutdown must not inherit the cancellation.
	workCtx := context.WithoutCancel(ctx)

	var workers sync.WaitGroup
	for _, sym := range t.order {
		w := t.workers[sym]
		workers.Add(1)
		go func() {
			defer workers.Done()
			w.run(workCtx)
		}()
	}

	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		t.refresher.Run(runCtx)
	}()

	// Unbuffered so that a status hook call is routed only after every tick sent before it.
	ticks := make(chan signal.Tick)
	feedErr := make(chan error, 1)
	go func() { feedErr <- feed.Run(runCtx, ticks) }()

	t.log.Info().Strs("symbols", t.order).Msg("live trader started")
	err := t.route(runCtx, ticks, feedErr)

	t.once.Do(func() { close(t.done) })
	for _, w := range t.workers {
		close(w.queue)
	}
	workers.Wait()
	cancel()
	<-refreshDone
	t.refresher.Refresh(workCtx)
	t.log.Info().Msg("live trader stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (t *Trader) route(ctx context.Context, ticks <-chan signal.Tick, feedErr <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-feedErr:
			if err == nil {
				return nil
			}
			t.log.Error().Err(err).Msg("feed stopped")
			return fmt.Errorf("feed: %w", err)
		case st := <-t.statusCh:
			t.reporter.FeedStatus(st.Up, st.Err)
			for _, sym := range t.order {
				t.workers[sym].queue <- event{status: &st}
			}
		case tk := <-ticks:
			w, ok := t.workers[tk.Symbol]
			if !ok {
				t.log.Debug().Str("sym", tk.Symbol).Msg("tick for unknown symbol dropped")
				continue
			}
			// Blocking keeps per-symbol arrival order; a slow worker backs up the feed.
			w.queue <- event{tick: tk}
		}
	}
}
