package status

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

// DefaultRefreshInterval matches the account polling cadence of the live loop.
const DefaultRefreshInterval = 5 * time.Second

// Refresher polls the broker, writes the Cache, and publishes snapshots.
type Refresher struct {
	broker   execution.Broker
	cache    *Cache
	pub      *Publisher
	notices  *Notices
	log      zerolog.Logger
	interval time.Duration
	kick     chan struct{}
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithInterval sets the polling cadence.
func WithInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRefresher wires the broker to the cache and publisher.
func NewRefresher(broker execution.Broker, cache *Cache, pub *Publisher, notices *Notices, log zerolog.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		broker:   broker,
		cache:    cache,
		pub:      pub,
		notices:  notices,
		log:      log,
		interval: DefaultRefreshInterval,
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kick requests an early refresh. Never blocks; kicks coalesce.
func (r *Refresher) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then on every interval or kick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.kick:
		}
		r.Refresh(ctx)
	}
}

// Refresh fetches account, positions and open orders, updates the cache, and publishes.
// Broker errors land in the snapshot; the previous cache contents are kept.
func (r *Refresher) Refresh(ctx context.Context) Snapshot {
	acct, err := r.broker.Account(ctx)
	var positions []execution.Position
	var orders []execution.Order
	if err == nil {
		positions, err = r.broker.Positions(ctx)
	}
	if err == nil {
		orders, err = r.broker.OpenOrders(ctx)
	}

	snap := Snapshot{Time: time.Now()}
	if err != nil {
		r.log.Warn().Err(err).Msg("status refresh failed")
		snap.Err = fmt.Sprintf("refresh: %v", err)
		snap.Account = r.cache.Account()
		snap.Positions = r.cache.Positions()
		snap.Orders = r.cache.Orders()
	} else {
		r.cache.store(acct, positions, orders)
		snap.Account = acct
		snap.Positions = r.cache.Positions()
		snap.Orders = r.cache.Orders()
	}
	if r.notices != nil {
		snap.Notices = r.notices.Recent()
	}
	return r.pub.Publish(snap)
}

// Reporter turns trading events into notices and, after a placement, an early refresh.
type Reporter struct {
	notices *Notices
	kick    func()
}

// NewReporter records into notices; kick may be nil.
func NewReporter(notices *Notices, kick func()) *Reporter {
	return &Reporter{notices: notices, kick: kick}
}

// OrderPlaced implements execution.Reporter.
func (r *Reporter) OrderPlaced(in *signal.Intent, res execution.OrderResult) {
	r.notices.Add(OrderPlaced, in.Symbol, fmt.Sprintf("%s %g %s accepted as %s", in.Side, in.Quantity, in.Type, res.ID))
	if r.kick != nil {
		r.kick()
	}
}

// OrderRejected implements execution.Reporter.
func (r *Reporter) OrderRejected(in *signal.Intent, err error) {
	r.notices.Add(OrderRejected, in.Symbol, fmt.Sprintf("%s %g rejected: %v", in.Side, in.Quantity, err))
}

// FeedStatus records a feed transition.
func (r *Reporter) FeedStatus(up bool, err error) {
	if up {
		r.notices.Add(FeedUp, "", "market data feed connected")
		return
	}
	msg := "market data feed disconnected"
	if err != nil {
		msg += ": " + err.Error()
	}
	r.notices.Add(FeedDown, "", msg)
}

// StopTriggered records a trailing-stop exit.
func (r *Reporter) StopTriggered(symbol string, price, stop float64) {
	r.notices.Add(StopTriggered, symbol, fmt.Sprintf("trailing stop %.6g hit at %.6g", stop, price))
}
