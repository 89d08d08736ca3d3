// Package exchange hosts market data connectors that turn venue trade streams into ticks.
package exchange

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/metrics"
	"livetrader-go/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderAlpaca streams trades through the Alpaca market data SDK.
	ProviderAlpaca = "alpaca"
	// ProviderDexScreener polls the Dexscreener HTTP API for on-chain pairs.
	ProviderDexScreener = "dexscreener"
)

// Status is a feed connectivity transition.
type Status struct {
	Provider string
	Up       bool
	Err      error
	At       time.Time
}

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider     string
	symbols      []string
	log          zerolog.Logger
	pollInterval time.Duration
	stubInterval time.Duration
	statusHook   func(Status)
	binanceURL   string
	alpaca       AlpacaStream
	alpacaDial   alpacaDialer
	dexBaseURL   string
	dexChain     string
	lastPrices   map[string]float64
	state        int // 0 unknown, 1 up, -1 down
	connects     uint64
	wait         func(context.Context, time.Duration) error
	mu           sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultPollInterval       = 2 * time.Second
	defaultStubInterval       = 500 * time.Millisecond
	defaultBinanceURL         = "wss://stream.binance.com:9443/stream"
	defaultDexScreenerBaseURL = "https://api.dexscreener.com"
	minBackoff                = time.Second
	maxBackoff                = 30 * time.Second
)

// WithPollInterval overrides the default polling cadence for HTTP-based feeds.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithStubInterval sets how often the stub provider emits.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// WithStatusHook receives Up/Down transitions. Reconnection stays inside the feed.
func WithStatusHook(hook func(Status)) Option {
	return func(f *Feed) { f.statusHook = hook }
}

// WithBinanceURL overrides the combined-stream endpoint.
func WithBinanceURL(u string) Option {
	return func(f *Feed) {
		if u != "" {
			f.binanceURL = u
		}
	}
}

// WithAlpacaStream sets credentials and the endpoint for the Alpaca provider.
func WithAlpacaStream(cfg AlpacaStream) Option {
	return func(f *Feed) { f.alpaca = cfg }
}

// WithDexScreenerConfig injects base URL and default chain metadata for Dexscreener.
func WithDexScreenerConfig(baseURL, defaultChain string) Option {
	return func(f *Feed) {
		if baseURL != "" {
			f.dexBaseURL = strings.TrimSuffix(baseURL, "/")
		}
		if defaultChain != "" {
			f.dexChain = strings.ToLower(defaultChain)
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:     strings.ToLower(provider),
		log:          log,
		pollInterval: defaultPollInterval,
		stubInterval: defaultStubInterval,
		binanceURL:   defaultBinanceURL,
		dexBaseURL:   defaultDexScreenerBaseURL,
		lastPrices:   make(map[string]float64),
		wait:         sleepCtx,
		alpacaDial:   dialAlpacaSDK,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the normalized provider name.
func (f *Feed) Provider() string { return f.provider }

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Symbols returns the symbols ticks will carry. Dexscreener targets are reported by alias.
func (f *Feed) Symbols() []string {
	syms := f.snapshotSymbols()
	if f.provider != ProviderDexScreener {
		return syms
	}
	targets, err := parseDexScreenerSymbols(syms, f.dexChain)
	if err != nil {
		return nil
	}
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Alias
	}
	return out
}

// Run pushes ticks onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Tick) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	case ProviderAlpaca:
		return f.runAlpaca(ctx, out)
	case ProviderDexScreener:
		return f.runDexScreener(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) setStatus(up bool, err error) {
	f.mu.Lock()
	state := -1
	if up {
		state = 1
	}
	changed := f.state != state
	f.state = state
	if up {
		f.connects++
	}
	f.mu.Unlock()
	if changed && f.statusHook != nil {
		f.statusHook(Status{Provider: f.provider, Up: up, Err: err, At: time.Now()})
	}
}

// reconnect runs consume until ctx ends, backing off between failures and reporting transitions.
// The backoff starts over once a session has reported itself up.
func (f *Feed) reconnect(ctx context.Context, consume func(context.Context) error) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		before := f.connectCount()
		err := consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		if f.connectCount() != before {
			backoff = minBackoff
		}
		f.setStatus(false, err)
		f.log.Warn().Err(err).Str("provider", f.provider).Dur("backoff", backoff).Msg("feed disconnected, retrying")
		if err := f.wait(ctx, backoff); err != nil {
			return err
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (f *Feed) connectCount() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connects
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func emit(ctx context.Context, out chan<- signal.Tick, tick signal.Tick) error {
	select {
	case out <- tick:
		metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Tick) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()
	f.setStatus(true, nil)

	var px float64 = 100.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			px += 0.1
			for _, s := range f.snapshotSymbols() {
				if err := emit(ctx, out, signal.Tick{Symbol: s, Price: px, Size: 1, Side: 1, Ts: ts}); err != nil {
					return err
				}
			}
		}
	}
}
