// Package backtest replays historical bars through the same strategy adapter, resolver and
// paper broker the live trader uses, on a clock that follows the bars.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/paper"
	"livetrader-go/internal/risk"
	"livetrader-go/internal/signal"
	"livetrader-go/internal/stops"
	"livetrader-go/internal/strategy"
)

var (
	// ErrNoBars means the source returned nothing for the requested window.
	ErrNoBars = errors.New("no historical bars")
	// ErrTickOnly means the strategy never looks at closed bars.
	ErrTickOnly = errors.New("strategy does not run on bars")
)

// DefaultCash is the starting bankroll when Config.Cash is zero.
const DefaultCash = 100000

// BarSource loads closed bars for one symbol, oldest first.
type BarSource interface {
	Bars(ctx context.Context, symbol string, tf time.Duration, start, end time.Time) ([]signal.Bar, error)
}

// Config describes one run.
type Config struct {
	Symbol    string
	Strategy  string
	Params    map[string]float64
	Qty       float64
	Timeframe time.Duration
	Start     time.Time
	End       time.Time
	// Cash is the starting bankroll; zero selects DefaultCash.
	Cash                 float64
	MaxPositionPerSymbol float64
	// CostBps is charged on every fill as adverse slippage, standing in for commission.
	CostBps float64
	Risk    *risk.Limits
	// PeriodsPerYear annualises volatility and Sharpe; zero derives it from Timeframe.
	PeriodsPerYear float64
}

// EquityPoint is the account marked at one bar's close.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Result is everything one replay produced.
type Result struct {
	Strategy string
	Symbol   string
	Params   strategy.Params
	Start    time.Time
	End      time.Time
	Bars     int
	Equity   []EquityPoint
	Fills    []execution.Fill
	Trades   []Trade
	// Rejected counts intents the resolver or broker refused.
	Rejected int
	// OpenQty is the position still held after the last bar; it is marked, not closed.
	OpenQty float64
	Stats   Stats
}

// Engine runs strategies from a registry against a bar source.
type Engine struct {
	reg *strategy.Registry
	src BarSource
	log zerolog.Logger
}

// NewEngine builds an engine. src may be nil when only Replay is used.
func NewEngine(reg *strategy.Registry, src BarSource, log zerolog.Logger) *Engine {
	return &Engine{reg: reg, src: src, log: log}
}

// Run loads cfg's window from the source and replays it.
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	bars, err := e.load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return e.Replay(ctx, cfg, bars)
}

func (e *Engine) load(ctx context.Context, cfg Config) ([]signal.Bar, error) {
	if e.src == nil {
		return nil, errors.New("backtest: no bar source configured")
	}
	bars, err := e.src.Bars(ctx, cfg.Symbol, cfg.Timeframe, cfg.Start, cfg.End)
	if err != nil {
		return nil, fmt.Errorf("load %s bars: %w", cfg.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s between %s and %s", ErrNoBars, cfg.Symbol,
			cfg.Start.Format(time.RFC3339), cfg.End.Format(time.RFC3339))
	}
	return bars, nil
}

// Replay feeds bars in start order. Each bar moves the clock to its end, marks the paper
// broker, checks trailing stops at the close, invokes the strategy and resolves its intents.
func (e *Engine) Replay(ctx context.Context, cfg Config, bars []signal.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	desc, inst, err := e.reg.Build(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}
	if !desc.Mode.Bars() || inst.Bar == nil {
		return nil, fmt.Errorf("%w: %s", ErrTickOnly, desc.Name)
	}
	params, err := desc.Resolve(cfg.Params)
	if err != nil {
		return nil, err
	}

	bars = append([]signal.Bar(nil), bars...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })

	cash := cfg.Cash
	if cash <= 0 {
		cash = DefaultCash
	}
	sym := cfg.Symbol
	log := e.log.With().Str("sym", sym).Str("strategy", desc.Name).Logger()

	clock := &replayClock{}
	account := paper.NewAccount(cash, cfg.MaxPositionPerSymbol)
	ledger := paper.NewLedger(0)
	broker := paper.NewBroker(account, log,
		paper.WithSlippageBps(cfg.CostBps),
		paper.WithRecorders(ledger),
		paper.WithClock(clock.Now),
	)
	held := accountPositions{account}

	resolverOpts := []execution.Option{
		execution.WithMinInterval(0),
		execution.WithClock(clock.Now),
		execution.WithPositions(held),
	}
	if cfg.Risk != nil {
		resolverOpts = append(resolverOpts, execution.WithRiskLimits(*cfg.Risk))
	}
	resolver := execution.NewResolver(broker, log, resolverOpts...)
	adapter := strategy.NewAdapter(sym, desc, inst, log,
		strategy.WithDefaultQty(cfg.Qty),
		strategy.WithPositionReader(held),
		strategy.WithHistory(max(1000, inst.Warmup+1)),
	)
	trail := stops.NewManager()

	res := &Result{
		Strategy: desc.Name,
		Symbol:   sym,
		Params:   params,
		Start:    bars[0].Start,
		End:      bars[len(bars)-1].End,
		Bars:     len(bars),
		Equity:   make([]EquityPoint, 0, len(bars)+1),
	}
	res.Equity = append(res.Equity, EquityPoint{Time: bars[0].Start, Equity: cash})

	for _, b := range bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.Symbol, b.Closed = sym, true
		if b.End.IsZero() {
			b.End = b.Start.Add(cfg.Timeframe)
		}
		clock.Set(b.End)
		broker.Mark(sym, b.Close)

		var intents []*signal.Intent
		if trig, ok := trail.Update(sym, b.Close, b.End); ok {
			log.Debug().Float64("px", trig.Price).Float64("stop", trig.State.Stop).Time("bar", b.Start).Msg("trailing stop triggered")
			intents = append(intents, trig.Intent)
		}
		intents = append(intents, adapter.Invoke(b)...)
		if len(intents) > 0 {
			res.Rejected += settle(trail, resolver.Resolve(ctx, intents))
		}

		snap := account.Snapshot(map[string]float64{sym: b.Close})
		res.Equity = append(res.Equity, EquityPoint{Time: b.End, Equity: snap.Equity})
	}

	res.Fills = ledger.Fills(sym)
	res.Trades = PairTrades(res.Fills)
	res.OpenQty = account.Position(sym)

	ppy := cfg.PeriodsPerYear
	if ppy <= 0 {
		ppy = PeriodsPerYear(cfg.Timeframe, isCrypto(sym))
	}
	res.Stats = Compute(res.Equity, res.Trades, ppy)
	res.Stats.BuyHoldReturn = bars[len(bars)-1].Close/bars[0].Open - 1
	if bars[0].Open <= 0 {
		res.Stats.BuyHoldReturn = 0
	}

	log.Info().
		Int("bars", res.Bars).
		Int("trades", len(res.Trades)).
		Float64("return", res.Stats.TotalReturn).
		Float64("sharpe", res.Stats.Sharpe).
		Float64("max_drawdown", res.Stats.MaxDrawdown).
		Msg("backtest finished")
	return res, nil
}

// settle keeps trailing stops in step with placed orders and counts refusals.
func settle(trail *stops.Manager, outcomes []execution.Outcome) int {
	rejected := 0
	for _, out := range outcomes {
		if out.Status == execution.StatusRejected {
			rejected++
		}
		if out.Status != execution.StatusPlaced {
			continue
		}
		in := out.Intent
		if armed, ok := trail.Get(in.Symbol); ok && (in.Close || in.Side != armed.Side) {
			trail.Disarm(in.Symbol)
		}
		if in.Stop != nil && !in.Close {
			entry, qty := out.Order.FilledAvgPrice, out.Order.FilledQty
			if entry <= 0 {
				entry = in.RefPrice
			}
			if qty <= 0 {
				qty = in.Quantity
			}
			trail.Arm(in.Symbol, in.Side, qty, entry, *in.Stop)
		}
	}
	return rejected
}

// accountPositions reads a paper account as the position mirror.
type accountPositions struct{ acct *paper.Account }

func (p accountPositions) PositionQty(symbol string) float64 { return p.acct.Position(symbol) }

// replayClock is set to each bar's end before the bar is processed.
type replayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *replayClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
