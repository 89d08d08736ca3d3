package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"livetrader-go/internal/backtest"
	"livetrader-go/internal/config"
	"livetrader-go/internal/risk"
	"livetrader-go/internal/strategy"
)

// newBarSource is swapped in tests.
var newBarSource = func(cfg *config.Config) backtest.BarSource {
	return backtest.NewAlpacaBars(cfg.Broker.Alpaca.Key, cfg.Broker.Alpaca.Secret, "")
}

type backtestOptions struct {
	symbol    string
	strategy  string
	start     string
	end       string
	timeframe time.Duration
	params    []string
	grid      []string
	metric    string
	cash      float64
	costBps   float64
	top       int
	trades    bool
}

func newBacktestCmd(flags *rootFlags) *cobra.Command {
	opts := &backtestOptions{}
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay Alpaca historical bars through a strategy and print performance statistics",
		Long: "Replay Alpaca historical bars through the configured strategy on a paper account.\n" +
			"With --grid every parameter combination is run and ranked by --metric.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			log := newLogger(os.Stderr, cfg, flags)
			return runBacktest(ctx, cmd.OutOrStdout(), cfg, opts, newBarSource(cfg), log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.symbol, "symbol", "", "symbol to replay (defaults to the first exchange.symbols entry)")
	f.StringVar(&opts.strategy, "strategy", "", "strategy name (defaults to strategy.name)")
	f.StringVar(&opts.start, "start", "", "window start, RFC3339 or YYYY-MM-DD (defaults to 30 days before --end)")
	f.StringVar(&opts.end, "end", "", "window end, RFC3339 or YYYY-MM-DD (defaults to now)")
	f.DurationVar(&opts.timeframe, "timeframe", time.Hour, "bar timeframe: whole minutes, hours or days")
	f.StringArrayVar(&opts.params, "param", nil, "strategy parameter override name=value (repeatable)")
	f.StringArrayVar(&opts.grid, "grid", nil, "optimise over name=v1,v2,... (repeatable)")
	f.StringVar(&opts.metric, "metric", backtest.DefaultMetric, "ranking metric for --grid: "+strings.Join(backtest.Metrics, ", "))
	f.Float64Var(&opts.cash, "cash", backtest.DefaultCash, "starting cash")
	f.Float64Var(&opts.costBps, "cost-bps", 20, "per-fill cost in basis points")
	f.IntVar(&opts.top, "top", 10, "rows shown for --grid")
	f.BoolVar(&opts.trades, "trades", false, "list every closed trade")
	return cmd
}

func runBacktest(ctx context.Context, w io.Writer, cfg *config.Config, opts *backtestOptions, src backtest.BarSource, log zerolog.Logger) error {
	bt, err := backtestConfig(cfg, opts, time.Now())
	if err != nil {
		return err
	}
	eng := backtest.NewEngine(strategy.Builtin(), src, log)

	if len(opts.grid) == 0 {
		res, err := eng.Run(ctx, bt)
		if err != nil {
			return err
		}
		writeBacktestSummary(w, res)
		if opts.trades {
			writeTrades(w, res.Trades)
		}
		return nil
	}

	grid, err := backtest.ParseGrid(opts.grid)
	if err != nil {
		return err
	}
	ranked, err := eng.Optimize(ctx, bt, grid, opts.metric)
	if err != nil {
		return err
	}
	writeRanking(w, ranked, opts.top)
	writeBacktestSummary(w, ranked[0].Result)
	if opts.trades {
		writeTrades(w, ranked[0].Result.Trades)
	}
	return nil
}

func backtestConfig(cfg *config.Config, opts *backtestOptions, now time.Time) (backtest.Config, error) {
	bt := backtest.Config{
		Symbol:               opts.symbol,
		Strategy:             opts.strategy,
		Params:               make(map[string]float64, len(cfg.Strategy.Params)+len(opts.params)),
		Qty:                  cfg.Strategy.Qty,
		Timeframe:            opts.timeframe,
		Cash:                 opts.cash,
		MaxPositionPerSymbol: cfg.Paper.MaxPositionPerSymbol,
		CostBps:              opts.costBps,
	}
	if bt.Symbol == "" && len(cfg.Exchange.Symbols) > 0 {
		bt.Symbol = cfg.Exchange.Symbols[0]
	}
	if bt.Symbol == "" {
		return bt, fmt.Errorf("no symbol: pass --symbol or set exchange.symbols")
	}
	if bt.Strategy == "" {
		bt.Strategy = cfg.Strategy.Name
		for k, v := range cfg.Strategy.Params {
			bt.Params[k] = v
		}
	}
	for _, p := range opts.params {
		name, raw, ok := strings.Cut(p, "=")
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if !ok || err != nil || strings.TrimSpace(name) == "" {
			return bt, fmt.Errorf("--param %q: want name=number", p)
		}
		bt.Params[strings.TrimSpace(name)] = v
	}
	if cfg.Risk.MaxNotionalPerTrade > 0 || cfg.Risk.MaxPositionQty > 0 {
		bt.Risk = &risk.Limits{MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade, MaxPositionQty: cfg.Risk.MaxPositionQty}
	}

	var err error
	bt.End = now.UTC()
	if opts.end != "" {
		if bt.End, err = parseDay(opts.end); err != nil {
			return bt, fmt.Errorf("--end: %w", err)
		}
	}
	bt.Start = bt.End.AddDate(0, 0, -30)
	if opts.start != "" {
		if bt.Start, err = parseDay(opts.start); err != nil {
			return bt, fmt.Errorf("--start: %w", err)
		}
	}
	if !bt.Start.Before(bt.End) {
		return bt, fmt.Errorf("backtest window is empty: %s is not before %s", bt.Start.Format(time.RFC3339), bt.End.Format(time.RFC3339))
	}
	return bt, nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func writeBacktestSummary(w io.Writer, res *backtest.Result) {
	s := res.Stats
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	rows := [][]string{
		{"Strategy", res.Strategy},
		{"Symbol", res.Symbol},
		{"Params", formatParams(res.Params)},
		{"Start", res.Start.UTC().Format(time.RFC3339)},
		{"End", res.End.UTC().Format(time.RFC3339)},
		{"Bars", strconv.Itoa(res.Bars)},
		{"Equity Final", fmt.Sprintf("%.2f", s.FinalEquity)},
		{"Equity Peak", fmt.Sprintf("%.2f", s.PeakEquity)},
		{"Return [%]", pct(s.TotalReturn)},
		{"Buy & Hold Return [%]", pct(s.BuyHoldReturn)},
		{"Volatility (Ann.) [%]", pct(s.Volatility)},
		{"Sharpe Ratio", fmt.Sprintf("%.3f", s.Sharpe)},
		{"Max. Drawdown [%]", pct(s.MaxDrawdown)},
		{"# Trades", strconv.Itoa(s.Trades)},
		{"Win Rate [%]", pct(s.WinRate)},
		{"Best Trade [%]", pct(s.BestTrade)},
		{"Worst Trade [%]", pct(s.WorstTrade)},
		{"Avg. Trade [%]", pct(s.AvgTrade)},
		{"Profit Factor", ratio(s.ProfitFactor)},
		{"Rejected Orders", strconv.Itoa(res.Rejected)},
		{"Open Qty", fmt.Sprintf("%g", res.OpenQty)},
	}
	table.AppendBulk(rows)
	table.Render()
}

func writeTrades(w io.Writer, trades []backtest.Trade) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Entry", "Exit", "Qty", "Entry Px", "Exit Px", "PnL", "Return [%]"})
	table.SetAutoWrapText(false)
	for _, t := range trades {
		table.Append([]string{
			t.EntryTime.UTC().Format("2006-01-02 15:04"),
			t.ExitTime.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%g", t.Qty),
			fmt.Sprintf("%g", t.EntryPrice),
			fmt.Sprintf("%g", t.ExitPrice),
			fmt.Sprintf("%.2f", t.PnL),
			pct(t.Return),
		})
	}
	table.Render()
}

func writeRanking(w io.Writer, ranked []backtest.Ranked, top int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Params", "Score", "Return [%]", "Sharpe", "Max DD [%]", "Trades"})
	table.SetAutoWrapText(false)
	for i, r := range ranked {
		if top > 0 && i >= top {
			break
		}
		s := r.Result.Stats
		table.Append([]string{
			strconv.Itoa(i + 1),
			formatParams(r.Params),
			ratio(r.Score),
			pct(s.TotalReturn),
			fmt.Sprintf("%.3f", s.Sharpe),
			pct(s.MaxDrawdown),
			strconv.Itoa(s.Trades),
		})
	}
	table.Render()
}

func formatParams(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, " ")
}

func pct(v float64) string { return fmt.Sprintf("%.2f", v*100) }

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.3f", v)
}
