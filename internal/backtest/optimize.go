package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"livetrader-go/internal/strategy"
)

// ErrUnknownMetric is returned for a ranking metric Optimize does not know.
var ErrUnknownMetric = errors.New("unknown optimisation metric")

// DefaultMetric ranks optimisation runs.
const DefaultMetric = "sharpe"

// Metrics lists the names MetricValue accepts.
var Metrics = []string{"sharpe", "return", "drawdown", "win_rate", "profit_factor"}

// Grid maps parameter names to the values tried for each.
type Grid map[string][]float64

// ParseGrid reads "name=v1,v2,v3" entries.
func ParseGrid(entries []string) (Grid, error) {
	g := make(Grid, len(entries))
	for _, e := range entries {
		name, list, ok := strings.Cut(e, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.TrimSpace(list) == "" {
			return nil, fmt.Errorf("grid entry %q: want name=v1,v2", e)
		}
		for _, raw := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("grid entry %q: %w", e, err)
			}
			g[name] = append(g[name], v)
		}
	}
	return g, nil
}

// Combos expands the grid into every parameter combination, varying the last name
// (in sorted order) fastest.
func (g Grid) Combos() []map[string]float64 {
	names := make([]string, 0, len(g))
	for n, vals := range g {
		if len(vals) > 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}
	combos := []map[string]float64{{}}
	for _, n := range names {
		next := make([]map[string]float64, 0, len(combos)*len(g[n]))
		for _, c := range combos {
			for _, v := range g[n] {
				m := make(map[string]float64, len(c)+1)
				for k, cv := range c {
					m[k] = cv
				}
				m[n] = v
				next = append(next, m)
			}
		}
		combos = next
	}
	return combos
}

// MetricValue returns the named metric oriented so that larger is better.
func MetricValue(s Stats, metric string) (float64, error) {
	switch metric {
	case "sharpe", "":
		return s.Sharpe, nil
	case "return":
		return s.TotalReturn, nil
	case "drawdown":
		return -s.MaxDrawdown, nil
	case "win_rate":
		return s.WinRate, nil
	case "profit_factor":
		return s.ProfitFactor, nil
	}
	return 0, fmt.Errorf("%w %q (want one of %s)", ErrUnknownMetric, metric, strings.Join(Metrics, ", "))
}

// Ranked is one optimisation run with its score.
type Ranked struct {
	Params map[string]float64
	Score  float64
	Result *Result
}

// Optimize loads cfg's bars once and replays them for every grid combination layered over
// cfg.Params. Combinations the strategy refuses are skipped. Results come back best first.
func (e *Engine) Optimize(ctx context.Context, cfg Config, grid Grid, metric string) ([]Ranked, error) {
	if _, err := MetricValue(Stats{}, metric); err != nil {
		return nil, err
	}
	combos := grid.Combos()
	if len(combos) == 0 {
		return nil, errors.New("optimisation grid is empty")
	}
	bars, err := e.load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ranked := make([]Ranked, 0, len(combos))
	var lastErr error
	for _, combo := range combos {
		run := cfg
		run.Params = make(map[string]float64, len(cfg.Params)+len(combo))
		for k, v := range cfg.Params {
			run.Params[k] = v
		}
		for k, v := range combo {
			run.Params[k] = v
		}
		res, err := e.Replay(ctx, run, bars)
		if errors.Is(err, strategy.ErrInvalidParam) {
			e.log.Debug().Err(err).Interface("params", combo).Msg("skipping grid point")
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		score, _ := MetricValue(res.Stats, metric)
		ranked = append(ranked, Ranked{Params: combo, Score: score, Result: res})
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no valid grid point: %w", lastErr)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Score, ranked[j].Score
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})
	return ranked, nil
}
