package strategy

import (
	"fmt"
	"math"

	"livetrader-go/internal/indicator"
)

// RSIEMADescriptor registers the RSI mean-reversion strategy filtered by a long EMA trend.
func RSIEMADescriptor() Descriptor {
	return Descriptor{
		Name:  "rsi_ema",
		Title: "RSI + EMA filter",
		Mode:  ModeBacktest,
		Params: []ParamSpec{
			{Name: "rsi_length", Label: "RSI length", Kind: KindInt, Default: 14, Min: 2, Max: 100},
			{Name: "ema_length", Label: "EMA length", Kind: KindInt, Default: 200, Min: 2, Max: 500},
			{Name: "rsi_long_entry", Label: "RSI long entry", Kind: KindFloat, Default: 20, Min: 0, Max: 100},
			{Name: "rsi_long_exit", Label: "RSI long exit", Kind: KindFloat, Default: 50, Min: 0, Max: 100},
			{Name: "rsi_short_entry", Label: "RSI short entry", Kind: KindFloat, Default: 80, Min: 0, Max: 100},
			{Name: "rsi_short_exit", Label: "RSI short exit", Kind: KindFloat, Default: 50, Min: 0, Max: 100},
			{Name: "use_ema_filter", Label: "Require EMA trend", Kind: KindBool, Default: 1},
			{Name: "trail_activation_pct", Label: "Trailing stop activation (fraction)", Kind: KindFloat, Default: 0, Min: 0, Max: 1},
			{Name: "trail_pct", Label: "Trailing stop distance (fraction)", Kind: KindFloat, Default: 0, Min: 0, Max: 1},
		},
		New: func(p Params) (Instance, error) {
			s := &RSIEMA{
				rsiLen:     p.Int("rsi_length"),
				emaLen:     p.Int("ema_length"),
				longEntry:  p.Float("rsi_long_entry"),
				longExit:   p.Float("rsi_long_exit"),
				shortEntry: p.Float("rsi_short_entry"),
				shortExit:  p.Float("rsi_short_exit"),
				emaFilter:  p.Bool("use_ema_filter"),
				trailAct:   p.Float("trail_activation_pct"),
				trailPct:   p.Float("trail_pct"),
			}
			if s.rsiLen < 2 || s.emaLen < 2 {
				return Instance{}, fmt.Errorf("%w: rsi_ema lengths must be >= 2", ErrInvalidParam)
			}
			if s.longEntry >= s.shortEntry {
				return Instance{}, fmt.Errorf("%w: rsi_long_entry must be below rsi_short_entry", ErrInvalidParam)
			}
			warm := s.rsiLen
			if s.emaFilter && s.emaLen > warm {
				warm = s.emaLen
			}
			return Instance{Bar: s, Warmup: warm}, nil
		},
	}
}

// RSIEMA enters long on oversold RSI above the EMA and short on overbought RSI below it.
// It tracks the side it last entered so each entry and exit is emitted once.
type RSIEMA struct {
	rsiLen, emaLen        int
	longEntry, longExit   float64
	shortEntry, shortExit float64
	emaFilter             bool
	trailAct, trailPct    float64

	state int // 1 long, -1 short, 0 flat
}

// Next evaluates the latest closed bar.
func (s *RSIEMA) Next(ctx *Context) error {
	closes := ctx.Bars.Closes()
	rsi := indicator.Last(indicator.RSI(closes, s.rsiLen))
	if math.IsNaN(rsi) {
		return nil
	}
	px := ctx.Price()
	aboveTrend, belowTrend := true, true
	if s.emaFilter {
		ema := indicator.Last(indicator.EMA(closes, s.emaLen))
		if math.IsNaN(ema) {
			return nil
		}
		aboveTrend, belowTrend = px > ema, px < ema
	}

	switch s.state {
	case 1:
		if rsi > s.longExit {
			s.state = 0
			ctx.Sell(Because(fmt.Sprintf("rsi=%.1f long exit", rsi)))
		}
	case -1:
		if rsi < s.shortExit {
			s.state = 0
			ctx.Buy(Because(fmt.Sprintf("rsi=%.1f short exit", rsi)))
		}
	default:
		switch {
		case rsi < s.longEntry && aboveTrend:
			s.state = 1
			ctx.Buy(s.entryOpts(rsi, "long entry")...)
		case rsi > s.shortEntry && belowTrend:
			s.state = -1
			ctx.Sell(s.entryOpts(rsi, "short entry")...)
		}
	}
	return nil
}

func (s *RSIEMA) entryOpts(rsi float64, what string) []OrderOption {
	opts := []OrderOption{Because(fmt.Sprintf("rsi=%.1f %s", rsi, what))}
	if s.trailPct > 0 {
		opts = append(opts, Trailing(s.trailAct, s.trailPct))
	}
	return opts
}
