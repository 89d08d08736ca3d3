package strategy

import (
	"fmt"
	"math"

	"livetrader-go/internal/indicator"
)

// SMACrossDescriptor registers the fast/slow moving-average crossover.
func SMACrossDescriptor() Descriptor {
	return Descriptor{
		Name:  "sma_cross",
		Title: "SMA crossover",
		Mode:  ModeBacktest,
		Params: []ParamSpec{
			{Name: "fast", Label: "Fast SMA", Kind: KindInt, Default: 10, Min: 1, Max: 200},
			{Name: "slow", Label: "Slow SMA", Kind: KindInt, Default: 30, Min: 2, Max: 500},
		},
		New: func(p Params) (Instance, error) {
			fast, slow := p.Int("fast"), p.Int("slow")
			if fast >= slow {
				return Instance{}, fmt.Errorf("%w: fast (%d) must be shorter than slow (%d)", ErrInvalidParam, fast, slow)
			}
			return Instance{Bar: &SMACross{fast: fast, slow: slow}, Warmup: slow}, nil
		},
	}
}

// SMACross buys when the fast average crosses above the slow one and sells on the reverse cross.
type SMACross struct {
	fast, slow int
}

// Next compares the averages on this bar and the previous one.
func (s *SMACross) Next(ctx *Context) error {
	closes := ctx.Bars.Closes()
	if len(closes) < s.slow+1 {
		return nil
	}
	prev := closes[:len(closes)-1]
	fastNow, slowNow := indicator.SMA(closes, s.fast), indicator.SMA(closes, s.slow)
	fastPrev, slowPrev := indicator.SMA(prev, s.fast), indicator.SMA(prev, s.slow)
	if math.IsNaN(fastPrev) || math.IsNaN(slowPrev) {
		return nil
	}
	switch {
	case fastPrev <= slowPrev && fastNow > slowNow:
		ctx.Buy(Because(fmt.Sprintf("sma%d crossed above sma%d", s.fast, s.slow)))
	case fastPrev >= slowPrev && fastNow < slowNow:
		ctx.Sell(Because(fmt.Sprintf("sma%d crossed below sma%d", s.fast, s.slow)))
	}
	return nil
}
