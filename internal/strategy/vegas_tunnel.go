package strategy

import (
	"fmt"
	"math"
	"time"

	"livetrader-go/internal/indicator"
)

const (
	directionBoth = iota
	directionLong
	directionShort
)

// VegasTunnelDescriptor registers the Vegas double tunnel crossover. MA types use
// 0 SMA, 1 EMA, 2 WMA, 3 RMA; direction is 0 both, 1 long only, 2 short only.
func VegasTunnelDescriptor() Descriptor {
	return Descriptor{
		Name:  "vegas_double_tunnel",
		Title: "Vegas double tunnel",
		Mode:  ModeBacktest,
		Params: []ParamSpec{
			{Name: "ma1_period", Label: "MA1 period", Kind: KindInt, Default: 144, Min: 2, Max: 1000},
			{Name: "ma1_type", Label: "MA1 type", Kind: KindInt, Default: 1, Min: 0, Max: 3},
			{Name: "ma3_period", Label: "MA3 period", Kind: KindInt, Default: 576, Min: 2, Max: 1000},
			{Name: "ma3_type", Label: "MA3 type", Kind: KindInt, Default: 1, Min: 0, Max: 3},
			{Name: "ma5_period", Label: "MA5 filter period", Kind: KindInt, Default: 14, Min: 2, Max: 200},
			{Name: "ma5_type", Label: "MA5 filter type", Kind: KindInt, Default: 1, Min: 0, Max: 3},
			{Name: "filter_period", Label: "Trend EMA period", Kind: KindInt, Default: 144, Min: 2, Max: 1000},
			{Name: "stoploss_long_pct", Label: "Long stop (%)", Kind: KindFloat, Default: 1, Min: 0.1, Max: 10},
			{Name: "stoploss_short_pct", Label: "Short stop (%)", Kind: KindFloat, Default: 1, Min: 0.1, Max: 10},
			{Name: "take_profit_long_pct", Label: "Long target (%)", Kind: KindFloat, Default: 1, Min: 0.1, Max: 20},
			{Name: "take_profit_short_pct", Label: "Short target (%)", Kind: KindFloat, Default: 1, Min: 0.1, Max: 20},
			{Name: "direction", Label: "Direction", Kind: KindInt, Default: directionBoth, Min: 0, Max: 2},
			{Name: "weekdays_only", Label: "Trade weekdays only", Kind: KindBool, Default: 0},
		},
		New: func(p Params) (Instance, error) {
			s := &VegasTunnel{
				ma1:       p.Int("ma1_period"),
				ma1Kind:   indicator.MAKind(p.Int("ma1_type")),
				ma3:       p.Int("ma3_period"),
				ma3Kind:   indicator.MAKind(p.Int("ma3_type")),
				ma5:       p.Int("ma5_period"),
				ma5Kind:   indicator.MAKind(p.Int("ma5_type")),
				filter:    p.Int("filter_period"),
				slLong:    p.Float("stoploss_long_pct") / 100,
				slShort:   p.Float("stoploss_short_pct") / 100,
				tpLong:    p.Float("take_profit_long_pct") / 100,
				tpShort:   p.Float("take_profit_short_pct") / 100,
				direction: p.Int("direction"),
				weekdays:  p.Bool("weekdays_only"),
			}
			if s.ma1 == s.ma3 {
				return Instance{}, fmt.Errorf("%w: ma1_period and ma3_period must differ", ErrInvalidParam)
			}
			warm := max(s.ma1, s.ma3, s.ma5, s.filter) + 2
			return Instance{Bar: s, Warmup: warm}, nil
		},
	}
}

// VegasTunnel trades MA1 crossing MA3 when the fast MA5 confirms against the trend EMA.
// An opposite signal flattens the open side first; stops and targets are percent bands
// around the entry close, checked against later bars.
type VegasTunnel struct {
	ma1, ma3, ma5             int
	ma1Kind, ma3Kind, ma5Kind indicator.MAKind
	filter                    int
	slLong, slShort           float64
	tpLong, tpShort           float64
	direction                 int
	weekdays                  bool

	state        int
	stop, target float64
}

// Next evaluates the latest closed bar.
func (s *VegasTunnel) Next(ctx *Context) error {
	last, ok := ctx.Bars.Last()
	if !ok {
		return nil
	}
	if s.manage(ctx, last.High, last.Low) {
		return nil
	}
	if s.weekdays {
		if wd := last.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return nil
		}
	}

	closes := ctx.Bars.Closes()
	ma1 := indicator.MovingAverage(s.ma1Kind, closes, s.ma1)
	ma3 := indicator.MovingAverage(s.ma3Kind, closes, s.ma3)
	n := len(closes)
	if n < 2 {
		return nil
	}
	ma1Now, ma1Prev := ma1[n-1], ma1[n-2]
	ma3Now, ma3Prev := ma3[n-1], ma3[n-2]
	ma5 := indicator.Last(indicator.MovingAverage(s.ma5Kind, closes, s.ma5))
	trend := indicator.Last(indicator.EMA(closes, s.filter))
	for _, v := range []float64{ma1Now, ma1Prev, ma3Now, ma3Prev, ma5, trend} {
		if math.IsNaN(v) {
			return nil
		}
	}

	px := ctx.Price()
	buy := ma1Prev < ma3Prev && ma1Now > ma3Now && ma5 > trend && s.direction != directionShort
	sell := ma1Prev > ma3Prev && ma1Now < ma3Now && ma5 < trend && s.direction != directionLong
	switch {
	case buy && s.state == -1:
		s.state = 0
		ctx.Buy(Because("tunnel cross up, covering short"))
	case buy && s.state == 0:
		stop, target := px*(1-s.slLong), px*(1+s.tpLong)
		if stop < px && px < target {
			s.state, s.stop, s.target = 1, stop, target
			ctx.Buy(Because(fmt.Sprintf("tunnel cross up, stop %.4f target %.4f", stop, target)))
		}
	case sell && s.state == 1:
		s.state = 0
		ctx.Sell(Because("tunnel cross down, closing long"))
	case sell && s.state == 0:
		stop, target := px*(1+s.slShort), px*(1-s.tpShort)
		if target < px && px < stop {
			s.state, s.stop, s.target = -1, stop, target
			ctx.Sell(Because(fmt.Sprintf("tunnel cross down, stop %.4f target %.4f", stop, target)))
		}
	}
	return nil
}

func (s *VegasTunnel) manage(ctx *Context, high, low float64) bool {
	switch {
	case s.state == 1 && (low <= s.stop || high >= s.target):
		s.state = 0
		ctx.Sell(Because("tunnel long bracket hit"))
		return true
	case s.state == -1 && (high >= s.stop || low <= s.target):
		s.state = 0
		ctx.Buy(Because("tunnel short bracket hit"))
		return true
	}
	return false
}
