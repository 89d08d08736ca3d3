package strategy

import (
	"fmt"
	"math"
	"time"

	"livetrader-go/internal/signal"
)

// TrendFollowerDescriptor registers the momentum follower. It decides on ticks and on closed bars.
func TrendFollowerDescriptor() Descriptor {
	return Descriptor{
		Name:  "trend_follow",
		Title: "Trend follower",
		Mode:  ModeBoth,
		Params: []ParamSpec{
			{Name: "threshold", Label: "Move threshold (fraction)", Kind: KindFloat, Default: 0.05, Min: 0.0001, Max: 1},
			{Name: "window_sec", Label: "Tick window (s)", Kind: KindInt, Default: 180, Min: 1, Max: 86400},
			{Name: "min_volume", Label: "Minimum notional", Kind: KindFloat, Default: 0, Min: 0, Max: 1e12},
			{Name: "lookback_bars", Label: "Bar look-back", Kind: KindInt, Default: 5, Min: 1, Max: 500},
		},
		New: func(p Params) (Instance, error) {
			t := NewTrendFollower(p.Float("threshold"), p.Int("window_sec"), p.Float("min_volume"))
			t.lookback = p.Int("lookback_bars")
			return Instance{Bar: t, Tick: t, Warmup: t.lookback}, nil
		},
	}
}

// TrendFollower records an order when price has moved by more than threshold over its window
// and the traded notional in that window clears the minimum.
type TrendFollower struct {
	threshold float64
	window    time.Duration
	minVolume float64
	lookback  int
	ticks     []signal.Tick
	lastSide  signal.Side
}

// NewTrendFollower builds a follower using percent change and volume filters.
func NewTrendFollower(threshold float64, windowSecs int, minVolume float64) *TrendFollower {
	if threshold <= 0 {
		threshold = 0.05
	}
	if windowSecs <= 0 {
		windowSecs = 180
	}
	return &TrendFollower{
		threshold: threshold,
		window:    time.Duration(windowSecs) * time.Second,
		minVolume: math.Max(0, minVolume),
		lookback:  5,
	}
}

// OnTick evaluates the tick window.
func (t *TrendFollower) OnTick(ctx *Context, tk signal.Tick) error {
	if tk.Price <= 0 {
		return nil
	}
	t.ticks = trimWindow(append(t.ticks, tk), tk.Ts, t.window)
	oldest := t.ticks[0]
	if oldest.Price <= 0 {
		return nil
	}
	var notional float64
	for _, x := range t.ticks {
		notional += math.Abs(x.Price * x.Size)
	}
	if t.minVolume > 0 && notional < t.minVolume {
		return nil
	}
	t.decide(ctx, (tk.Price-oldest.Price)/oldest.Price, notional)
	return nil
}

// Next evaluates the change across the last lookback closed bars.
func (t *TrendFollower) Next(ctx *Context) error {
	then, ok := ctx.Bars.Ago(t.lookback)
	if !ok || then.Close <= 0 {
		return nil
	}
	var notional float64
	for i := 0; i < t.lookback; i++ {
		b, _ := ctx.Bars.Ago(i)
		notional += b.Volume * b.Close
	}
	if t.minVolume > 0 && notional < t.minVolume {
		return nil
	}
	t.decide(ctx, (ctx.Price()-then.Close)/then.Close, notional)
	return nil
}

func (t *TrendFollower) decide(ctx *Context, change, notional float64) {
	if math.Abs(change) < t.threshold {
		t.lastSide = ""
		return
	}
	side := signal.Buy
	if change < 0 {
		side = signal.Sell
	}
	if side == t.lastSide {
		return
	}
	t.lastSide = side
	reason := Because(fmt.Sprintf("Δ=%.2f%% volume=%.0f", change*100, notional))
	if side == signal.Buy {
		ctx.Buy(reason)
	} else {
		ctx.Sell(reason)
	}
}
