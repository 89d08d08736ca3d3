package strategy

import (
	"fmt"
	"math"
	"time"

	"livetrader-go/internal/signal"
)

// OBIMomentumDescriptor registers the tick-native order-flow imbalance strategy.
func OBIMomentumDescriptor() Descriptor {
	return Descriptor{
		Name:  "obi_momentum",
		Title: "Order-flow imbalance + momentum",
		Mode:  ModeLive,
		Params: []ParamSpec{
			{Name: "threshold", Label: "Score threshold", Kind: KindFloat, Default: 0.25, Min: 0.01, Max: 1},
			{Name: "window_sec", Label: "Look-back window (s)", Kind: KindInt, Default: 60, Min: 1, Max: 3600},
		},
		New: func(p Params) (Instance, error) {
			return Instance{Tick: NewOBIMomentum(p.Float("threshold"), p.Int("window_sec"))}, nil
		},
	}
}

// OBIMomentum scores a sliding window of ticks by trade imbalance and price momentum and
// records an order when the blended score clears the threshold. One instance serves one symbol.
type OBIMomentum struct {
	threshold float64
	window    time.Duration
	ticks     []signal.Tick
	lastSide  signal.Side
}

// NewOBIMomentum builds an instance; non-positive arguments fall back to 0.25 and 60s.
func NewOBIMomentum(threshold float64, windowSec int) *OBIMomentum {
	if threshold <= 0 {
		threshold = 0.25
	}
	if windowSec <= 0 {
		windowSec = 60
	}
	return &OBIMomentum{threshold: threshold, window: time.Duration(windowSec) * time.Second}
}

// Score returns the blended score of the current window.
func (s *OBIMomentum) Score() float64 {
	if len(s.ticks) == 0 {
		return 0
	}
	obi, momentum := windowFeatures(s.ticks)
	return 0.6*obi + 0.4*momentum
}

// OnTick folds the tick into the window and records a buy or sell on a fresh crossing.
func (s *OBIMomentum) OnTick(ctx *Context, tk signal.Tick) error {
	if tk.Price <= 0 {
		return nil
	}
	s.ticks = trimWindow(append(s.ticks, tk), tk.Ts, s.window)

	obi, momentum := windowFeatures(s.ticks)
	score := 0.6*obi + 0.4*momentum
	if math.Abs(score) < s.threshold {
		s.lastSide = ""
		return nil
	}
	side := signal.Buy
	if score < 0 {
		side = signal.Sell
	}
	if side == s.lastSide {
		return nil
	}
	s.lastSide = side
	reason := Because(fmt.Sprintf("obi=%.2f momentum=%.2f", obi, momentum))
	if side == signal.Buy {
		ctx.Buy(reason)
	} else {
		ctx.Sell(reason)
	}
	return nil
}

// trimWindow drops ticks at or before now-window.
func trimWindow(ticks []signal.Tick, now time.Time, window time.Duration) []signal.Tick {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(ticks) && !ticks[idx].Ts.After(cutoff) {
		idx++
	}
	return ticks[idx:]
}

func windowFeatures(ticks []signal.Tick) (obi, momentum float64) {
	var buyVol, sellVol float64
	for _, tk := range ticks {
		vol := math.Abs(tk.Size)
		if tk.Side >= 0 {
			buyVol += vol
		} else {
			sellVol += vol
		}
	}
	if total := buyVol + sellVol; total > 0 {
		obi = clamp((buyVol-sellVol)/total, -1, 1)
	}
	if anchor := ticks[0].Price; anchor > 0 {
		raw := (ticks[len(ticks)-1].Price - anchor) / anchor
		momentum = clamp(math.Tanh(raw*3), -1, 1)
	}
	return obi, momentum
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
