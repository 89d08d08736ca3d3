package strategy

import (
	"fmt"
	"math"

	"livetrader-go/internal/indicator"
)

const maxPivots = 20

// MACDDivergenceDescriptor registers the regular-divergence strategy on MACD histogram pivots.
func MACDDivergenceDescriptor() Descriptor {
	return Descriptor{
		Name:  "macd_divergence",
		Title: "MACD histogram divergence",
		Mode:  ModeBacktest,
		Params: []ParamSpec{
			{Name: "fast_length", Label: "MACD fast", Kind: KindInt, Default: 13, Min: 2, Max: 200},
			{Name: "slow_length", Label: "MACD slow", Kind: KindInt, Default: 34, Min: 2, Max: 500},
			{Name: "signal_length", Label: "MACD signal", Kind: KindInt, Default: 9, Min: 1, Max: 50},
			{Name: "atr_length", Label: "ATR length", Kind: KindInt, Default: 13, Min: 1, Max: 200},
			{Name: "atr_multiplier", Label: "ATR multiplier", Kind: KindFloat, Default: 1.5, Min: 0.1, Max: 10},
			{Name: "max_search_vals", Label: "Pivots searched for divergence", Kind: KindInt, Default: 5, Min: 2, Max: 10},
			{Name: "bigger_less_than", Label: "Divergence ratio", Kind: KindFloat, Default: 0.618, Min: 0.01, Max: 0.99},
			{Name: "lbl", Label: "Pivot bars left", Kind: KindInt, Default: 1, Min: 1, Max: 10},
			{Name: "lbr", Label: "Pivot bars right", Kind: KindInt, Default: 1, Min: 1, Max: 10},
			{Name: "order_cash_value", Label: "Cash per order (0 uses default qty)", Kind: KindFloat, Default: 2000, Min: 0, Max: 1e7},
		},
		New: func(p Params) (Instance, error) {
			s := &MACDDivergence{
				fast:      p.Int("fast_length"),
				slow:      p.Int("slow_length"),
				signal:    p.Int("signal_length"),
				atrLen:    p.Int("atr_length"),
				atrMult:   p.Float("atr_multiplier"),
				maxSearch: p.Int("max_search_vals"),
				ratio:     p.Float("bigger_less_than"),
				left:      p.Int("lbl"),
				right:     p.Int("lbr"),
				cash:      p.Float("order_cash_value"),
			}
			if s.fast >= s.slow {
				return Instance{}, fmt.Errorf("%w: fast_length must be below slow_length", ErrInvalidParam)
			}
			warm := s.slow + s.signal + max(s.left, s.right) + s.right + 5
			return Instance{Bar: s, Warmup: warm}, nil
		},
	}
}

type histPivot struct {
	hist  float64
	price float64
}

// MACDDivergence looks for price making a lower low while the MACD histogram makes a higher
// low (long), or the mirror at highs (short). Entries are limit orders at the pivot-confirming
// close, bracketed by ATR bands around the prior bar; the bracket is managed on later bars.
type MACDDivergence struct {
	fast, slow, signal int
	atrLen             int
	atrMult            float64
	maxSearch          int
	ratio              float64
	left, right        int
	cash               float64

	lows, highs []histPivot

	state        int // 1 long, -1 short, 0 flat
	stop, target float64
	qty          float64
}

// Next evaluates the latest closed bar.
func (s *MACDDivergence) Next(ctx *Context) error {
	closes := ctx.Bars.Closes()
	highs, lows := ctx.Bars.Highs(), ctx.Bars.Lows()
	n := len(closes)
	if n == 0 {
		return nil
	}
	if s.manage(ctx, highs[n-1], lows[n-1]) {
		return nil
	}

	hist := indicator.MACD(closes, s.fast, s.slow, s.signal).Hist
	p := n - 1 - s.right
	if p < 1 || math.IsNaN(hist[p]) {
		return nil
	}
	var bull, bear bool
	if indicator.PivotLow(hist, p, s.left, s.right) && hist[p] < 0 {
		s.lows = pushPivot(s.lows, histPivot{hist: hist[p], price: lows[p]})
		bull = bullishDivergence(s.lows, s.maxSearch, s.ratio)
	}
	if indicator.PivotHigh(hist, p, s.left, s.right) && hist[p] > 0 {
		s.highs = pushPivot(s.highs, histPivot{hist: hist[p], price: highs[p]})
		bear = bearishDivergence(s.highs, s.maxSearch, s.ratio)
	}
	if (!bull && !bear) || s.state != 0 {
		return nil
	}

	atr := indicator.ATR(highs, lows, closes, s.atrLen)
	ref := p - 1
	entry, band := closes[p], atr[ref]*s.atrMult
	if entry <= 0 || math.IsNaN(band) {
		return nil
	}
	upper, lower := highs[ref]+band, lows[ref]-band
	if upper <= entry || lower >= entry {
		return nil
	}

	opts := []OrderOption{LimitAt(entry)}
	s.qty = 0
	if s.cash > 0 {
		s.qty = s.cash / entry
		opts = append(opts, Qty(s.qty))
	}
	if bear {
		s.state, s.stop, s.target = -1, upper, lower
		ctx.Sell(append(opts, Because(fmt.Sprintf("bearish macd divergence, stop %.4f target %.4f", upper, lower)))...)
		return nil
	}
	s.state, s.stop, s.target = 1, lower, upper
	ctx.Buy(append(opts, Because(fmt.Sprintf("bullish macd divergence, stop %.4f target %.4f", lower, upper)))...)
	return nil
}

// manage exits an open entry once the bar touches its stop or target.
func (s *MACDDivergence) manage(ctx *Context, high, low float64) bool {
	var opts []OrderOption
	if s.qty > 0 {
		opts = append(opts, Qty(s.qty))
	}
	switch {
	case s.state == 1 && (low <= s.stop || high >= s.target):
		s.state = 0
		ctx.Sell(append(opts, Because("divergence long bracket hit"))...)
		return true
	case s.state == -1 && (high >= s.stop || low <= s.target):
		s.state = 0
		ctx.Buy(append(opts, Because("divergence short bracket hit"))...)
		return true
	}
	return false
}

func pushPivot(ps []histPivot, p histPivot) []histPivot {
	ps = append(ps, p)
	if len(ps) > maxPivots {
		ps = ps[len(ps)-maxPivots:]
	}
	return ps
}

// bullishDivergence compares the newest histogram low with up to maxSearch-1 earlier ones:
// a lower price with a higher (but comparable) histogram low, against the deepest low seen.
func bullishDivergence(ps []histPivot, maxSearch int, ratio float64) bool {
	if len(ps) < 2 {
		return false
	}
	cur := ps[len(ps)-1]
	lowest := cur.hist
	for i := 2; i <= min(maxSearch, len(ps)); i++ {
		prev := ps[len(ps)-i]
		lowest = math.Min(lowest, prev.hist)
		if cur.price < prev.price && cur.hist > prev.hist && prev.hist <= lowest &&
			math.Abs(prev.hist)*ratio <= math.Abs(cur.hist) {
			return true
		}
	}
	return false
}

// bearishDivergence is the mirror of bullishDivergence at histogram highs.
func bearishDivergence(ps []histPivot, maxSearch int, ratio float64) bool {
	if len(ps) < 2 {
		return false
	}
	cur := ps[len(ps)-1]
	highest := cur.hist
	for i := 2; i <= min(maxSearch, len(ps)); i++ {
		prev := ps[len(ps)-i]
		highest = math.Max(highest, prev.hist)
		if cur.price > prev.price && cur.hist < prev.hist && prev.hist >= highest &&
			math.Abs(prev.hist)*ratio >= math.Abs(cur.hist) {
			return true
		}
	}
	return false
}
