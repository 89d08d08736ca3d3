package indicator

import "math"

// MAKind selects a moving average flavour. Values match the integer strategy parameters.
type MAKind int

const (
	KindSMA MAKind = iota
	KindEMA
	KindWMA
	KindRMA
)

// MovingAverage returns the series of the requested kind. Unknown kinds fall back to EMA.
func MovingAverage(kind MAKind, values []float64, n int) []float64 {
	switch kind {
	case KindSMA:
		return SMASeries(values, n)
	case KindWMA:
		return WMA(values, n)
	case KindRMA:
		return RMA(values, n)
	}
	return EMA(values, n)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMASeries is the rolling simple average. Entries before n-1 are NaN.
func SMASeries(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// WMA weights the window linearly, newest heaviest.
func WMA(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	denom := float64(n*(n+1)) / 2
	for i := n - 1; i < len(values); i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += values[i-n+1+j] * float64(j+1)
		}
		out[i] = sum / denom
	}
	return out
}

// RMA is Wilder's smoothing (alpha 1/n) seeded with the SMA of the first n values.
func RMA(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) < n {
		return out
	}
	seed := 0.0
	for _, v := range values[:n] {
		seed += v
	}
	prev := seed / float64(n)
	out[n-1] = prev
	for i := n; i < len(values); i++ {
		prev += (values[i] - prev) / float64(n)
		out[i] = prev
	}
	return out
}

// emaTail runs EMA over the values after any leading NaNs.
func emaTail(values []float64, n int) []float64 {
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	out := nanSeries(len(values))
	copy(out[start:], EMA(values[start:], n))
	return out
}

// MACDSeries holds the three MACD lines, aligned with the input closes.
type MACDSeries struct {
	MACD   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes EMA(fast)-EMA(slow), its EMA signal line and the histogram between them.
func MACD(closes []float64, fast, slow, signal int) MACDSeries {
	f, s := EMA(closes, fast), EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = f[i] - s[i]
	}
	sig := emaTail(line, signal)
	hist := make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - sig[i]
	}
	return MACDSeries{MACD: line, Signal: sig, Hist: hist}
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first bar uses high-low.
func TrueRange(high, low, closes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
		}
		out[i] = tr
	}
	return out
}

// ATR is the RMA of the true range.
func ATR(high, low, closes []float64, n int) []float64 {
	return RMA(TrueRange(high, low, closes), n)
}

// PivotHigh reports whether values[i] is strictly above every non-NaN value up to left
// bars before it and right bars after it. The right side must be fully known.
func PivotHigh(values []float64, i, left, right int) bool {
	return pivot(values, i, left, right, func(v, p float64) bool { return v >= p })
}

// PivotLow is the mirror of PivotHigh.
func PivotLow(values []float64, i, left, right int) bool {
	return pivot(values, i, left, right, func(v, p float64) bool { return v <= p })
}

func pivot(values []float64, i, left, right int, breaks func(v, p float64) bool) bool {
	if i < 0 || i+right >= len(values) || math.IsNaN(values[i]) {
		return false
	}
	p := values[i]
	for k := i - left; k <= i+right; k++ {
		if k < 0 || k == i || math.IsNaN(values[k]) {
			continue
		}
		if breaks(values[k], p) {
			return false
		}
	}
	return true
}
