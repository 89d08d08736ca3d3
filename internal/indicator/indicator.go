// Package indicator computes technical indicators over closed-bar price series.
package indicator

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// SMA returns the simple moving average of the last n values, or NaN when there are fewer than n.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// EMA returns the exponential moving average series seeded with the SMA of the first n values.
// Entries before the seed are NaN.
func EMA(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= 0 || len(values) < n {
		return out
	}
	k := 2.0 / float64(n+1)
	seed := 0.0
	for _, v := range values[:n] {
		seed += v
	}
	prev := seed / float64(n)
	out[n-1] = prev
	for i := n; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RSI returns Wilder's relative strength index series. Entries before index n are NaN.
func RSI(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if n < 2 || len(closes) <= n {
		return out
	}

	gain, loss := 0.0, 0.0
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgG := gain / float64(n)
	avgL := loss / float64(n)
	out[n] = rsiFrom(avgG, avgL)

	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d >= 0 {
			g = d
		} else {
			l = -d
		}
		avgG = (avgG*float64(n-1) + g) / float64(n)
		avgL = (avgL*float64(n-1) + l) / float64(n)
		out[i] = rsiFrom(avgG, avgL)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Bands holds a Bollinger band reading.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes bands over the last n values using k population standard deviations.
func Bollinger(values []float64, n int, k float64) (Bands, error) {
	if n <= 1 || len(values) < n {
		return Bands{}, fmt.Errorf("bollinger needs %d values, have %d", n, len(values))
	}
	window := stats.Float64Data(values[len(values)-n:])
	mean, err := stats.Mean(window)
	if err != nil {
		return Bands{}, fmt.Errorf("mean: %w", err)
	}
	sd, err := stats.StandardDeviationPopulation(window)
	if err != nil {
		return Bands{}, fmt.Errorf("standard deviation: %w", err)
	}
	return Bands{Upper: mean + k*sd, Middle: mean, Lower: mean - k*sd}, nil
}

// Last returns the final element of a series, or NaN when empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}
