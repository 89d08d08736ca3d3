package backtest

import (
	"math"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/signal"
)

// Trade is one closed long round trip. A partial exit closes a trade for the quantity sold.
type Trade struct {
	Symbol     string
	Qty        float64
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	Return     float64
}

// Stats summarises an equity curve and its trades. Ratios are fractions, not percent.
type Stats struct {
	StartEquity   float64
	FinalEquity   float64
	PeakEquity    float64
	TotalReturn   float64
	BuyHoldReturn float64
	Volatility    float64
	Sharpe        float64
	MaxDrawdown   float64
	MaxDrawdownAt time.Time
	Trades        int
	WinRate       float64
	// ProfitFactor is gross profit over gross loss; +Inf when nothing lost.
	ProfitFactor float64
	BestTrade    float64
	WorstTrade   float64
	AvgTrade     float64
}

// Compute derives Stats from the equity curve (first point is the starting bankroll).
// Sharpe is the mean per-bar return over its sample deviation, scaled by sqrt(periodsPerYear),
// with no risk-free rate.
func Compute(equity []EquityPoint, trades []Trade, periodsPerYear float64) Stats {
	var s Stats
	if len(equity) == 0 {
		return s
	}
	s.StartEquity = equity[0].Equity
	s.FinalEquity = equity[len(equity)-1].Equity
	if s.StartEquity > 0 {
		s.TotalReturn = (s.FinalEquity - s.StartEquity) / s.StartEquity
	}
	s.PeakEquity, s.MaxDrawdown, s.MaxDrawdownAt = maxDrawdown(equity)

	rets := Returns(equity)
	if len(rets) > 1 {
		mean, _ := stats.Mean(rets)
		sd, _ := stats.StandardDeviationSample(rets)
		if sd > 0 && periodsPerYear > 0 {
			scale := math.Sqrt(periodsPerYear)
			s.Volatility = sd * scale
			s.Sharpe = mean / sd * scale
		}
	}

	s.Trades = len(trades)
	if len(trades) == 0 {
		return s
	}
	var wins int
	var gain, loss float64
	tr := make(stats.Float64Data, 0, len(trades))
	for _, t := range trades {
		tr = append(tr, t.Return)
		if t.PnL > 0 {
			wins++
			gain += t.PnL
		} else {
			loss -= t.PnL
		}
	}
	s.WinRate = float64(wins) / float64(len(trades))
	switch {
	case loss > 0:
		s.ProfitFactor = gain / loss
	case gain > 0:
		s.ProfitFactor = math.Inf(1)
	}
	s.BestTrade, _ = stats.Max(tr)
	s.WorstTrade, _ = stats.Min(tr)
	s.AvgTrade, _ = stats.Mean(tr)
	return s
}

// Returns is the simple per-point return series of an equity curve.
func Returns(equity []EquityPoint) stats.Float64Data {
	if len(equity) < 2 {
		return nil
	}
	out := make(stats.Float64Data, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out
}

// maxDrawdown walks the curve keeping the running peak.
func maxDrawdown(equity []EquityPoint) (peak, dd float64, at time.Time) {
	peak = equity[0].Equity
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if d := (peak - p.Equity) / peak; d > dd {
			dd, at = d, p.Time
		}
	}
	return peak, dd, at
}

// PairTrades matches sells against the running long built from buys. The entry price of a
// trade is the average cost of the position it closes from.
func PairTrades(fills []execution.Fill) []Trade {
	type open struct {
		qty, cost float64
		since     time.Time
	}
	books := make(map[string]*open)
	var trades []Trade
	for _, f := range fills {
		if f.Qty <= 0 || f.Price <= 0 {
			continue
		}
		o := books[f.Symbol]
		if o == nil {
			o = &open{}
			books[f.Symbol] = o
		}
		switch f.Side {
		case signal.Buy:
			if o.qty <= 0 {
				o.since = f.Ts
			}
			o.qty += f.Qty
			o.cost += f.Qty * f.Price
		case signal.Sell:
			if o.qty <= 0 {
				continue
			}
			qty := math.Min(f.Qty, o.qty)
			avg := o.cost / o.qty
			trades = append(trades, Trade{
				Symbol:     f.Symbol,
				Qty:        qty,
				EntryTime:  o.since,
				ExitTime:   f.Ts,
				EntryPrice: avg,
				ExitPrice:  f.Price,
				PnL:        (f.Price - avg) * qty,
				Return:     f.Price/avg - 1,
			})
			o.cost -= avg * qty
			o.qty -= qty
			if o.qty <= 1e-9 {
				o.qty, o.cost = 0, 0
			}
		}
	}
	return trades
}

// PeriodsPerYear counts bars of tf in a trading year: round the clock for crypto, 252
// sessions of 6.5 hours for equities.
func PeriodsPerYear(tf time.Duration, crypto bool) float64 {
	if tf <= 0 {
		return 0
	}
	day := 24 * time.Hour
	if tf >= day {
		days := 252.0
		if crypto {
			days = 365
		}
		return days / (float64(tf) / float64(day))
	}
	if crypto {
		return float64(365*day) / float64(tf)
	}
	session := 6*time.Hour + 30*time.Minute
	return 252 * float64(session) / float64(tf)
}

func isCrypto(symbol string) bool { return strings.Contains(symbol, "/") }
