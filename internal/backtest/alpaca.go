package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"livetrader-go/internal/signal"
)

// AlpacaBars loads historical bars from Alpaca market data: crypto pairs (BASE/QUOTE)
// from the crypto endpoint, everything else from the IEX stock feed.
type AlpacaBars struct {
	client *marketdata.Client
}

// NewAlpacaBars builds a source. Crypto history needs no keys; stocks do.
func NewAlpacaBars(key, secret, baseURL string) *AlpacaBars {
	return &AlpacaBars{client: marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    key,
		APISecret: secret,
		BaseURL:   baseURL,
	})}
}

// Bars fetches [start, end) at timeframe tf. The SDK pages internally and takes no
// context, so ctx is only checked before the request.
func (a *AlpacaBars) Bars(ctx context.Context, symbol string, tf time.Duration, start, end time.Time) ([]signal.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := TimeFrame(tf)
	if err != nil {
		return nil, err
	}
	if isCrypto(symbol) {
		raw, err := a.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: frame,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("alpaca crypto bars: %w", err)
		}
		out := make([]signal.Bar, 0, len(raw))
		for _, b := range raw {
			out = append(out, cryptoBar(symbol, tf, b))
		}
		return out, nil
	}
	raw, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: frame,
		Start:     start,
		End:       end,
		Feed:      marketdata.IEX,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca stock bars: %w", err)
	}
	out := make([]signal.Bar, 0, len(raw))
	for _, b := range raw {
		out = append(out, stockBar(symbol, tf, b))
	}
	return out, nil
}

// TimeFrame maps a bar duration onto Alpaca's minute, hour and day units.
func TimeFrame(tf time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case tf <= 0:
	case tf%(24*time.Hour) == 0:
		return marketdata.NewTimeFrame(int(tf/(24*time.Hour)), marketdata.Day), nil
	case tf%time.Hour == 0 && tf < 24*time.Hour:
		return marketdata.NewTimeFrame(int(tf/time.Hour), marketdata.Hour), nil
	case tf%time.Minute == 0 && tf < time.Hour:
		return marketdata.NewTimeFrame(int(tf/time.Minute), marketdata.Min), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported bar timeframe %s: use whole minutes below 1h, whole hours below 24h, or whole days", tf)
}

func cryptoBar(symbol string, tf time.Duration, b marketdata.CryptoBar) signal.Bar {
	return signal.Bar{
		Symbol: symbol,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
		Start:  b.Timestamp,
		End:    b.Timestamp.Add(tf),
		Closed: true,
	}
}

func stockBar(symbol string, tf time.Duration, b marketdata.Bar) signal.Bar {
	return signal.Bar{
		Symbol: symbol,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: float64(b.Volume),
		Start:  b.Timestamp,
		End:    b.Timestamp.Add(tf),
		Closed: true,
	}
}
