package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/rs/zerolog"

	"livetrader-go/internal/signal"
)

// AlpacaStream holds the market data endpoint override and credentials. An empty URL
// lets the SDK pick the crypto (us) or equity (iex) stream.
type AlpacaStream struct {
	URL    string
	Key    string
	Secret string
}

// alpacaSession is the part of an SDK stream client the feed drives.
type alpacaSession interface {
	Connect(ctx context.Context) error
	Terminated() <-chan error
}

// alpacaDialer builds a session whose trades are passed to handle.
type alpacaDialer func(cfg AlpacaStream, crypto bool, symbols []string, handle func(signal.Tick), log zerolog.Logger) alpacaSession

var errAlpacaTerminated = errors.New("alpaca stream terminated")

// alpacaCrypto reports whether every symbol is a BASE/QUOTE pair.
func alpacaCrypto(symbols []string) bool {
	for _, s := range symbols {
		if !strings.Contains(s, "/") {
			return false
		}
	}
	return true
}

func (f *Feed) runAlpaca(ctx context.Context, out chan<- signal.Tick) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("alpaca feed requires at least one symbol")
	}
	crypto := alpacaCrypto(symbols)
	return f.reconnect(ctx, func(ctx context.Context) error {
		return f.consumeAlpacaStream(ctx, crypto, symbols, out)
	})
}

func (f *Feed) consumeAlpacaStream(ctx context.Context, crypto bool, symbols []string, out chan<- signal.Tick) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wanted := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		wanted[s] = struct{}{}
	}
	trades := make(chan signal.Tick, 64)
	handle := func(tk signal.Tick) {
		if _, ok := wanted[tk.Symbol]; !ok {
			return
		}
		if tk.Price <= 0 {
			f.log.Debug().Str("sym", tk.Symbol).Msg("alpaca trade without price")
			return
		}
		select {
		case trades <- tk:
		case <-ctx.Done():
		}
	}

	session := f.alpacaDial(f.alpaca, crypto, symbols, handle, f.log)
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("alpaca stream connect: %w", err)
	}
	f.log.Info().Str("provider", ProviderAlpaca).Bool("crypto", crypto).Int("symbols", len(symbols)).Msg("connected market data feed")
	f.setStatus(true, nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-session.Terminated():
			if err == nil {
				err = errAlpacaTerminated
			}
			return err
		case tk := <-trades:
			if err := emit(ctx, out, tk); err != nil {
				return err
			}
		}
	}
}

// dialAlpacaSDK subscribes to trades on the SDK's crypto or stocks stream client.
func dialAlpacaSDK(cfg AlpacaStream, crypto bool, symbols []string, handle func(signal.Tick), log zerolog.Logger) alpacaSession {
	common := []stream.Option{
		stream.WithCredentials(cfg.Key, cfg.Secret),
		stream.WithLogger(streamLogger{log: log.With().Str("provider", ProviderAlpaca).Logger()}),
	}
	if cfg.URL != "" {
		common = append(common, stream.WithBaseURL(cfg.URL))
	}
	if crypto {
		opts := []stream.CryptoOption{stream.WithCryptoTrades(func(t stream.CryptoTrade) { handle(cryptoTick(t)) }, symbols...)}
		for _, o := range common {
			opts = append(opts, o)
		}
		return stream.NewCryptoClient(marketdata.US, opts...)
	}
	opts := []stream.StockOption{stream.WithTrades(func(t stream.Trade) { handle(stockTick(t)) }, symbols...)}
	for _, o := range common {
		opts = append(opts, o)
	}
	return stream.NewStocksClient(marketdata.IEX, opts...)
}

func cryptoTick(t stream.CryptoTrade) signal.Tick {
	side := 0
	switch t.TakerSide {
	case "B":
		side = 1
	case "S":
		side = -1
	}
	return signal.Tick{Symbol: t.Symbol, Price: t.Price, Size: t.Size, Side: side, Ts: tradeTime(t.Timestamp)}
}

func stockTick(t stream.Trade) signal.Tick {
	return signal.Tick{Symbol: t.Symbol, Price: t.Price, Size: float64(t.Size), Ts: tradeTime(t.Timestamp)}
}

func tradeTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

// streamLogger routes SDK stream logs through zerolog.
type streamLogger struct{ log zerolog.Logger }

func (l streamLogger) Infof(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l streamLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l streamLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
