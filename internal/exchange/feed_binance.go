package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"livetrader-go/internal/signal"
)

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Tick) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	// Streams are keyed by lowercase pair; ticks carry the configured spelling.
	names := make(map[string]string, len(symbols))
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		key := strings.ToUpper(strings.ReplaceAll(sym, "/", ""))
		names[key] = sym
		streams[i] = strings.ToLower(key) + "@trade"
	}
	url := fmt.Sprintf("%s?streams=%s", f.binanceURL, strings.Join(streams, "/"))

	return f.reconnect(ctx, func(ctx context.Context) error {
		return f.consumeBinanceStream(ctx, url, names, out)
	})
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, names map[string]string, out chan<- signal.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	closeOnCancel(ctx, conn)

	f.log.Info().Str("provider", ProviderBinance).Int("symbols", len(names)).Msg("connected market data feed")
	f.setStatus(true, nil)
	keepAlive(ctx, conn, f)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}

		key := parseBinanceSymbol(env.Stream)
		symbol, ok := names[key]
		if !ok {
			symbol = key
		}
		px, err := strconv.ParseFloat(env.Data.Price, 64)
		if err != nil {
			f.log.Warn().Err(err).Msg("invalid price from binance")
			continue
		}
		qty, err := strconv.ParseFloat(env.Data.Quantity, 64)
		if err != nil {
			f.log.Warn().Err(err).Msg("invalid quantity from binance")
			continue
		}
		side := 1
		if env.Data.IsBuyerMaker {
			side = -1
		}
		tick := signal.Tick{Symbol: symbol, Price: px, Size: qty, Side: side, Ts: time.UnixMilli(env.Data.TradeTime)}
		if err := emit(ctx, out, tick); err != nil {
			return err
		}
	}
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}

const (
	pongWait   = 30 * time.Second
	pingPeriod = 15 * time.Second
)

// keepAlive arms read deadlines refreshed by pongs and pings the server until ctx ends.
func keepAlive(ctx context.Context, conn *websocket.Conn, f *Feed) {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Debug().Err(err).Str("provider", f.provider).Msg("ping failed")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// closeOnCancel unblocks a pending read when ctx ends.
func closeOnCancel(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
}
