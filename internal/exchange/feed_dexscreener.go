package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"livetrader-go/internal/signal"
)

// dexTarget is one polled pair. Alias is the symbol ticks carry.
type dexTarget struct {
	Alias   string
	Chain   string
	Address string
}

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
	Pair  *dexPair  `json:"pair"`
}

func (r *dexPairsResponse) all() []dexPair {
	if len(r.Pairs) > 0 {
		return r.Pairs
	}
	if r.Pair != nil {
		return []dexPair{*r.Pair}
	}
	return nil
}

type dexPair struct {
	ChainID     string       `json:"chainId"`
	PairAddress string       `json:"pairAddress"`
	BaseToken   dexToken     `json:"baseToken"`
	QuoteToken  dexToken     `json:"quoteToken"`
	PriceUsd    string       `json:"priceUsd"`
	PriceNative string       `json:"priceNative"`
	Txns        dexWindows   `json:"txns"`
	Volume      dexVolumes   `json:"volume"`
	Liquidity   dexLiquidity `json:"liquidity"`
	PriceChange dexVolumes   `json:"priceChange"`
}

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexTxn struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

func (t dexTxn) total() int { return t.Buys + t.Sells }

type dexWindows struct {
	M5  dexTxn `json:"m5"`
	H1  dexTxn `json:"h1"`
	H6  dexTxn `json:"h6"`
	H24 dexTxn `json:"h24"`
}

type dexVolumes struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type dexLiquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// runDexScreener polls each configured pair and synthesizes one tick per pair per poll.
// A poll where every pair fails counts as the feed being down.
func (f *Feed) runDexScreener(ctx context.Context, out chan<- signal.Tick) error {
	targets, err := parseDexScreenerSymbols(f.snapshotSymbols(), f.dexChain)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("dexscreener feed requires at least one pair")
	}
	client := &http.Client{Timeout: 10 * time.Second}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()
	for {
		if err := f.pollDexScreener(ctx, client, targets, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.setStatus(false, err)
			f.log.Warn().Err(err).Str("provider", ProviderDexScreener).Msg("dexscreener poll failed")
		} else {
			f.setStatus(true, nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *Feed) pollDexScreener(ctx context.Context, client *http.Client, targets []dexTarget, out chan<- signal.Tick) error {
	var lastErr error
	delivered := 0
	for _, target := range targets {
		tick, err := f.fetchDexScreener(ctx, client, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			f.log.Debug().Err(err).Str("sym", target.Alias).Msg("dexscreener fetch failed")
			continue
		}
		if err := emit(ctx, out, tick); err != nil {
			return err
		}
		delivered++
	}
	if delivered == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (f *Feed) fetchDexScreener(ctx context.Context, client *http.Client, target dexTarget) (signal.Tick, error) {
	url := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", f.dexBaseURL, target.Chain, target.Address)
	var payload dexPairsResponse
	if err := getJSON(ctx, client, url, &payload); err != nil {
		return signal.Tick{}, err
	}
	pairs := payload.all()
	if len(pairs) == 0 {
		return signal.Tick{}, fmt.Errorf("no pair data returned for %s", target.Alias)
	}
	pair := &pairs[0]
	price, err := dexPrice(pair)
	if err != nil {
		return signal.Tick{}, err
	}
	qty := dexTradeSize(pair, price)
	if qty <= 0 {
		qty = math.Max(1e-6, 10/price)
	}

	f.mu.Lock()
	prev := f.lastPrices[target.Alias]
	f.lastPrices[target.Alias] = price
	f.mu.Unlock()

	return signal.Tick{
		Symbol: target.Alias,
		Price:  price,
		Size:   qty,
		Side:   dexAggressor(pair, prev, price),
		Ts:     time.Now().UTC(),
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "livetrader-go/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// dexPrice prefers the USD quote and falls back to the native quote.
func dexPrice(pair *dexPair) (float64, error) {
	for _, raw := range []string{pair.PriceUsd, pair.PriceNative} {
		if raw == "" {
			continue
		}
		if px, err := strconv.ParseFloat(raw, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	return 0, fmt.Errorf("pair %s missing price", pair.PairAddress)
}

// dexAggressor reads the 5m buy/sell balance, or the price direction when there were no trades.
func dexAggressor(pair *dexPair, prev, price float64) int {
	if m5 := pair.Txns.M5; m5.total() > 0 {
		if m5.Buys >= m5.Sells {
			return 1
		}
		return -1
	}
	if prev > 0 && price < prev {
		return -1
	}
	return 1
}

// dexTradeSize estimates an average trade size in base units from the shortest window with trades.
func dexTradeSize(pair *dexPair, price float64) float64 {
	if price <= 0 {
		return 0
	}
	windows := []struct {
		volume float64
		txns   dexTxn
	}{
		{pair.Volume.M5, pair.Txns.M5},
		{pair.Volume.H1, pair.Txns.H1},
		{pair.Volume.H6, pair.Txns.H6},
		{pair.Volume.H24, pair.Txns.H24},
	}
	for _, w := range windows {
		if n := w.txns.total(); w.volume > 0 && n > 0 {
			return w.volume / float64(n) / price
		}
	}
	if pair.Liquidity.USD > 0 {
		return pair.Liquidity.USD * 0.0005 / price
	}
	return 0
}

// parseDexScreenerSymbols reads "NAME@chain/address" entries. Chain may be empty to use the default.
func parseDexScreenerSymbols(symbols []string, defaultChain string) ([]dexTarget, error) {
	defaultChain = strings.ToLower(strings.TrimSpace(defaultChain))
	targets := make([]dexTarget, 0, len(symbols))
	for _, raw := range symbols {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, where := raw, raw
		if at := strings.Index(raw, "@"); at >= 0 {
			name, where = raw[:at], raw[at+1:]
		}
		chain, address := defaultChain, where
		if slash := strings.Index(where, "/"); slash >= 0 {
			if c := strings.TrimSpace(where[:slash]); c != "" {
				chain = strings.ToLower(c)
			}
			address = where[slash+1:]
		}
		address = strings.TrimSpace(address)
		if chain == "" || address == "" {
			return nil, fmt.Errorf("dexscreener symbol %q missing chain or address", raw)
		}
		targets = append(targets, dexTarget{Alias: DexAlias(name, address), Chain: chain, Address: address})
	}
	return targets, nil
}

// DexAlias builds the tick symbol for a pair: the upper-cased alphanumeric name plus the
// last six alphanumerics of the pair address.
func DexAlias(name, address string) string {
	base := alnumUpper(name)
	suffix := alnumUpper(address)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	switch {
	case base == "" && suffix == "":
		return "PAIR"
	case base == "":
		return "PAIR_" + suffix
	case suffix == "":
		return base
	}
	return base + "_" + suffix
}

func alnumUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 32)
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}
