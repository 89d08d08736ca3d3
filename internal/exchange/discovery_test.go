package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/config"
)

const searchBody = `{
	"pairs": [{
		"chainId": "solana",
		"pairAddress": "ADDR1XYZ",
		"baseToken": {"address": "BASEMINT", "name": "Dog Wif Hat", "symbol": "WIF"},
		"quoteToken": {"address": "QUOTEMINT", "name": "Wrapped SOL", "symbol": "SOL"},
		"priceUsd": "0.1",
		"txns": {"m5": {"buys": 10, "sells": 2}},
		"volume": {"h24": 10000},
		"liquidity": {"usd": 15000},
		"priceChange": {"h24": 2.5}
	}, {
		"chainId": "solana",
		"pairAddress": "THIN",
		"baseToken": {"symbol": "THIN"},
		"quoteToken": {"symbol": "SOL"},
		"volume": {"h24": 10},
		"liquidity": {"usd": 100}
	}, {
		"chainId": "ethereum",
		"pairAddress": "ETHPAIR",
		"baseToken": {"symbol": "PEPE"},
		"quoteToken": {"symbol": "WETH"},
		"volume": {"h24": 900000},
		"liquidity": {"usd": 900000}
	}]
}`

func TestDiscoverFiltersAndAliases(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()
		_, _ = w.Write([]byte(searchBody))
	}))
	defer server.Close()

	disc := NewDiscoverer(zerolog.Nop(), config.DexScreener{BaseURL: server.URL, DefaultChain: "solana"}, config.Discovery{
		Keywords:        []string{"wif", "dog"},
		Chains:          []string{"solana"},
		MaxPairs:        5,
		MinLiquidityUSD: 5000,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := disc.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 2 {
		t.Fatalf("expected one search per keyword, got %v", queries)
	}
	if len(got) != 1 {
		t.Fatalf("expected the thin and off-chain pairs to be filtered, got %+v", got)
	}
	c := got[0]
	if c.Alias != "WIFSOL_DR1XYZ" {
		t.Fatalf("unexpected alias %s", c.Alias)
	}
	if c.Symbol != "WIFSOL@solana/ADDR1XYZ" {
		t.Fatalf("unexpected symbol %s", c.Symbol)
	}
	if c.BaseMint != "BASEMINT" || c.QuoteMint != "QUOTEMINT" {
		t.Fatalf("mints not carried: %+v", c)
	}

	targets, err := parseDexScreenerSymbols([]string{c.Symbol}, "")
	if err != nil || len(targets) != 1 || targets[0].Alias != c.Alias {
		t.Fatalf("candidate symbol does not round-trip through the feed parser: %+v %v", targets, err)
	}
}

func TestDiscoverAllSearchesFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	disc := NewDiscoverer(zerolog.Nop(), config.DexScreener{BaseURL: server.URL}, config.Discovery{Keywords: []string{"wif"}})
	if _, err := disc.Discover(context.Background()); err == nil {
		t.Fatalf("expected error when every search fails")
	}
}

func TestDiscoverRequiresKeywords(t *testing.T) {
	disc := NewDiscoverer(zerolog.Nop(), config.DexScreener{}, config.Discovery{})
	if _, err := disc.Discover(context.Background()); err == nil {
		t.Fatalf("expected error without keywords")
	}
}
