package exchange

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/config"
)

// Candidate is a Dexscreener pair that passed the discovery filters.
// Symbol is ready to paste into exchange.symbols for the dexscreener provider.
type Candidate struct {
	Symbol       string
	Alias        string
	Chain        string
	PairAddress  string
	BaseMint     string
	QuoteMint    string
	LiquidityUSD float64
	VolumeUSD    float64
	Change24h    float64
	Score        float64
}

// Discoverer searches Dexscreener for tradable pairs. The symbol set of a running trader is
// fixed, so discovery is a one-shot lookup rather than a background refresh.
type Discoverer struct {
	log          zerolog.Logger
	client       *http.Client
	baseURL      string
	defaultChain string
	cfg          config.Discovery
}

// NewDiscoverer builds a discoverer from the dexscreener and discovery config sections.
func NewDiscoverer(log zerolog.Logger, dex config.DexScreener, cfg config.Discovery) *Discoverer {
	base := strings.TrimSuffix(dex.BaseURL, "/")
	if base == "" {
		base = defaultDexScreenerBaseURL
	}
	return &Discoverer{
		log:          log,
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      base,
		defaultChain: strings.ToLower(dex.DefaultChain),
		cfg:          cfg,
	}
}

// Discover runs every keyword search and returns the best candidates, highest score first.
func (d *Discoverer) Discover(ctx context.Context) ([]Candidate, error) {
	limit := d.cfg.MaxPairs
	if limit <= 0 {
		limit = 12
	}
	perKeyword := d.cfg.MaxPairsPerKeyword
	if perKeyword <= 0 {
		perKeyword = limit
	}
	chains := make(map[string]struct{}, len(d.cfg.Chains))
	for _, c := range d.cfg.Chains {
		chains[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	if len(chains) == 0 && d.defaultChain != "" {
		chains[d.defaultChain] = struct{}{}
	}
	keywords := d.cfg.Keywords
	if len(keywords) == 0 {
		return nil, fmt.Errorf("discovery needs at least one keyword")
	}

	seen := make(map[string]struct{})
	var out []Candidate
	var failures int
	for _, kw := range keywords {
		pairs, err := d.search(ctx, kw)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			d.log.Warn().Err(err).Str("keyword", kw).Msg("dexscreener search failed")
			continue
		}
		added := 0
		for i := range pairs {
			if added >= perKeyword {
				break
			}
			cand, ok := d.accept(&pairs[i], chains)
			if !ok {
				continue
			}
			if _, dup := seen[cand.PairAddress]; dup {
				continue
			}
			seen[cand.PairAddress] = struct{}{}
			out = append(out, cand)
			added++
		}
	}
	if failures == len(keywords) {
		return nil, fmt.Errorf("all %d dexscreener searches failed", failures)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if math.Abs(out[i].Score-out[j].Score) > 1 {
			return out[i].Score > out[j].Score
		}
		return out[i].LiquidityUSD > out[j].LiquidityUSD
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *Discoverer) accept(pair *dexPair, chains map[string]struct{}) (Candidate, bool) {
	chain := strings.ToLower(pair.ChainID)
	if len(chains) > 0 {
		if _, ok := chains[chain]; !ok {
			return Candidate{}, false
		}
	}
	if pair.PairAddress == "" {
		return Candidate{}, false
	}
	if d.cfg.MinLiquidityUSD > 0 && pair.Liquidity.USD < d.cfg.MinLiquidityUSD {
		return Candidate{}, false
	}
	volume := pair.Volume.H24
	if volume <= 0 {
		volume = pair.Volume.H6
	}
	if volume <= 0 {
		volume = pair.Volume.H1
	}
	if d.cfg.MinVolumeUSD > 0 && volume < d.cfg.MinVolumeUSD {
		return Candidate{}, false
	}

	name := firstNonEmpty(pair.BaseToken.Symbol, pair.BaseToken.Name) + firstNonEmpty(pair.QuoteToken.Symbol, pair.QuoteToken.Name)
	alias := DexAlias(name, pair.PairAddress)
	score := pair.Liquidity.USD*0.6 + volume*0.35
	if pair.PriceChange.H24 > 0 {
		score += pair.PriceChange.H24 * 1000
	}
	return Candidate{
		Symbol:       fmt.Sprintf("%s@%s/%s", name, chain, pair.PairAddress),
		Alias:        alias,
		Chain:        chain,
		PairAddress:  pair.PairAddress,
		BaseMint:     pair.BaseToken.Address,
		QuoteMint:    pair.QuoteToken.Address,
		LiquidityUSD: pair.Liquidity.USD,
		VolumeUSD:    volume,
		Change24h:    pair.PriceChange.H24,
		Score:        score,
	}, true
}

func (d *Discoverer) search(ctx context.Context, keyword string) ([]dexPair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", d.baseURL, url.QueryEscape(keyword))
	var payload dexPairsResponse
	if err := getJSON(ctx, d.client, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.all(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
