package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"livetrader-go/internal/broker/alpaca"
	"livetrader-go/internal/config"
	"livetrader-go/internal/dex/solana"
	"livetrader-go/internal/exchange"
	"livetrader-go/internal/execution"
	"livetrader-go/internal/live"
	"livetrader-go/internal/paper"
	"livetrader-go/internal/risk"
	"livetrader-go/internal/util"
)

func loadConfig(flags *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(flags.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.App.LogLevel = flags.logLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config, flags *rootFlags) zerolog.Logger {
	return util.NewLoggerTo(w, cfg.App.LogLevel, flags.console).With().Str("app", cfg.App.Name).Logger()
}

// buildBroker returns the configured broker and a cleanup for anything it opened.
func buildBroker(cfg *config.Config, log zerolog.Logger) (execution.Broker, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Broker.Kind {
	case config.BrokerDryRun, "":
		return execution.NewDryRun(log), noop, nil

	case config.BrokerPaper:
		account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol)
		ledger := paper.NewLedger(1000)
		recs := []paper.FillRecorder{ledger}
		var jsonl *paper.JSONLRecorder
		if cfg.Paper.FillsPath != "" {
			var err error
			if jsonl, err = paper.NewJSONLRecorder(cfg.Paper.FillsPath); err != nil {
				return nil, nil, err
			}
			recs = append(recs, jsonl)
		}
		closer := func() error {
			for _, a := range ledger.Summary() {
				log.Info().
					Str("sym", a.Symbol).
					Int("fills", a.Fills).
					Float64("bought", a.Bought).
					Float64("sold", a.Sold).
					Float64("net_cash", a.NetCash).
					Msg("paper session")
			}
			log.Info().Float64("cash", account.AvailableCash()).Float64("realized", account.RealizedPnL()).Msg("paper account")
			if jsonl != nil {
				return jsonl.Close()
			}
			return nil
		}
		return paper.NewBroker(account, log, paper.WithSlippageBps(cfg.Paper.SlippageBps), paper.WithRecorders(recs...)), closer, nil

	case config.BrokerAlpaca:
		base := cfg.Broker.Alpaca.BaseURL
		if base == "" {
			base = alpaca.PaperURL
			if cfg.Broker.Alpaca.Live {
				base = alpaca.LiveURL
			}
		}
		return alpaca.NewClient(base, cfg.Broker.Alpaca.Key, cfg.Broker.Alpaca.Secret, cfg.Exchange.Symbols), noop, nil

	case config.BrokerJupiter:
		key, err := solana.ParsePrivateKey(cfg.Wallet.PrivateKeyBase58)
		if err != nil {
			return nil, nil, err
		}
		client := solana.NewJupiterClient(cfg.Dex.RpcURL, cfg.Dex.JupiterBase, key, cfg.Dex.Commitment)
		markets := make(map[string]solana.Market, len(cfg.Dex.Markets))
		for sym, m := range cfg.Dex.Markets {
			markets[sym] = solana.Market{BaseMint: m.BaseMint, QuoteMint: m.QuoteMint, BaseDecimals: m.BaseDecimals, QuoteDecimals: m.QuoteDecimals}
		}
		return solana.NewBroker(client, markets, cfg.Dex.SlippageBps, log), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown broker kind %q", cfg.Broker.Kind)
}

func feedOptions(cfg *config.Config) []exchange.Option {
	ex := cfg.Exchange
	opts := []exchange.Option{
		exchange.WithDexScreenerConfig(ex.DexScreener.BaseURL, ex.DexScreener.DefaultChain),
		exchange.WithPollInterval(time.Duration(ex.DexScreener.PollInterval) * time.Millisecond),
	}
	switch ex.Name {
	case exchange.ProviderBinance:
		opts = append(opts, exchange.WithBinanceURL(ex.StreamURL))
	case exchange.ProviderAlpaca:
		opts = append(opts, exchange.WithAlpacaStream(exchange.AlpacaStream{
			URL:    ex.StreamURL,
			Key:    cfg.Broker.Alpaca.Key,
			Secret: cfg.Broker.Alpaca.Secret,
		}))
	}
	return opts
}

func traderSettings(cfg *config.Config, symbols []string) live.Settings {
	return live.Settings{
		Symbols:          symbols,
		Strategy:         cfg.Strategy.Name,
		Params:           cfg.Strategy.Params,
		Qty:              cfg.Strategy.Qty,
		Interval:         cfg.Trader.Interval,
		TickThreshold:    cfg.Trader.TickThreshold,
		MinOrderInterval: cfg.Trader.MinOrderInterval,
		MaxPending:       cfg.Trader.MaxPending,
		QueueSize:        cfg.Trader.QueueSize,
		StatusInterval:   cfg.Trader.StatusInterval,
		PositionAware:    cfg.Trader.PositionAware,
		Risk:             riskLimits(cfg.Risk),
	}
}

// riskLimits returns nil when every limit is disabled so the resolver skips the check.
func riskLimits(r config.Risk) *risk.Limits {
	if r.MaxNotionalPerTrade <= 0 && r.MaxPositionQty <= 0 {
		return nil
	}
	return &risk.Limits{MaxNotionalPerTrade: r.MaxNotionalPerTrade, MaxPositionQty: r.MaxPositionQty}
}
