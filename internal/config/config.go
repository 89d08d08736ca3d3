// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Exchange selects the market data provider and the symbols to trade.
type Exchange struct {
	Name        string      `yaml:"name"` // stub|binance|alpaca|dexscreener
	Symbols     []string    `yaml:"symbols"`
	StreamURL   string      `yaml:"stream_url"`
	DexScreener DexScreener `yaml:"dexscreener"`
	Discovery   Discovery   `yaml:"discovery"`
}

// DexScreener configures the HTTP polling feed targeting Dexscreener pairs.
type DexScreener struct {
	BaseURL      string `yaml:"base_url"`
	DefaultChain string `yaml:"default_chain"`
	PollInterval int    `yaml:"poll_interval_ms"`
}

// Discovery configures the one-shot pair search behind `livetrader discover`.
type Discovery struct {
	Keywords           []string `yaml:"keywords"`
	Chains             []string `yaml:"chains"`
	MaxPairs           int      `yaml:"max_pairs"`
	MinLiquidityUSD    float64  `yaml:"min_liquidity_usd"`
	MinVolumeUSD       float64  `yaml:"min_volume_usd"`
	MaxPairsPerKeyword int      `yaml:"max_pairs_per_keyword"`
}

// Broker kinds.
const (
	BrokerDryRun  = "dryrun"
	BrokerPaper   = "paper"
	BrokerAlpaca  = "alpaca"
	BrokerJupiter = "jupiter"
)

// Broker selects where orders go.
type Broker struct {
	Kind   string `yaml:"kind"`
	Alpaca Alpaca `yaml:"alpaca"`
}

// Alpaca holds trading API credentials. Keys normally come from ALPACA_API_KEY / ALPACA_SECRET_KEY.
type Alpaca struct {
	BaseURL string `yaml:"base_url"`
	Live    bool   `yaml:"live"`
	Key     string `yaml:"key"`
	Secret  string `yaml:"secret"`
}

// Strategy names the registered strategy, its parameter overrides, and the default order size.
type Strategy struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
	Qty    float64            `yaml:"qty"`
}

// Trader tunes the per-symbol workers.
type Trader struct {
	Interval         time.Duration `yaml:"interval"`
	TickThreshold    int           `yaml:"tick_threshold"`
	MinOrderInterval time.Duration `yaml:"min_order_interval"`
	MaxPending       int           `yaml:"max_pending"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	QueueSize        int           `yaml:"queue_size"`
	PositionAware    bool          `yaml:"position_aware"`
}

// Risk encodes guard-rails applied before an order leaves the process. Zero disables a limit.
type Risk struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MaxPositionQty      float64 `yaml:"max_position_qty"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol"`
	SlippageBps          float64 `yaml:"slippage_bps"`
	FillsPath            string  `yaml:"fills_path"`
}

// Dex defines network endpoints and per-symbol mints for Jupiter execution.
type Dex struct {
	RpcURL      string               `yaml:"rpc_url"`
	Commitment  string               `yaml:"commitment"`   // processed|confirmed|finalized
	JupiterBase string               `yaml:"jupiter_base"` // https://quote-api.jup.ag
	SlippageBps int                  `yaml:"slippage_bps"`
	Markets     map[string]DexMarket `yaml:"markets"`
}

// DexMarket maps one tick symbol to the swap legs.
type DexMarket struct {
	BaseMint      string `yaml:"base_mint"`
	QuoteMint     string `yaml:"quote_mint"`
	BaseDecimals  int32  `yaml:"base_decimals"`
	QuoteDecimals int32  `yaml:"quote_decimals"`
}

// Wallet stores env-backed signing material. Prefer SOLANA_PRIVATE_KEY_BASE58 over YAML.
type Wallet struct {
	PrivateKeyBase58 string `yaml:"private_key_base58"`
}

// Web configures the display endpoint. An empty Addr disables it.
type Web struct {
	Addr string `yaml:"addr"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Exchange Exchange `yaml:"exchange"`
	Broker   Broker   `yaml:"broker"`
	Strategy Strategy `yaml:"strategy"`
	Trader   Trader   `yaml:"trader"`
	Risk     Risk     `yaml:"risk"`
	Paper    Paper    `yaml:"paper"`
	Dex      Dex      `yaml:"dex"`
	Wallet   Wallet   `yaml:"wallet"`
	Web      Web      `yaml:"web"`
}

// Default returns the settings used for anything the YAML leaves out.
func Default() Config {
	return Config{
		App:      App{Name: "livetrader", Env: "dev", LogLevel: "info"},
		Exchange: Exchange{Name: "stub", DexScreener: DexScreener{BaseURL: "https://api.dexscreener.com", DefaultChain: "solana", PollInterval: 2000}},
		Broker:   Broker{Kind: BrokerDryRun},
		Strategy: Strategy{Name: "rsi_ema", Qty: 1},
		Trader: Trader{
			Interval:         time.Minute,
			MinOrderInterval: 5 * time.Second,
			MaxPending:       64,
			StatusInterval:   5 * time.Second,
			QueueSize:        1024,
			PositionAware:    true,
		},
		Paper: Paper{StartingCash: 10000},
		Dex:   Dex{Commitment: "confirmed", JupiterBase: "https://quote-api.jup.ag", SlippageBps: 50},
	}
}

// Load reads a YAML file over Default, then overlays secrets from the environment.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyEnv()
	return &config, nil
}

// LoadDotEnv loads .env style files into the process environment, skipping missing ones.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides credentials with ALPACA_API_KEY, ALPACA_SECRET_KEY and SOLANA_PRIVATE_KEY_BASE58.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Broker.Alpaca.Key = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.Broker.Alpaca.Secret = v
	}
	if v := os.Getenv("SOLANA_PRIVATE_KEY_BASE58"); v != "" {
		c.Wallet.PrivateKeyBase58 = v
	}
}

// Validate reports every setting that would stop the trader from starting.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Exchange.Symbols) == 0 {
		errs = append(errs, errors.New("exchange.symbols is empty"))
	}
	switch strings.ToLower(c.Exchange.Name) {
	case "stub", "binance", "alpaca", "dexscreener":
	default:
		errs = append(errs, fmt.Errorf("exchange.name %q is not a known provider", c.Exchange.Name))
	}
	if c.Trader.Interval <= 0 {
		errs = append(errs, errors.New("trader.interval must be positive"))
	}
	if c.Trader.MinOrderInterval < 0 {
		errs = append(errs, errors.New("trader.min_order_interval must not be negative"))
	}
	if c.Trader.TickThreshold < 0 {
		errs = append(errs, errors.New("trader.tick_threshold must not be negative"))
	}
	if c.Strategy.Name == "" {
		errs = append(errs, errors.New("strategy.name is empty"))
	}
	if c.Strategy.Qty <= 0 {
		errs = append(errs, errors.New("strategy.qty must be positive"))
	}
	switch c.Broker.Kind {
	case BrokerDryRun:
	case BrokerPaper:
		if c.Paper.StartingCash <= 0 {
			errs = append(errs, errors.New("paper.starting_cash must be positive"))
		}
	case BrokerAlpaca:
		if c.Broker.Alpaca.Key == "" || c.Broker.Alpaca.Secret == "" {
			errs = append(errs, errors.New("alpaca broker needs ALPACA_API_KEY and ALPACA_SECRET_KEY"))
		}
	case BrokerJupiter:
		if c.Wallet.PrivateKeyBase58 == "" {
			errs = append(errs, errors.New("jupiter broker needs SOLANA_PRIVATE_KEY_BASE58"))
		}
		if c.Dex.RpcURL == "" {
			errs = append(errs, errors.New("dex.rpc_url is empty"))
		}
		if len(c.Dex.Markets) == 0 {
			errs = append(errs, errors.New("dex.markets is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.kind %q is not one of dryrun, paper, alpaca, jupiter", c.Broker.Kind))
	}
	return errors.Join(errs...)
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Broker.Alpaca.Key = mask(c.Broker.Alpaca.Key)
	c.Broker.Alpaca.Secret = mask(c.Broker.Alpaca.Secret)
	c.Wallet.PrivateKeyBase58 = mask(c.Wallet.PrivateKeyBase58)
	return c
}
