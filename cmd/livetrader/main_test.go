package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrader-go/internal/broker/alpaca"
	"livetrader-go/internal/config"
	"livetrader-go/internal/dex/solana"
	"livetrader-go/internal/exchange"
	"livetrader-go/internal/execution"
	"livetrader-go/internal/paper"
	"livetrader-go/internal/strategy"
)

func TestBuildBrokerKinds(t *testing.T) {
	log := zerolog.Nop()

	cfg := config.Default()
	b, closer, err := buildBroker(&cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &execution.DryRun{}, b)
	require.NoError(t, closer())

	cfg.Broker.Kind = config.BrokerPaper
	cfg.Paper.FillsPath = filepath.Join(t.TempDir(), "fills", "paper.jsonl")
	b, closer, err = buildBroker(&cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &paper.Broker{}, b)
	require.NoError(t, closer())
	assert.FileExists(t, cfg.Paper.FillsPath)

	cfg.Broker.Kind = config.BrokerAlpaca
	cfg.Broker.Alpaca.Live = true
	b, _, err = buildBroker(&cfg, log)
	require.NoError(t, err)
	require.IsType(t, &alpaca.Client{}, b)
	assert.Equal(t, alpaca.LiveURL, b.(*alpaca.Client).Base)

	cfg.Broker.Kind = config.BrokerJupiter
	_, _, err = buildBroker(&cfg, log)
	assert.ErrorIs(t, err, solana.ErrNoWallet)

	cfg.Broker.Kind = "carrier-pigeon"
	_, _, err = buildBroker(&cfg, log)
	assert.ErrorContains(t, err, "unknown broker kind")
}

func TestTraderSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy.Params = map[string]float64{"rsi_length": 7}
	s := traderSettings(&cfg, []string{"BTC/USD"})
	assert.Equal(t, []string{"BTC/USD"}, s.Symbols)
	assert.Equal(t, time.Minute, s.Interval)
	assert.Equal(t, 64, s.MaxPending)
	assert.Equal(t, 7.0, s.Params["rsi_length"])
	assert.Nil(t, s.Risk)

	cfg.Risk.MaxNotionalPerTrade = 500
	s = traderSettings(&cfg, nil)
	require.NotNil(t, s.Risk)
	assert.Equal(t, 500.0, s.Risk.MaxNotionalPerTrade)
}

func TestFeedOptionsMapDexScreenerAliases(t *testing.T) {
	cfg := config.Default()
	cfg.Exchange.Name = exchange.ProviderDexScreener
	cfg.Exchange.Symbols = []string{"WIF/SOL@solana/3xnlwxj"}
	f := exchange.NewFeed(cfg.Exchange.Name, cfg.Exchange.Symbols, zerolog.Nop(), feedOptions(&cfg)...)
	assert.Equal(t, []string{exchange.DexAlias("WIF/SOL", "3xnlwxj")}, f.Symbols())
}

func TestWriteStrategiesListsBuiltins(t *testing.T) {
	var buf bytes.Buffer
	writeStrategies(&buf, strategy.Builtin())
	out := buf.String()
	for _, name := range []string{"rsi_ema", "sma_cross", "bollinger_revert", "trend_follow", "macd_divergence", "vegas_double_tunnel"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "fast=10[1,200]")
}

func TestWriteCandidates(t *testing.T) {
	var buf bytes.Buffer
	writeCandidates(&buf, []exchange.Candidate{{Alias: "WIFSOL_DR1XYZ", Symbol: "WIF/SOL@solana/dr1xyz", LiquidityUSD: 250000, VolumeUSD: 90000, Change24h: 4.5}})
	assert.Contains(t, buf.String(), "WIFSOL_DR1XYZ")
	assert.Contains(t, buf.String(), "250000")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", path})
	require.NoError(t, root.Execute())
	assert.FileExists(t, path)

	root = newRootCmd()
	root.SetArgs([]string{"config", "init", path})
	assert.ErrorContains(t, root.Execute(), "exists")

	t.Setenv("ALPACA_SECRET_KEY", "shh")
	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", path, "--env-file", filepath.Join(t.TempDir(), "none.env"), "config", "show"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "****")
	assert.NotContains(t, out.String(), "shh")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Exchange.Symbols = []string{"BTC/USD"}
	cfg.Broker.Kind = config.BrokerPaper
	cfg.Trader.StatusInterval = 50 * time.Millisecond
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- run(ctx, &cfg, zerolog.New(os.Stderr).Level(zerolog.Disabled)) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestFillsCommandReadsRecorderOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.jsonl")
	rec, err := paper.NewJSONLRecorder(path)
	require.NoError(t, err)
	rec.Record(execution.Fill{ClientOrderID: "intent-1", Symbol: "ETH/USD", Side: "buy", Qty: 0.5, Price: 3000})
	rec.Record(execution.Fill{ClientOrderID: "intent-2", Symbol: "ETH/USD", Side: "sell", Qty: 0.5, Price: 3100})
	require.NoError(t, rec.Close())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"fills", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "intent-2")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"fills", "--summary", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "50.00")
}
