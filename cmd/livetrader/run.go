package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"livetrader-go/internal/config"
	"livetrader-go/internal/exchange"
	"livetrader-go/internal/live"
	"livetrader-go/internal/metrics"
	"livetrader-go/internal/status"
	"livetrader-go/internal/strategy"
	"livetrader-go/internal/web"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the live trader with the configured feed, strategy and broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Broker.Kind = config.BrokerDryRun
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, newLogger(os.Stdout, cfg, flags))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log orders instead of sending them to the configured broker")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics endpoint up")
	}

	broker, closeBroker, err := buildBroker(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBroker(); err != nil {
			log.Warn().Err(err).Msg("close broker")
		}
	}()

	// The feed decides the symbol keys (dexscreener targets become aliases), so the
	// trader is built from an unhooked feed with the same settings first.
	opts := feedOptions(cfg)
	symbols := exchange.NewFeed(cfg.Exchange.Name, cfg.Exchange.Symbols, log, opts...).Symbols()

	tr, err := live.NewTrader(traderSettings(cfg, symbols), strategy.Builtin(), broker, log.With().Str("component", "trader").Logger())
	if err != nil {
		return err
	}
	feed := exchange.NewFeed(cfg.Exchange.Name, cfg.Exchange.Symbols, log.With().Str("component", "feed").Logger(),
		append(opts, exchange.WithStatusHook(tr.FeedStatus))...)

	var wg sync.WaitGroup
	displayCtx, stopDisplay := context.WithCancel(context.Background())
	defer func() {
		stopDisplay()
		wg.Wait()
	}()
	if cfg.Web.Addr != "" {
		hub := web.NewHub()
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Consume(displayCtx, tr.Publisher().C())
		}()
		go func() {
			defer wg.Done()
			if err := web.Serve(displayCtx, cfg.Web.Addr, hub, log); err != nil {
				log.Error().Err(err).Msg("display endpoint stopped")
			}
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logSnapshots(displayCtx, tr.Publisher().C(), log)
		}()
	}

	log.Info().
		Str("provider", feed.Provider()).
		Str("broker", cfg.Broker.Kind).
		Str("strategy", cfg.Strategy.Name).
		Strs("symbols", tr.Symbols()).
		Msg("starting")
	if err := tr.Run(ctx, feed); err != nil {
		return fmt.Errorf("trader: %w", err)
	}
	return nil
}

// logSnapshots is the display used when no web address is configured.
func logSnapshots(ctx context.Context, snaps <-chan status.Snapshot, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-snaps:
			ev := log.Debug().
				Uint64("seq", s.Seq).
				Float64("equity", s.Account.Equity).
				Float64("cash", s.Account.Cash).
				Int("positions", len(s.Positions)).
				Int("orders", len(s.Orders))
			if s.Err != "" {
				ev = ev.Str("refresh_error", s.Err)
			}
			ev.Msg("status")
		}
	}
}
