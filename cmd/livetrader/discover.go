package main

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"livetrader-go/internal/exchange"
)

func newDiscoverCmd(flags *rootFlags) *cobra.Command {
	var (
		keywords []string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search Dexscreener for pairs worth adding to exchange.symbols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if len(keywords) > 0 {
				cfg.Exchange.Discovery.Keywords = keywords
			}
			if limit > 0 {
				cfg.Exchange.Discovery.MaxPairs = limit
			}
			log := newLogger(os.Stderr, cfg, flags)
			found, err := exchange.NewDiscoverer(log, cfg.Exchange.DexScreener, cfg.Exchange.Discovery).Discover(cmd.Context())
			if err != nil {
				return err
			}
			writeCandidates(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "search keywords (overrides exchange.discovery.keywords)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum candidates to print")
	return cmd
}

func writeCandidates(w io.Writer, found []exchange.Candidate) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Alias", "Symbol", "Liquidity USD", "Volume USD", "24h %", "Score"})
	table.SetAutoWrapText(false)
	for _, c := range found {
		table.Append([]string{
			c.Alias,
			c.Symbol,
			fmt.Sprintf("%.0f", c.LiquidityUSD),
			fmt.Sprintf("%.0f", c.VolumeUSD),
			fmt.Sprintf("%.2f", c.Change24h),
			fmt.Sprintf("%.0f", c.Score),
		})
	}
	table.Render()
}
