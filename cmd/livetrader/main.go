// Command livetrader runs bar and tick strategies against a live market data feed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
	console    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "livetrader",
		Short:         "Run trading strategies against live ticks and a broker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "path to the YAML config")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config (missing files are skipped)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override app.log_level")
	root.PersistentFlags().BoolVar(&flags.console, "console", false, "human-readable logs instead of JSON")

	root.AddCommand(
		newRunCmd(flags),
		newStrategiesCmd(),
		newConfigCmd(flags),
		newDiscoverCmd(flags),
		newFillsCmd(flags),
		newBacktestCmd(flags),
	)
	return root
}
