package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"livetrader-go/internal/strategy"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List registered strategies and their parameters",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			writeStrategies(cmd.OutOrStdout(), strategy.Builtin())
		},
	}
}

func writeStrategies(w io.Writer, reg *strategy.Registry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Title", "Mode", "Params"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, d := range reg.List() {
		params := make([]string, 0, len(d.Params))
		for _, p := range d.Params {
			params = append(params, formatParam(p))
		}
		table.Append([]string{d.Name, d.Title, string(d.Mode), strings.Join(params, " ")})
	}
	table.Render()
}

func formatParam(p strategy.ParamSpec) string {
	if p.Min == 0 && p.Max == 0 {
		return fmt.Sprintf("%s=%g", p.Name, p.Default)
	}
	return fmt.Sprintf("%s=%g[%g,%g]", p.Name, p.Default, p.Min, p.Max)
}
