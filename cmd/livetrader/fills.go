package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"livetrader-go/internal/execution"
	"livetrader-go/internal/paper"
)

func newFillsCmd(flags *rootFlags) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "fills [path]",
		Short: "Print paper fills recorded in a JSONL file (defaults to paper.fills_path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadConfig(flags)
				if err != nil {
					return err
				}
				path = cfg.Paper.FillsPath
			}
			if path == "" {
				return fmt.Errorf("no fills file: pass a path or set paper.fills_path")
			}
			fills, err := paper.ReadFills(path)
			if err != nil {
				return err
			}
			if summary {
				writeActivity(cmd.OutOrStdout(), paper.Summarize(fills))
				return nil
			}
			writeFills(cmd.OutOrStdout(), fills)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "totals per symbol instead of every fill")
	return cmd
}

func writeFills(w io.Writer, fills []execution.Fill) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Symbol", "Side", "Qty", "Price", "Intent"})
	table.SetAutoWrapText(false)
	for _, f := range fills {
		table.Append([]string{
			f.Ts.UTC().Format("2006-01-02 15:04:05"),
			f.Symbol,
			string(f.Side),
			fmt.Sprintf("%g", f.Qty),
			fmt.Sprintf("%g", f.Price),
			f.ClientOrderID,
		})
	}
	table.Render()
}

func writeActivity(w io.Writer, acts []paper.Activity) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Fills", "Bought", "Sold", "Net Cash"})
	for _, a := range acts {
		table.Append([]string{a.Symbol, fmt.Sprint(a.Fills), fmt.Sprintf("%g", a.Bought), fmt.Sprintf("%g", a.Sold), fmt.Sprintf("%.2f", a.NetCash)})
	}
	table.Render()
}
