package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/recovery/backtest"
	"github.com/rustyeddy/recovery/config"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/recovery"
	"github.com/rustyeddy/recovery/report"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one backtest per grid spacing, in parallel",
	Long: `Sweep re-runs the configured backtest once for every grid spacing given,
overriding the default and every per-symbol setting. Runs keep their
journals in memory and only the comparison table is printed.

Example:
  recovery sweep -c backtest.yaml --grid-spacing 8,10,12,15 --parallel 4`,
	RunE: runSweep,
}

var (
	swConfigPath string
	swSpacings   []float64
	swParallel   int
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVarP(&swConfigPath, "config", "c", "", "path to backtest config (required)")
	sweepCmd.Flags().Float64SliceVar(&swSpacings, "grid-spacing", nil, "grid spacings in pips (required)")
	sweepCmd.Flags().IntVarP(&swParallel, "parallel", "p", 2, "runs at once")

	sweepCmd.MarkFlagRequired("config")
	sweepCmd.MarkFlagRequired("grid-spacing")
}

// withGridSpacing copies table with every entry's grid spacing replaced.
func withGridSpacing(table recovery.SettingsTable, pips float64) recovery.SettingsTable {
	out := recovery.SettingsTable{Default: table.Default}
	out.Default.GridSpacingPips = pips
	for sym, s := range table.Symbols {
		s.GridSpacingPips = pips
		out = out.With(sym, s)
	}
	return out
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(swConfigPath)
	if err != nil {
		return err
	}

	variants := make([]backtest.Variant, 0, len(swSpacings))
	for _, pips := range swSpacings {
		table := withGridSpacing(cfg.RecoveryTable(), pips)
		variants = append(variants, backtest.Variant{
			Name: fmt.Sprintf("grid=%g", pips),
			Build: func() (*backtest.Runner, error) {
				return buildRunner(cfg, table, journal.NewMemory(), nil)
			},
		})
	}

	results, err := backtest.Sweep(cmd.Context(), variants, swParallel)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tSTACKS\tTRADES\tNET\tRETURN%\tMAXDD%\tPF\tERR")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t-\t%v\n", r.Name, r.Err)
			continue
		}
		s := report.Summarize(r.Result.StartBalance, r.Result.Ledger, r.Result.EquityCurve)
		s.CountStacks(r.Result.Stacks)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			r.Name, s.Stacks, s.Trades, s.NetPL, s.ReturnPct, s.MaxDDPct, s.ProfitFactor)
	}
	return tw.Flush()
}
