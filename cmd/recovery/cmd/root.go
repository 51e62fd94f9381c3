package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/recovery/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Recovery position engine and deterministic FX backtester",
	Long: `Recovery manages stacks of positions that grow grid, hedge and DCA legs
when a trade goes against it, and closes them on drawdown, profit or time.

It provides tools for:
  - Backtesting the engine against historical bars
  - Sweeping recovery parameters in parallel
  - Generating and validating run configurations
  - Querying the SQLite trade journal`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetLevel(logLevel)
	},
}

var logLevel string

// Execute adds all child commands to the root command and sets flags appropriately.
// An interrupt cancels the context; a running backtest stops at the next
// step boundary.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
