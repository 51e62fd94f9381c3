package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/recovery/config"
	"github.com/rustyeddy/recovery/internal/logger"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/metrics"
	"github.com/rustyeddy/recovery/report"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the recovery engine",
	Long: `Backtest loads the bar files named in the config, replays them step by
step through the simulated broker and the recovery engine, and prints a
summary. Closed trades and the equity curve go to the configured journal.

Example:
  recovery backtest -c backtest.yaml --html equity.html --metrics run.prom`,
	RunE: runBacktest,
}

var (
	btConfigPath  string
	btDBPath      string
	btHTMLPath    string
	btMetricsPath string
	btOrgPath     string
	btNotes       []string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "c", "", "path to backtest config (required)")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "SQLite journal DB; overrides journal in config")
	backtestCmd.Flags().StringVar(&btHTMLPath, "html", "", "write an equity chart; overrides report_html")
	backtestCmd.Flags().StringVar(&btMetricsPath, "metrics", "", "write metrics in text format; overrides metrics_file")
	backtestCmd.Flags().StringVar(&btOrgPath, "org", "", "write the run summary as an org file")
	backtestCmd.Flags().StringArrayVar(&btNotes, "note", nil, "note stored with the run (repeatable)")

	backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(btConfigPath)
	if err != nil {
		return err
	}
	if btHTMLPath != "" {
		cfg.ReportHTML = btHTMLPath
	}
	if btMetricsPath != "" {
		cfg.MetricsFile = btMetricsPath
	}

	j, db, err := openConfigJournal(cfg.Journal, btDBPath)
	if err != nil {
		return err
	}
	defer j.Close()

	runID := uuid.NewString()
	if db != nil {
		db.SetRunID(runID)
	}

	rec := metrics.New()
	runner, err := buildRunner(cfg, cfg.RecoveryTable(), j, rec)
	if err != nil {
		return err
	}

	res, runErr := runner.Run(cmd.Context())
	if runErr != nil && len(res.EquityCurve) == 0 {
		return runErr
	}
	if runErr != nil {
		logger.L().Warn("backtest stopped early", "err", runErr, "steps", res.Steps)
	}

	sum := report.Summarize(res.StartBalance, res.Ledger, res.EquityCurve)
	sum.CountStacks(res.Stacks)
	report.PrintSummary(cmd.OutOrStdout(), sum)
	fmt.Fprintf(cmd.OutOrStdout(), "Run ID: %s\n", runID)

	var errs []error
	if cfg.ReportHTML != "" {
		if err := report.WriteEquityHTML(cfg.ReportHTML, "Equity "+strings.Join(runner.Options.Symbols, ","), res.EquityCurve); err != nil {
			errs = append(errs, fmt.Errorf("equity html: %w", err))
		}
	}
	if cfg.MetricsFile != "" {
		if err := rec.WriteFile(cfg.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}

	run := journal.BacktestRun{
		RunID:      runID,
		Created:    time.Now().UTC(),
		Timeframe:  cfg.Simulation.PriceTimeframe,
		Dataset:    datasetName(cfg),
		Symbols:    runner.Options.Symbols,
		Strategy:   "recovery/" + cfg.Signals.Source,
		OrgPath:    btOrgPath,
		EquityHTML: cfg.ReportHTML,
		Notes:      btNotes,
	}
	if raw, err := yaml.Marshal(cfg); err == nil {
		run.Config = raw
	}
	sum.Fill(&run)
	if run.Start.IsZero() {
		run.Start, run.End = res.Start, res.End
	}

	if db != nil {
		if err := db.RecordBacktest(cmd.Context(), run); err != nil {
			errs = append(errs, fmt.Errorf("record run: %w", err))
		}
	}
	if btOrgPath != "" {
		if err := run.WriteBacktestOrg(); err != nil {
			errs = append(errs, fmt.Errorf("org: %w", err))
		}
	}

	if runErr != nil {
		errs = append(errs, runErr)
	}
	return errors.Join(errs...)
}

func datasetName(cfg *config.Config) string {
	paths := make([]string, 0, len(cfg.Data))
	for _, d := range cfg.Data {
		paths = append(paths, d.Path)
	}
	return strings.Join(paths, ",")
}
