package cmd

import (
	"fmt"

	"github.com/rustyeddy/recovery/backtest"
	"github.com/rustyeddy/recovery/config"
	"github.com/rustyeddy/recovery/internal/logger"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/metrics"
	"github.com/rustyeddy/recovery/recovery"
	"github.com/rustyeddy/recovery/sim"
)

// buildRunner wires a broker, recovery engine and signal source from cfg.
// table replaces the configured recovery settings when sweeping.
func buildRunner(cfg *config.Config, table recovery.SettingsTable, j journal.Journal, rec *metrics.Recorder) (*backtest.Runner, error) {
	log := logger.L()

	simCfg := cfg.SimConfig()
	simCfg.Logger = log
	broker := sim.NewEngine(simCfg, j)
	if err := cfg.LoadData(broker); err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}

	opts := []recovery.Option{
		recovery.WithPolicy(cfg.Risk),
		recovery.WithInstruments(simCfg.Instruments),
		recovery.WithMetrics(rec),
		recovery.WithLogger(log),
		recovery.WithSeed(cfg.Simulation.Seed),
	}
	if x := cfg.Exit(); x != nil {
		opts = append(opts, recovery.WithExit(x, broker))
	}

	src, err := cfg.Source()
	if err != nil {
		return nil, err
	}

	return &backtest.Runner{
		Broker:   broker,
		Recovery: recovery.NewEngine(broker, table, opts...),
		Source:   src,
		Metrics:  rec,
		Logger:   log,
		Options:  cfg.RunOptions(),
	}, nil
}

// openConfigJournal returns the configured sink and, for sqlite, the
// concrete store so the run summary can be recorded too.
func openConfigJournal(cfg config.JournalConfig, dbOverride string) (journal.Journal, *journal.SQLite, error) {
	if dbOverride != "" {
		cfg = config.JournalConfig{Type: "sqlite", DBPath: dbOverride}
	}
	switch cfg.Type {
	case "sqlite":
		db, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return db, db, nil
	case "csv":
		j, err := journal.NewCSV(cfg.TradesFile, cfg.EquityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open csv journal: %w", err)
		}
		return j, nil, nil
	default:
		return journal.NewMemory(), nil, nil
	}
}
