package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores the ledger, the equity curve and run summaries. Rows are
// tagged with the run id set through SetRunID so several backtests can share
// one database.
type SQLite struct {
	db    *sql.DB
	runID string
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) SetRunID(runID string) { j.runID = runID }

func (j *SQLite) RunID() string { return j.runID }

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, leg_id, symbol, side, volume, entry_price, entry_time,
		 exit_price, exit_time, profit, level_type, level_number, stack_id, close_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, t.TradeID, t.LegID, t.Symbol, string(t.Side), t.Volume, t.EntryPrice, t.EntryTime.UTC(),
		t.ExitPrice, t.ExitTime.UTC(), t.Profit, string(t.Level), t.LevelNumber, t.StackID, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, balance, equity, floating)
		VALUES (?, ?, ?, ?, ?)`,
		j.runID, e.Time.UTC(), e.Balance, e.Equity, e.Floating,
	)
	return err
}

func (j *SQLite) RecordBacktest(ctx context.Context, btr BacktestRun) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, timeframe, dataset, symbols, strategy, config, start_time, end_time,
		 trades, wins, losses, stacks, start_balance, end_balance, net_pl, return_pct,
		 win_rate, profit_factor, max_dd_pct, org_path, equity_html, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		btr.RunID, btr.Created.UTC(), btr.Timeframe, btr.Dataset, strings.Join(btr.Symbols, ","),
		btr.Strategy, btr.Config, btr.Start.UTC(), btr.End.UTC(),
		btr.Trades, btr.Wins, btr.Losses, btr.Stacks, btr.StartBalance, btr.EndBalance,
		btr.NetPL, btr.ReturnPct, btr.WinRate, btr.ProfitFactor, btr.MaxDDPct,
		btr.OrgPath, btr.EquityHTML, strings.Join(btr.Notes, "\n"),
	)
	return err
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var (
		btr     BacktestRun
		symbols string
		notes   string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, timeframe, dataset, symbols, strategy, config, start_time, end_time,
		       trades, wins, losses, stacks, start_balance, end_balance, net_pl, return_pct,
		       win_rate, profit_factor, max_dd_pct, org_path, equity_html, notes
		FROM backtest_runs WHERE run_id = ?`, runID).Scan(
		&btr.RunID, &btr.Created, &btr.Timeframe, &btr.Dataset, &symbols, &btr.Strategy, &btr.Config,
		&btr.Start, &btr.End, &btr.Trades, &btr.Wins, &btr.Losses, &btr.Stacks,
		&btr.StartBalance, &btr.EndBalance, &btr.NetPL, &btr.ReturnPct, &btr.WinRate,
		&btr.ProfitFactor, &btr.MaxDDPct, &btr.OrgPath, &btr.EquityHTML, &notes,
	)
	if err == sql.ErrNoRows {
		return BacktestRun{}, fmt.Errorf("backtest run %q not found", runID)
	}
	if err != nil {
		return BacktestRun{}, err
	}
	if symbols != "" {
		btr.Symbols = strings.Split(symbols, ",")
	}
	if notes != "" {
		btr.Notes = strings.Split(notes, "\n")
	}
	return btr, nil
}

// ExportBacktestOrg loads a run summary and its trades and renders them as Org.
func (j *SQLite) ExportBacktestOrg(ctx context.Context, runID string) (string, error) {
	btr, err := j.GetBacktestRun(ctx, runID)
	if err != nil {
		return "", err
	}
	trades, err := j.ListTradesByRunID(ctx, runID)
	if err != nil {
		return "", err
	}
	head, err := btr.RenderOrg()
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return head, nil
	}
	return head + "\n** Trades\n" + FormatTradesOrg(trades), nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
