package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
)

const tradeColumns = `trade_id, leg_id, symbol, side, volume, entry_price, entry_time,
	exit_price, exit_time, profit, level_type, level_number, stack_id, close_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (TradeRecord, error) {
	var (
		rec   TradeRecord
		side  string
		level string
	)
	err := r.Scan(
		&rec.TradeID,
		&rec.LegID,
		&rec.Symbol,
		&side,
		&rec.Volume,
		&rec.EntryPrice,
		&rec.EntryTime,
		&rec.ExitPrice,
		&rec.ExitTime,
		&rec.Profit,
		&level,
		&rec.LevelNumber,
		&rec.StackID,
		&rec.Reason,
	)
	rec.Side = market.Side(side)
	rec.Level = broker.Level(level)
	return rec, err
}

func (j *SQLite) listTrades(query string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single ledger record by id. When several runs share the
// database the most recently written one wins.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE trade_id = ?
		ORDER BY rowid DESC LIMIT 1`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose exit_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC, rowid ASC`, start.UTC(), end.UTC())
}

// ListTradesByStack returns every ledger record that belonged to one stack.
func (j *SQLite) ListTradesByStack(stackID string) ([]TradeRecord, error) {
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE stack_id = ?
		ORDER BY exit_time ASC, rowid ASC`, stackID)
}

func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	_ = ctx
	return j.listTrades(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY rowid ASC`, runID)
}

func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	return j.listEquity(`
		SELECT time, balance, equity, floating
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, rowid ASC`, start.UTC(), end.UTC())
}

func (j *SQLite) ListEquityByRunID(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	_ = ctx
	return j.listEquity(`
		SELECT time, balance, equity, floating
		FROM equity
		WHERE run_id = ?
		ORDER BY rowid ASC`, runID)
}

func (j *SQLite) listEquity(query string, args ...any) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.Balance, &e.Equity, &e.Floating); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
