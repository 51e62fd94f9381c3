package journal

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "leg_id", "symbol", "side", "volume", "entry_price", "entry_time", "exit_price", "exit_time", "profit", "level_type", "level_number", "stack_id", "close_reason"}
	equityHeader = []string{"time", "balance", "equity", "floating"}
)

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	closers []io.Closer
}

// NewCSV creates (or truncates) the two files and writes their headers.
func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}
	j, err := NewCSVWriters(tf, ef)
	if err != nil {
		tf.Close()
		ef.Close()
		return nil, err
	}
	j.closers = []io.Closer{tf, ef}
	return j, nil
}

// NewCSVWriters writes to arbitrary writers; Close flushes but does not
// close them.
func NewCSVWriters(trades, equity io.Writer) (*CSVJournal, error) {
	tw := csv.NewWriter(trades)
	ew := csv.NewWriter(equity)

	if err := tw.Write(tradeHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(equityHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{trades: tw, equity: ew}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	err := j.trades.Write([]string{
		t.TradeID,
		t.LegID,
		t.Symbol,
		string(t.Side),
		f(t.Volume),
		f(t.EntryPrice),
		t.EntryTime.UTC().Format(time.RFC3339),
		f(t.ExitPrice),
		t.ExitTime.UTC().Format(time.RFC3339),
		f(t.Profit),
		string(t.Level),
		strconv.Itoa(t.LevelNumber),
		t.StackID,
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.Floating),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	for _, c := range j.closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
