// Package sim is a deterministic bar-replay broker. It owns the simulation
// clock, quotes every symbol from the close of its latest bar, fills market
// orders, fires stop-loss and take-profit thresholds and writes every close
// to the journal.
package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/internal/id"
	"github.com/rustyeddy/recovery/internal/logger"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/market"
)

const DefaultPriceTimeframe = "H1"

type Config struct {
	Account broker.Account

	// SpreadPips is added to the bar close to form the ask.
	SpreadPips float64
	// PriceTimeframe selects which loaded series quotes each symbol.
	PriceTimeframe string
	Instruments    market.InstrumentTable
	// Seed drives leg id entropy.
	Seed   int64
	Logger *slog.Logger
}

type seriesKey struct {
	symbol    string
	timeframe string
}

// Op names a broker operation for fault injection.
type Op string

const (
	OpOpen         Op = "open"
	OpClose        Op = "close"
	OpPartialClose Op = "partial_close"
)

// RejectFunc can veto an operation before it executes. legID is empty for
// opens. A non-nil error is returned to the caller as a rejection.
type RejectFunc func(op Op, symbol, legID string) error

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	acct    broker.Account
	now     time.Time
	series  map[seriesKey]*market.Series
	prices  *PriceStore
	legs    map[string]*leg
	open    []*leg
	ids     *id.Generator
	journal journal.Journal
	ledger  []journal.TradeRecord
	reject  RejectFunc
	log     *slog.Logger
}

func NewEngine(cfg Config, j journal.Journal) *Engine {
	if cfg.PriceTimeframe == "" {
		cfg.PriceTimeframe = DefaultPriceTimeframe
	}
	cfg.PriceTimeframe = strings.ToUpper(cfg.PriceTimeframe)
	if cfg.Instruments.Symbols == nil && cfg.Instruments.Default.PipSize == 0 {
		cfg.Instruments = market.DefaultInstruments()
	}
	if j == nil {
		j = journal.NewMemory()
	}
	acct := cfg.Account
	acct.Equity = acct.Balance
	acct.Floating = 0

	return &Engine{
		cfg:     cfg,
		acct:    acct,
		series:  make(map[seriesKey]*market.Series),
		prices:  NewPriceStore(),
		legs:    make(map[string]*leg),
		ids:     id.NewGenerator(cfg.Seed),
		journal: j,
		log:     logger.Or(cfg.Logger),
	}
}

// SetRejecter installs a hook that can refuse operations. Pass nil to clear.
func (e *Engine) SetRejecter(f RejectFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reject = f
}

func (e *Engine) Instrument(symbol string) market.Instrument {
	return e.cfg.Instruments.Lookup(symbol)
}

// LoadSeries registers bars for one symbol and timeframe. Loading the same
// pair twice replaces the earlier series.
func (e *Engine) LoadSeries(s *market.Series) error {
	if s == nil {
		return fmt.Errorf("sim: nil series")
	}
	cp := *s
	cp.Symbol = market.NormalizeSymbol(s.Symbol)
	cp.Timeframe = strings.ToUpper(s.Timeframe)
	if err := cp.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.series[seriesKey{cp.Symbol, cp.Timeframe}] = &cp
	return nil
}

// AppendBar extends the price series for symbol, creating it if needed.
// The bar must be later than the series' last bar.
func (e *Engine) AppendBar(symbol string, b market.Bar) error {
	symbol = market.NormalizeSymbol(symbol)

	e.mu.Lock()
	defer e.mu.Unlock()

	key := seriesKey{symbol, e.cfg.PriceTimeframe}
	s, ok := e.series[key]
	if !ok {
		s = &market.Series{Symbol: symbol, Timeframe: e.cfg.PriceTimeframe}
		e.series[key] = s
	}
	if n := len(s.Bars); n > 0 && !b.Time.After(s.Bars[n-1].Time) {
		return fmt.Errorf("sim: bar at %s is not after %s", b.Time.Format(time.RFC3339), s.Bars[n-1].Time.Format(time.RFC3339))
	}
	s.Bars = append(s.Bars, b)
	return nil
}

// Symbols lists symbols that have a price series, sorted.
func (e *Engine) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for k := range e.series {
		if k.timeframe == e.cfg.PriceTimeframe {
			out = append(out, k.symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Span returns the first and last bar times across the quoting series.
func (e *Engine) Span() (first, last time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, s := range e.series {
		if k.timeframe != e.cfg.PriceTimeframe || len(s.Bars) == 0 {
			continue
		}
		if f := s.Bars[0].Time; first.IsZero() || f.Before(first) {
			first = f
		}
		if l := s.Bars[len(s.Bars)-1].Time; l.After(last) {
			last = l
		}
	}
	return first, last
}

// Ledger returns every closed-trade record in the order it was written.
func (e *Engine) Ledger() []journal.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]journal.TradeRecord(nil), e.ledger...)
}

// Now is the simulation clock.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the clock to t, requotes every symbol from its latest bar at
// or before t and revalues open legs. The clock never moves backwards.
func (e *Engine) Advance(t time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.now.IsZero() && t.Before(e.now) {
		return fmt.Errorf("sim: clock cannot move backwards from %s to %s",
			e.now.Format(time.RFC3339), t.Format(time.RFC3339))
	}
	e.now = t

	for key, s := range e.series {
		if key.timeframe != e.cfg.PriceTimeframe {
			continue
		}
		bar, ok := s.At(t)
		if !ok {
			e.prices.Delete(key.symbol)
			continue
		}
		inst := e.cfg.Instruments.Lookup(key.symbol)
		e.prices.Set(broker.Quote{
			Symbol: key.symbol,
			Time:   bar.Time,
			Bid:    bar.Close,
			Ask:    market.OffsetPrice(bar.Close, e.cfg.SpreadPips, inst.PipSize),
		})
	}

	e.revalueLocked()
	return nil
}

// ApplyStops closes every open leg whose stop-loss or take-profit has been
// reached by the current bid. Fills happen at the threshold price. Stops are
// checked before targets.
func (e *Engine) ApplyStops() ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed []broker.Position
	for _, l := range append([]*leg(nil), e.open...) {
		q, err := e.prices.Get(l.Symbol)
		if err != nil {
			continue
		}
		mark := q.Bid

		var (
			reason string
			price  float64
		)
		switch {
		case hitStopLoss(l, mark):
			reason, price = "stop_loss", *l.StopLoss
		case hitTakeProfit(l, mark):
			reason, price = "take_profit", *l.TakeProfit
		}
		if reason == "" {
			continue
		}
		if _, err := e.closeLocked(l, l.Volume, price, reason); err != nil {
			return closed, err
		}
		e.log.Debug("threshold close", "leg", l.ID, "symbol", l.Symbol, "reason", reason, "price", price)
		closed = append(closed, l.position(0, 0))
	}

	e.revalueLocked()
	return closed, nil
}

// History returns the last n bars of a series at or before the clock.
func (e *Engine) History(symbol, timeframe string, n int) ([]market.Bar, error) {
	symbol = market.NormalizeSymbol(symbol)
	timeframe = strings.ToUpper(timeframe)

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.series[seriesKey{symbol, timeframe}]
	if !ok {
		return nil, &market.DataGapError{Symbol: symbol, Timeframe: timeframe, At: e.now, Need: n}
	}
	return s.Window(e.now, n)
}

// Snapshot returns the account state stamped with the clock.
func (e *Engine) Snapshot() journal.EquitySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return journal.EquitySnapshot{
		Time:     e.now,
		Balance:  e.acct.Balance,
		Equity:   e.acct.Equity,
		Floating: e.acct.Floating,
	}
}

// RecordEquity writes the current snapshot to the journal.
func (e *Engine) RecordEquity() (journal.EquitySnapshot, error) {
	snap := e.Snapshot()
	return snap, e.journal.RecordEquity(snap)
}

func (e *Engine) revalueLocked() {
	floating := 0.0
	for _, l := range e.open {
		q, err := e.prices.Get(l.Symbol)
		if err != nil {
			continue
		}
		floating += UnrealizedPL(l, q.Bid, e.cfg.Instruments.Lookup(l.Symbol).ContractSize)
	}
	e.acct.Floating = market.Round(floating, 8)
	e.acct.Equity = market.Round(e.acct.Balance+floating, 8)
}
