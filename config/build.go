package config

import (
	"fmt"
	"time"

	"github.com/rustyeddy/recovery/backtest"
	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
	"github.com/rustyeddy/recovery/recovery"
	"github.com/rustyeddy/recovery/signals"
	"github.com/rustyeddy/recovery/sim"
)

// RecoveryTable returns the typed table. Symbol keys are normalized.
func (c *Config) RecoveryTable() recovery.SettingsTable {
	t := recovery.SettingsTable{Default: c.Recovery.Default}
	for sym, s := range c.Recovery.Symbols {
		t = t.With(sym, s)
	}
	if t.Symbols == nil {
		t.Symbols = map[string]recovery.Settings{}
	}
	return t
}

// InstrumentTable layers configured instruments over the built-in majors.
func (c *Config) InstrumentTable() market.InstrumentTable {
	t := market.DefaultInstruments()
	for _, in := range c.Instruments {
		d := t.Default
		if in.MinLot <= 0 {
			in.MinLot = d.MinLot
		}
		if in.MaxLot <= 0 {
			in.MaxLot = d.MaxLot
		}
		if in.LotStep <= 0 {
			in.LotStep = d.LotStep
		}
		if in.Digits <= 0 {
			in.Digits = d.Digits
		}
		t = t.With(in)
	}
	return t
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		Account: broker.Account{
			ID:       c.Account.ID,
			Currency: c.Account.Currency,
			Balance:  c.Account.Balance,
		},
		SpreadPips:     c.Simulation.SpreadPips,
		PriceTimeframe: c.Simulation.PriceTimeframe,
		Instruments:    c.InstrumentTable(),
		Seed:           c.Simulation.Seed,
	}
}

// RunOptions assumes the config has been validated.
func (c *Config) RunOptions() backtest.Options {
	start, _ := parseTime(c.Simulation.Start)
	end, _ := parseTime(c.Simulation.End)
	step, _ := time.ParseDuration(c.Simulation.Step)

	syms := make([]string, 0, len(c.Data))
	seen := map[string]bool{}
	for _, d := range c.Data {
		s := market.NormalizeSymbol(d.Symbol)
		if !seen[s] {
			seen[s] = true
			syms = append(syms, s)
		}
	}

	return backtest.Options{
		Start:          start,
		End:            end,
		Step:           step,
		Symbols:        syms,
		Volume:         c.Entry.Volume,
		RiskPercent:    c.Entry.RiskPercent,
		RiskStopPips:   c.Entry.RiskStopPips,
		StopLossPips:   c.Entry.StopLossPips,
		TakeProfitPips: c.Entry.TakeProfitPips,
	}
}

// Source builds the configured entry signal source.
func (c *Config) Source() (signals.Source, error) {
	switch c.Signals.Source {
	case "", SourceNone:
		return signals.None{}, nil
	case SourceConfluence:
		return signals.NewConfluence(c.Signals.Confluence), nil
	case SourceScripted:
		sigs, err := c.scripted()
		if err != nil {
			return nil, err
		}
		return signals.NewScripted(sigs...), nil
	}
	return nil, fmt.Errorf("unknown signal source %q", c.Signals.Source)
}

// Exit returns nil when reversion exits are off.
func (c *Config) Exit() signals.Exit {
	r := c.Signals.Reversion
	if r == nil {
		return nil
	}
	x := signals.NewEMAReversion(r.Timeframe, r.Period)
	x.RequireProfit = r.RequireProfit
	return x
}

// LoadData reads every configured bar file into the engine.
func (c *Config) LoadData(e *sim.Engine) error {
	for _, d := range c.Data {
		s, err := market.LoadCSV(d.Path, market.NormalizeSymbol(d.Symbol), d.Timeframe)
		if err != nil {
			return err
		}
		if err := e.LoadSeries(s); err != nil {
			return fmt.Errorf("%s %s: %w", d.Symbol, d.Timeframe, err)
		}
	}
	return nil
}

func (c *Config) scripted() ([]signals.Signal, error) {
	out := make([]signals.Signal, 0, len(c.Signals.Scripted))
	for i, s := range c.Signals.Scripted {
		t, err := parseTime(s.Time)
		if err != nil || t.IsZero() {
			return nil, fmt.Errorf("[%d] time %q", i, s.Time)
		}
		side, err := market.ParseSide(s.Side)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, signals.At(t, market.NormalizeSymbol(s.Symbol), side, s.Score, s.Factors...))
	}
	return out, nil
}
