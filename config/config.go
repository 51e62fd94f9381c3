// Package config loads the YAML (or JSON) file that describes a backtest:
// account, replay window, bar files, recovery settings, risk policy, signal
// source and journal.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/recovery/market"
	"github.com/rustyeddy/recovery/recovery"
	"github.com/rustyeddy/recovery/risk"
	"github.com/rustyeddy/recovery/signals"
)

// Config represents the complete backtest configuration
type Config struct {
	Account     AccountConfig       `json:"account" yaml:"account"`
	Simulation  SimulationConfig    `json:"simulation" yaml:"simulation"`
	Data        []DataConfig        `json:"data" yaml:"data"`
	Instruments []market.Instrument `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	Entry       EntryConfig         `json:"entry" yaml:"entry"`
	Recovery    RecoveryConfig      `json:"recovery" yaml:"recovery"`
	Risk        risk.Policy         `json:"risk" yaml:"risk"`
	Signals     SignalsConfig       `json:"signals" yaml:"signals"`
	Journal     JournalConfig       `json:"journal" yaml:"journal"`

	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	ReportHTML  string `json:"report_html,omitempty" yaml:"report_html,omitempty"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
}

// SimulationConfig is the replay window and broker model. Start and End
// accept RFC3339 or YYYY-MM-DD and default to the span of the loaded bars.
type SimulationConfig struct {
	Start          string  `json:"start,omitempty" yaml:"start,omitempty"`
	End            string  `json:"end,omitempty" yaml:"end,omitempty"`
	Step           string  `json:"step" yaml:"step"` // e.g. "1h", "15m"
	SpreadPips     float64 `json:"spread_pips" yaml:"spread_pips"`
	PriceTimeframe string  `json:"price_timeframe" yaml:"price_timeframe"`
	Seed           int64   `json:"seed" yaml:"seed"`
}

// DataConfig points at one bar file. Files ending in .xz are decompressed.
type DataConfig struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
	Path      string `json:"path" yaml:"path"`
}

// EntryConfig sizes root legs. RiskPercent with RiskStopPips overrides the
// fixed Volume.
type EntryConfig struct {
	Volume         float64 `json:"volume" yaml:"volume"`
	RiskPercent    float64 `json:"risk_percent,omitempty" yaml:"risk_percent,omitempty"`
	RiskStopPips   float64 `json:"risk_stop_pips,omitempty" yaml:"risk_stop_pips,omitempty"`
	StopLossPips   float64 `json:"stop_loss_pips,omitempty" yaml:"stop_loss_pips,omitempty"`
	TakeProfitPips float64 `json:"take_profit_pips,omitempty" yaml:"take_profit_pips,omitempty"`
}

// RecoveryConfig holds the default settings and per-symbol overrides.
type RecoveryConfig struct {
	Default recovery.Settings            `json:"default" yaml:"default"`
	Symbols map[string]recovery.Settings `json:"symbols,omitempty" yaml:"symbols,omitempty"`
}

const (
	SourceNone       = "none"
	SourceScripted   = "scripted"
	SourceConfluence = "confluence"
)

type SignalsConfig struct {
	Source     string                   `json:"source" yaml:"source"`
	Confluence signals.ConfluenceConfig `json:"confluence" yaml:"confluence"`
	Scripted   []ScriptedSignal         `json:"scripted,omitempty" yaml:"scripted,omitempty"`
	// Reversion enables the EMA exit for stacks that never needed recovery.
	Reversion *ReversionConfig `json:"reversion,omitempty" yaml:"reversion,omitempty"`
}

type ScriptedSignal struct {
	Time    string   `json:"time" yaml:"time"`
	Symbol  string   `json:"symbol" yaml:"symbol"`
	Side    string   `json:"side" yaml:"side"`
	Score   int      `json:"score" yaml:"score"`
	Factors []string `json:"factors,omitempty" yaml:"factors,omitempty"`
}

type ReversionConfig struct {
	Timeframe     string `json:"timeframe" yaml:"timeframe"`
	Period        int    `json:"period" yaml:"period"`
	RequireProfit bool   `json:"require_profit" yaml:"require_profit"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "memory"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	data, err := c.Marshal(path)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Marshal(path string) ([]byte, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return yaml.Marshal(c)
	}
	return json.MarshalIndent(c, "", "  ")
}

// Validate collects every problem rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Account.Currency == "" {
		add("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		add("account.balance must be positive")
	}

	start, err := parseTime(c.Simulation.Start)
	if err != nil {
		add("simulation.start: %v", err)
	}
	end, err := parseTime(c.Simulation.End)
	if err != nil {
		add("simulation.end: %v", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		add("simulation.end is before simulation.start")
	}
	if c.Simulation.Step != "" {
		if d, err := time.ParseDuration(c.Simulation.Step); err != nil || d <= 0 {
			add("simulation.step must be a positive duration, got %q", c.Simulation.Step)
		}
	}
	if c.Simulation.SpreadPips < 0 {
		add("simulation.spread_pips must not be negative")
	}
	if c.Simulation.PriceTimeframe != "" {
		if _, err := market.TimeframeDuration(c.Simulation.PriceTimeframe); err != nil {
			add("simulation.price_timeframe: %v", err)
		}
	}

	if len(c.Data) == 0 {
		add("data: at least one bar file is required")
	}
	for i, d := range c.Data {
		if d.Symbol == "" || d.Path == "" {
			add("data[%d]: symbol and path are required", i)
		}
		if _, err := market.TimeframeDuration(d.Timeframe); err != nil {
			add("data[%d].timeframe: %v", i, err)
		}
	}
	for i, in := range c.Instruments {
		if in.Symbol == "" || in.PipSize <= 0 || in.ContractSize <= 0 {
			add("instruments[%d]: symbol, pip_size and contract_size are required", i)
		}
	}

	if c.Entry.Volume < 0 {
		add("entry.volume must not be negative")
	}
	if c.Entry.RiskPercent < 0 || c.Entry.RiskPercent > 100 {
		add("entry.risk_percent must be between 0 and 100")
	}
	if c.Entry.RiskPercent > 0 && c.Entry.RiskStopPips <= 0 {
		add("entry.risk_stop_pips is required with risk_percent")
	}

	if err := c.RecoveryTable().Validate(); err != nil {
		add("recovery: %v", err)
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDrawdownPct > 100 {
		add("risk.max_drawdown_pct must be between 0 and 100")
	}
	if c.Risk.MaxTotalLots < 0 || c.Risk.MaxStackLots < 0 {
		add("risk lot limits must not be negative")
	}

	switch c.Signals.Source {
	case "", SourceNone, SourceConfluence:
	case SourceScripted:
		if _, err := c.scripted(); err != nil {
			add("signals.scripted: %v", err)
		}
	default:
		add("signals.source must be one of none, scripted, confluence")
	}

	switch c.Journal.Type {
	case "", "memory":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			add("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			add("journal db_path required for SQLite type")
		}
	default:
		add("journal.type must be 'csv', 'sqlite' or 'memory'")
	}

	return errors.Join(errs...)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	table := recovery.DefaultSettingsTable()
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  10000,
		},
		Simulation: SimulationConfig{
			Step:           "1h",
			SpreadPips:     1,
			PriceTimeframe: "H1",
			Seed:           1,
		},
		Data: []DataConfig{
			{Symbol: "EURUSD", Timeframe: "H1", Path: "./data/eurusd_h1.csv"},
		},
		Entry: EntryConfig{Volume: 0.04},
		Recovery: RecoveryConfig{
			Default: table.Default,
			Symbols: table.Symbols,
		},
		Risk: risk.DefaultPolicy(),
		Signals: SignalsConfig{
			Source:     SourceConfluence,
			Confluence: signals.DefaultConfluenceConfig(),
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./recovery.sqlite",
		},
	}
}

func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateTime, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", v)
	}
	return t, nil
}
