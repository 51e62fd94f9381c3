package recovery

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/recovery/market"
)

// PartialLevel closes ClosePercent of the stack's open volume once net
// profit reaches TriggerPercent of the profit target.
type PartialLevel struct {
	TriggerPercent float64 `yaml:"trigger_percent" json:"trigger_percent"`
	ClosePercent   float64 `yaml:"close_percent" json:"close_percent"`
}

// Settings tune recovery for one instrument. A zero maximum disables the
// corresponding mechanism; a zero threshold disables the kill-switch or
// exit it feeds.
type Settings struct {
	GridSpacingPips float64 `yaml:"grid_spacing_pips" json:"grid_spacing_pips"`
	MaxGridLevels   int     `yaml:"max_grid_levels" json:"max_grid_levels"`
	// GridLotSize of zero reuses the root volume.
	GridLotSize float64 `yaml:"grid_lot_size" json:"grid_lot_size"`

	HedgeTriggerPips float64 `yaml:"hedge_trigger_pips" json:"hedge_trigger_pips"`
	HedgeRatio       float64 `yaml:"hedge_ratio" json:"hedge_ratio"`
	MaxHedges        int     `yaml:"max_hedges" json:"max_hedges"`

	DCATriggerPips     float64 `yaml:"dca_trigger_pips" json:"dca_trigger_pips"`
	MaxDCALevels       int     `yaml:"max_dca_levels" json:"max_dca_levels"`
	DCAMultiplier      float64 `yaml:"dca_multiplier" json:"dca_multiplier"`
	DCAMaxDrawdownPips float64 `yaml:"dca_max_drawdown_pips" json:"dca_max_drawdown_pips"`
	DCAMaxTotalLots    float64 `yaml:"dca_max_total_lots" json:"dca_max_total_lots"`

	TakeProfitPips     float64 `yaml:"take_profit_pips" json:"take_profit_pips"`
	DrawdownMultiplier float64 `yaml:"drawdown_multiplier" json:"drawdown_multiplier"`
	ProfitPercent      float64 `yaml:"profit_percent" json:"profit_percent"`
	MaxHoldHours       float64 `yaml:"max_hold_hours" json:"max_hold_hours"`

	PartialCloses []PartialLevel `yaml:"partial_closes,omitempty" json:"partial_closes,omitempty"`
}

const DefaultDrawdownMultiplier = 1.35

func DefaultSettings() Settings {
	return Settings{
		GridSpacingPips:    8,
		MaxGridLevels:      4,
		GridLotSize:        0.04,
		HedgeTriggerPips:   8,
		HedgeRatio:         5,
		MaxHedges:          1,
		DCATriggerPips:     20,
		MaxDCALevels:       4,
		DCAMultiplier:      2.0,
		TakeProfitPips:     10,
		DrawdownMultiplier: DefaultDrawdownMultiplier,
		ProfitPercent:      0.5,
		MaxHoldHours:       12,
	}
}

func (s Settings) Validate() error {
	var errs []error
	if s.MaxGridLevels < 0 || s.MaxHedges < 0 || s.MaxDCALevels < 0 {
		errs = append(errs, errors.New("level counts must not be negative"))
	}
	if s.MaxGridLevels > 0 && s.GridSpacingPips <= 0 {
		errs = append(errs, errors.New("grid_spacing_pips must be > 0 when grid is enabled"))
	}
	if s.GridLotSize < 0 {
		errs = append(errs, errors.New("grid_lot_size must not be negative"))
	}
	if s.MaxHedges > 0 {
		if s.HedgeTriggerPips <= 0 {
			errs = append(errs, errors.New("hedge_trigger_pips must be > 0 when hedging is enabled"))
		}
		if s.HedgeRatio <= 0 {
			errs = append(errs, errors.New("hedge_ratio must be > 0 when hedging is enabled"))
		}
	}
	if s.MaxDCALevels > 0 {
		if s.DCATriggerPips <= 0 {
			errs = append(errs, errors.New("dca_trigger_pips must be > 0 when DCA is enabled"))
		}
		if s.DCAMultiplier <= 0 {
			errs = append(errs, errors.New("dca_multiplier must be > 0 when DCA is enabled"))
		}
	}
	if s.TakeProfitPips < 0 || s.DrawdownMultiplier < 0 || s.ProfitPercent < 0 || s.MaxHoldHours < 0 {
		errs = append(errs, errors.New("thresholds must not be negative"))
	}
	for i, p := range s.PartialCloses {
		if p.TriggerPercent <= 0 || p.ClosePercent <= 0 || p.ClosePercent > 100 {
			errs = append(errs, fmt.Errorf("partial_closes[%d]: trigger must be > 0 and close in (0, 100]", i))
		}
	}
	return errors.Join(errs...)
}

// SettingsTable maps symbols to settings with an explicit default.
type SettingsTable struct {
	Default Settings            `yaml:"default" json:"default"`
	Symbols map[string]Settings `yaml:"symbols" json:"symbols"`
}

// DefaultSettingsTable carries the tuned majors.
func DefaultSettingsTable() SettingsTable {
	eur := DefaultSettings()
	eur.GridSpacingPips = 12
	eur.DCATriggerPips = 30
	eur.HedgeTriggerPips = 45
	eur.DCAMultiplier = 1.5
	eur.MaxDCALevels = 3
	eur.TakeProfitPips = 40

	gbp := DefaultSettings()
	gbp.GridSpacingPips = 18
	gbp.DCATriggerPips = 40
	gbp.HedgeTriggerPips = 55
	gbp.DCAMultiplier = 1.5
	gbp.MaxDCALevels = 3
	gbp.TakeProfitPips = 55

	return SettingsTable{
		Default: DefaultSettings(),
		Symbols: map[string]Settings{
			"EURUSD": eur,
			"GBPUSD": gbp,
		},
	}
}

// For returns the settings for symbol, falling back to Default.
func (t SettingsTable) For(symbol string) Settings {
	if s, ok := t.Symbols[market.NormalizeSymbol(symbol)]; ok {
		return s
	}
	return t.Default
}

// With returns a copy of the table with symbol set to s.
func (t SettingsTable) With(symbol string, s Settings) SettingsTable {
	out := SettingsTable{Default: t.Default, Symbols: make(map[string]Settings, len(t.Symbols)+1)}
	for k, v := range t.Symbols {
		out.Symbols[k] = v
	}
	out.Symbols[market.NormalizeSymbol(symbol)] = s
	return out
}

func (t SettingsTable) Validate() error {
	var errs []error
	if err := t.Default.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("default: %w", err))
	}
	for sym, s := range t.Symbols {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
		}
	}
	return errors.Join(errs...)
}
