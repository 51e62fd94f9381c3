package market

import "strings"

// Instrument carries the contract constants the simulator and the recovery
// engine need for one symbol.
type Instrument struct {
	Symbol       string  `yaml:"symbol" json:"symbol"`
	PipSize      float64 `yaml:"pip_size" json:"pip_size"`
	ContractSize float64 `yaml:"contract_size" json:"contract_size"`
	MinLot       float64 `yaml:"min_lot" json:"min_lot"`
	MaxLot       float64 `yaml:"max_lot" json:"max_lot"`
	LotStep      float64 `yaml:"lot_step" json:"lot_step"`
	Digits       int     `yaml:"digits" json:"digits"`
}

// PipValue is the account value of a one pip move on one lot.
func (in Instrument) PipValue() float64 { return in.PipSize * in.ContractSize }

var DefaultInstrument = Instrument{
	PipSize:      0.0001,
	ContractSize: 100_000,
	MinLot:       0.01,
	MaxLot:       100,
	LotStep:      0.01,
	Digits:       5,
}

// InstrumentTable resolves symbols to instruments with an explicit default,
// so an unknown symbol is never an error.
type InstrumentTable struct {
	Default Instrument
	Symbols map[string]Instrument
}

func DefaultInstruments() InstrumentTable {
	jpy := DefaultInstrument
	jpy.PipSize = 0.01
	jpy.Digits = 3

	table := InstrumentTable{
		Default: DefaultInstrument,
		Symbols: map[string]Instrument{},
	}
	for _, s := range []string{"EURUSD", "GBPUSD", "AUDUSD", "NZDUSD", "USDCAD", "USDCHF", "EURGBP"} {
		in := DefaultInstrument
		in.Symbol = s
		table.Symbols[s] = in
	}
	for _, s := range []string{"USDJPY", "EURJPY", "GBPJPY"} {
		in := jpy
		in.Symbol = s
		table.Symbols[s] = in
	}
	return table
}

// NormalizeSymbol turns "eur_usd" or "EUR/USD" into "EURUSD".
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "/", "", "-", "").Replace(s)
}

// Lookup returns the instrument for symbol, falling back to the table
// default. JPY quoted symbols get a 0.01 pip even on the fallback path.
func (t InstrumentTable) Lookup(symbol string) Instrument {
	key := NormalizeSymbol(symbol)
	if in, ok := t.Symbols[key]; ok {
		return in
	}
	in := t.Default
	if in.PipSize == 0 {
		in = DefaultInstrument
	}
	in.Symbol = key
	if strings.HasSuffix(key, "JPY") {
		in.PipSize = 0.01
		in.Digits = 3
	}
	return in
}

// With returns a copy of the table with in registered under its symbol.
func (t InstrumentTable) With(in Instrument) InstrumentTable {
	out := InstrumentTable{Default: t.Default, Symbols: make(map[string]Instrument, len(t.Symbols)+1)}
	for k, v := range t.Symbols {
		out.Symbols[k] = v
	}
	in.Symbol = NormalizeSymbol(in.Symbol)
	out.Symbols[in.Symbol] = in
	return out
}
