package risk

// Policy caps exposure for entries and recovery adds. Zero values disable
// the corresponding check.
type Policy struct {
	// Exposure limits, in lots
	MaxStackLots float64 `yaml:"max_stack_lots" json:"max_stack_lots"`
	MaxTotalLots float64 `yaml:"max_total_lots" json:"max_total_lots"`

	// Entry limits
	MaxOpenStacks      int `yaml:"max_open_stacks" json:"max_open_stacks"`
	MaxStacksPerSymbol int `yaml:"max_stacks_per_symbol" json:"max_stacks_per_symbol"`
	MinConfluence      int `yaml:"min_confluence" json:"min_confluence"`

	// Circuit breaker: no new stacks once equity is this far below its peak.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxTotalLots:       15.0,
		MaxOpenStacks:      3,
		MaxStacksPerSymbol: 1,
		MaxDrawdownPct:     10.0,
	}
}

// EntryIntent describes a stack about to be opened.
type EntryIntent struct {
	Symbol     string
	Volume     float64
	Confluence int
}

// AddIntent describes a recovery leg about to be added to a stack.
type AddIntent struct {
	StackID string
	Kind    string
	Volume  float64
}

// Exposure is the book as it stands before the intent executes.
type Exposure struct {
	OpenStacks   int
	SymbolStacks int
	StackLots    float64
	TotalLots    float64

	Equity     float64
	PeakEquity float64
}
