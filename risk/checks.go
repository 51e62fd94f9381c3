package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins violation codes for logging.
func (d Decision) Reason() string {
	out := ""
	for i, v := range d.Violations {
		if i > 0 {
			out += "; "
		}
		out += v.Code + ": " + v.Msg
	}
	return out
}

func exceeds(current, add, limit float64) (float64, bool) {
	total := decimal.NewFromFloat(current).Add(decimal.NewFromFloat(add))
	f, _ := total.Float64()
	return f, total.GreaterThan(decimal.NewFromFloat(limit))
}

func EvaluateEntry(p Policy, intent EntryIntent, x Exposure) Decision {
	d := Decision{Allowed: true}

	if intent.Volume <= 0 {
		d.add("NO_VOLUME", "volume must be positive")
		return d
	}
	if p.MinConfluence > 0 && intent.Confluence < p.MinConfluence {
		d.add("LOW_CONFLUENCE",
			fmt.Sprintf("confluence %d below minimum %d", intent.Confluence, p.MinConfluence))
	}
	if p.MaxOpenStacks > 0 && x.OpenStacks >= p.MaxOpenStacks {
		d.add("TOO_MANY_STACKS",
			fmt.Sprintf("open stacks %d >= max %d", x.OpenStacks, p.MaxOpenStacks))
	}
	if p.MaxStacksPerSymbol > 0 && x.SymbolStacks >= p.MaxStacksPerSymbol {
		d.add("SYMBOL_BUSY",
			fmt.Sprintf("%s already has %d open stacks (max %d)", intent.Symbol, x.SymbolStacks, p.MaxStacksPerSymbol))
	}
	if p.MaxTotalLots > 0 {
		if total, over := exceeds(x.TotalLots, intent.Volume, p.MaxTotalLots); over {
			d.add("TOTAL_EXPOSURE",
				fmt.Sprintf("total exposure %.2f > %.2f lots", total, p.MaxTotalLots))
		}
	}
	if p.MaxDrawdownPct > 0 && x.PeakEquity > 0 {
		dd := 100 * (x.PeakEquity - x.Equity) / x.PeakEquity
		if dd >= p.MaxDrawdownPct {
			d.add("ACCOUNT_DRAWDOWN",
				fmt.Sprintf("account drawdown %.2f%% >= limit %.2f%%", dd, p.MaxDrawdownPct))
		}
	}
	return d
}

func EvaluateAdd(p Policy, intent AddIntent, x Exposure) Decision {
	d := Decision{Allowed: true}

	if intent.Volume <= 0 {
		d.add("NO_VOLUME", "volume must be positive")
		return d
	}
	if p.MaxStackLots > 0 {
		if total, over := exceeds(x.StackLots, intent.Volume, p.MaxStackLots); over {
			d.add("STACK_EXPOSURE",
				fmt.Sprintf("stack %s exposure %.2f > %.2f lots", intent.StackID, total, p.MaxStackLots))
		}
	}
	if p.MaxTotalLots > 0 {
		if total, over := exceeds(x.TotalLots, intent.Volume, p.MaxTotalLots); over {
			d.add("TOTAL_EXPOSURE",
				fmt.Sprintf("total exposure %.2f > %.2f lots", total, p.MaxTotalLots))
		}
	}
	return d
}
