package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func codes(d Decision) []string {
	var out []string
	for _, v := range d.Violations {
		out = append(out, v.Code)
	}
	return out
}

func TestEvaluateEntry(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	p.MinConfluence = 4

	tests := []struct {
		name   string
		intent EntryIntent
		x      Exposure
		want   []string
	}{
		{"allowed", EntryIntent{"EURUSD", 0.08, 5}, Exposure{OpenStacks: 1}, nil},
		{"low confluence", EntryIntent{"EURUSD", 0.08, 3}, Exposure{}, []string{"LOW_CONFLUENCE"}},
		{"symbol busy", EntryIntent{"EURUSD", 0.08, 4}, Exposure{OpenStacks: 1, SymbolStacks: 1}, []string{"SYMBOL_BUSY"}},
		{"too many stacks", EntryIntent{"GBPUSD", 0.08, 4}, Exposure{OpenStacks: 3}, []string{"TOO_MANY_STACKS"}},
		{"total lots", EntryIntent{"GBPUSD", 0.08, 4}, Exposure{TotalLots: 14.95}, []string{"TOTAL_EXPOSURE"}},
		{"exactly at total is fine", EntryIntent{"GBPUSD", 0.05, 4}, Exposure{TotalLots: 14.95}, nil},
		{"account drawdown", EntryIntent{"GBPUSD", 0.08, 4}, Exposure{Equity: 9000, PeakEquity: 10000}, []string{"ACCOUNT_DRAWDOWN"}},
		{"no volume", EntryIntent{"GBPUSD", 0, 4}, Exposure{}, []string{"NO_VOLUME"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := EvaluateEntry(p, tt.intent, tt.x)
			assert.Equal(t, tt.want, codes(d))
			assert.Equal(t, len(tt.want) == 0, d.Allowed)
		})
	}
}

func TestEvaluateAdd(t *testing.T) {
	t.Parallel()

	p := Policy{MaxStackLots: 1.0, MaxTotalLots: 2.0}

	d := EvaluateAdd(p, AddIntent{StackID: "S", Kind: "hedge", Volume: 0.40}, Exposure{StackLots: 0.5, TotalLots: 0.5})
	assert.True(t, d.Allowed)

	d = EvaluateAdd(p, AddIntent{StackID: "S", Kind: "dca", Volume: 0.60}, Exposure{StackLots: 0.5, TotalLots: 1.5})
	assert.Equal(t, []string{"STACK_EXPOSURE", "TOTAL_EXPOSURE"}, codes(d))
	assert.Contains(t, d.Reason(), "STACK_EXPOSURE: stack S exposure 1.10 > 1.00 lots")

	assert.True(t, EvaluateAdd(Policy{}, AddIntent{Volume: 50}, Exposure{TotalLots: 1000}).Allowed)
}
