package report

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/recovery"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func ledger() []journal.TradeRecord {
	return []journal.TradeRecord{
		{TradeID: "a", StackID: "S1", Level: broker.LevelRoot, Profit: -12, ExitTime: t0.Add(5 * time.Hour), Reason: "drawdown_kill"},
		{TradeID: "b", StackID: "S1", Level: broker.LevelGrid, Profit: -4, ExitTime: t0.Add(5 * time.Hour), Reason: "drawdown_kill"},
		{TradeID: "c", StackID: "S1", Level: broker.LevelHedge, Profit: 6, ExitTime: t0.Add(5 * time.Hour), Reason: "drawdown_kill"},
		{TradeID: "d", StackID: "S2", Level: broker.LevelRoot, Profit: 30, ExitTime: t0.Add(8 * time.Hour), Reason: "profit_target"},
	}
}

func curve(values ...float64) []journal.EquitySnapshot {
	out := make([]journal.EquitySnapshot, len(values))
	for i, v := range values {
		out[i] = journal.EquitySnapshot{Time: t0.Add(time.Duration(i) * time.Hour), Balance: v, Equity: v}
	}
	return out
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize(1000, ledger(), curve(1000, 1010, 909, 990, 1020))

	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.Equal(t, 2, s.Stacks)
	assert.InDelta(t, 20.0, s.NetPL, 1e-9)
	assert.InDelta(t, 1020.0, s.EndBalance, 1e-9)
	assert.InDelta(t, 2.0, s.ReturnPct, 1e-9)
	assert.InDelta(t, 50.0, s.WinRate, 1e-9)
	assert.InDelta(t, 36.0/16.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 10.0, s.MaxDDPct, 1e-9)
	assert.Equal(t, map[string]int{"drawdown_kill": 1, "profit_target": 1}, s.ByReason)
	assert.Equal(t, Bucket{Trades: 2, Profit: 18}, s.ByLevel[broker.LevelRoot])
	assert.Equal(t, []string{"drawdown_kill", "profit_target"}, s.Reasons())
	assert.Equal(t, t0, s.Start)
}

func TestSummarizeEdges(t *testing.T) {
	t.Parallel()

	empty := Summarize(5000, nil, curve(5000, 5000))
	assert.Zero(t, empty.Trades)
	assert.Zero(t, empty.MaxDDPct)
	assert.Equal(t, 5000.0, empty.EndBalance)

	onlyWins := Summarize(100, ledger()[3:], nil)
	assert.True(t, math.IsInf(onlyWins.ProfitFactor, 1))

	var run journal.BacktestRun
	onlyWins.Fill(&run)
	assert.Zero(t, run.ProfitFactor)
	assert.Equal(t, 1, run.Stacks)
	assert.Equal(t, 1, run.ByReason["profit_target"])
	assert.Equal(t, 1.0, run.WinRate)
}

func TestCountStacks(t *testing.T) {
	t.Parallel()

	closed := func(id, reason string) recovery.Stack {
		return recovery.Stack{ID: id, Status: recovery.StackClosed, CloseReason: reason}
	}
	purgedLedger := []journal.TradeRecord{
		{TradeID: "g", StackID: "S1", Level: broker.LevelGrid, Profit: 8, ExitTime: t0.Add(time.Hour), Reason: recovery.ReasonPartialClose},
		{TradeID: "d", StackID: "S2", Level: broker.LevelRoot, Profit: 30, ExitTime: t0.Add(8 * time.Hour), Reason: recovery.ReasonProfitTarget},
	}

	tests := []struct {
		name       string
		ledger     []journal.TradeRecord
		stacks     []recovery.Stack
		wantStacks int
		want       map[string]int
	}{
		{
			name:       "integrity purge after a partial close",
			ledger:     purgedLedger,
			stacks:     []recovery.Stack{closed("S1", recovery.ReasonIntegrity), closed("S2", recovery.ReasonProfitTarget)},
			wantStacks: 2,
			want:       map[string]int{recovery.ReasonIntegrity: 1, recovery.ReasonProfitTarget: 1},
		},
		{
			name:       "purged stack with no ledger records",
			ledger:     purgedLedger[1:],
			stacks:     []recovery.Stack{closed("S2", recovery.ReasonProfitTarget), closed("S3", recovery.ReasonIntegrity)},
			wantStacks: 2,
			want:       map[string]int{recovery.ReasonIntegrity: 1, recovery.ReasonProfitTarget: 1},
		},
		{
			name:       "open stacks carry no reason",
			ledger:     purgedLedger,
			stacks:     []recovery.Stack{{ID: "S1", Status: recovery.StackOpen}, closed("S2", recovery.ReasonProfitTarget)},
			wantStacks: 2,
			want:       map[string]int{recovery.ReasonProfitTarget: 1},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := Summarize(1000, tt.ledger, nil)
			s.CountStacks(tt.stacks)
			assert.Equal(t, tt.wantStacks, s.Stacks)
			assert.Equal(t, tt.want, s.ByReason)

			var run journal.BacktestRun
			s.Fill(&run)
			assert.Equal(t, tt.want, run.ByReason)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	PrintSummary(&buf, Summarize(1000, ledger(), curve(1000, 1020)))
	out := buf.String()

	assert.Contains(t, out, "Stacks:        2")
	assert.Contains(t, out, "drawdown_kill:  1")
	assert.Contains(t, out, "hedge  trades 1")
	assert.Contains(t, out, "Profit Factor: 2.25")
}

func TestRenderEquityHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderEquityHTML(&buf, "EURUSD recovery", curve(1000, 1005, 998)))
	assert.Contains(t, buf.String(), "EURUSD recovery")
	assert.Contains(t, buf.String(), "echarts")

	assert.Error(t, RenderEquityHTML(&buf, "x", nil))

	path := filepath.Join(t.TempDir(), "equity.html")
	require.NoError(t, WriteEquityHTML(path, "run", curve(1, 2)))
}
