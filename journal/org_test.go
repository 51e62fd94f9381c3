package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/recovery/broker"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	exit := time.Date(2024, 3, 15, 14, 20, 30, 0, time.UTC)
	trade := sampleTrade("01HZX4T3ABCDEF", "S9", exit)
	trade.Level = broker.LevelHedge
	trade.LevelNumber = 1

	result := FormatTradeOrg(trade)

	assert.Contains(t, result, "** Trade: EURUSD long hedge#1 (01HZX4T3)")
	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":TRADE_ID: 01HZX4T3ABCDEF")
	assert.Contains(t, result, ":STACK_ID: S9")
	assert.Contains(t, result, ":VOLUME: 0.08")
	assert.Contains(t, result, ":ENTRY_PRICE: 1.17220")
	assert.Contains(t, result, ":EXIT_TIME: 2024-03-15T14:20:30Z")
	assert.Contains(t, result, ":PROFIT: 8.00")
	assert.Contains(t, result, ":END:")
}

func TestFormatTradesOrg(t *testing.T) {
	t.Parallel()

	exit := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	out := FormatTradesOrg([]TradeRecord{sampleTrade("a", "S", exit), sampleTrade("b", "S", exit)})
	assert.Equal(t, 2, strings.Count(out, "** Trade:"))
	assert.Empty(t, FormatTradesOrg(nil))
}

func TestWriteBacktestOrg(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.org")
	run := BacktestRun{
		RunID:        "r1",
		Symbols:      []string{"EURUSD"},
		Timeframe:    "H1",
		StartBalance: 10000,
		EndBalance:   10100,
		NetPL:        100,
		WinRate:      0.5,
		ByReason:     map[string]int{"profit_target": 3, "drawdown_kill": 1},
		NextActions:  []string{"widen grid"},
		OrgPath:      path,
	}
	require.NoError(t, run.WriteBacktestOrg())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "* BACKTEST: recovery EURUSD H1")
	assert.Contains(t, out, ":WIN_RATE:    50.00")
	assert.Contains(t, out, "| drawdown_kill | 1 |")
	assert.Less(t, strings.Index(out, "drawdown_kill"), strings.Index(out, "profit_target"))
	assert.Contains(t, out, "- [ ] widen grid")
}
