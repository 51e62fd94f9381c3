package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/recovery/config"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/recovery"
)

var t0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeRun writes 48 hourly EURUSD bars and a config that buys at bar 30.
func writeRun(t *testing.T, dir string) string {
	t.Helper()
	var csv strings.Builder
	csv.WriteString("time,open,high,low,close\n")
	for i := 0; i < 48; i++ {
		c := 1.1000 + 0.0030*math.Sin(float64(i)/5)
		fmt.Fprintf(&csv, "%s,%.5f,%.5f,%.5f,%.5f\n",
			t0.Add(time.Duration(i)*time.Hour).Format(time.RFC3339), c, c+0.0002, c-0.0002, c)
	}
	bars := filepath.Join(dir, "eurusd_h1.csv")
	require.NoError(t, os.WriteFile(bars, []byte(csv.String()), 0644))

	cfg := config.Default()
	cfg.Data = []config.DataConfig{{Symbol: "EURUSD", Timeframe: "H1", Path: bars}}
	cfg.Signals = config.SignalsConfig{
		Source: config.SourceScripted,
		Scripted: []config.ScriptedSignal{
			{Time: t0.Add(30 * time.Hour).Format(time.RFC3339), Symbol: "EURUSD", Side: "buy", Score: 5},
		},
	}
	cfg.Journal = config.JournalConfig{Type: "memory"}

	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bt.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = execute(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "EURUSD")
}

func TestBacktestWritesJournalAndReports(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeRun(t, dir)
	db := filepath.Join(dir, "bt.sqlite")
	html := filepath.Join(dir, "equity.html")
	prom := filepath.Join(dir, "run.prom")

	out, err := execute(t, "backtest", "-c", cfgPath, "-d", db, "--html", html, "--metrics", prom)
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Stacks:        1")
	assert.Contains(t, out, "Run ID: ")

	assert.FileExists(t, html)
	raw, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `recovery_stacks_opened_total{symbol="EURUSD"} 1`)

	j, err := journal.NewSQLite(db)
	require.NoError(t, err)
	start, end, err := dayBounds(time.UTC, t0.Add(47*time.Hour).Format(time.DateOnly))
	require.NoError(t, err)
	recs, err := j.ListTradesClosedBetween(start, end)
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NotEmpty(t, recs)

	out, err = execute(t, "journal", "-d", db, "stack", recs[0].StackID)
	require.NoError(t, err)
	assert.Contains(t, out, recs[0].TradeID[len(recs[0].TradeID)-6:])
}

func TestSweepPrintsOneRowPerSpacing(t *testing.T) {
	cfgPath := writeRun(t, t.TempDir())

	out, err := execute(t, "sweep", "-c", cfgPath, "--grid-spacing", "8,12,20", "-p", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "grid=8 "))
	assert.True(t, strings.HasPrefix(lines[3], "grid=20 "))
}

func TestWithGridSpacing(t *testing.T) {
	t.Parallel()

	table := withGridSpacing(recovery.DefaultSettingsTable(), 15)
	assert.Equal(t, 15.0, table.Default.GridSpacingPips)
	assert.Equal(t, 15.0, table.For("GBPUSD").GridSpacingPips)
	assert.Equal(t, 55.0, table.For("GBPUSD").TakeProfitPips)

	assert.Equal(t, 12.0, recovery.DefaultSettingsTable().For("EURUSD").GridSpacingPips)
}

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := dayBounds(time.UTC, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "15/01/2024")
	assert.Error(t, err)
}
