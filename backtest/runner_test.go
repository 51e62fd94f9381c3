package backtest

import (
	"bytes"
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/market"
	"github.com/rustyeddy/recovery/recovery"
	"github.com/rustyeddy/recovery/signals"
	"github.com/rustyeddy/recovery/sim"
)

var t0 = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

// wave builds n hourly bars oscillating around 1.1000 by up to 40 pips.
func wave(symbol string, n int) *market.Series {
	s := &market.Series{Symbol: symbol, Timeframe: "H1"}
	for i := 0; i < n; i++ {
		c := market.Round(1.1000+0.0040*math.Sin(float64(i)/6), 5)
		s.Bars = append(s.Bars, market.Bar{
			Time:  t0.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c + 0.0003,
			Low:   c - 0.0003,
			Close: c,
		})
	}
	return s
}

func newRunner(t *testing.T, j journal.Journal, src signals.Source, opts Options) *Runner {
	t.Helper()
	b := sim.NewEngine(sim.Config{
		Account:    broker.Account{ID: "bt", Currency: "USD", Balance: 10000},
		SpreadPips: 1,
		Seed:       42,
	}, j)
	require.NoError(t, b.LoadSeries(wave("EURUSD", 72)))

	set := recovery.DefaultSettings()
	set.ProfitPercent = 0.2
	eng := recovery.NewEngine(b, recovery.SettingsTable{Default: set}, recovery.WithSeed(42))

	return &Runner{Broker: b, Recovery: eng, Source: src, Options: opts}
}

func TestNoSignalsFlatEquity(t *testing.T) {
	t.Parallel()

	r := newRunner(t, nil, signals.None{}, Options{})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 72, res.Steps)
	assert.Empty(t, res.Ledger)
	assert.Empty(t, res.Stacks)
	require.Len(t, res.EquityCurve, 72)
	for _, snap := range res.EquityCurve {
		assert.Equal(t, 10000.0, snap.Equity)
		assert.Equal(t, 10000.0, snap.Balance)
	}
	assert.Equal(t, t0, res.EquityCurve[0].Time)
	assert.Equal(t, 10000.0, res.Balance)
}

func script() *signals.Scripted {
	return signals.NewScripted(
		signals.At(t0.Add(2*time.Hour), "EURUSD", market.Long, 5, "test"),
		signals.At(t0.Add(20*time.Hour), "EURUSD", market.Short, 5, "test"),
		signals.At(t0.Add(40*time.Hour), "EURUSD", market.Long, 5, "test"),
		signals.At(t0.Add(70*time.Hour), "EURUSD", market.Short, 5, "test"),
	)
}

func TestRunClosesEverythingAtEnd(t *testing.T) {
	t.Parallel()

	r := newRunner(t, nil, script(), Options{Volume: 0.08})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Entries)
	require.NotEmpty(t, res.Ledger)
	assert.Empty(t, r.Recovery.Stacks())

	ps, err := r.Broker.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)

	last := res.Stacks[len(res.Stacks)-1]
	assert.Equal(t, recovery.ReasonRunEnd, last.CloseReason)

	sum := 0.0
	for _, rec := range res.Ledger {
		assert.NotEmpty(t, rec.StackID)
		sum += rec.Profit
	}
	assert.InDelta(t, res.StartBalance+sum, res.Balance, 1e-6)
	assert.Equal(t, res.Balance, res.Equity)
}

func TestDeterministicReplay(t *testing.T) {
	t.Parallel()

	run := func() (string, string) {
		var trades, equity bytes.Buffer
		j, err := journal.NewCSVWriters(&trades, &equity)
		require.NoError(t, err)
		r := newRunner(t, j, script(), Options{Volume: 0.08})
		_, err = r.Run(context.Background())
		require.NoError(t, err)
		require.NoError(t, j.Close())
		return trades.String(), equity.String()
	}

	tradesA, equityA := run()
	tradesB, equityB := run()
	assert.Equal(t, tradesA, tradesB)
	assert.Equal(t, equityA, equityB)
	assert.Greater(t, len(bytes.Split([]byte(tradesA), []byte("\n"))), 2)
}

func TestCancelBetweenSteps(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := signals.SourceFunc(func(ctx context.Context, symbol string, h signals.History) (*signals.Signal, error) {
		if h.Now().Equal(t0.Add(9 * time.Hour)) {
			cancel()
		}
		return nil, nil
	})

	r := newRunner(t, nil, src, Options{})
	res, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, res.Steps, "the step in flight completes")
	assert.Len(t, res.EquityCurve, 10)
}

func TestDataGapsAreSkipped(t *testing.T) {
	t.Parallel()

	src := signals.NewConfluence(signals.ConfluenceConfig{FastEMA: 5, SlowEMA: 30, MinScore: 99})
	r := newRunner(t, nil, src, Options{})
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, src.Lookback()-1, res.Gaps)
	assert.Zero(t, res.Entries)
	assert.Zero(t, res.Errors)
}

func TestRunWindowAndValidation(t *testing.T) {
	t.Parallel()

	r := newRunner(t, nil, nil, Options{Start: t0.Add(10 * time.Hour), End: t0.Add(19 * time.Hour)})
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Steps)

	_, err = (&Runner{}).Run(context.Background())
	assert.Error(t, err)

	bad := newRunner(t, nil, nil, Options{Start: t0.Add(5 * time.Hour), End: t0})
	_, err = bad.Run(context.Background())
	assert.ErrorContains(t, err, "before start")
}

func TestRiskSizedVolume(t *testing.T) {
	t.Parallel()

	r := newRunner(t, nil, nil, Options{Volume: 0.05, RiskPercent: 1, RiskStopPips: 50})
	opts := r.options()
	assert.Equal(t, 0.2, r.volume(context.Background(), "EURUSD", opts))

	opts.RiskStopPips = 0
	assert.Equal(t, 0.05, r.volume(context.Background(), "EURUSD", opts))
}

func TestSweepKeepsOrder(t *testing.T) {
	t.Parallel()

	variants := []Variant{
		{Name: "quiet", Build: func() (*Runner, error) { return newRunner(t, nil, nil, Options{}), nil }},
		{Name: "scripted", Build: func() (*Runner, error) { return newRunner(t, nil, script(), Options{Volume: 0.08}), nil }},
		{Name: "broken"},
	}
	out, err := Sweep(context.Background(), variants, 2)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "quiet", out[0].Name)
	assert.NoError(t, out[0].Err)
	assert.Empty(t, out[0].Result.Ledger)

	assert.Equal(t, "scripted", out[1].Name)
	assert.NoError(t, out[1].Err)
	assert.NotEmpty(t, out[1].Result.Ledger)

	assert.Error(t, out[2].Err)
}
