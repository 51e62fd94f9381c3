package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/market"
)

type testJournal struct {
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
	closed bool
}

func (j *testJournal) RecordTrade(rec journal.TradeRecord) error {
	j.trades = append(j.trades, rec)
	return nil
}

func (j *testJournal) RecordEquity(rec journal.EquitySnapshot) error {
	j.equity = append(j.equity, rec)
	return nil
}

func (j *testJournal) Close() error {
	j.closed = true
	return nil
}

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, balance, spread float64) (*Engine, *testJournal) {
	t.Helper()
	j := &testJournal{}
	e := NewEngine(Config{
		Account:    broker.Account{ID: "acct-1", Currency: "USD", Balance: balance},
		SpreadPips: spread,
		Seed:       1,
	}, j)
	return e, j
}

// setPrice appends an hourly bar closing at price and advances the clock to it.
func setPrice(t *testing.T, e *Engine, symbol string, price float64, tm time.Time) {
	t.Helper()
	require.NoError(t, e.AppendBar(symbol, market.Bar{Time: tm, Open: price, High: price, Low: price, Close: price}))
	require.NoError(t, e.Advance(tm))
}

func openMarket(t *testing.T, e *Engine, symbol string, side market.Side, vol float64, sl, tp *float64) broker.Fill {
	t.Helper()
	fill, err := e.Open(context.Background(), broker.OpenRequest{
		Symbol:     symbol,
		Side:       side,
		Volume:     vol,
		StopLoss:   sl,
		TakeProfit: tp,
		Meta:       broker.Meta{StackID: "S1", Level: broker.LevelRoot},
	})
	require.NoError(t, err)
	return fill
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSpreadModel(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10000, 2)
	setPrice(t, e, "EURUSD", 1.1000, t0)

	long := openMarket(t, e, "EURUSD", market.Long, 0.10, nil, nil)
	short := openMarket(t, e, "EURUSD", market.Short, 0.10, nil, nil)

	assert.Equal(t, 1.1002, long.Price)
	assert.Equal(t, 1.1000, short.Price)

	// longs are marked at the bid, so they start two pips under water
	acct, err := e.Account(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -2.0, acct.Floating, 1e-9)
	assert.InDelta(t, 10000-2.0, acct.Equity, 1e-9)
}

func TestEquityIsBalancePlusFloating(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)
	setPrice(t, e, "USDJPY", 150.00, t0.Add(time.Second))

	openMarket(t, e, "EURUSD", market.Long, 0.10, nil, nil)
	openMarket(t, e, "USDJPY", market.Short, 0.01, nil, nil)

	setPrice(t, e, "EURUSD", 1.1010, t0.Add(time.Hour))

	acct, err := e.Account(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, acct.Floating, 1e-9)
	assert.InDelta(t, acct.Balance+acct.Floating, acct.Equity, 1e-9)
}

func TestNoLookAhead(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10000, 0)
	s := &market.Series{Symbol: "EURUSD", Timeframe: "H1", Bars: []market.Bar{
		{Time: t0, Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1000},
		{Time: t0.Add(time.Hour), Open: 1.2, High: 1.2, Low: 1.2, Close: 1.2000},
	}}
	require.NoError(t, e.LoadSeries(s))

	require.NoError(t, e.Advance(t0.Add(59*time.Minute)))
	q, err := e.Quote(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1000, q.Bid)

	bars, err := e.History("EURUSD", "H1", 1)
	require.NoError(t, err)
	assert.Equal(t, t0, bars[0].Time)

	_, err = e.History("EURUSD", "H1", 2)
	var gap *market.DataGapError
	assert.True(t, errors.As(err, &gap))

	assert.Error(t, e.Advance(t0), "clock must not go backwards")
}

func TestNoQuoteBeforeFirstBar(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10000, 0)
	require.NoError(t, e.AppendBar("EURUSD", market.Bar{Time: t0, Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1}))
	require.NoError(t, e.Advance(t0.Add(-time.Hour)))

	_, err := e.Quote(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, broker.ErrNoPrice)

	_, err = e.Open(context.Background(), broker.OpenRequest{Symbol: "EURUSD", Side: market.Long, Volume: 0.1})
	assert.ErrorIs(t, err, broker.ErrExecutionRejected)
}

func TestStopsFillAtThreshold(t *testing.T) {
	t.Parallel()

	t.Run("long stop", func(t *testing.T) {
		e, j := newEngine(t, 10000, 0)
		setPrice(t, e, "EURUSD", 1.1000, t0)
		sl := 1.0990
		fill := openMarket(t, e, "EURUSD", market.Long, 0.10, &sl, nil)

		setPrice(t, e, "EURUSD", 1.0950, t0.Add(time.Hour))
		closed, err := e.ApplyStops()
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, fill.LegID, closed[0].ID)
		assert.Equal(t, "stop_loss", closed[0].CloseReason)

		require.Len(t, j.trades, 1)
		assert.Equal(t, 1.0990, j.trades[0].ExitPrice)
		assert.InDelta(t, -10.0, j.trades[0].Profit, 1e-9)

		acct, _ := e.Account(context.Background())
		assert.True(t, approxEqual(acct.Balance, 9990, 1e-9))
		assert.True(t, approxEqual(acct.Equity, acct.Balance, 1e-9))
	})

	t.Run("short take profit", func(t *testing.T) {
		e, j := newEngine(t, 10000, 0)
		setPrice(t, e, "EURUSD", 1.1000, t0)
		tp := 1.0980
		openMarket(t, e, "EURUSD", market.Short, 0.10, nil, &tp)

		setPrice(t, e, "EURUSD", 1.0970, t0.Add(time.Hour))
		closed, err := e.ApplyStops()
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, "take_profit", j.trades[0].Reason)
		assert.InDelta(t, 20.0, j.trades[0].Profit, 1e-9)

		pos, err := e.Positions(context.Background())
		require.NoError(t, err)
		assert.Empty(t, pos)
	})
}

func TestPartialCloseClampsToHolding(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)
	fill := openMarket(t, e, "EURUSD", market.Long, 0.06, nil, nil)

	out, err := e.PartialClose(context.Background(), fill.LegID, 0.10, "")
	require.NoError(t, err)
	assert.Equal(t, 0.06, out.Volume)
	assert.True(t, out.Closed)

	require.Len(t, j.trades, 1)
	assert.Equal(t, fill.LegID, j.trades[0].TradeID)
	assert.Equal(t, 0.06, j.trades[0].Volume)

	pos, err := e.Position(context.Background(), fill.LegID)
	require.NoError(t, err)
	assert.False(t, pos.Open)
}

func TestPartialCloseSlice(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)
	fill := openMarket(t, e, "EURUSD", market.Long, 0.10, nil, nil)
	setPrice(t, e, "EURUSD", 1.1010, t0.Add(time.Hour))

	out, err := e.PartialClose(context.Background(), fill.LegID, 0.04, "partial_close")
	require.NoError(t, err)
	assert.False(t, out.Closed)
	assert.Equal(t, 0.06, out.Remaining)
	assert.InDelta(t, 4.0, out.Profit, 1e-9)

	pos, err := e.Position(context.Background(), fill.LegID)
	require.NoError(t, err)
	assert.True(t, pos.Open)
	assert.Equal(t, 0.06, pos.Volume)
	assert.InDelta(t, 4.0, pos.Realized, 1e-9)
	assert.InDelta(t, 6.0, pos.Profit, 1e-9)

	require.Len(t, j.trades, 1)
	assert.Equal(t, fill.LegID+".1", j.trades[0].TradeID)
	assert.Equal(t, fill.LegID, j.trades[0].LegID)
}

func TestVolumeClamped(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)

	small := openMarket(t, e, "EURUSD", market.Long, 0.001, nil, nil)
	assert.Equal(t, 0.01, small.Volume)

	big := openMarket(t, e, "EURUSD", market.Long, 500, nil, nil)
	assert.Equal(t, 100.0, big.Volume)

	_, err := e.Open(context.Background(), broker.OpenRequest{Symbol: "EURUSD", Side: market.Long, Volume: -1})
	var rej *broker.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, RetInvalidVolume, rej.Code)
}

func TestRejecter(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)
	fill := openMarket(t, e, "EURUSD", market.Long, 0.10, nil, nil)

	e.SetRejecter(func(op Op, symbol, legID string) error {
		return broker.Reject(string(op), 10018, "market closed")
	})

	_, err := e.Open(context.Background(), broker.OpenRequest{Symbol: "EURUSD", Side: market.Short, Volume: 0.1})
	var rej *broker.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 10018, rej.Code)

	_, err = e.Close(context.Background(), fill.LegID, "manual")
	assert.ErrorIs(t, err, broker.ErrExecutionRejected)
	assert.Empty(t, j.trades)

	pos, err := e.Positions(context.Background())
	require.NoError(t, err)
	assert.Len(t, pos, 1)

	e.SetRejecter(func(Op, string, string) error { return errors.New("busy") })
	_, err = e.Close(context.Background(), fill.LegID, "manual")
	assert.True(t, errors.As(err, &rej))
	assert.Equal(t, RetRejected, rej.Code)

	e.SetRejecter(nil)
	_, err = e.Close(context.Background(), fill.LegID, "manual")
	require.NoError(t, err)

	_, err = e.Close(context.Background(), fill.LegID, "manual")
	assert.ErrorIs(t, err, broker.ErrExecutionRejected)

	_, err = e.Close(context.Background(), "nope", "manual")
	assert.ErrorIs(t, err, broker.ErrUnknownPosition)
}

func TestCloseAllKeepsOpenOrder(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)
	a := openMarket(t, e, "EURUSD", market.Long, 0.10, nil, nil)
	b := openMarket(t, e, "EURUSD", market.Short, 0.20, nil, nil)

	fills, err := e.CloseAll(context.Background(), "run_end")
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, a.LegID, j.trades[0].TradeID)
	assert.Equal(t, b.LegID, j.trades[1].TradeID)
	assert.Equal(t, "run_end", j.trades[1].Reason)
	assert.Equal(t, "S1", j.trades[1].StackID)

	snap, err := e.RecordEquity()
	require.NoError(t, err)
	assert.Equal(t, t0, snap.Time)
	assert.Len(t, j.equity, 1)
}

func TestDeterministicIDs(t *testing.T) {
	t.Parallel()

	run := func() []string {
		e, _ := newEngine(t, 10000, 0)
		setPrice(t, e, "EURUSD", 1.1000, t0)
		var ids []string
		for i := 0; i < 3; i++ {
			ids = append(ids, openMarket(t, e, "EURUSD", market.Long, 0.01, nil, nil).LegID)
		}
		return ids
	}
	assert.Equal(t, run(), run())
}

func TestLedgerMatchesJournal(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, 10000, 0)
	setPrice(t, e, "EURUSD", 1.1000, t0)
	a := openMarket(t, e, "EURUSD", market.Long, 0.10, nil, nil)
	b := openMarket(t, e, "EURUSD", market.Short, 0.05, nil, nil)
	setPrice(t, e, "EURUSD", 1.1010, t0.Add(time.Hour))

	_, err := e.PartialClose(context.Background(), a.LegID, 0.04, "partial_close")
	require.NoError(t, err)
	_, err = e.Close(context.Background(), b.LegID, "manual")
	require.NoError(t, err)

	ledger := e.Ledger()
	require.Len(t, ledger, 2)
	assert.Equal(t, j.trades, ledger)
	assert.Equal(t, a.LegID+".1", ledger[0].TradeID)
	assert.Equal(t, "manual", ledger[1].Reason)

	ledger[0].Profit = 999
	assert.NotEqual(t, 999.0, e.Ledger()[0].Profit)
}

func TestSpanUsesPriceTimeframe(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, 10000, 0)
	first, last := e.Span()
	assert.True(t, first.IsZero())
	assert.True(t, last.IsZero())

	eur := &market.Series{Symbol: "EURUSD", Timeframe: "H1", Bars: []market.Bar{
		{Time: t0, Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1},
		{Time: t0.Add(time.Hour), Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1},
	}}
	gbp := &market.Series{Symbol: "GBPUSD", Timeframe: "H1", Bars: []market.Bar{
		{Time: t0.Add(-time.Hour), Open: 1.3, High: 1.3, Low: 1.3, Close: 1.3},
	}}
	daily := &market.Series{Symbol: "EURUSD", Timeframe: "D1", Bars: []market.Bar{
		{Time: t0.Add(-72 * time.Hour), Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1},
	}}
	for _, s := range []*market.Series{eur, gbp, daily} {
		require.NoError(t, e.LoadSeries(s))
	}

	first, last = e.Span()
	assert.Equal(t, t0.Add(-time.Hour), first)
	assert.Equal(t, t0.Add(time.Hour), last)
}
