package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingJournal struct{ err error }

func (f failingJournal) RecordTrade(TradeRecord) error     { return f.err }
func (f failingJournal) RecordEquity(EquitySnapshot) error { return f.err }
func (f failingJournal) Close() error                      { return f.err }

func TestMemoryCopies(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	exit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.RecordTrade(sampleTrade("a", "S", exit)))
	require.NoError(t, m.RecordEquity(EquitySnapshot{Time: exit, Equity: 1}))

	trades := m.Trades()
	trades[0].TradeID = "mutated"
	assert.Equal(t, "a", m.Trades()[0].TradeID)
	assert.Len(t, m.Equity(), 1)
}

func TestMemoryReadableAfterClose(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	exit := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.RecordTrade(sampleTrade("a", "S", exit)))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Len(t, m.Trades(), 1)
	require.NoError(t, m.RecordEquity(EquitySnapshot{Time: exit, Equity: 1}))
	assert.Len(t, m.Equity(), 1)
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	t.Parallel()

	a, b := NewMemory(), NewMemory()
	boom := errors.New("disk full")
	j := Multi(a, nil, failingJournal{boom}, b)

	err := j.RecordTrade(sampleTrade("x", "S", time.Unix(0, 0)))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.Trades(), 1)
	assert.Len(t, b.Trades(), 1)

	assert.NoError(t, Multi(a, b).RecordEquity(EquitySnapshot{}))
}
