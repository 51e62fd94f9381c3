package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := NewGenerator(42)
	b := NewGenerator(42)

	for i := 0; i < 5; i++ {
		ts := t0.Add(time.Duration(i/2) * time.Hour)
		assert.Equal(t, a.New(ts), b.New(ts))
	}
}

func TestGeneratorSortableAndStamped(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(7)

	first := g.New(t0)
	second := g.New(t0)
	third := g.New(t0.Add(time.Hour))

	assert.Less(t, first, second)
	assert.Less(t, second, third)

	parsed, err := ulid.Parse(third)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(t0.Add(time.Hour)), parsed.Time())
}

func TestGeneratorClockNeverGoesBack(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	g := NewGenerator(1)

	later := g.New(t0.Add(time.Hour))
	earlier := g.New(t0)
	assert.Less(t, later, earlier)
}
