package id

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out ULIDs stamped with a caller supplied time.
//
// The entropy source is a PRNG seeded at construction, so two generators
// created with the same seed and fed the same timestamps produce the same
// sequence of ids. Simulation code passes the simulation clock, never the
// wall clock.
type Generator struct {
	mu   sync.Mutex
	mono io.Reader
	last uint64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// New returns a ULID string for time t. Timestamps earlier than the previous
// call are pinned to the previous millisecond so ids stay sortable.
func (g *Generator) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(t.UTC())
	if t.IsZero() || ms < g.last {
		ms = g.last
	}
	g.last = ms

	id, err := ulid.New(ms, g.mono)
	if err != nil {
		// Only possible when the monotonic entropy overflows inside one millisecond.
		panic(err)
	}
	return id.String()
}
