package signals

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/recovery/market"
)

type scriptKey struct {
	symbol string
	at     int64
}

// Scripted replays signals at fixed simulation times. Useful for tests and
// for replaying signals recorded elsewhere.
type Scripted struct {
	mu      sync.Mutex
	signals map[scriptKey]Signal
}

func NewScripted(sigs ...Signal) *Scripted {
	s := &Scripted{signals: make(map[scriptKey]Signal)}
	for _, sig := range sigs {
		s.Add(sig)
	}
	return s
}

// Add schedules sig for sig.Time. A later Add for the same symbol and time
// replaces the earlier one.
func (s *Scripted) Add(sig Signal) {
	sig.Symbol = market.NormalizeSymbol(sig.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[scriptKey{sig.Symbol, sig.Time.UnixNano()}] = sig
}

func (s *Scripted) Evaluate(_ context.Context, symbol string, h History) (*Signal, error) {
	now := h.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[scriptKey{market.NormalizeSymbol(symbol), now.UnixNano()}]
	if !ok {
		return nil, nil
	}
	sig.Factors = append([]string(nil), sig.Factors...)
	return &sig, nil
}

// Len is the number of scheduled signals.
func (s *Scripted) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}

var _ Source = (*Scripted)(nil)

// At is shorthand for a scripted signal.
func At(t time.Time, symbol string, side market.Side, score int, factors ...string) Signal {
	return Signal{Symbol: symbol, Side: side, ConfluenceScore: score, Factors: factors, Time: t}
}
