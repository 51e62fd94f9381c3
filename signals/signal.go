// Package signals produces entry signals for new stacks and exit signals for
// legs that never needed recovery.
package signals

import (
	"context"
	"time"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
)

// Signal asks for a root leg. Factors are the names of the conditions that
// agreed with Side.
type Signal struct {
	Symbol          string
	Side            market.Side
	ConfluenceScore int
	Factors         []string
	Time            time.Time
}

// History is the read-only view of past bars a source may use. It never
// returns bars after Now.
type History interface {
	History(symbol, timeframe string, n int) ([]market.Bar, error)
	Now() time.Time
}

// Source evaluates one symbol at the current step. A nil signal with a nil
// error means no entry.
type Source interface {
	Evaluate(ctx context.Context, symbol string, h History) (*Signal, error)
}

// Exit decides whether a single leg should be closed outright.
type Exit interface {
	ShouldExit(ctx context.Context, pos broker.Position, h History) (bool, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, h History) (*Signal, error)

func (f SourceFunc) Evaluate(ctx context.Context, symbol string, h History) (*Signal, error) {
	return f(ctx, symbol, h)
}

// None never signals.
type None struct{}

func (None) Evaluate(context.Context, string, History) (*Signal, error) { return nil, nil }
