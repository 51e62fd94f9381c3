// Package broker defines the execution surface the recovery engine trades
// through. The simulator implements it; so could a live adapter.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/recovery/market"
)

// Broker is the sole authority on whether a leg is open or closed.
type Broker interface {
	Open(ctx context.Context, req OpenRequest) (Fill, error)
	Close(ctx context.Context, legID string, reason string) (Fill, error)
	PartialClose(ctx context.Context, legID string, volume float64, reason string) (Fill, error)

	// Position returns a leg by id whether it is still open or not.
	Position(ctx context.Context, legID string) (Position, error)
	// Positions lists open legs in the order they were opened.
	Positions(ctx context.Context) ([]Position, error)

	Account(ctx context.Context) (Account, error)
	Quote(ctx context.Context, symbol string) (Quote, error)
	Now() time.Time
}

var (
	ErrExecutionRejected = errors.New("execution rejected")
	ErrUnknownPosition   = errors.New("unknown position")
	ErrNoPrice           = errors.New("no price")
)

// RejectedError carries the broker's own code and text verbatim.
type RejectedError struct {
	Op     string
	Code   int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected (code %d): %s", e.Op, e.Code, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrExecutionRejected }

// Reject is shorthand for building a *RejectedError.
func Reject(op string, code int, reason string) error {
	return &RejectedError{Op: op, Code: code, Reason: reason}
}

// Level classifies a leg within its stack.
type Level string

const (
	LevelRoot  Level = "root"
	LevelGrid  Level = "grid"
	LevelHedge Level = "hedge"
	LevelDCA   Level = "dca"
)

// Meta is attached to a leg when it is opened and never changes.
type Meta struct {
	StackID     string
	Level       Level
	LevelNumber int
}

type OpenRequest struct {
	Symbol     string
	Side       market.Side
	Volume     float64
	StopLoss   *float64
	TakeProfit *float64
	Meta       Meta
}

type Fill struct {
	LegID  string
	Symbol string
	Side   market.Side
	Volume float64
	Price  float64
	Time   time.Time

	// Set on closes.
	Profit    float64
	Remaining float64
	Closed    bool
}

type Position struct {
	ID         string
	Symbol     string
	Side       market.Side
	Volume     float64
	OpenPrice  float64
	OpenTime   time.Time
	StopLoss   *float64
	TakeProfit *float64
	Meta       Meta

	Open bool
	// Profit is the floating profit on the volume still held; zero once
	// closed. Realized accumulates partial and final closes.
	Profit      float64
	Realized    float64
	ClosePrice  float64
	CloseTime   time.Time
	CloseReason string
}

type Account struct {
	ID       string
	Currency string
	Balance  float64
	Equity   float64
	// Floating is the unrealized profit across open legs.
	Floating float64
}

type Quote struct {
	Symbol string
	Time   time.Time
	Bid    float64
	Ask    float64
}

func (q Quote) Mid() float64 { return (q.Bid + q.Ask) / 2 }
