package journal

import (
	"time"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
)

// TradeRecord is one line of the closed-trade ledger. A partial close
// produces its own record for the slice that was closed.
type TradeRecord struct {
	TradeID     string
	LegID       string
	Symbol      string
	Side        market.Side
	Volume      float64
	EntryPrice  float64
	EntryTime   time.Time
	ExitPrice   float64
	ExitTime    time.Time
	Profit      float64
	Level       broker.Level
	LevelNumber int
	StackID     string
	Reason      string
}

type EquitySnapshot struct {
	Time     time.Time
	Balance  float64
	Equity   float64
	Floating float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
