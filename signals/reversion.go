package signals

import (
	"context"
	"errors"

	"github.com/markcheno/go-talib"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
)

// EMAReversion fires when the close crosses back through an EMA in the
// leg's favour: upward for longs, downward for shorts.
type EMAReversion struct {
	Timeframe string
	Period    int
	// RequireProfit only exits legs that are in profit at the mark.
	RequireProfit bool
}

func NewEMAReversion(timeframe string, period int) *EMAReversion {
	if timeframe == "" {
		timeframe = "H1"
	}
	if period <= 1 {
		period = 20
	}
	return &EMAReversion{Timeframe: timeframe, Period: period}
}

// ShouldExit treats a short history as no signal.
func (r *EMAReversion) ShouldExit(ctx context.Context, pos broker.Position, h History) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !pos.Open {
		return false, nil
	}
	if r.RequireProfit && pos.Profit <= 0 {
		return false, nil
	}

	bars, err := h.History(pos.Symbol, r.Timeframe, r.Period+1)
	var gap *market.DataGapError
	if errors.As(err, &gap) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cl := market.Closes(bars)
	ema := talib.Ema(cl, r.Period)
	n := len(cl)
	prevClose, prevEMA := cl[n-2], ema[n-2]
	lastClose, lastEMA := cl[n-1], ema[n-1]

	if pos.Side == market.Long {
		return prevClose < prevEMA && lastClose >= lastEMA, nil
	}
	return prevClose > prevEMA && lastClose <= lastEMA, nil
}

var _ Exit = (*EMAReversion)(nil)
