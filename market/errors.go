package market

import (
	"errors"
	"fmt"
	"time"
)

var ErrNonPositiveVolume = errors.New("volume must be positive")

// DataGapError means there were not enough bars at or before At to compute
// what was asked for. Callers skip the evaluation for that bar and carry on.
type DataGapError struct {
	Symbol    string
	Timeframe string
	At        time.Time
	Have      int
	Need      int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap %s/%s at %s: have %d bars, need %d",
		e.Symbol, e.Timeframe, e.At.UTC().Format(time.RFC3339), e.Have, e.Need)
}

// InvalidVolumeError reports a requested volume that had to be adjusted to
// fit the instrument's lot constraints. Adjusted is always usable.
type InvalidVolumeError struct {
	Symbol    string
	Requested float64
	Adjusted  float64
	Reason    string
}

func (e *InvalidVolumeError) Error() string {
	return fmt.Sprintf("volume %.4f for %s adjusted to %.4f: %s",
		e.Requested, e.Symbol, e.Adjusted, e.Reason)
}
