package market

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one OHLC sample. Time is the bar's open time.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is an ascending sequence of bars for one symbol and timeframe.
type Series struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

// Validate reports the first ordering or price problem in the series.
func (s *Series) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("series: symbol is required")
	}
	if s.Timeframe == "" {
		return fmt.Errorf("series %s: timeframe is required", s.Symbol)
	}
	for i, b := range s.Bars {
		if b.Close <= 0 || b.Open <= 0 || b.High <= 0 || b.Low <= 0 {
			return fmt.Errorf("series %s/%s: bar %d at %s has non-positive price",
				s.Symbol, s.Timeframe, i, b.Time.Format(time.RFC3339))
		}
		if b.High < b.Low {
			return fmt.Errorf("series %s/%s: bar %d at %s has high below low",
				s.Symbol, s.Timeframe, i, b.Time.Format(time.RFC3339))
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("series %s/%s: bar %d at %s is not after %s",
				s.Symbol, s.Timeframe, i, b.Time.Format(time.RFC3339),
				s.Bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// IndexAt returns the index of the latest bar whose time is not after t,
// or -1 when every bar is in the future.
func (s *Series) IndexAt(t time.Time) int {
	n := sort.Search(len(s.Bars), func(i int) bool {
		return s.Bars[i].Time.After(t)
	})
	return n - 1
}

// At returns the latest bar at or before t.
func (s *Series) At(t time.Time) (Bar, bool) {
	i := s.IndexAt(t)
	if i < 0 {
		return Bar{}, false
	}
	return s.Bars[i], true
}

// Window returns the last n bars at or before t. It never looks past t.
func (s *Series) Window(t time.Time, n int) ([]Bar, error) {
	i := s.IndexAt(t)
	have := i + 1
	if n <= 0 {
		return nil, nil
	}
	if have < n {
		return nil, &DataGapError{Symbol: s.Symbol, Timeframe: s.Timeframe, At: t, Have: have, Need: n}
	}
	out := make([]Bar, n)
	copy(out, s.Bars[have-n:have])
	return out, nil
}

// Closes extracts close prices, oldest first.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
