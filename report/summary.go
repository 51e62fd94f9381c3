// Package report turns a run's ledger and equity curve into performance
// figures, text and an HTML equity chart.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/recovery"
)

type Bucket struct {
	Trades int
	Profit float64
}

type Summary struct {
	Start time.Time
	End   time.Time

	Trades int
	Wins   int
	Losses int
	Stacks int

	StartBalance float64
	EndBalance   float64
	GrossProfit  float64
	GrossLoss    float64
	NetPL        float64
	ReturnPct    float64
	WinRate      float64
	ProfitFactor float64
	// MaxDDPct is the deepest peak-to-trough fall of equity, in percent.
	MaxDDPct float64

	// ByReason groups stacks by close reason. Summarize approximates it from
	// each stack's last ledger record; CountStacks replaces it with the
	// engine's own reasons.
	ByReason map[string]int
	ByLevel  map[broker.Level]Bucket

	stackIDs map[string]struct{}
}

// Summarize folds a ledger and equity curve. Win and loss counts are per
// ledger record; stacks are counted by distinct stack id.
func Summarize(startBalance float64, ledger []journal.TradeRecord, equity []journal.EquitySnapshot) Summary {
	s := Summary{
		StartBalance: startBalance,
		EndBalance:   startBalance,
		ByReason:     make(map[string]int),
		ByLevel:      make(map[broker.Level]Bucket),
		stackIDs:     make(map[string]struct{}),
	}

	lastByStack := make(map[string]journal.TradeRecord)
	for _, t := range ledger {
		s.Trades++
		switch {
		case t.Profit > 0:
			s.Wins++
			s.GrossProfit += t.Profit
		case t.Profit < 0:
			s.Losses++
			s.GrossLoss += -t.Profit
		}
		s.NetPL += t.Profit

		b := s.ByLevel[t.Level]
		b.Trades++
		b.Profit += t.Profit
		s.ByLevel[t.Level] = b

		if t.StackID != "" {
			if prev, ok := lastByStack[t.StackID]; !ok || !t.ExitTime.Before(prev.ExitTime) {
				lastByStack[t.StackID] = t
			}
		}
	}
	for id, t := range lastByStack {
		s.stackIDs[id] = struct{}{}
		s.ByReason[t.Reason]++
	}
	s.Stacks = len(s.stackIDs)

	s.EndBalance = startBalance + s.NetPL
	if startBalance != 0 {
		s.ReturnPct = 100 * s.NetPL / startBalance
	}
	if s.Trades > 0 {
		s.WinRate = 100 * float64(s.Wins) / float64(s.Trades)
	}
	switch {
	case s.GrossLoss > 0:
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	case s.GrossProfit > 0:
		s.ProfitFactor = math.Inf(1)
	}

	s.MaxDDPct = MaxDrawdownPct(equity)
	if n := len(equity); n > 0 {
		s.Start, s.End = equity[0].Time, equity[n-1].Time
	}
	return s
}

// CountStacks recounts ByReason from closed stacks. A stack whose legs
// vanished at the broker leaves no ledger record, so its id is added to the
// stack count here.
func (s *Summary) CountStacks(stacks []recovery.Stack) {
	if s.stackIDs == nil {
		s.stackIDs = make(map[string]struct{})
	}
	s.ByReason = make(map[string]int)
	for _, st := range stacks {
		if st.Status != recovery.StackClosed {
			continue
		}
		s.stackIDs[st.ID] = struct{}{}
		s.ByReason[st.CloseReason]++
	}
	s.Stacks = len(s.stackIDs)
}

// MaxDrawdownPct walks the equity curve once.
func MaxDrawdownPct(equity []journal.EquitySnapshot) float64 {
	peak, dd := 0.0, 0.0
	for _, e := range equity {
		if e.Equity > peak {
			peak = e.Equity
		}
		if peak > 0 {
			if d := 100 * (peak - e.Equity) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}

// Reasons returns ByReason keys sorted.
func (s Summary) Reasons() []string {
	out := make([]string, 0, len(s.ByReason))
	for r := range s.ByReason {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Fill copies the figures into a backtest_runs record.
func (s Summary) Fill(run *journal.BacktestRun) {
	run.Start, run.End = s.Start, s.End
	run.Trades, run.Wins, run.Losses, run.Stacks = s.Trades, s.Wins, s.Losses, s.Stacks
	run.StartBalance, run.EndBalance = s.StartBalance, s.EndBalance
	run.NetPL, run.ReturnPct = s.NetPL, s.ReturnPct
	// backtest_runs stores the win rate as a fraction
	run.WinRate = s.WinRate / 100
	run.ProfitFactor, run.MaxDDPct = s.ProfitFactor, s.MaxDDPct
	if math.IsInf(run.ProfitFactor, 1) {
		run.ProfitFactor = 0
	}
	run.ByReason = make(map[string]int, len(s.ByReason))
	for k, v := range s.ByReason {
		run.ByReason[k] = v
	}
}
