package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rustyeddy/recovery/broker"
)

var levels = []broker.Level{broker.LevelRoot, broker.LevelGrid, broker.LevelHedge, broker.LevelDCA}

func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	if !s.Start.IsZero() {
		fmt.Fprintf(w, "Start:         %s\n", s.Start.Format(time.RFC3339))
		fmt.Fprintf(w, "End:           %s\n", s.End.Format(time.RFC3339))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Stacks:        %d\n", s.Stacks)
	fmt.Fprintf(w, "Trades:        %d\n", s.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", s.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", s.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", s.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", s.ReturnPct)
	switch {
	case math.IsInf(s.ProfitFactor, 1):
		fmt.Fprintln(w, "Profit Factor: inf")
	case s.ProfitFactor > 0:
		fmt.Fprintf(w, "Profit Factor: %.2f\n", s.ProfitFactor)
	}
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", s.MaxDDPct)

	if len(s.ByReason) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Stack Closes")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, r := range s.Reasons() {
			fmt.Fprintf(w, "%-15s %d\n", r+":", s.ByReason[r])
		}
	}

	if len(s.ByLevel) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Legs by Level")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, l := range levels {
			b, ok := s.ByLevel[l]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%-6s trades %-5d net %.2f\n", l, b.Trades, b.Profit)
		}
	}
	fmt.Fprintln(w, "==================================================")
}
