// Package backtest replays historical bars through the simulator and the
// recovery engine one step at a time.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rustyeddy/recovery/internal/logger"
	"github.com/rustyeddy/recovery/journal"
	"github.com/rustyeddy/recovery/market"
	"github.com/rustyeddy/recovery/metrics"
	"github.com/rustyeddy/recovery/recovery"
	"github.com/rustyeddy/recovery/risk"
	"github.com/rustyeddy/recovery/signals"
	"github.com/rustyeddy/recovery/sim"
)

const (
	DefaultStep   = time.Hour
	DefaultVolume = 0.04
)

// Options controls the replay window and how entries are sized.
type Options struct {
	// Start and End default to the span of the loaded bars. End is
	// inclusive.
	Start time.Time
	End   time.Time
	Step  time.Duration
	// Symbols defaults to every symbol with a price series.
	Symbols []string

	// Volume is the fixed root lot. RiskPercent with RiskStopPips sizes
	// from equity instead.
	Volume       float64
	RiskPercent  float64
	RiskStopPips float64

	// Optional broker-side thresholds on root legs.
	StopLossPips   float64
	TakeProfitPips float64

	// CloseReason is used for the final force close; default run_end.
	CloseReason string
}

// Runner drives the simulation clock. Each step it advances the broker,
// applies stops, ticks the recovery engine, evaluates entries symbol by
// symbol and records equity.
type Runner struct {
	Broker   *sim.Engine
	Recovery *recovery.Engine
	Source   signals.Source
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	Options  Options
}

// Result summarizes one run.
type Result struct {
	Start        time.Time
	End          time.Time
	Steps        int
	StartBalance float64
	Balance      float64
	Equity       float64

	Ledger      []journal.TradeRecord
	EquityCurve []journal.EquitySnapshot
	Stacks      []recovery.Stack

	Entries int
	Blocked int
	// Gaps counts symbol steps skipped for lack of history.
	Gaps int
	// Errors counts symbol steps skipped for any other error.
	Errors int
}

// Run replays from Start to End. Cancellation is honoured between steps;
// the partial result is returned with the context error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Broker == nil {
		return Result{}, fmt.Errorf("backtest: Broker is required")
	}
	if r.Recovery == nil {
		return Result{}, fmt.Errorf("backtest: Recovery is required")
	}
	if r.Source == nil {
		r.Source = signals.None{}
	}
	log := logger.Or(r.Logger)
	opts := r.options()
	if opts.Start.IsZero() || opts.End.IsZero() {
		return Result{}, fmt.Errorf("backtest: no bars loaded and no start/end given")
	}
	if opts.End.Before(opts.Start) {
		return Result{}, fmt.Errorf("backtest: end %s is before start %s",
			opts.End.Format(time.RFC3339), opts.Start.Format(time.RFC3339))
	}

	acct, err := r.Broker.Account(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Start: opts.Start, End: opts.End, StartBalance: acct.Balance}

	log.Info("backtest start",
		"start", opts.Start.Format(time.RFC3339), "end", opts.End.Format(time.RFC3339),
		"step", opts.Step, "symbols", opts.Symbols, "balance", acct.Balance)

	for t := opts.Start; !t.After(opts.End); t = t.Add(opts.Step) {
		if err := ctx.Err(); err != nil {
			r.collect(ctx, &res)
			return res, err
		}
		if err := r.step(ctx, t, opts, &res, log); err != nil {
			r.collect(ctx, &res)
			return res, err
		}
	}

	reason := opts.CloseReason
	if err := r.Recovery.CloseAll(ctx, reason); err != nil {
		log.Warn("close stacks at end", "err", err)
	}
	if fills, err := r.Broker.CloseAll(ctx, reason); err != nil {
		log.Warn("close orphans at end", "err", err)
	} else if len(fills) > 0 {
		log.Warn("closed legs without a stack", "count", len(fills))
	}

	r.collect(ctx, &res)
	log.Info("backtest done",
		"steps", res.Steps, "trades", len(res.Ledger), "stacks", len(res.Stacks),
		"balance", res.Balance, "entries", res.Entries, "blocked", res.Blocked)
	return res, nil
}

func (r *Runner) options() Options {
	opts := r.Options
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Volume <= 0 {
		opts.Volume = DefaultVolume
	}
	if opts.CloseReason == "" {
		opts.CloseReason = recovery.ReasonRunEnd
	}
	if opts.Start.IsZero() || opts.End.IsZero() {
		first, last := r.Broker.Span()
		if opts.Start.IsZero() {
			opts.Start = first
		}
		if opts.End.IsZero() {
			opts.End = last
		}
	}

	syms := opts.Symbols
	if len(syms) == 0 {
		syms = r.Broker.Symbols()
	}
	opts.Symbols = make([]string, 0, len(syms))
	for _, s := range syms {
		opts.Symbols = append(opts.Symbols, market.NormalizeSymbol(s))
	}
	sort.Strings(opts.Symbols)
	return opts
}

func (r *Runner) step(ctx context.Context, t time.Time, opts Options, res *Result, log *slog.Logger) error {
	if err := r.Broker.Advance(t); err != nil {
		return err
	}
	stopped, err := r.Broker.ApplyStops()
	if err != nil {
		return err
	}
	for _, p := range stopped {
		log.Debug("broker closed leg", "leg", p.ID, "stack", p.Meta.StackID, "reason", p.CloseReason)
	}

	if err := r.Recovery.Tick(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.Warn("recovery tick", "time", t.Format(time.RFC3339), "err", err)
	}

	for _, symbol := range opts.Symbols {
		r.entry(ctx, symbol, opts, res, log)
	}

	snap, err := r.Broker.RecordEquity()
	if err != nil {
		return err
	}
	res.EquityCurve = append(res.EquityCurve, snap)
	r.Metrics.SetAccount(snap.Balance, snap.Equity)
	res.Steps++
	return nil
}

func (r *Runner) entry(ctx context.Context, symbol string, opts Options, res *Result, log *slog.Logger) {
	sig, err := r.Source.Evaluate(ctx, symbol, r.Broker)
	var gap *market.DataGapError
	switch {
	case errors.As(err, &gap):
		log.Debug("signal skipped", "symbol", symbol, "have", gap.Have, "need", gap.Need)
		res.Gaps++
		return
	case err != nil:
		log.Warn("signal failed", "symbol", symbol, "err", err)
		res.Errors++
		return
	case sig == nil:
		return
	}
	if sig.Symbol == "" {
		sig.Symbol = symbol
	}

	_, err = r.Recovery.OpenStack(ctx, recovery.Entry{
		Signal:         *sig,
		Volume:         r.volume(ctx, symbol, opts),
		StopLossPips:   opts.StopLossPips,
		TakeProfitPips: opts.TakeProfitPips,
	})
	switch {
	case errors.Is(err, recovery.ErrEntryBlocked):
		log.Debug("entry blocked", "symbol", symbol, "err", err)
		res.Blocked++
	case err != nil:
		log.Warn("entry failed", "symbol", symbol, "err", err)
		res.Errors++
	default:
		res.Entries++
	}
}

func (r *Runner) volume(ctx context.Context, symbol string, opts Options) float64 {
	if opts.RiskPercent <= 0 || opts.RiskStopPips <= 0 {
		return opts.Volume
	}
	acct, err := r.Broker.Account(ctx)
	if err != nil {
		return opts.Volume
	}
	inst := r.Broker.Instrument(symbol)
	if v := risk.LotSize(acct.Equity, opts.RiskPercent, opts.RiskStopPips, inst.PipValue(), inst.LotStep); v > 0 {
		return v
	}
	return opts.Volume
}

func (r *Runner) collect(ctx context.Context, res *Result) {
	res.Ledger = r.Broker.Ledger()
	res.Stacks = r.Recovery.Closed()
	if acct, err := r.Broker.Account(context.WithoutCancel(ctx)); err == nil {
		res.Balance = acct.Balance
		res.Equity = acct.Equity
	}
}
