package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/internal/id"
	"github.com/rustyeddy/recovery/internal/logger"
	"github.com/rustyeddy/recovery/market"
	"github.com/rustyeddy/recovery/metrics"
	"github.com/rustyeddy/recovery/risk"
	"github.com/rustyeddy/recovery/signals"
)

type Option func(*Engine)

func WithPolicy(p risk.Policy) Option { return func(e *Engine) { e.policy = p } }

func WithInstruments(t market.InstrumentTable) Option {
	return func(e *Engine) { e.instruments = t }
}

// WithExit enables reversion exits for stacks that never needed recovery.
func WithExit(x signals.Exit, h signals.History) Option {
	return func(e *Engine) { e.exit, e.history = x, h }
}

func WithMetrics(r *metrics.Recorder) Option { return func(e *Engine) { e.metrics = r } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = logger.Or(l) } }

// WithSeed seeds stack ids. Stack ids come from a different stream than
// the broker's leg ids even when both use the same seed.
func WithSeed(seed int64) Option { return func(e *Engine) { e.ids = id.NewGenerator(^seed) } }

// Engine owns every PositionStack. Only the engine adds or removes legs;
// the broker decides whether a leg is open.
type Engine struct {
	mu          sync.Mutex
	broker      broker.Broker
	table       SettingsTable
	instruments market.InstrumentTable
	policy      risk.Policy
	exit        signals.Exit
	history     signals.History
	metrics     *metrics.Recorder
	log         *slog.Logger
	ids         *id.Generator

	stacks  map[string]*Stack
	order   []string
	byLeg   map[string]string
	closed  []*Stack
	orphans map[string]bool

	peakEquity float64
}

func NewEngine(b broker.Broker, table SettingsTable, opts ...Option) *Engine {
	e := &Engine{
		broker:      b,
		table:       table,
		instruments: market.DefaultInstruments(),
		log:         logger.L(),
		ids:         id.NewGenerator(^int64(0)),
		stacks:      make(map[string]*Stack),
		byLeg:       make(map[string]string),
		orphans:     make(map[string]bool),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Entry asks for a new stack. Stop and target distances are optional and
// become broker-side thresholds on the root leg.
type Entry struct {
	Signal         signals.Signal
	Volume         float64
	StopLossPips   float64
	TakeProfitPips float64
}

// Outcome reports what one evaluation did to a stack.
type Outcome struct {
	StackID string
	Added   []Leg
	Closed  bool
	Reason  string
	// Milestone is the trigger percent of a partial close, zero if none ran.
	Milestone float64
}

// OpenStack opens a root leg and starts tracking its stack. Entries the
// risk policy refuses return an error wrapping ErrEntryBlocked.
func (e *Engine) OpenStack(ctx context.Context, entry Entry) (Stack, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sig := entry.Signal
	symbol := market.NormalizeSymbol(sig.Symbol)
	if !sig.Side.Valid() {
		return Stack{}, fmt.Errorf("open stack %s: invalid side %q", symbol, sig.Side)
	}

	acct, err := e.broker.Account(ctx)
	if err != nil {
		return Stack{}, fmt.Errorf("open stack %s: %w", symbol, err)
	}
	e.trackPeakLocked(acct)

	x := e.exposureLocked(symbol, "")
	x.Equity, x.PeakEquity = acct.Equity, e.peakEquity
	d := risk.EvaluateEntry(e.policy, risk.EntryIntent{Symbol: symbol, Volume: entry.Volume, Confluence: sig.ConfluenceScore}, x)
	if !d.Allowed {
		return Stack{}, fmt.Errorf("%w: %s %s", ErrEntryBlocked, symbol, d.Reason())
	}

	req := broker.OpenRequest{Symbol: symbol, Side: sig.Side, Volume: entry.Volume}
	if entry.StopLossPips > 0 || entry.TakeProfitPips > 0 {
		q, err := e.broker.Quote(ctx, symbol)
		if err != nil {
			return Stack{}, fmt.Errorf("open stack %s: %w", symbol, err)
		}
		req.StopLoss, req.TakeProfit = e.rootThresholds(symbol, sig.Side, q, entry)
	}

	now := e.broker.Now()
	stackID := e.ids.New(now)
	req.Meta = broker.Meta{StackID: stackID, Level: broker.LevelRoot}

	fill, err := e.broker.Open(ctx, req)
	if err != nil {
		e.rejectedLocked("open", stackID, "", err)
		return Stack{}, fmt.Errorf("open stack %s: %w", symbol, err)
	}

	root := legFromFill(fill, stackID, broker.LevelRoot, 0)
	s := &Stack{
		ID:              stackID,
		Symbol:          symbol,
		Side:            sig.Side,
		Root:            root,
		OpenTime:        fill.Time,
		Status:          StackOpen,
		ConfluenceScore: sig.ConfluenceScore,
		Factors:         append([]string(nil), sig.Factors...),
		milestones:      make(map[float64]bool),
		partialLeft:     make(map[float64]decimal.Decimal),
	}
	e.stacks[stackID] = s
	e.order = append(e.order, stackID)
	e.byLeg[root.ID] = stackID

	e.metrics.StackOpened(symbol)
	e.metrics.LegOpened(string(broker.LevelRoot))
	e.log.Info("stack opened",
		"stack", stackID, "symbol", symbol, "side", sig.Side,
		"volume", root.Volume, "price", root.OpenPrice, "confluence", sig.ConfluenceScore)
	return s.clone(), nil
}

func (e *Engine) rootThresholds(symbol string, side market.Side, q broker.Quote, entry Entry) (sl, tp *float64) {
	pip := e.instruments.Lookup(symbol).PipSize
	price := q.Bid
	if side == market.Long {
		price = q.Ask
	}
	sign := float64(side.Sign())
	if entry.StopLossPips > 0 {
		v := market.OffsetPrice(price, -sign*entry.StopLossPips, pip)
		sl = &v
	}
	if entry.TakeProfitPips > 0 {
		v := market.OffsetPrice(price, sign*entry.TakeProfitPips, pip)
		tp = &v
	}
	return sl, tp
}

// Tick reconciles with the broker and evaluates every open stack once, in
// the order the stacks were opened. Errors for one stack never stop the
// others; they are joined in the result.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.reconcileLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	if acct, err := e.broker.Account(ctx); err == nil {
		e.trackPeakLocked(acct)
	}

	for _, id := range append([]string(nil), e.order...) {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if _, err := e.evaluateLocked(ctx, id); err != nil {
			e.log.Warn("evaluate stack", "stack", id, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Evaluate runs the triggers for one stack.
func (e *Engine) Evaluate(ctx context.Context, stackID string) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx, stackID)
}

// CloseStack closes every open leg of a stack. The stack only becomes
// closed once the broker has closed all of them.
func (e *Engine) CloseStack(ctx context.Context, stackID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.stacks[stackID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStack, stackID)
	}
	if reason == "" {
		reason = ReasonManual
	}
	purged, err := e.syncLocked(ctx, s)
	if err != nil {
		return errors.Join(append(purged, err)...)
	}
	return errors.Join(append(purged, e.closeStackLocked(ctx, s, reason))...)
}

// CloseAll closes every open stack in open order.
func (e *Engine) CloseAll(ctx context.Context, reason string) error {
	e.mu.Lock()
	ids := append([]string(nil), e.order...)
	e.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := e.CloseStack(ctx, id, reason); err != nil && !errors.Is(err, ErrUnknownStack) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stacks returns copies of the open stacks in open order.
func (e *Engine) Stacks() []Stack {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Stack, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.stacks[id].clone())
	}
	return out
}

func (e *Engine) Stack(stackID string) (Stack, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stacks[stackID]
	if !ok {
		return Stack{}, false
	}
	return s.clone(), true
}

// StackForLeg resolves a broker leg id to its open stack.
func (e *Engine) StackForLeg(legID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byLeg[legID]
	return id, ok
}

// Closed returns copies of closed and purged stacks in close order.
func (e *Engine) Closed() []Stack {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Stack, 0, len(e.closed))
	for _, s := range e.closed {
		out = append(out, s.clone())
	}
	return out
}

func (e *Engine) trackPeakLocked(acct broker.Account) {
	if acct.Equity > e.peakEquity {
		e.peakEquity = acct.Equity
	}
}

func (e *Engine) exposureLocked(symbol, stackID string) risk.Exposure {
	var x risk.Exposure
	total := 0.0
	for _, id := range e.order {
		s := e.stacks[id]
		x.OpenStacks++
		if s.Symbol == symbol {
			x.SymbolStacks++
		}
		v := s.TotalVolume()
		total = market.AddVolumes(total, v)
		if id == stackID {
			x.StackLots = v
		}
	}
	x.TotalLots = total
	return x
}

// syncLocked refreshes every open leg from the broker. Legs the broker has
// never heard of are purged; if that leg is the root the whole stack goes
// and the returned error is a *StackIntegrityError.
func (e *Engine) syncLocked(ctx context.Context, s *Stack) (purged []error, err error) {
	for _, l := range s.OpenLegs() {
		pos, perr := e.broker.Position(ctx, l.ID)
		var ie *StackIntegrityError
		switch {
		case errors.Is(perr, broker.ErrUnknownPosition):
			ie = &StackIntegrityError{StackID: s.ID, LegID: l.ID, Reason: "broker has no such position"}
		case perr != nil:
			return purged, fmt.Errorf("sync stack %s leg %s: %w", s.ID, l.ID, perr)
		case pos.Meta.StackID != s.ID:
			ie = &StackIntegrityError{StackID: s.ID, LegID: l.ID, Reason: fmt.Sprintf("position belongs to stack %q", pos.Meta.StackID)}
		}
		if ie != nil {
			if l == s.Root {
				e.purgeLocked(s, ie)
				return purged, ie
			}
			e.dropLegLocked(s, l, ie)
			purged = append(purged, ie)
			continue
		}
		applyPosition(l, pos)
	}
	return purged, nil
}

func applyPosition(l *Leg, pos broker.Position) {
	l.Volume = pos.Volume
	l.Realized = pos.Realized
	l.Floating = pos.Profit
	if !pos.Open {
		l.Status = LegClosed
		l.Volume = 0
		l.Floating = 0
		l.ClosePrice = pos.ClosePrice
		l.CloseTime = pos.CloseTime
		l.CloseReason = pos.CloseReason
	}
}

func legFromFill(f broker.Fill, stackID string, level broker.Level, n int) *Leg {
	return &Leg{
		ID:            f.LegID,
		StackID:       stackID,
		Symbol:        f.Symbol,
		Side:          f.Side,
		Level:         level,
		LevelNumber:   n,
		Volume:        f.Volume,
		InitialVolume: f.Volume,
		OpenPrice:     f.Price,
		OpenTime:      f.Time,
		Status:        LegOpen,
	}
}

// closeStackLocked leaves the stack open if any leg fails to close; the
// legs that did close stay closed because the broker says so.
func (e *Engine) closeStackLocked(ctx context.Context, s *Stack, reason string) error {
	var errs []error
	for _, l := range s.OpenLegs() {
		if _, err := e.broker.Close(ctx, l.ID, reason); err != nil {
			if pos, perr := e.broker.Position(ctx, l.ID); perr == nil && !pos.Open {
				applyPosition(l, pos)
				continue
			}
			e.rejectedLocked("close", s.ID, l.ID, err)
			errs = append(errs, err)
			continue
		}
		if pos, err := e.broker.Position(ctx, l.ID); err == nil {
			applyPosition(l, pos)
		} else {
			l.Status, l.Volume, l.Floating, l.CloseReason = LegClosed, 0, 0, reason
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close stack %s (%s): %w", s.ID, reason, errors.Join(errs...))
	}
	e.finalizeLocked(s, reason)
	return nil
}

func (e *Engine) finalizeLocked(s *Stack, reason string) {
	s.Status = StackClosed
	s.CloseReason = reason
	s.CloseTime = e.broker.Now()
	e.untrackLocked(s)
	e.closed = append(e.closed, s)

	e.metrics.StackClosed(reason)
	e.log.Info("stack closed",
		"stack", s.ID, "symbol", s.Symbol, "reason", reason,
		"net", market.Round(s.NetProfit(), 2), "legs", len(s.Legs()),
		"max_adverse_pips", s.MaxAdversePips)
}

func (e *Engine) purgeLocked(s *Stack, ie *StackIntegrityError) {
	e.log.Warn("stack purged", "stack", s.ID, "leg", ie.LegID, "err", ie)
	e.metrics.IntegrityError()
	e.finalizeLocked(s, ReasonIntegrity)
}

func (e *Engine) dropLegLocked(s *Stack, l *Leg, ie *StackIntegrityError) {
	e.log.Warn("leg purged", "stack", s.ID, "leg", l.ID, "err", ie)
	e.metrics.IntegrityError()
	remove := func(ls []*Leg) []*Leg {
		out := ls[:0]
		for _, x := range ls {
			if x != l {
				out = append(out, x)
			}
		}
		return out
	}
	s.Grid, s.Hedges, s.DCA = remove(s.Grid), remove(s.Hedges), remove(s.DCA)
	delete(e.byLeg, l.ID)
}

func (e *Engine) untrackLocked(s *Stack) {
	delete(e.stacks, s.ID)
	for i, id := range e.order {
		if id == s.ID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	for _, l := range s.Legs() {
		delete(e.byLeg, l.ID)
	}
}

func (e *Engine) rejectedLocked(op, stackID, legID string, err error) {
	e.metrics.OrderRejected(op)
	var re *broker.RejectedError
	if errors.As(err, &re) {
		e.log.Warn("order rejected",
			"op", op, "stack", stackID, "leg", legID, "code", re.Code, "reason", re.Reason)
		return
	}
	e.log.Warn("order failed", "op", op, "stack", stackID, "leg", legID, "err", err)
}

func hoursSince(now, then time.Time) float64 {
	return now.Sub(then).Hours()
}
