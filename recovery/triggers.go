package recovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/recovery/broker"
	"github.com/rustyeddy/recovery/market"
	"github.com/rustyeddy/recovery/risk"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func (e *Engine) evaluateLocked(ctx context.Context, stackID string) (Outcome, error) {
	out := Outcome{StackID: stackID}
	s, ok := e.stacks[stackID]
	if !ok {
		return out, fmt.Errorf("%w: %s", ErrUnknownStack, stackID)
	}

	purged, err := e.syncLocked(ctx, s)
	if err != nil {
		var ie *StackIntegrityError
		if errors.As(err, &ie) {
			out.Closed, out.Reason = true, ReasonIntegrity
		}
		return out, errors.Join(append(purged, err)...)
	}
	fail := func(err error) (Outcome, error) {
		return out, errors.Join(append(purged, err)...)
	}

	// Every leg went at the broker, e.g. by stop or target.
	if len(s.OpenLegs()) == 0 {
		reason := lastCloseReason(s)
		e.finalizeLocked(s, reason)
		out.Closed, out.Reason = true, reason
		return fail(nil)
	}

	set := e.table.For(s.Symbol)
	inst := e.instruments.Lookup(s.Symbol)

	q, err := e.broker.Quote(ctx, s.Symbol)
	if err != nil {
		return fail(fmt.Errorf("stack %s: %w", s.ID, err))
	}
	acct, err := e.broker.Account(ctx)
	if err != nil {
		return fail(fmt.Errorf("stack %s: %w", s.ID, err))
	}

	adverse := market.AdversePips(s.Side, s.Root.OpenPrice, q.Bid, inst.PipSize)
	if adverse > s.MaxAdversePips {
		s.MaxAdversePips = adverse
	}
	net := s.NetProfit()

	if reason := e.closeTrigger(s, set, inst, net, acct); reason != "" {
		if err := e.closeStackLocked(ctx, s, reason); err != nil {
			return fail(err)
		}
		out.Closed, out.Reason = true, reason
		return fail(nil)
	}

	lvl, ok := pendingMilestone(s, set)
	if !ok {
		lvl, ok = nextMilestone(s, set, net, acct.Balance)
	}
	if ok {
		err := e.partialLocked(ctx, s, lvl, inst)
		if err == nil {
			out.Milestone = lvl.TriggerPercent
		}
		return fail(err)
	}

	// A root closed by the broker is never extended.
	if s.Root.IsOpen() {
		var errs []error
		for _, add := range []func(context.Context, *Stack, Settings, market.Instrument, float64) (*Leg, error){
			e.gridAdd, e.hedgeAdd, e.dcaAdd,
		} {
			l, err := add(ctx, s, set, inst, adverse)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if l != nil {
				out.Added = append(out.Added, *l)
			}
		}
		if len(errs) > 0 || len(out.Added) > 0 {
			return fail(errors.Join(errs...))
		}
	}

	if !s.RecoveryActive() {
		closed, err := e.reversionLocked(ctx, s)
		if err != nil {
			return fail(err)
		}
		if closed {
			out.Closed, out.Reason = true, ReasonReversionExit
		}
	}
	return fail(nil)
}

// closeTrigger checks the kill-switches in priority order.
func (e *Engine) closeTrigger(s *Stack, set Settings, inst market.Instrument, net float64, acct broker.Account) string {
	if set.TakeProfitPips > 0 && set.DrawdownMultiplier > 0 {
		expected := d(set.TakeProfitPips).Mul(d(inst.PipSize)).Mul(d(s.Root.InitialVolume)).Mul(d(inst.ContractSize))
		threshold := expected.Mul(d(set.DrawdownMultiplier)).Neg()
		if d(net).LessThanOrEqual(threshold) {
			return ReasonDrawdownKill
		}
	}
	if set.ProfitPercent > 0 {
		target := d(acct.Balance).Mul(d(set.ProfitPercent)).Div(decimal.NewFromInt(100))
		if target.IsPositive() && d(net).GreaterThanOrEqual(target) {
			return ReasonProfitTarget
		}
	}
	if set.MaxHoldHours > 0 && hoursSince(e.broker.Now(), s.OpenTime) >= set.MaxHoldHours {
		return ReasonTimeLimit
	}
	return ""
}

func (e *Engine) gridAdd(ctx context.Context, s *Stack, set Settings, inst market.Instrument, adverse float64) (*Leg, error) {
	if set.MaxGridLevels <= 0 || set.GridSpacingPips <= 0 || len(s.Grid) >= set.MaxGridLevels {
		return nil, nil
	}
	n := len(s.Grid) + 1
	expected := market.FloorDiv(adverse, set.GridSpacingPips) + 1
	if expected <= n {
		return nil, nil
	}

	dist, _ := d(set.GridSpacingPips).Mul(decimal.NewFromInt(int64(n))).Float64()
	target := market.OffsetPrice(s.Root.OpenPrice, -s.Side.Sign()*dist, inst.PipSize)

	vol := set.GridLotSize
	if vol <= 0 {
		vol = s.Root.InitialVolume
	}
	return e.addLegLocked(ctx, s, broker.LevelGrid, n, s.Side, vol, target)
}

func (e *Engine) hedgeAdd(ctx context.Context, s *Stack, set Settings, inst market.Instrument, adverse float64) (*Leg, error) {
	if set.MaxHedges <= 0 || set.HedgeRatio <= 0 || len(s.Hedges) >= set.MaxHedges {
		return nil, nil
	}
	n := len(s.Hedges) + 1
	need := d(set.HedgeTriggerPips).Mul(decimal.NewFromInt(int64(n)))
	if d(adverse).LessThan(need) {
		return nil, nil
	}
	vol, _ := d(s.Root.InitialVolume).Mul(d(set.HedgeRatio)).Float64()
	return e.addLegLocked(ctx, s, broker.LevelHedge, n, s.Side.Opposite(), vol, 0)
}

func (e *Engine) dcaAdd(ctx context.Context, s *Stack, set Settings, inst market.Instrument, adverse float64) (*Leg, error) {
	if set.MaxDCALevels <= 0 || set.DCATriggerPips <= 0 || len(s.DCA) >= set.MaxDCALevels {
		return nil, nil
	}
	if market.FloorDiv(adverse, set.DCATriggerPips) <= len(s.DCA) {
		return nil, nil
	}
	if set.DCAMaxDrawdownPips > 0 && adverse > set.DCAMaxDrawdownPips {
		e.log.Debug("dca blocked", "stack", s.ID, "adverse_pips", adverse, "limit", set.DCAMaxDrawdownPips)
		return nil, nil
	}

	base := s.Root.InitialVolume
	if n := len(s.DCA); n > 0 {
		base = s.DCA[n-1].InitialVolume
	}
	vol := d(base).Mul(d(set.DCAMultiplier))

	if set.DCAMaxTotalLots > 0 {
		used := decimal.Zero
		for _, l := range s.DCA {
			used = used.Add(d(l.InitialVolume))
		}
		room := d(set.DCAMaxTotalLots).Sub(used)
		if !room.IsPositive() {
			return nil, nil
		}
		vol = decimal.Min(vol, room)
	}
	v, _ := vol.Float64()
	return e.addLegLocked(ctx, s, broker.LevelDCA, len(s.DCA)+1, s.Side, v, 0)
}

// addLegLocked opens a recovery leg and appends it only once the broker has
// filled it. A blocked add is not an error.
func (e *Engine) addLegLocked(ctx context.Context, s *Stack, level broker.Level, n int, side market.Side, vol, target float64) (*Leg, error) {
	inst := e.instruments.Lookup(s.Symbol)
	v, err := inst.NormalizeVolume(vol)
	var ive *market.InvalidVolumeError
	switch {
	case errors.As(err, &ive):
		e.log.Warn("volume adjusted", "stack", s.ID, "level", level, "requested", ive.Requested, "adjusted", ive.Adjusted, "reason", ive.Reason)
	case err != nil:
		return nil, fmt.Errorf("%s %d on stack %s: %w", level, n, s.ID, err)
	}

	dec := risk.EvaluateAdd(e.policy, risk.AddIntent{StackID: s.ID, Kind: string(level), Volume: v}, e.exposureLocked(s.Symbol, s.ID))
	if !dec.Allowed {
		e.log.Debug("add blocked", "stack", s.ID, "level", level, "number", n, "why", dec.Reason())
		return nil, nil
	}

	fill, err := e.broker.Open(ctx, broker.OpenRequest{
		Symbol: s.Symbol,
		Side:   side,
		Volume: v,
		Meta:   broker.Meta{StackID: s.ID, Level: level, LevelNumber: n},
	})
	if err != nil {
		e.rejectedLocked("open", s.ID, "", err)
		return nil, fmt.Errorf("%s %d on stack %s: %w", level, n, s.ID, err)
	}

	l := legFromFill(fill, s.ID, level, n)
	l.TargetPrice = target
	switch level {
	case broker.LevelGrid:
		s.Grid = append(s.Grid, l)
	case broker.LevelHedge:
		s.Hedges = append(s.Hedges, l)
	case broker.LevelDCA:
		s.DCA = append(s.DCA, l)
	}
	e.byLeg[l.ID] = s.ID

	e.metrics.LegOpened(string(level))
	e.log.Info("leg added",
		"stack", s.ID, "level", level, "number", n, "side", side,
		"volume", l.Volume, "price", l.OpenPrice, "state", s.State())
	return l, nil
}

// nextMilestone returns the first partial-close level reached and not yet
// taken.
func nextMilestone(s *Stack, set Settings, net, balance float64) (PartialLevel, bool) {
	if len(set.PartialCloses) == 0 || set.ProfitPercent <= 0 || net <= 0 {
		return PartialLevel{}, false
	}
	target := d(balance).Mul(d(set.ProfitPercent)).Div(decimal.NewFromInt(100))
	if !target.IsPositive() {
		return PartialLevel{}, false
	}
	achieved := d(net).Div(target).Mul(decimal.NewFromInt(100))
	for _, lvl := range set.PartialCloses {
		if s.milestones[lvl.TriggerPercent] {
			continue
		}
		if achieved.GreaterThanOrEqual(d(lvl.TriggerPercent)) {
			return lvl, true
		}
	}
	return PartialLevel{}, false
}

// pendingMilestone returns a milestone whose close was cut short by a
// rejection. It is retried before anything else is considered.
func pendingMilestone(s *Stack, set Settings) (PartialLevel, bool) {
	for _, lvl := range set.PartialCloses {
		if _, ok := s.partialLeft[lvl.TriggerPercent]; ok {
			return lvl, true
		}
	}
	return PartialLevel{}, false
}

// partialLocked closes ClosePercent of the stack's open volume, recovery
// legs first and oldest first. The root keeps at least one minimum lot.
// The target volume is fixed when the milestone first fires; a retry only
// closes what is still outstanding.
func (e *Engine) partialLocked(ctx context.Context, s *Stack, lvl PartialLevel, inst market.Instrument) error {
	legs := s.OpenLegs()
	sort.SliceStable(legs, func(i, j int) bool {
		ri, rj := legs[i] == s.Root, legs[j] == s.Root
		if ri != rj {
			return rj
		}
		return legs[i].OpenTime.Before(legs[j].OpenTime)
	})

	want, retry := s.partialLeft[lvl.TriggerPercent]
	if !retry {
		want = d(s.TotalVolume()).Mul(d(lvl.ClosePercent)).Div(decimal.NewFromInt(100))
	}
	step := d(inst.LotStep)
	if !step.IsPositive() {
		step = d(market.DefaultInstrument.LotStep)
	}
	minLot := d(inst.MinLot)

	var errs []error
	done := decimal.Zero
	for _, l := range legs {
		remaining := want.Sub(done)
		if !remaining.IsPositive() {
			break
		}
		held := d(l.Volume)
		if l != s.Root && held.LessThanOrEqual(remaining) {
			if _, err := e.broker.Close(ctx, l.ID, ReasonPartialClose); err != nil {
				e.rejectedLocked("close", s.ID, l.ID, err)
				errs = append(errs, err)
				continue
			}
			done = done.Add(held)
			e.refreshLegLocked(ctx, l)
			continue
		}

		v := remaining.Div(step).Floor().Mul(step)
		if l == s.Root {
			v = decimal.Min(v, held.Sub(minLot))
		}
		if v.LessThan(minLot) || !v.IsPositive() || v.GreaterThanOrEqual(held) {
			continue
		}
		vf, _ := v.Float64()
		if _, err := e.broker.PartialClose(ctx, l.ID, vf, ReasonPartialClose); err != nil {
			e.rejectedLocked("partial_close", s.ID, l.ID, err)
			errs = append(errs, err)
			continue
		}
		done = done.Add(v)
		e.refreshLegLocked(ctx, l)
		break
	}

	if len(errs) > 0 {
		s.partialLeft[lvl.TriggerPercent] = want.Sub(done)
		return fmt.Errorf("partial close %v%% on stack %s: %w", lvl.TriggerPercent, s.ID, errors.Join(errs...))
	}
	delete(s.partialLeft, lvl.TriggerPercent)
	s.milestones[lvl.TriggerPercent] = true
	e.log.Info("partial close",
		"stack", s.ID, "trigger_percent", lvl.TriggerPercent, "close_percent", lvl.ClosePercent,
		"closed_volume", done.String(), "remaining", s.TotalVolume())
	return nil
}

func (e *Engine) refreshLegLocked(ctx context.Context, l *Leg) {
	if pos, err := e.broker.Position(ctx, l.ID); err == nil {
		applyPosition(l, pos)
	}
}

func (e *Engine) reversionLocked(ctx context.Context, s *Stack) (bool, error) {
	if e.exit == nil || e.history == nil || !s.Root.IsOpen() {
		return false, nil
	}
	pos, err := e.broker.Position(ctx, s.Root.ID)
	if err != nil {
		return false, fmt.Errorf("stack %s: %w", s.ID, err)
	}
	exit, err := e.exit.ShouldExit(ctx, pos, e.history)
	if err != nil || !exit {
		return false, err
	}
	if err := e.closeStackLocked(ctx, s, ReasonReversionExit); err != nil {
		return false, err
	}
	return true, nil
}

func lastCloseReason(s *Stack) string {
	var last *Leg
	for _, l := range s.Legs() {
		if last == nil || !l.CloseTime.Before(last.CloseTime) {
			last = l
		}
	}
	if last == nil || last.CloseReason == "" {
		return ReasonManual
	}
	return last.CloseReason
}
