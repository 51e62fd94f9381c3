package recovery

import (
	"context"
	"errors"
	"fmt"
)

// Reconcile looks for open broker legs that claim a stack the engine does
// not track, or that their stack does not know about. Each orphan is
// reported once as a *StackIntegrityError and is not managed further.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcileLocked(ctx)
}

func (e *Engine) reconcileLocked(ctx context.Context) error {
	positions, err := e.broker.Positions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	var errs []error
	for _, p := range positions {
		if p.Meta.StackID == "" || e.orphans[p.ID] {
			continue
		}
		s, ok := e.stacks[p.Meta.StackID]
		if ok && s.leg(p.ID) != nil {
			continue
		}

		reason := "no live stack"
		if ok {
			reason = "stack does not track this leg"
		}
		ie := &StackIntegrityError{StackID: p.Meta.StackID, LegID: p.ID, Reason: reason}
		e.orphans[p.ID] = true
		delete(e.byLeg, p.ID)
		e.metrics.IntegrityError()
		e.log.Warn("orphan leg purged", "stack", p.Meta.StackID, "leg", p.ID, "level", p.Meta.Level, "err", ie)
		errs = append(errs, ie)
	}
	return errors.Join(errs...)
}
