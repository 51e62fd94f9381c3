package recovery

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownStack = errors.New("unknown stack")
	ErrEntryBlocked = errors.New("entry blocked")
)

// StackIntegrityError reports a leg that points at a stack the engine does
// not track, or a tracked stack whose root the broker no longer knows. The
// offending leg or stack is purged, never retried.
type StackIntegrityError struct {
	StackID string
	LegID   string
	Reason  string
}

func (e *StackIntegrityError) Error() string {
	return fmt.Sprintf("stack integrity: stack %s leg %s: %s", e.StackID, e.LegID, e.Reason)
}
