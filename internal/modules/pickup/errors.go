// README: Pickup domain sentinel errors.
package pickup

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("pickup not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrBadRequest   = errors.New("bad request")
)

// TransitionError reports a rejected status change together with the
// pickup's current status. It matches ErrInvalidState.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.To == StatusAccepted && e.From != StatusOpen {
		return fmt.Sprintf("pickup not available (status: %s)", e.From)
	}
	return fmt.Sprintf("cannot move pickup from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidState
}
