package fsm

import (
	"errors"

	"github.com/looplab/fsm"
)

// IsRealError reports whether err from fsm.Event signals a failure, as
// opposed to a transition that was skipped or cancelled on purpose.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError

	if errors.As(err, &noTransition) || errors.As(err, &canceled) {
		return false
	}

	return true
}

// IsRejected reports whether err means the event is not allowed from the
// machine's current state, or another transition is still in progress.
func IsRejected(err error) bool {
	var invalid fsm.InvalidEventError
	var inTransition fsm.InTransitionError
	return errors.As(err, &invalid) || errors.As(err, &inTransition)
}
