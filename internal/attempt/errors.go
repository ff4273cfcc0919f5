package attempt

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidState       = errors.New("invalid state")
	ErrValidation         = errors.New("validation error")
)

// PreconditionError is returned by Start when the test cannot be taken yet.
// VideoID names the video the user has to go back to.
type PreconditionError struct {
	Reason  string
	VideoID string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPreconditionFailed }

// StateError is returned when a completed attempt is mutated or reopened.
type StateError struct {
	AttemptID string
	Status    Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("attempt %s is %s", e.AttemptID, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }
