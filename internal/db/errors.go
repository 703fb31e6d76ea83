package db

import (
	"errors"
	"fmt"
)

// Business-rule failures. Callers test for them with errors.Is; the
// returned errors usually wrap one of these with the offending id.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrNotClaimable      = errors.New("task is not claimable")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrConstraint is the parent of every refused delete.
	ErrConstraint    = errors.New("constraint violation")
	ErrLastQueue     = fmt.Errorf("%w: cannot delete the last queue of a project", ErrConstraint)
	ErrQueueHasTasks = fmt.Errorf("%w: queue still holds tasks", ErrConstraint)
)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
