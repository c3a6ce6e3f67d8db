package compiler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConstraint is returned for models without a constraint variable.
	ErrNoConstraint = errors.New("model has no constraint variable; only models with an occasionally binding constraint are supported")
	// ErrFutureConstraint is returned when the system depends directly or
	// indirectly on whether the constraint holds in the future.
	ErrFutureConstraint = errors.New("system depends on the future status of the constraint")
	ErrSingularSystem   = errors.New("desingularized system matrix is not invertible")
	ErrNoForward        = errors.New("no forward looking variables besides the constraint")
	// ErrMissingXBar is returned in strict mode when x_bar is not declared.
	ErrMissingXBar = errors.New("parameter x_bar (maximum value of the constraint) not specified")
	ErrExplosive   = errors.New("explosive dynamics detected")
)

// ExplosiveError carries the number of eigenvalues outside the unit circle.
type ExplosiveError struct {
	Count int
}

func (e *ExplosiveError) Error() string {
	return fmt.Sprintf("%v: %d EV(s) > 1", ErrExplosive, e.Count)
}

func (e *ExplosiveError) Unwrap() error { return ErrExplosive }
