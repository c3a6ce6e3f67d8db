package klein

import (
	"errors"
	"fmt"
)

var (
	// ErrBlanchardKahn is returned when the pencil has no unique bounded solution.
	ErrBlanchardKahn = errors.New("Blanchard-Kahn condition not satisfied")
	// ErrUnitRoot is returned when an eigenvalue lies on the unit circle and
	// the stable and unstable subspaces cannot be separated.
	ErrUnitRoot = errors.New("eigenvalue on the unit circle")
)

// BKError reports the eigenvalue count behind a Blanchard-Kahn failure.
type BKError struct {
	Unstable int // eigenvalues outside the unit circle
	Forward  int // forward looking variables
}

func (e *BKError) Error() string {
	switch {
	case e.Unstable > e.Forward:
		return fmt.Sprintf("%v: %d unstable eigenvalues for %d forward looking variables (no stable solution)", ErrBlanchardKahn, e.Unstable, e.Forward)
	case e.Unstable < e.Forward:
		return fmt.Sprintf("%v: %d unstable eigenvalues for %d forward looking variables (indeterminate)", ErrBlanchardKahn, e.Unstable, e.Forward)
	}
	return fmt.Sprintf("%v: rank condition fails", ErrBlanchardKahn)
}

func (e *BKError) Unwrap() error { return ErrBlanchardKahn }
