package dsge

import "errors"

var (
	ErrUnknownSource = errors.New("unknown parameter source")
	// ErrFunctionalParameter is returned when setting a parameter derived
	// from the others.
	ErrFunctionalParameter = errors.New("parameter is a function of other parameters")
	ErrNoMode              = errors.New("no mode available")
	ErrNoChain             = errors.New("no chain attached")
	ErrNoFilter            = errors.New("no filter attached, call CreateFilter first")
	ErrNoData              = errors.New("no data attached")
	ErrNotConverged        = errors.New("extraction did not converge")
	// ErrAmbiguousVector is returned for a vector that reads both as the full
	// vector and as the estimated subset, with different meanings.
	ErrAmbiguousVector = errors.New("ambiguous parameter vector")
)
