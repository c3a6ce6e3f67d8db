package sampling

import "errors"

var (
	// ErrRetryBudget is returned when draws exhausted a bounded retry policy.
	ErrRetryBudget = errors.New("sampling: retry budget exhausted")
	ErrEmptyChain  = errors.New("sampling: chain has no samples after tuning")
	ErrBadPrior    = errors.New("sampling: invalid prior parameters")
)
