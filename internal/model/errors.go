package model

import "errors"

var (
	// ErrUnknownParameter is returned when a name is neither a structural
	// nor a functional parameter of the model.
	ErrUnknownParameter = errors.New("unknown parameter")
	// ErrMissingParaFunc is returned when an expression refers to a name that
	// is not declared as a parameter or in the parafunc block.
	ErrMissingParaFunc = errors.New("parameter is a function of other parameters but not declared in parafunc")
	// ErrNameOverlap is returned when a functional parameter shadows a
	// structural one.
	ErrNameOverlap = errors.New("functional parameter name overlaps structural parameter")
	// ErrBadExpression is returned for expressions that do not parse.
	ErrBadExpression = errors.New("bad expression")
	ErrUnknownDist   = errors.New("unknown prior distribution")
)
