package rules

import "errors"

var (
	// ErrInvalidRule is returned when a rule definition is malformed
	ErrInvalidRule = errors.New("invalid rule definition")

	// ErrDuplicateRule is returned when two rules share an id
	ErrDuplicateRule = errors.New("duplicate rule id")
)
