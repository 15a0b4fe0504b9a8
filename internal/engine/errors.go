package engine

import "errors"

var (
	// ErrMissingPatientID is returned when Evaluate is called without a patient
	ErrMissingPatientID = errors.New("patient id is required")

	// ErrNilDependency is returned when the engine is built without a store
	ErrNilDependency = errors.New("engine dependency is nil")
)
