package storage

import "errors"

var (
	// ErrDuplicateActiveAlert is returned when an active alert already exists
	// for the same patient and rule
	ErrDuplicateActiveAlert = errors.New("active alert already exists")

	// ErrAlertNotFound is returned when an alert ID does not exist
	ErrAlertNotFound = errors.New("alert not found")

	// ErrAlertNotActive is returned when a lifecycle transition is attempted on
	// an alert that already left the active state
	ErrAlertNotActive = errors.New("alert is not active")

	// ErrUnsupportedDriver is returned for database drivers without a dialect
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrInvalidReading is returned when a reading cannot be stored
	ErrInvalidReading = errors.New("invalid reading")
)
