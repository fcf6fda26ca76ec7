package storage

import "errors"

// Storage errors for result stores.
var (
	// ErrNotFound is returned when a requested transaction result does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a result for the same (run_id, hash)
	// was already stored. Results of a run are written once.
	ErrDuplicateKey = errors.New("duplicate key: result already stored for run")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
