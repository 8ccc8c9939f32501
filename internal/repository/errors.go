package repository

import "errors"

var (
	// ErrNotFound is returned when no document exists for the given id or filter.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a write violates a unique index.
	ErrConflict = errors.New("document conflicts with an existing one")
	// ErrInvalidFilter is returned for filters on malformed field names.
	ErrInvalidFilter = errors.New("invalid query filter")
)
