package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when no row matches a key.
	ErrNotFound = errors.New("row not found")
)
