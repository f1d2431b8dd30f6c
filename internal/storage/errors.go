package storage

import "errors"

// Storage errors for the append-only journal.
var (
	// ErrDuplicateKey is returned when an entry with the same tx hash already exists.
	// The journal is append-only and does not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
