package store

import "errors"

// Domain errors for the store package. Check with errors.Is.
var (
	// ErrNotFound is returned when no document matches.
	ErrNotFound = errors.New("store: not found")

	// ErrExists is returned when inserting an id that is already taken.
	ErrExists = errors.New("store: already exists")

	// ErrInvalidQuery is returned for unknown operators or malformed operands.
	ErrInvalidQuery = errors.New("store: invalid query")

	// ErrInvalidCollection is returned for an empty collection name.
	ErrInvalidCollection = errors.New("store: invalid collection")
)
