package store

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict signals an optimistic-concurrency failure on a
	// versioned weight update.
	ErrVersionConflict = errors.New("version conflict")
)
