package models

import "errors"

var (
	// ErrStorageUnavailable wraps driver-level failures. Chat handlers
	// log it and still return the answer to the user; the interaction
	// is simply not recorded.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidRating rejects ratings outside [1,5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrUnknownInteraction rejects feedback for an interaction id that
	// was never recorded.
	ErrUnknownInteraction = errors.New("unknown interaction")

	ErrNotFound = errors.New("not found")
)
