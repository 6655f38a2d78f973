package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidName indicates an empty or unusable artist/album/track name
	ErrInvalidName = errors.New("invalid name")

	// ErrMalformed indicates a command payload that failed validation
	ErrMalformed = errors.New("malformed payload")

	// ErrUnknownCommand indicates an envelope with an unrecognised kind
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
