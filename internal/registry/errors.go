package registry

import "errors"

var (
	// ErrNotFound is returned when a series, source, or task lookup misses.
	ErrNotFound = errors.New("registry: not found")
	// ErrAlreadyRegistered is returned by Create when the external id collides.
	ErrAlreadyRegistered = errors.New("registry: already registered")
	// ErrValidation is returned for malformed input caught before any write.
	ErrValidation = errors.New("registry: validation")
	// ErrNoFailedTasks is returned by RetryFailed when there is nothing to retry.
	ErrNoFailedTasks = errors.New("registry: no failed tasks")
)
