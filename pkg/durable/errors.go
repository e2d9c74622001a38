package durable

import "errors"

var (
	// ErrNotFound is returned by reads of a path that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned when a path lock could not be acquired before
	// the deadline. Nothing was read or written.
	ErrTimeout = errors.New("lock timeout")

	// ErrInvalidArgument is returned for malformed calls, for example batch
	// writes whose path and content slices differ in length.
	ErrInvalidArgument = errors.New("invalid argument")
)
