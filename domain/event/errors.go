package event

import "errors"

// Domain errors for the progress event stream.
var (
	// ErrRunNotFound is returned when no events exist for a run.
	ErrRunNotFound = errors.New("run not found in event store")

	// ErrInvalidEvent is returned when an event is malformed.
	ErrInvalidEvent = errors.New("invalid event")
)
