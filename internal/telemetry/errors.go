package telemetry

import "errors"

// Domain errors for the telemetry package.
var (
	// ErrUnknownType is returned when an operation names a message type that
	// has never been seen.
	ErrUnknownType = errors.New("telemetry: unknown message type")

	// ErrUnknownCategory is returned when a record of the unknown category
	// is offered to the cache.
	ErrUnknownCategory = errors.New("telemetry: record has unknown category")
)
