package eventlog

import "errors"

// Domain-specific errors for event log operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMissingKind is returned when recording an event without a kind.
	ErrMissingKind = errors.New("eventlog: event kind cannot be empty")
)
