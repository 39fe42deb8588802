package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyStarted is returned when Start is called on a running bridge.
	ErrAlreadyStarted = errors.New("bridge: already started")

	// ErrNotRunning is returned when a command arrives while the bridge
	// is idle or stopping.
	ErrNotRunning = errors.New("bridge: not running")

	// ErrUnknownCommand is returned for an unrecognised command topic.
	ErrUnknownCommand = errors.New("bridge: unknown command")
)
