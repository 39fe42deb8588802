package reader

import "errors"

// Domain-specific errors for reader operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrReaderUnreachable is returned when the TCP connection cannot be established.
	ErrReaderUnreachable = errors.New("reader: unreachable")

	// ErrNotConnected is returned when attempting operations on a closed session.
	ErrNotConnected = errors.New("reader: not connected")

	// ErrCommandFailed is returned when the reader rejects or times out a command.
	ErrCommandFailed = errors.New("reader: command failed")

	// ErrInvalidFrame is returned when a frame fails parsing or checksum validation.
	ErrInvalidFrame = errors.New("reader: invalid frame")

	// ErrProtocolDesync is returned when the byte stream can no longer be
	// framed safely. The session must be closed and reopened.
	ErrProtocolDesync = errors.New("reader: protocol desync")
)
