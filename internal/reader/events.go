package reader

import "time"

// TagReadEvent represents one tag observation reported by the reader.
type TagReadEvent struct {
	// EPC is the tag's Electronic Product Code as uppercase hex.
	EPC string

	// Antenna is the 1-based antenna number that saw the tag.
	Antenna int

	// RSSI is the received signal strength in dBm (negative).
	RSSI int

	// Timestamp records when the observation was received.
	Timestamp time.Time
}

// StatusEvent represents a connection state change of the reader session.
//
// The client emits exactly one StatusEvent per transition: Connected:true
// after Open completes the setup sequence, Connected:false when the
// session is lost or closed.
type StatusEvent struct {
	// Connected is the new connection state.
	Connected bool

	// Reason describes why the state changed (e.g., "read: EOF",
	// "protocol desync", "closed").
	Reason string

	// Timestamp records when the transition happened.
	Timestamp time.Time
}
