package sse

import "time"

// Event is one complete frame reconstructed from the wire. Data holds the
// concatenation of all data lines in the frame, joined with newlines, with
// the trailing newline removed.
type Event struct {
	// Type is the value of the last event: field in the frame, empty when
	// the frame carried none.
	Type string

	// Data is the payload. A frame with no data lines at all is never
	// dispatched.
	Data string

	// ID is the value of the last id: field seen on or before this frame.
	ID string

	// Retry carries the server's reconnection-delay hint if the frame (or an
	// earlier one on the same connection) set one, zero otherwise.
	Retry time.Duration
}
