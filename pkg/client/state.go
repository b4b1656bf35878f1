package client

// State is the listener's connection state. Transitions are driven entirely
// by the listener's own loop; callers only observe.
type State int32

const (
	// StateIdle means the listener has not started yet
	StateIdle State = iota

	// StateConnecting means a connection attempt is in flight
	StateConnecting

	// StateStreaming means events are being read from an open stream
	StateStreaming

	// StateBackoff means the listener is waiting out a delay before
	// reconnecting
	StateBackoff

	// StateTerminated means the loop has ended: retry budget exhausted, a
	// fatal server response, or cooperative cancellation
	StateTerminated
)

// String returns the state name used in logs and the state metric
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
