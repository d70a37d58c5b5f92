package engine

import "sync/atomic"

// State describes where the engine's connection lifecycle currently is.
// Exactly one State exists per engine; it is written only by the supervise
// loop and read concurrently by the session loops and health checks.
type State int32

const (
	// StateDisconnected means no connection exists and none is being attempted.
	// This is both the initial state and the terminal state after a graceful
	// stop or retry exhaustion.
	StateDisconnected State = iota

	// StateConnecting means a dial attempt is in flight.
	StateConnecting

	// StateOpen means the transport session is established and the send,
	// keepalive, and playback loops are running.
	StateOpen

	// StateClosing means an explicit stop is in progress and owned resources
	// are being released.
	StateClosing

	// StateFailed means the connection was lost and the engine is backing off
	// before the next reconnection attempt.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// connState holds a State with atomic access semantics.
type connState struct {
	v atomic.Int32
}

func (c *connState) set(s State) {
	c.v.Store(int32(s))
}

func (c *connState) get() State {
	return State(c.v.Load())
}
