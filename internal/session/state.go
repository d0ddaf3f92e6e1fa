package session

import "time"

// State is the connection lifecycle state. Exactly one instance exists per
// Manager and only the Manager's own goroutine mutates it.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingPairing
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Cause classifies why a session closed.
type Cause string

const (
	CauseLoggedOut       Cause = "logged_out"
	CauseSessionConflict Cause = "session_conflict"
	CauseTransient       Cause = "transient"
)

// Terminal reports whether the cause rules out automatic reconnection.
func (c Cause) Terminal() bool {
	return c == CauseLoggedOut || c == CauseSessionConflict
}

// Classify maps a transport disconnect status code onto a Cause. This is
// the single most important branch in the manager: a hard invalidation must
// clear stored credentials before any retry, or reconnection loops forever
// with stale credentials.
func Classify(statusCode int) Cause {
	switch statusCode {
	case StatusLoggedOut:
		return CauseLoggedOut
	case StatusSessionConflict:
		return CauseSessionConflict
	default:
		return CauseTransient
	}
}

// Snapshot is the read-only view returned by Status.
type Snapshot struct {
	State         string     `json:"state"`
	Attempts      int        `json:"reconnect_attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	Identity      string     `json:"identity,omitempty"`
}
