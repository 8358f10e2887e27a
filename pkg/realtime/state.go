package realtime

// State is the lifecycle phase of a Channel. Exactly one is active at a
// time.
type State int32

const (
	// StateDisconnected means no transport is open and no connect attempt
	// is in flight.
	StateDisconnected State = iota

	// StateConnecting means a transport dial is in progress.
	StateConnecting

	// StateConnected means the transport is open and frames flow.
	StateConnected

	// StateError means the last connect attempt failed.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange is delivered to state watchers on every transition.
type StateChange struct {
	From State
	To   State

	// Cause is the transport error behind the transition, if any.
	Cause error
}
