package app

import "encoding/json"

// State is the session controller's lifecycle state.
type State int

const (
	// StateUninitialized is the state before Validate runs.
	StateUninitialized State = iota
	// StateValidating covers startup validation of the persisted cache.
	StateValidating
	// StateColdBuild means the persisted cache is absent or invalidated;
	// the session proceeds as if empty.
	StateColdBuild
	// StateWarmBuild means the persisted cache passed validation and
	// entries may be served from disk.
	StateWarmBuild
	// StateRunning means the build is active and consulting the store.
	StateRunning
	// StateIdle means no qualifying activity is pending.
	StateIdle
	// StatePersisting means a flush is writing pack files.
	StatePersisting
	// StateExiting means the session is shutting down.
	StateExiting
)

// String returns a stable name for logs and status output.
func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateColdBuild:
		return "cold-build"
	case StateWarmBuild:
		return "warm-build"
	case StateRunning:
		return "running"
	case StateIdle:
		return "idle"
	case StatePersisting:
		return "persisting"
	case StateExiting:
		return "exiting"
	default:
		return "uninitialized"
	}
}

// MarshalJSON emits the stable name rather than the numeric value.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
