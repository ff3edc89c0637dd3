package call

import "errors"

var (
	// ErrNotConnected is returned when an action requires an open
	// transport registration and none exists.
	ErrNotConnected = errors.New("not connected to signaling broker")

	// ErrAlreadyInCall is returned when a call is placed while another
	// call session is already active or pending.
	ErrAlreadyInCall = errors.New("another call is already in progress")

	// ErrNoIncomingCall is returned when accept or reject is invoked
	// without a pending incoming call.
	ErrNoIncomingCall = errors.New("no incoming call to act on")

	// ErrNoDisplayName is returned when registration is attempted with
	// an empty display name.
	ErrNoDisplayName = errors.New("display name is required")

	// ErrOrchestratorStopped is returned from actions after Stop.
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
)
