// Package call implements the call orchestration state machine.
//
// The Orchestrator owns the lifecycle of the single active call session.
// Every event source — transport callbacks, user actions, timers, and the
// completions of slow asynchronous work such as media acquisition — is
// delivered as a message to one serialized actor loop, so state guards
// never observe interleaved mutation. The orchestrator exposes an
// immutable Snapshot plus an explicit action API; presentation layers
// subscribe to snapshots rather than mutating shared state.
//
// Persistence writes (call history, contact timestamps) and ringtone
// playback are side effects: their failures are logged and never block or
// fail a call-state transition.
package call
