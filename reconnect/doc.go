// Package reconnect drives bounded re-registration after a transport
// disconnect.
//
// The supervisor retries with exponential backoff from a base delay up to
// a cap, for a bounded number of attempts. A successful registration
// resets the attempt counter; exhausting the bound surfaces a terminal
// failure instead of retrying forever. Reconnection operates on the
// address registration only and never touches call-session state.
package reconnect
