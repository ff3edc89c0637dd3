package transport

import "errors"

// Sentinel errors for transport operations. These enable reliable error
// classification with errors.Is().
var (
	// ErrTransportUnavailable indicates no registration is active.
	ErrTransportUnavailable = errors.New("transport is not registered")

	// ErrNoLocalMedia indicates a media call was attempted without a
	// local media handle.
	ErrNoLocalMedia = errors.New("no local media available")

	// ErrSessionAlreadyClosed indicates an inbound session was closed
	// before it could be answered. This is a reportable race, not a
	// failure: the remote hung up while the local user was accepting.
	ErrSessionAlreadyClosed = errors.New("session already closed")

	// ErrMediaAccessDenied indicates the local camera/microphone could
	// not be acquired. MediaDevices implementations wrap their platform
	// errors with this sentinel.
	ErrMediaAccessDenied = errors.New("media access denied")

	// ErrHandleClosed indicates the handle has been shut down.
	ErrHandleClosed = errors.New("transport handle closed")
)
