package transport

import "fmt"

// EventType enumerates every event the transport can deliver. The set is
// deliberately closed: consumers switch exhaustively over it.
type EventType uint8

const (
	// EventOpened reports a successful registration.
	EventOpened EventType = iota
	// EventIncomingMediaSession reports an inbound call.
	EventIncomingMediaSession
	// EventIncomingDataSession reports an inbound data channel.
	EventIncomingDataSession
	// EventMediaReceived reports the remote party's media stream.
	EventMediaReceived
	// EventDataReceived reports one inbound data payload.
	EventDataReceived
	// EventSessionClosed reports that a media session ended.
	EventSessionClosed
	// EventError reports a transport-level failure.
	EventError
	// EventDisconnected reports loss of the broker registration.
	EventDisconnected
)

// String returns a human-readable event type name for logging.
func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventIncomingMediaSession:
		return "incoming_media_session"
	case EventIncomingDataSession:
		return "incoming_data_session"
	case EventMediaReceived:
		return "media_received"
	case EventDataReceived:
		return "data_received"
	case EventSessionClosed:
		return "session_closed"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Event is one message from the transport to the call orchestrator. Only
// the fields relevant to the Type are populated.
type Event struct {
	Type EventType

	// LocalAddress is set for EventOpened.
	LocalAddress string

	// RemoteAddress is set for every session-scoped event.
	RemoteAddress string

	// MediaSess is set for EventIncomingMediaSession.
	MediaSess MediaSession

	// DataSess is set for EventIncomingDataSession.
	DataSess DataSession

	// RemoteMedia is set for EventMediaReceived.
	RemoteMedia RemoteMedia

	// Payload is set for EventDataReceived.
	Payload []byte

	// Err is set for EventError.
	Err error
}
