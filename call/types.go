package call

import (
	"time"

	"github.com/opd-ai/meetcore/signaling"
	"github.com/opd-ai/meetcore/transport"
)

// State identifies the orchestrator's position in the call lifecycle.
// Exactly one state is active at a time; transitions happen only on the
// actor loop.
type State uint8

const (
	// StateIdle is the initial state before a display name is set.
	StateIdle State = iota
	// StateWaitingForIdentity means a name was provided but the derived
	// address has not been registered yet.
	StateWaitingForIdentity
	// StateConnecting means registration with the broker is in flight.
	StateConnecting
	// StateConnected means the local address is registered and the
	// orchestrator is ready to place or receive calls.
	StateConnected
	// StateCallingPeer means an outbound call is ringing at the remote.
	StateCallingPeer
	// StateIncomingCall means a remote offer is pending a local decision.
	StateIncomingCall
	// StateInCall means media is flowing in an established call.
	StateInCall
	// StateCallEnded is the brief post-call state before returning to
	// StateConnected.
	StateCallEnded
	// StateError is a terminal-per-attempt failure state. The user can
	// recover by reconnecting or setting a new display name.
	StateError
)

// String returns the lowercase state name used in logs and snapshots.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForIdentity:
		return "waiting_for_identity"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateCallingPeer:
		return "calling_peer"
	case StateIncomingCall:
		return "incoming_call"
	case StateInCall:
		return "in_call"
	case StateCallEnded:
		return "call_ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Direction distinguishes who initiated the active call session.
type Direction uint8

const (
	// DirectionOutgoing marks a call placed locally.
	DirectionOutgoing Direction = iota
	// DirectionIncoming marks a call answered locally.
	DirectionIncoming
)

// String returns the direction name used in logs and history records.
func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}

// Session describes the single active call. A non-nil Session exists only
// in StateCallingPeer, StateInCall and StateCallEnded.
type Session struct {
	// RemoteAddress is the peer's derived address.
	RemoteAddress string
	// RemoteName is the peer's self-declared display name. It is trusted
	// as presented and never verified.
	RemoteName string
	// Direction records which side initiated the call.
	Direction Direction
	// MediaKind is the negotiated media profile for the call.
	MediaKind transport.MediaKind
	// StartedAt is the time media was established. Zero while the call
	// is still ringing.
	StartedAt time.Time
	// RemoteAudioMuted and RemoteVideoMuted track the peer's declared
	// media-control state.
	RemoteAudioMuted bool
	RemoteVideoMuted bool
}

// IncomingDescriptor describes a pending inbound call offer.
type IncomingDescriptor struct {
	// ID is a locally generated identifier for this offer.
	ID string
	// CallerAddress is the remote peer's address.
	CallerAddress string
	// CallerName is the caller's self-declared display name, or
	// "Unknown" when the offer carried none.
	CallerName string
	// CallerAvatar is the caller's self-declared avatar reference.
	CallerAvatar string
	// MediaKind is the media profile the caller requested.
	MediaKind transport.MediaKind
	// ReceivedAt is when the offer arrived.
	ReceivedAt time.Time
}

// Snapshot is an immutable view of the orchestrator, safe to read from
// any goroutine.
type Snapshot struct {
	State          State
	Reason         string
	LocalAddress   string
	DisplayName    string
	ActiveCall     *Session
	Incoming       *IncomingDescriptor
	HasRemoteMedia bool
	ChatLog        []signaling.ChatMessage
}

// Ringtone abstracts incoming-call alert playback. Play failures are
// logged and never affect call handling.
type Ringtone interface {
	Play() error
	Stop()
}

// NopRingtone is a Ringtone that does nothing. It is the default when no
// ringtone is configured.
type NopRingtone struct{}

// Play implements Ringtone.
func (NopRingtone) Play() error { return nil }

// Stop implements Ringtone.
func (NopRingtone) Stop() {}

// Human-readable reasons attached to StateError snapshots.
const (
	ReasonMediaAccessDenied = "Camera or microphone access was denied"
	ReasonPeerUnreachable   = "Peer could not be reached"
	ReasonCallDeclined      = "Call was declined"
	ReasonConnectionLost    = "Connection to the signaling broker was lost"
)
