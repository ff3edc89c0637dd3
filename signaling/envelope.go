package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Kind discriminates envelope payloads on the wire.
type Kind string

const (
	// KindChat carries a user-visible chat message.
	KindChat Kind = "chat"
	// KindSystem carries control notices such as call rejection.
	KindSystem Kind = "system"
	// KindMediaControl informs the remote UI about local mute changes.
	KindMediaControl Kind = "media-control"
)

// MaxChatMessageLen caps a chat message's length in runes.
const MaxChatMessageLen = 500

// System event names carried by KindSystem envelopes.
const (
	SystemCallRejected = "call-rejected"
)

// Data session labels.
const (
	// ChatLabel marks the chat/control data session of a call.
	ChatLabel = "chat"
	// RejectLabel marks the short-lived session used to tell a caller
	// their call was declined.
	RejectLabel = "call_rejected"
)

var (
	// ErrMessageTooLong indicates a chat message above MaxChatMessageLen.
	ErrMessageTooLong = errors.New("chat message too long")

	// ErrUnknownKind indicates an envelope with an unrecognized kind.
	ErrUnknownKind = errors.New("unknown envelope kind")
)

// ChatPayload is the payload of a KindChat envelope.
type ChatPayload struct {
	Message           string `json:"message"`
	SenderDisplayName string `json:"senderName"`
}

// SystemPayload is the payload of a KindSystem envelope.
type SystemPayload struct {
	Event string `json:"event"`
}

// MediaControlPayload is the payload of a KindMediaControl envelope. It
// is a best-effort notification; no acknowledgment is expected.
type MediaControlPayload struct {
	Media   string `json:"media"` // "audio" or "video"
	Enabled bool   `json:"enabled"`
}

// Envelope is one typed message on the data session. Exactly one of the
// payload pointers matching Kind is non-nil.
type Envelope struct {
	Kind          Kind
	SenderAddress string
	SentAt        time.Time

	Chat         *ChatPayload
	System       *SystemPayload
	MediaControl *MediaControlPayload
}

// wireEnvelope is the JSON shape on the data session.
type wireEnvelope struct {
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	SentAt        time.Time       `json:"sentAt"`
	SenderAddress string          `json:"senderAddress"`
}

// NewChatEnvelope builds a chat envelope, enforcing the message length
// limit.
func NewChatEnvelope(senderAddress, senderName, message string, sentAt time.Time) (Envelope, error) {
	if utf8.RuneCountInString(message) > MaxChatMessageLen {
		return Envelope{}, ErrMessageTooLong
	}
	return Envelope{
		Kind:          KindChat,
		SenderAddress: senderAddress,
		SentAt:        sentAt,
		Chat:          &ChatPayload{Message: message, SenderDisplayName: senderName},
	}, nil
}

// NewSystemEnvelope builds a system/control envelope.
func NewSystemEnvelope(senderAddress, event string, sentAt time.Time) Envelope {
	return Envelope{
		Kind:          KindSystem,
		SenderAddress: senderAddress,
		SentAt:        sentAt,
		System:        &SystemPayload{Event: event},
	}
}

// NewMediaControlEnvelope builds a media-control envelope.
func NewMediaControlEnvelope(senderAddress, media string, enabled bool, sentAt time.Time) Envelope {
	return Envelope{
		Kind:          KindMediaControl,
		SenderAddress: senderAddress,
		SentAt:        sentAt,
		MediaControl:  &MediaControlPayload{Media: media, Enabled: enabled},
	}
}

// Encode serializes the envelope to its wire shape. The payload pointer
// is checked per variant; a nil pointer boxed in an interface would
// still compare non-nil and marshal to JSON null.
func (e Envelope) Encode() ([]byte, error) {
	var payload interface{}
	switch e.Kind {
	case KindChat:
		if e.Chat == nil {
			return nil, fmt.Errorf("envelope kind %q has no payload", e.Kind)
		}
		payload = e.Chat
	case KindSystem:
		if e.System == nil {
			return nil, fmt.Errorf("envelope kind %q has no payload", e.Kind)
		}
		payload = e.System
	case KindMediaControl:
		if e.MediaControl == nil {
			return nil, fmt.Errorf("envelope kind %q has no payload", e.Kind)
		}
		payload = e.MediaControl
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(wireEnvelope{
		Kind:          e.Kind,
		Payload:       raw,
		SentAt:        e.SentAt,
		SenderAddress: e.SenderAddress,
	})
}

// DecodeEnvelope parses wire bytes into a typed envelope. Unknown kinds
// are an error so a newer peer cannot smuggle payloads past the type
// switch.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	env := Envelope{
		Kind:          wire.Kind,
		SenderAddress: wire.SenderAddress,
		SentAt:        wire.SentAt,
	}

	switch wire.Kind {
	case KindChat:
		var p ChatPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode chat payload: %w", err)
		}
		env.Chat = &p
	case KindSystem:
		var p SystemPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode system payload: %w", err)
		}
		env.System = &p
	case KindMediaControl:
		var p MediaControlPayload
		if err := json.Unmarshal(wire.Payload, &p); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode media-control payload: %w", err)
		}
		env.MediaControl = &p
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, wire.Kind)
	}
	return env, nil
}
