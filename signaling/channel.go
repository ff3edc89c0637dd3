package signaling

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meetcore/transport"
)

// DataTransport is the slice of the transport handle the channel needs.
type DataTransport interface {
	OpenDataSession(remoteAddress, label string) (transport.DataSession, error)
	SendData(session transport.DataSession, payload []byte) bool
}

// ChatMessage is one entry in the local chat log.
type ChatMessage struct {
	ID            string
	SenderAddress string
	SenderName    string
	Message       string
	SentAt        time.Time
	// Local marks the sender's own echo of an outbound message.
	Local bool
}

// EnvelopeHandler receives every decoded inbound envelope.
type EnvelopeHandler func(env Envelope)

// Channel maintains at most one open chat data session per remote address
// and the chat log for the current call.
type Channel struct {
	transport DataTransport

	mu       sync.Mutex
	sessions map[string]transport.DataSession
	log      []ChatMessage
	handler  EnvelopeHandler
	limit    int
}

// NewChannel creates a channel over the given transport slice.
func NewChannel(dt DataTransport) *Channel {
	return &Channel{
		transport: dt,
		sessions:  make(map[string]transport.DataSession),
		limit:     MaxChatMessageLen,
	}
}

// SetMessageLimit caps outbound chat messages at n runes. Values below
// one are ignored; MaxChatMessageLen stays the hard wire limit either
// way.
func (c *Channel) SetMessageLimit(n int) {
	if n < 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
}

// SetEnvelopeHandler installs the inbound envelope subscriber. Chat
// envelopes are appended to the log before the handler runs.
func (c *Channel) SetEnvelopeHandler(handler EnvelopeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// EnsureOpen opens the chat session to the remote address unless one is
// already open. Lazily called once a media session exists.
func (c *Channel) EnsureOpen(remoteAddress string) error {
	c.mu.Lock()
	if s, ok := c.sessions[remoteAddress]; ok && s.IsOpen() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	session, err := c.transport.OpenDataSession(remoteAddress, ChatLabel)
	if err != nil {
		return err
	}
	c.adopt(session)
	return nil
}

// Adopt takes ownership of a remote-initiated chat session. When a
// session for the same address is already open, the first to reach open
// wins and the newcomer is closed, preventing duplicate channels.
func (c *Channel) Adopt(session transport.DataSession) {
	c.adopt(session)
}

func (c *Channel) adopt(session transport.DataSession) {
	remote := session.RemoteAddress()

	c.mu.Lock()
	existing, ok := c.sessions[remote]
	if ok && existing.IsOpen() && existing != session {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":       "adopt",
			"remote_address": remote,
		}).Debug("Chat session already open, closing duplicate")
		_ = session.Close()
		return
	}
	c.sessions[remote] = session
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "adopt",
		"remote_address": remote,
	}).Info("Chat session established")
}

// IsOpen reports whether a chat session to the remote address can send.
func (c *Channel) IsOpen(remoteAddress string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[remoteAddress]
	return ok && s.IsOpen()
}

// SendChat sends a chat message and appends the local echo on success.
// Returns false when no open session exists; the message is dropped, not
// queued.
func (c *Channel) SendChat(remoteAddress, senderAddress, senderName, message string, now time.Time) bool {
	c.mu.Lock()
	limit := c.limit
	c.mu.Unlock()
	if utf8.RuneCountInString(message) > limit {
		logrus.WithFields(logrus.Fields{
			"function": "SendChat",
			"limit":    limit,
		}).Warn("Rejecting outbound chat message over length limit")
		return false
	}

	env, err := NewChatEnvelope(senderAddress, senderName, message, now)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SendChat",
			"error":    err.Error(),
		}).Warn("Rejecting outbound chat message")
		return false
	}

	if !c.Send(remoteAddress, env) {
		return false
	}

	echo := ChatMessage{
		ID:            uuid.NewString(),
		SenderAddress: senderAddress,
		SenderName:    senderName,
		Message:       message,
		SentAt:        now,
		Local:         true,
	}
	c.mu.Lock()
	c.log = append(c.log, echo)
	c.mu.Unlock()
	return true
}

// Send serializes and transmits an envelope on the session for the remote
// address. Returns false when the session is missing or closed.
func (c *Channel) Send(remoteAddress string, env Envelope) bool {
	c.mu.Lock()
	session, ok := c.sessions[remoteAddress]
	c.mu.Unlock()
	if !ok {
		return false
	}

	data, err := env.Encode()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"kind":     string(env.Kind),
			"error":    err.Error(),
		}).Error("Failed to encode envelope")
		return false
	}
	return c.transport.SendData(session, data)
}

// HandleData decodes one inbound payload. Chat envelopes land in the log;
// every envelope reaches the subscriber. Malformed payloads are dropped
// with a warning.
func (c *Channel) HandleData(remoteAddress string, payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "HandleData",
			"remote_address": remoteAddress,
			"error":          err.Error(),
		}).Warn("Dropping malformed envelope")
		return
	}

	if env.Kind == KindChat && env.Chat != nil {
		msg := ChatMessage{
			ID:            uuid.NewString(),
			SenderAddress: env.SenderAddress,
			SenderName:    env.Chat.SenderDisplayName,
			Message:       env.Chat.Message,
			SentAt:        env.SentAt,
		}
		if msg.SenderAddress == "" {
			msg.SenderAddress = remoteAddress
		}
		if msg.SenderName == "" {
			msg.SenderName = "Unknown"
		}
		c.mu.Lock()
		c.log = append(c.log, msg)
		c.mu.Unlock()
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(env)
	}
}

// Teardown closes the chat session for one remote address. Closing the
// chat channel is part of call teardown only; it never ends the call by
// itself.
func (c *Channel) Teardown(remoteAddress string) {
	c.mu.Lock()
	session, ok := c.sessions[remoteAddress]
	delete(c.sessions, remoteAddress)
	c.mu.Unlock()

	if ok {
		if err := session.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":       "Teardown",
				"remote_address": remoteAddress,
				"error":          err.Error(),
			}).Warn("Failed to close chat session")
		}
	}
}

// TeardownAll closes every session.
func (c *Channel) TeardownAll() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]transport.DataSession)
	c.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}

// Log returns a copy of the chat log.
func (c *Channel) Log() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatMessage, len(c.log))
	copy(out, c.log)
	return out
}

// ClearLog empties the chat log. Called when a new call begins.
func (c *Channel) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = nil
}
