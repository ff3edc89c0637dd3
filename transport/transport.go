package transport

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// eventBuffer sizes the event channel. Transport callbacks block when the
// buffer is full rather than dropping events; the consumer is a tight
// actor loop, so the buffer only absorbs bursts.
const eventBuffer = 128

// Handle owns exactly one network registration at a time and translates
// the network's callbacks into the bounded Event set.
type Handle struct {
	network Network
	devices MediaDevices

	events chan Event
	done   chan struct{}

	mu           sync.Mutex
	registered   bool
	localAddress string
	wantAddress  string
	media        *LocalMedia
	dataSessions map[string]DataSession
	closed       bool
}

// NewHandle wires a Handle to the external network and device layer. The
// handle installs its own network callbacks; callers must not replace
// them.
func NewHandle(network Network, devices MediaDevices) (*Handle, error) {
	if network == nil {
		return nil, fmt.Errorf("network must not be nil")
	}
	if devices == nil {
		return nil, fmt.Errorf("media devices must not be nil")
	}

	h := &Handle{
		network:      network,
		devices:      devices,
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		dataSessions: make(map[string]DataSession),
	}
	network.SetCallbacks(h.callbacks())

	logrus.WithFields(logrus.Fields{
		"function": "NewHandle",
	}).Debug("Transport handle created")

	return h, nil
}

// Events returns the single-consumer event channel.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// LocalAddress returns the registered address, or "" when unregistered.
func (h *Handle) LocalAddress() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.localAddress
}

// callbacks builds the network callback set that feeds the event channel.
func (h *Handle) callbacks() NetworkCallbacks {
	return NetworkCallbacks{
		OnOpen: func(localAddress string) {
			h.mu.Lock()
			h.registered = true
			h.localAddress = localAddress
			h.mu.Unlock()
			h.emit(Event{Type: EventOpened, LocalAddress: localAddress})
		},
		OnIncomingCall: func(session MediaSession) {
			h.emit(Event{
				Type:          EventIncomingMediaSession,
				RemoteAddress: session.RemoteAddress(),
				MediaSess:     session,
			})
		},
		OnIncomingData: func(session DataSession) {
			h.emit(Event{
				Type:          EventIncomingDataSession,
				RemoteAddress: session.RemoteAddress(),
				DataSess:      session,
			})
		},
		OnMedia: func(remoteAddress string, media RemoteMedia) {
			h.emit(Event{
				Type:          EventMediaReceived,
				RemoteAddress: remoteAddress,
				RemoteMedia:   media,
			})
		},
		OnData: func(remoteAddress string, payload []byte) {
			h.emit(Event{
				Type:          EventDataReceived,
				RemoteAddress: remoteAddress,
				Payload:       payload,
			})
		},
		OnSessionClosed: func(remoteAddress string) {
			h.emit(Event{Type: EventSessionClosed, RemoteAddress: remoteAddress})
		},
		OnDisconnected: func() {
			h.mu.Lock()
			h.registered = false
			h.mu.Unlock()
			h.emit(Event{Type: EventDisconnected})
		},
		OnError: func(err error) {
			h.emit(Event{Type: EventError, Err: err})
		},
	}
}

// emit delivers an event unless the handle has been killed.
func (h *Handle) emit(ev Event) {
	select {
	case <-h.done:
		logrus.WithFields(logrus.Fields{
			"function":   "emit",
			"event_type": ev.Type.String(),
		}).Debug("Dropping event after handle shutdown")
	case h.events <- ev:
	}
}

// Register opens a registration under the given address. Idempotent for
// the same address; registering under a different address tears the old
// registration down first. Success is reported asynchronously through
// EventOpened.
func (h *Handle) Register(address string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	if h.registered && h.wantAddress == address {
		local := h.localAddress
		h.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Register",
			"address":  address,
		}).Debug("Already registered under requested address")
		// Re-announce so a consumer waiting on the open confirmation
		// still observes one.
		h.emit(Event{Type: EventOpened, LocalAddress: local})
		return nil
	}
	teardown := h.registered || h.wantAddress != ""
	h.wantAddress = address
	h.registered = false
	h.localAddress = ""
	h.mu.Unlock()

	if teardown {
		logrus.WithFields(logrus.Fields{
			"function": "Register",
			"address":  address,
		}).Info("Tearing down previous registration")
		if err := h.network.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Register",
				"error":    err.Error(),
			}).Warn("Failed to close previous registration")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"address":  address,
	}).Info("Registering with transport")

	if err := h.network.Open(address); err != nil {
		return fmt.Errorf("failed to open registration: %w", err)
	}
	return nil
}

// PlaceMediaCall starts an outgoing media call.
func (h *Handle) PlaceMediaCall(remoteAddress string, media *LocalMedia, meta CallMetadata) (MediaSession, error) {
	h.mu.Lock()
	registered := h.registered
	h.mu.Unlock()

	if !registered {
		return nil, ErrTransportUnavailable
	}
	if media == nil {
		return nil, ErrNoLocalMedia
	}

	logrus.WithFields(logrus.Fields{
		"function":       "PlaceMediaCall",
		"remote_address": remoteAddress,
		"media_kind":     meta.MediaKind,
	}).Info("Placing media call")

	session, err := h.network.Call(remoteAddress, media, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to place call: %w", err)
	}
	return session, nil
}

// AnswerMediaSession accepts an inbound session. ErrSessionAlreadyClosed
// is returned unchanged so callers can treat the remote-hangup race as a
// non-fatal condition.
func (h *Handle) AnswerMediaSession(session MediaSession, media *LocalMedia) error {
	if media == nil {
		return ErrNoLocalMedia
	}
	if err := session.Answer(media); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "AnswerMediaSession",
		"remote_address": session.RemoteAddress(),
	}).Info("Answered media session")
	return nil
}

// OpenDataSession opens a labelled data session to a remote address and
// tracks it for teardown.
func (h *Handle) OpenDataSession(remoteAddress, label string) (DataSession, error) {
	h.mu.Lock()
	registered := h.registered
	h.mu.Unlock()

	if !registered {
		return nil, ErrTransportUnavailable
	}

	session, err := h.network.Connect(remoteAddress, label)
	if err != nil {
		return nil, fmt.Errorf("failed to open data session: %w", err)
	}

	h.mu.Lock()
	h.dataSessions[remoteAddress+"/"+label] = session
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "OpenDataSession",
		"remote_address": remoteAddress,
		"label":          label,
	}).Debug("Data session opened")
	return session, nil
}

// SendData transmits one payload. Returns false when the session is not
// open or the send fails; the payload is dropped, never buffered.
func (h *Handle) SendData(session DataSession, payload []byte) bool {
	if session == nil || !session.IsOpen() {
		return false
	}
	if err := session.Send(payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "SendData",
			"remote_address": session.RemoteAddress(),
			"error":          err.Error(),
		}).Warn("Data send failed, payload dropped")
		return false
	}
	return true
}

// AcquireMedia obtains the local device handle. At most one handle is
// held at a time; a second acquisition returns the existing handle.
func (h *Handle) AcquireMedia(constraints MediaConstraints) (*LocalMedia, error) {
	h.mu.Lock()
	if h.media != nil && !h.media.Released() {
		media := h.media
		h.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "AcquireMedia",
		}).Debug("Reusing held media handle")
		return media, nil
	}
	h.mu.Unlock()

	media, err := h.devices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}

	h.mu.Lock()
	h.media = media
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "AcquireMedia",
		"audio":    constraints.Audio,
		"video":    constraints.Video,
	}).Info("Local media acquired")
	return media, nil
}

// HeldMedia returns the currently held device handle, or nil.
func (h *Handle) HeldMedia() *LocalMedia {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.media != nil && h.media.Released() {
		return nil
	}
	return h.media
}

// ReleaseMedia stops the held device handle. Safe to call on every exit
// path; the underlying release is idempotent.
func (h *Handle) ReleaseMedia() {
	h.mu.Lock()
	media := h.media
	h.media = nil
	h.mu.Unlock()

	if media != nil {
		media.Release()
	}
}

// CloseSessions closes every tracked data session without dropping the
// registration. Used on call end.
func (h *Handle) CloseSessions() {
	h.mu.Lock()
	sessions := h.dataSessions
	h.dataSessions = make(map[string]DataSession)
	h.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "CloseSessions",
				"error":    err.Error(),
			}).Warn("Failed to close data session")
		}
	}
}

// CloseAll releases every session, the held media and the registration.
func (h *Handle) CloseAll() {
	logrus.WithFields(logrus.Fields{
		"function": "CloseAll",
	}).Info("Closing all transport resources")

	h.CloseSessions()
	h.ReleaseMedia()

	h.mu.Lock()
	h.registered = false
	h.localAddress = ""
	h.wantAddress = ""
	h.mu.Unlock()

	if err := h.network.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "CloseAll",
			"error":    err.Error(),
		}).Warn("Failed to close network registration")
	}
}

// Kill shuts the handle down permanently. The event channel stops
// delivering after the teardown completes.
func (h *Handle) Kill() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.CloseAll()
	close(h.done)
}
