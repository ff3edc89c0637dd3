package testnet

import (
	"errors"
	"sync"

	"github.com/opd-ai/meetcore/transport"
)

// remoteMedia is the logical handle handed to the receiving side.
type remoteMedia struct {
	id string
}

func (r remoteMedia) ID() string { return r.id }

// mediaLink is the shared state of one media call.
type mediaLink struct {
	mu       sync.Mutex
	closed   bool
	answered bool

	caller *mediaSession
	callee *mediaSession

	callerMediaID string
	calleeMediaID string
}

// mediaSession is one side of a media call.
type mediaSession struct {
	link       *mediaLink
	owner      *Network // the node holding this side
	peer       *Network // the node on the other end
	remoteAddr string
	meta       transport.CallMetadata
	caller     bool
}

var _ transport.MediaSession = (*mediaSession)(nil)

func (s *mediaSession) RemoteAddress() string { return s.remoteAddr }

func (s *mediaSession) Metadata() transport.CallMetadata { return s.meta }

// Answer accepts the call and delivers each side's media to the other.
func (s *mediaSession) Answer(media *transport.LocalMedia) error {
	if media == nil {
		return transport.ErrNoLocalMedia
	}

	s.link.mu.Lock()
	if s.link.closed {
		s.link.mu.Unlock()
		return transport.ErrSessionAlreadyClosed
	}
	if s.link.answered {
		s.link.mu.Unlock()
		return errors.New("session already answered")
	}
	s.link.answered = true
	caller := s.link.caller
	callee := s.link.callee
	callerMediaID := s.link.callerMediaID
	calleeMediaID := s.link.calleeMediaID
	s.link.mu.Unlock()

	// Each party observes the other's stream.
	if cb := caller.owner.cbs().OnMedia; cb != nil {
		cb(caller.remoteAddr, remoteMedia{id: calleeMediaID})
	}
	if cb := callee.owner.cbs().OnMedia; cb != nil {
		cb(callee.remoteAddr, remoteMedia{id: callerMediaID})
	}
	return nil
}

// Close ends the call and notifies the other side. Safe to call twice.
func (s *mediaSession) Close() error {
	s.link.mu.Lock()
	if s.link.closed {
		s.link.mu.Unlock()
		return nil
	}
	s.link.closed = true
	caller := s.link.caller
	callee := s.link.callee
	s.link.mu.Unlock()

	other := caller
	if s == caller {
		other = callee
	}
	if cb := other.owner.cbs().OnSessionClosed; cb != nil {
		cb(other.remoteAddr)
	}
	return nil
}

// dataLink is the shared state of one data session pair.
type dataLink struct {
	mu   sync.Mutex
	open bool
	a, b *dataSession
}

// dataSession is one side of a labelled byte channel.
type dataSession struct {
	link       *dataLink
	peer       *Network
	remoteAddr string
	label      string
}

var _ transport.DataSession = (*dataSession)(nil)

func (s *dataSession) RemoteAddress() string { return s.remoteAddr }

func (s *dataSession) Label() string { return s.label }

func (s *dataSession) IsOpen() bool {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	return s.link.open
}

// Send delivers the payload to the peer synchronously, preserving FIFO
// order within the session.
func (s *dataSession) Send(payload []byte) error {
	s.link.mu.Lock()
	open := s.link.open
	s.link.mu.Unlock()
	if !open {
		return errors.New("data session closed")
	}

	if cb := s.peer.cbs().OnData; cb != nil {
		// Copy so the receiver cannot observe later mutation.
		buf := make([]byte, len(payload))
		copy(buf, payload)
		cb(s.otherSide().remoteAddr, buf)
	}
	return nil
}

// otherSide returns the peer's session half.
func (s *dataSession) otherSide() *dataSession {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	if s == s.link.a {
		return s.link.b
	}
	return s.link.a
}

func (s *dataSession) Close() error {
	s.link.mu.Lock()
	s.link.open = false
	s.link.mu.Unlock()
	return nil
}
