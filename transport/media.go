package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// TrackKind distinguishes audio and video tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MediaConstraints describes the media to acquire.
type MediaConstraints struct {
	Audio bool
	Video bool

	// Audio processing hints, passed through to the device layer.
	NoiseSuppression bool
	EchoCancellation bool
	AutoGainControl  bool
}

// DefaultConstraints returns the constraints used for a call of the given
// kind: processed audio always, video only for video calls.
func DefaultConstraints(kind MediaKind) MediaConstraints {
	return MediaConstraints{
		Audio:            true,
		Video:            kind == MediaKindVideo,
		NoiseSuppression: true,
		EchoCancellation: true,
		AutoGainControl:  true,
	}
}

// MediaDevices acquires local capture devices. The real implementation
// talks to the platform media stack; tests use fakes.
type MediaDevices interface {
	GetUserMedia(constraints MediaConstraints) (*LocalMedia, error)
}

// MediaTrack is one local capture track. Muting flips the enabled flag;
// the device stays acquired until Stop.
type MediaTrack struct {
	kind TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool
	onStop  func()
}

// NewMediaTrack creates an enabled track. onStop releases the underlying
// device resource and may be nil.
func NewMediaTrack(kind TrackKind, onStop func()) *MediaTrack {
	return &MediaTrack{kind: kind, enabled: true, onStop: onStop}
}

// Kind returns the track kind.
func (t *MediaTrack) Kind() TrackKind {
	return t.kind
}

// Enabled reports whether the track is currently live (unmuted).
func (t *MediaTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled mutes or unmutes the track.
func (t *MediaTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Stop releases the device resource. Idempotent.
func (t *MediaTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.onStop != nil {
		t.onStop()
	}
}

// Stopped reports whether the track has been released.
func (t *MediaTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// LocalMedia is the exclusively-owned local device handle for one call
// session. Release stops every track exactly once.
type LocalMedia struct {
	mu       sync.Mutex
	tracks   []*MediaTrack
	released bool
}

// NewLocalMedia bundles tracks into one handle.
func NewLocalMedia(tracks ...*MediaTrack) *LocalMedia {
	return &LocalMedia{tracks: tracks}
}

// Tracks returns all tracks.
func (m *LocalMedia) Tracks() []*MediaTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MediaTrack, len(m.tracks))
	copy(out, m.tracks)
	return out
}

func (m *LocalMedia) tracksOfKind(kind TrackKind) []*MediaTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MediaTrack
	for _, t := range m.tracks {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// AudioTracks returns the audio tracks.
func (m *LocalMedia) AudioTracks() []*MediaTrack {
	return m.tracksOfKind(TrackKindAudio)
}

// VideoTracks returns the video tracks.
func (m *LocalMedia) VideoTracks() []*MediaTrack {
	return m.tracksOfKind(TrackKindVideo)
}

// toggleKind flips the enabled flag of every track of the kind and
// returns the new state. False when no such track exists.
func (m *LocalMedia) toggleKind(kind TrackKind) bool {
	tracks := m.tracksOfKind(kind)
	if len(tracks) == 0 {
		return false
	}
	newState := !tracks[0].Enabled()
	for _, t := range tracks {
		t.SetEnabled(newState)
	}
	return newState
}

// ToggleAudio flips the audio mute state and returns the new enabled
// state.
func (m *LocalMedia) ToggleAudio() bool {
	return m.toggleKind(TrackKindAudio)
}

// ToggleVideo flips the video mute state and returns the new enabled
// state.
func (m *LocalMedia) ToggleVideo() bool {
	return m.toggleKind(TrackKindVideo)
}

// Released reports whether Release has run.
func (m *LocalMedia) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Release stops every track. Idempotent: only the first call touches the
// tracks, so the device handle is released exactly once.
func (m *LocalMedia) Release() {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	tracks := m.tracks
	m.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Release",
		"tracks":   len(tracks),
	}).Debug("Local media released")
}
