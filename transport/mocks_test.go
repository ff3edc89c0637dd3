package transport

import (
	"errors"
	"sync"
)

// fakeNetwork records calls and lets tests drive the callback set.
type fakeNetwork struct {
	mu        sync.Mutex
	callbacks NetworkCallbacks
	opens     []string
	closes    int
	openErr   error
	callErr   error
}

func (f *fakeNetwork) SetCallbacks(callbacks NetworkCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = callbacks
}

func (f *fakeNetwork) cbs() NetworkCallbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbacks
}

func (f *fakeNetwork) Open(address string) error {
	f.mu.Lock()
	f.opens = append(f.opens, address)
	err := f.openErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if cb := f.cbs().OnOpen; cb != nil {
		cb(address)
	}
	return nil
}

func (f *fakeNetwork) Call(remoteAddress string, media *LocalMedia, meta CallMetadata) (MediaSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	return &fakeMediaSession{remote: remoteAddress, meta: meta}, nil
}

func (f *fakeNetwork) Connect(remoteAddress, label string) (DataSession, error) {
	return &fakeDataSession{remote: remoteAddress, label: label, open: true}, nil
}

func (f *fakeNetwork) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeNetwork) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeNetwork) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeDevices counts live acquisitions so tests can assert release.
type fakeDevices struct {
	mu       sync.Mutex
	acquired int
	deny     bool
}

func (f *fakeDevices) GetUserMedia(constraints MediaConstraints) (*LocalMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny {
		return nil, errors.New("permission denied")
	}
	f.acquired++

	var once sync.Once
	release := func() {
		once.Do(func() {
			f.mu.Lock()
			f.acquired--
			f.mu.Unlock()
		})
	}
	var tracks []*MediaTrack
	if constraints.Audio {
		tracks = append(tracks, NewMediaTrack(TrackKindAudio, release))
	}
	if constraints.Video {
		tracks = append(tracks, NewMediaTrack(TrackKindVideo, release))
	}
	if len(tracks) == 0 {
		release()
	}
	return NewLocalMedia(tracks...), nil
}

func (f *fakeDevices) live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

// fakeMediaSession is a minimal MediaSession.
type fakeMediaSession struct {
	mu     sync.Mutex
	remote string
	meta   CallMetadata
	closed bool
}

func (f *fakeMediaSession) RemoteAddress() string  { return f.remote }
func (f *fakeMediaSession) Metadata() CallMetadata { return f.meta }

func (f *fakeMediaSession) Answer(media *LocalMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSessionAlreadyClosed
	}
	return nil
}

func (f *fakeMediaSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeDataSession is a minimal DataSession with recordable sends.
type fakeDataSession struct {
	mu      sync.Mutex
	remote  string
	label   string
	open    bool
	sendErr error
	sent    [][]byte
}

func (f *fakeDataSession) RemoteAddress() string { return f.remote }
func (f *fakeDataSession) Label() string         { return f.label }

func (f *fakeDataSession) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeDataSession) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeDataSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}
