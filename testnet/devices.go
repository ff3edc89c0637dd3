package testnet

import (
	"errors"
	"sync"

	"github.com/opd-ai/meetcore/transport"
)

// Devices is an in-memory transport.MediaDevices. It hands out synthetic
// tracks and can be switched to deny access, simulating a user refusing
// the camera/microphone permission prompt.
type Devices struct {
	mu       sync.Mutex
	deny     bool
	acquired int
}

// NewDevices creates a device layer that grants access.
func NewDevices() *Devices {
	return &Devices{}
}

var _ transport.MediaDevices = (*Devices)(nil)

// SetDenyAccess makes subsequent acquisitions fail.
func (d *Devices) SetDenyAccess(deny bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deny = deny
}

// Acquired returns how many handles were granted and not yet released.
// Tests use it to assert against device-handle leaks.
func (d *Devices) Acquired() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// GetUserMedia grants a synthetic media handle per the constraints.
func (d *Devices) GetUserMedia(constraints transport.MediaConstraints) (*transport.LocalMedia, error) {
	d.mu.Lock()
	if d.deny {
		d.mu.Unlock()
		return nil, errors.New("permission dismissed")
	}
	d.acquired++
	d.mu.Unlock()

	// One device handle per acquisition regardless of track count.
	var once sync.Once
	release := func() {
		once.Do(func() {
			d.mu.Lock()
			d.acquired--
			d.mu.Unlock()
		})
	}

	var tracks []*transport.MediaTrack
	if constraints.Audio {
		tracks = append(tracks, transport.NewMediaTrack(transport.TrackKindAudio, release))
	}
	if constraints.Video {
		tracks = append(tracks, transport.NewMediaTrack(transport.TrackKindVideo, release))
	}
	if len(tracks) == 0 {
		release()
	}
	return transport.NewLocalMedia(tracks...), nil
}
