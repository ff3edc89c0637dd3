package storage

import "time"

// CallDirection classifies a history entry.
type CallDirection string

const (
	// DirectionIncoming marks a call answered locally.
	DirectionIncoming CallDirection = "incoming"
	// DirectionOutgoing marks a call placed locally.
	DirectionOutgoing CallDirection = "outgoing"
	// DirectionMissed marks a call that was rejected or never answered.
	DirectionMissed CallDirection = "missed"
)

// PlaceholderName is written into an outgoing history entry before the
// callee's real name is known. UpdateCallHistory matches against it.
const PlaceholderName = "Calling..."

// Profile holds the local user's identity as shown to peers.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Status    string    `json:"status,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Contact is a saved peer.
type Contact struct {
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	Favorite   bool      `json:"favorite"`
	LastCallAt time.Time `json:"lastCallAt,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

// CallHistoryEntry records one finished, missed or in-progress call.
// Entries are append-only: an entry is mutated at most once, to fill in
// the duration or to replace a placeholder name, and individual entries
// are never deleted.
type CallHistoryEntry struct {
	ID              string        `json:"id"`
	RemoteAddress   string        `json:"remoteAddress"`
	DisplayName     string        `json:"displayName"`
	Direction       CallDirection `json:"direction"`
	MediaKind       string        `json:"mediaKind"`
	DurationSeconds int           `json:"durationSeconds,omitempty"`
	OccurredAt      time.Time     `json:"occurredAt"`
}

// CallHistoryUpdate carries the fields UpdateCallHistory may fill in.
// Nil fields are left untouched.
type CallHistoryUpdate struct {
	DisplayName     *string
	Direction       *CallDirection
	DurationSeconds *int
}

// Preferences holds user-tunable call behavior.
type Preferences struct {
	Theme            string `json:"theme"`
	Notifications    bool   `json:"notifications"`
	AutoAcceptCalls  bool   `json:"autoAcceptCalls"`
	DefaultMediaKind string `json:"defaultMediaKind"`
	SoundEnabled     bool   `json:"soundEnabled"`
}

// DefaultPreferences mirrors the defaults applied on first run.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:            "light",
		Notifications:    true,
		AutoAcceptCalls:  false,
		DefaultMediaKind: "video",
		SoundEnabled:     true,
	}
}

// DeviceSettings holds preferred capture/playback devices.
type DeviceSettings struct {
	PreferredCamera     string `json:"preferredCamera,omitempty"`
	PreferredMicrophone string `json:"preferredMicrophone,omitempty"`
	PreferredSpeaker    string `json:"preferredSpeaker,omitempty"`
	VideoQuality        string `json:"videoQuality"`
	AudioQuality        string `json:"audioQuality"`
}

// DefaultDeviceSettings mirrors the defaults applied on first run.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		VideoQuality: "medium",
		AudioQuality: "high",
	}
}
