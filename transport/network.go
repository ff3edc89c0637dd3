package transport

// MediaKind declares whether a call carries video or audio only.
type MediaKind string

const (
	// MediaKindVideo is an audio+video call.
	MediaKindVideo MediaKind = "video"
	// MediaKindAudio is an audio-only call.
	MediaKindAudio MediaKind = "audio"
)

// CallMetadata travels opaquely with a call request. The caller-declared
// name and avatar are trusted as-is; no verification is performed.
type CallMetadata struct {
	CallerName   string
	CallerAvatar string
	MediaKind    MediaKind
}

// RemoteMedia is the logical handle to the remote party's media stream.
// The transport owns the underlying resource; holders only reference it.
type RemoteMedia interface {
	// ID identifies the stream for presentation-layer attachment.
	ID() string
}

// MediaSession is one media call between two addresses.
type MediaSession interface {
	// RemoteAddress returns the other party's address.
	RemoteAddress() string

	// Metadata returns the caller-declared call metadata.
	Metadata() CallMetadata

	// Answer accepts an inbound session with the given local media.
	// Returns ErrSessionAlreadyClosed if the remote hung up first.
	Answer(media *LocalMedia) error

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// DataSession is one byte-stream channel between two addresses, used for
// chat and control envelopes.
type DataSession interface {
	RemoteAddress() string

	// Label distinguishes channel purposes ("chat", "call_rejected").
	Label() string

	// Send transmits one payload. Delivery is at-most-once; ordering is
	// FIFO within this session only.
	Send(payload []byte) error

	// IsOpen reports whether the session can currently send.
	IsOpen() bool

	Close() error
}

// NetworkCallbacks receives events from the external transport. The
// transport may invoke these from any goroutine; the Handle serializes
// them onto its event channel.
type NetworkCallbacks struct {
	OnOpen          func(localAddress string)
	OnIncomingCall  func(session MediaSession)
	OnIncomingData  func(session DataSession)
	OnMedia         func(remoteAddress string, media RemoteMedia)
	OnData          func(remoteAddress string, payload []byte)
	OnSessionClosed func(remoteAddress string)
	OnDisconnected  func()
	OnError         func(err error)
}

// Network is the boundary to the external peer transport. Implementations
// wrap a real signaling broker client; tests use in-memory fakes.
type Network interface {
	// Open registers the given address with the broker. Registration is
	// asynchronous: success arrives through OnOpen, failure through
	// OnError.
	Open(address string) error

	// Call places a media call to a remote address.
	Call(remoteAddress string, media *LocalMedia, meta CallMetadata) (MediaSession, error)

	// Connect opens a labelled data session to a remote address.
	Connect(remoteAddress, label string) (DataSession, error)

	// SetCallbacks installs the event sink. Must be called before Open.
	SetCallbacks(callbacks NetworkCallbacks)

	// Close releases the registration and every open session.
	Close() error
}
