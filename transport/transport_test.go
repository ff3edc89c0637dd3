package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T) (*Handle, *fakeNetwork, *fakeDevices) {
	t.Helper()
	network := &fakeNetwork{}
	devices := &fakeDevices{}
	handle, err := NewHandle(network, devices)
	require.NoError(t, err)
	t.Cleanup(handle.Kill)
	return handle, network, devices
}

func waitEvent(t *testing.T, handle *Handle, want EventType) Event {
	t.Helper()
	for {
		select {
		case ev := <-handle.Events():
			if ev.Type == want {
				return ev
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestNewHandleRequiresCollaborators(t *testing.T) {
	_, err := NewHandle(nil, &fakeDevices{})
	require.Error(t, err)

	_, err = NewHandle(&fakeNetwork{}, nil)
	require.Error(t, err)
}

func TestRegisterEmitsOpened(t *testing.T) {
	handle, network, _ := newTestHandle(t)

	require.NoError(t, handle.Register("alice_1234"))
	ev := waitEvent(t, handle, EventOpened)
	require.Equal(t, "alice_1234", ev.LocalAddress)
	require.Equal(t, "alice_1234", handle.LocalAddress())
	require.Equal(t, 1, network.openCount())
}

func TestRegisterSameAddressIsIdempotent(t *testing.T) {
	handle, network, _ := newTestHandle(t)

	require.NoError(t, handle.Register("alice_1234"))
	waitEvent(t, handle, EventOpened)

	// No second network open, but the confirmation is re-announced.
	require.NoError(t, handle.Register("alice_1234"))
	ev := waitEvent(t, handle, EventOpened)
	require.Equal(t, "alice_1234", ev.LocalAddress)
	require.Equal(t, 1, network.openCount())
}

func TestRegisterNewAddressTearsDownOld(t *testing.T) {
	handle, network, _ := newTestHandle(t)

	require.NoError(t, handle.Register("alice_1234"))
	waitEvent(t, handle, EventOpened)

	require.NoError(t, handle.Register("alicia_5678"))
	ev := waitEvent(t, handle, EventOpened)
	require.Equal(t, "alicia_5678", ev.LocalAddress)
	require.Equal(t, 2, network.openCount())
	require.GreaterOrEqual(t, network.closeCount(), 1)
}

func TestPlaceMediaCallGuards(t *testing.T) {
	handle, _, devices := newTestHandle(t)

	media, err := devices.GetUserMedia(DefaultConstraints(MediaKindVideo))
	require.NoError(t, err)

	_, err = handle.PlaceMediaCall("bob_1234", media, CallMetadata{})
	require.ErrorIs(t, err, ErrTransportUnavailable)

	require.NoError(t, handle.Register("alice_1234"))
	waitEvent(t, handle, EventOpened)

	_, err = handle.PlaceMediaCall("bob_1234", nil, CallMetadata{})
	require.ErrorIs(t, err, ErrNoLocalMedia)

	session, err := handle.PlaceMediaCall("bob_1234", media, CallMetadata{CallerName: "Alice"})
	require.NoError(t, err)
	require.Equal(t, "bob_1234", session.RemoteAddress())
}

func TestAcquireMediaReusesHeldHandle(t *testing.T) {
	handle, _, devices := newTestHandle(t)

	first, err := handle.AcquireMedia(DefaultConstraints(MediaKindVideo))
	require.NoError(t, err)
	require.Equal(t, 1, devices.live())

	second, err := handle.AcquireMedia(DefaultConstraints(MediaKindVideo))
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, devices.live())

	handle.ReleaseMedia()
	require.Zero(t, devices.live())
	require.Nil(t, handle.HeldMedia())

	// Released handles are not reused.
	third, err := handle.AcquireMedia(DefaultConstraints(MediaKindVideo))
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.Equal(t, 1, devices.live())
}

func TestAcquireMediaDeniedWrapsSentinel(t *testing.T) {
	handle, _, devices := newTestHandle(t)

	devices.deny = true
	_, err := handle.AcquireMedia(DefaultConstraints(MediaKindAudio))
	require.ErrorIs(t, err, ErrMediaAccessDenied)
	require.Zero(t, devices.live())
}

func TestReleaseMediaIsIdempotent(t *testing.T) {
	handle, _, devices := newTestHandle(t)

	_, err := handle.AcquireMedia(DefaultConstraints(MediaKindVideo))
	require.NoError(t, err)

	handle.ReleaseMedia()
	handle.ReleaseMedia()
	require.Zero(t, devices.live())
}

func TestSendDataDropSemantics(t *testing.T) {
	handle, _, _ := newTestHandle(t)

	require.False(t, handle.SendData(nil, []byte("x")))

	closed := &fakeDataSession{remote: "bob_1234", label: "chat"}
	require.False(t, handle.SendData(closed, []byte("x")))

	failing := &fakeDataSession{remote: "bob_1234", label: "chat", open: true, sendErr: errors.New("boom")}
	require.False(t, handle.SendData(failing, []byte("x")))

	working := &fakeDataSession{remote: "bob_1234", label: "chat", open: true}
	require.True(t, handle.SendData(working, []byte("x")))
	require.Len(t, working.sent, 1)
}

func TestCallbacksAreTranslatedToEvents(t *testing.T) {
	handle, network, _ := newTestHandle(t)

	cbs := network.cbs()
	cbs.OnIncomingCall(&fakeMediaSession{remote: "bob_1234"})
	ev := waitEvent(t, handle, EventIncomingMediaSession)
	require.Equal(t, "bob_1234", ev.RemoteAddress)
	require.NotNil(t, ev.MediaSess)

	cbs.OnData("bob_1234", []byte("payload"))
	ev = waitEvent(t, handle, EventDataReceived)
	require.Equal(t, []byte("payload"), ev.Payload)

	cbs.OnSessionClosed("bob_1234")
	ev = waitEvent(t, handle, EventSessionClosed)
	require.Equal(t, "bob_1234", ev.RemoteAddress)

	cbs.OnError(errors.New("broker down"))
	ev = waitEvent(t, handle, EventError)
	require.EqualError(t, ev.Err, "broker down")
}

func TestDisconnectClearsRegistration(t *testing.T) {
	handle, network, _ := newTestHandle(t)

	require.NoError(t, handle.Register("alice_1234"))
	waitEvent(t, handle, EventOpened)

	network.cbs().OnDisconnected()
	waitEvent(t, handle, EventDisconnected)

	_, err := handle.PlaceMediaCall("bob_1234", NewLocalMedia(), CallMetadata{})
	require.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestKillReleasesEverything(t *testing.T) {
	handle, network, devices := newTestHandle(t)

	require.NoError(t, handle.Register("alice_1234"))
	waitEvent(t, handle, EventOpened)
	_, err := handle.AcquireMedia(DefaultConstraints(MediaKindVideo))
	require.NoError(t, err)

	handle.Kill()
	require.Zero(t, devices.live())
	require.GreaterOrEqual(t, network.closeCount(), 1)

	require.ErrorIs(t, handle.Register("alice_1234"), ErrHandleClosed)
}
