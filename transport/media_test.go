package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConstraints(t *testing.T) {
	video := DefaultConstraints(MediaKindVideo)
	require.True(t, video.Audio)
	require.True(t, video.Video)
	require.True(t, video.NoiseSuppression)

	audio := DefaultConstraints(MediaKindAudio)
	require.True(t, audio.Audio)
	require.False(t, audio.Video)
}

func TestMediaTrackStopIsIdempotent(t *testing.T) {
	stops := 0
	track := NewMediaTrack(TrackKindAudio, func() { stops++ })

	require.True(t, track.Enabled())
	require.False(t, track.Stopped())

	track.Stop()
	track.Stop()
	require.Equal(t, 1, stops)
	require.True(t, track.Stopped())
}

func TestLocalMediaReleaseStopsEveryTrackOnce(t *testing.T) {
	stops := 0
	audio := NewMediaTrack(TrackKindAudio, func() { stops++ })
	video := NewMediaTrack(TrackKindVideo, func() { stops++ })
	media := NewLocalMedia(audio, video)

	media.Release()
	media.Release()
	require.Equal(t, 2, stops)
	require.True(t, media.Released())
	require.True(t, audio.Stopped())
	require.True(t, video.Stopped())
}

func TestToggleFlipsEveryTrackOfKind(t *testing.T) {
	media := NewLocalMedia(
		NewMediaTrack(TrackKindAudio, nil),
		NewMediaTrack(TrackKindVideo, nil),
	)

	require.False(t, media.ToggleAudio())
	for _, track := range media.AudioTracks() {
		require.False(t, track.Enabled())
	}
	// Video untouched.
	for _, track := range media.VideoTracks() {
		require.True(t, track.Enabled())
	}

	require.True(t, media.ToggleAudio())
	require.False(t, media.ToggleVideo())
}

func TestToggleWithoutTracksReportsDisabled(t *testing.T) {
	media := NewLocalMedia(NewMediaTrack(TrackKindAudio, nil))
	require.False(t, media.ToggleVideo())
}
