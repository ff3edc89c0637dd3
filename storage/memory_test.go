package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGatewayProfile(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	_, err := g.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	profile := &Profile{ID: "u1", Name: "Alice", CreatedAt: time.Now()}
	require.NoError(t, g.SetProfile(ctx, "u1", profile))

	got, err := g.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.False(t, got.UpdatedAt.IsZero(), "SetProfile should stamp UpdatedAt")

	// Returned profile is a copy; mutating it must not affect the store.
	got.Name = "Mallory"
	again, err := g.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Name)
}

func TestMemoryGatewayContacts(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	require.NoError(t, g.AddContact(ctx, "u1", Contact{Address: "alice_4821", Name: "Alice"}))
	assert.ErrorIs(t, g.AddContact(ctx, "u1", Contact{Address: "alice_4821"}), ErrContactExists)

	require.NoError(t, g.ToggleFavorite(ctx, "u1", "alice_4821"))
	contacts, err := g.GetContacts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.True(t, contacts[0].Favorite)
	assert.False(t, contacts[0].AddedAt.IsZero())

	require.NoError(t, g.UpdateLastCallTime(ctx, "u1", "alice_4821"))
	contacts, _ = g.GetContacts(ctx, "u1")
	assert.False(t, contacts[0].LastCallAt.IsZero())

	assert.ErrorIs(t, g.RemoveContact(ctx, "u1", "nobody_0000"), ErrNotFound)
	require.NoError(t, g.RemoveContact(ctx, "u1", "alice_4821"))
	contacts, _ = g.GetContacts(ctx, "u1")
	assert.Empty(t, contacts)
}

func TestMemoryGatewayCallHistoryPlaceholderUpdate(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	// Outgoing call writes a placeholder first.
	require.NoError(t, g.AppendCallHistory(ctx, "u1", CallHistoryEntry{
		ID:            "h1",
		RemoteAddress: "bob_2201",
		DisplayName:   PlaceholderName,
		Direction:     DirectionOutgoing,
		MediaKind:     "video",
	}))

	name := "Bob"
	duration := 65
	require.NoError(t, g.UpdateCallHistory(ctx, "u1", "bob_2201", CallHistoryUpdate{
		DisplayName:     &name,
		DurationSeconds: &duration,
	}))

	history, err := g.GetCallHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Bob", history[0].DisplayName)
	assert.Equal(t, 65, history[0].DurationSeconds)

	// The entry is now settled; a second update must not touch it.
	other := "Eve"
	require.NoError(t, g.UpdateCallHistory(ctx, "u1", "bob_2201", CallHistoryUpdate{DisplayName: &other}))
	history, _ = g.GetCallHistory(ctx, "u1")
	assert.Equal(t, "Bob", history[0].DisplayName)
}

func TestMemoryGatewayUpdateMatchesMostRecent(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	require.NoError(t, g.AppendCallHistory(ctx, "u1", CallHistoryEntry{
		ID: "h1", RemoteAddress: "bob_2201", DisplayName: "Bob",
		Direction: DirectionIncoming, DurationSeconds: 10,
	}))
	require.NoError(t, g.AppendCallHistory(ctx, "u1", CallHistoryEntry{
		ID: "h2", RemoteAddress: "bob_2201", DisplayName: PlaceholderName,
		Direction: DirectionOutgoing,
	}))

	d := 42
	require.NoError(t, g.UpdateCallHistory(ctx, "u1", "bob_2201", CallHistoryUpdate{DurationSeconds: &d}))

	history, _ := g.GetCallHistory(ctx, "u1")
	assert.Equal(t, 10, history[0].DurationSeconds, "settled entry untouched")
	assert.Equal(t, 42, history[1].DurationSeconds, "open entry updated")
}

func TestMemoryGatewayUpdateWithoutMatchIsNoop(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	d := 5
	require.NoError(t, g.UpdateCallHistory(ctx, "u1", "ghost_1234", CallHistoryUpdate{DurationSeconds: &d}))
	history, err := g.GetCallHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryGatewayPreferencesDefaults(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	prefs, err := g.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, prefs.SoundEnabled)
	assert.False(t, prefs.AutoAcceptCalls)
	assert.Equal(t, "video", prefs.DefaultMediaKind)

	prefs.SoundEnabled = false
	require.NoError(t, g.SetPreferences(ctx, "u1", prefs))
	got, _ := g.GetPreferences(ctx, "u1")
	assert.False(t, got.SoundEnabled)
}

func TestMemoryGatewayClearAll(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	require.NoError(t, g.SetProfile(ctx, "u1", &Profile{ID: "u1", Name: "Alice"}))
	require.NoError(t, g.AppendCallHistory(ctx, "u1", CallHistoryEntry{ID: "h1", RemoteAddress: "x_1000"}))
	require.NoError(t, g.ClearAll(ctx, "u1"))

	_, err := g.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	history, _ := g.GetCallHistory(ctx, "u1")
	assert.Empty(t, history)
}

func TestRedisUserKeyLayout(t *testing.T) {
	assert.Equal(t, "meetcore:u1:profile", userKey("u1", keyProfile))
	assert.Equal(t, "meetcore:u1:call_history", userKey("u1", keyCallHistory))
}
