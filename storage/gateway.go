package storage

import (
	"context"
	"errors"
)

// Sentinel errors for gateway operations.
var (
	// ErrNotFound indicates no value is stored under the requested key.
	ErrNotFound = errors.New("storage: not found")

	// ErrContactExists indicates the contact address is already saved.
	ErrContactExists = errors.New("storage: contact already exists")

	// ErrGatewayClosed indicates the gateway has been closed.
	ErrGatewayClosed = errors.New("storage: gateway closed")
)

// Gateway is the persistence boundary. All data is keyed by user ID; the
// caller only ever writes under its own user key, so implementations need
// to be safe for concurrent use but not transactional across users.
type Gateway interface {
	// Profile.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SetProfile(ctx context.Context, userID string, profile *Profile) error

	// Contacts.
	GetContacts(ctx context.Context, userID string) ([]Contact, error)
	AddContact(ctx context.Context, userID string, contact Contact) error
	RemoveContact(ctx context.Context, userID, address string) error
	ToggleFavorite(ctx context.Context, userID, address string) error
	UpdateLastCallTime(ctx context.Context, userID, address string) error

	// Call history. UpdateCallHistory finds the most recent entry for the
	// remote address that still carries a placeholder name or no duration
	// and applies the update; it is a no-op when no such entry exists.
	GetCallHistory(ctx context.Context, userID string) ([]CallHistoryEntry, error)
	AppendCallHistory(ctx context.Context, userID string, entry CallHistoryEntry) error
	UpdateCallHistory(ctx context.Context, userID, remoteAddress string, update CallHistoryUpdate) error
	ClearCallHistory(ctx context.Context, userID string) error

	// Preferences and device settings.
	GetPreferences(ctx context.Context, userID string) (Preferences, error)
	SetPreferences(ctx context.Context, userID string, prefs Preferences) error
	GetDeviceSettings(ctx context.Context, userID string) (DeviceSettings, error)
	SetDeviceSettings(ctx context.Context, userID string, settings DeviceSettings) error

	// ClearAll removes every key stored for the user.
	ClearAll(ctx context.Context, userID string) error

	// Close releases any underlying connections.
	Close() error
}

// applyHistoryUpdate decides whether an entry is still open for mutation
// and applies the update if so. Shared by both gateway implementations.
func applyHistoryUpdate(entry *CallHistoryEntry, remoteAddress string, update CallHistoryUpdate) bool {
	if entry.RemoteAddress != remoteAddress {
		return false
	}
	if entry.DisplayName != PlaceholderName && entry.DurationSeconds != 0 {
		return false
	}

	if update.DisplayName != nil {
		entry.DisplayName = *update.DisplayName
	}
	if update.Direction != nil {
		entry.Direction = *update.Direction
	}
	if update.DurationSeconds != nil {
		entry.DurationSeconds = *update.DurationSeconds
	}
	return true
}
