package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MemoryGateway is an in-memory Gateway. It is the default implementation
// and the fallback when Redis is unavailable. Data does not survive the
// process.
type MemoryGateway struct {
	mu    sync.RWMutex
	users map[string]*userData
}

type userData struct {
	profile  *Profile
	contacts []Contact
	history  []CallHistoryEntry
	prefs    *Preferences
	devices  *DeviceSettings
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{users: make(map[string]*userData)}
}

func (g *MemoryGateway) user(userID string) *userData {
	u, ok := g.users[userID]
	if !ok {
		u = &userData{}
		g.users[userID] = u
	}
	return u
}

func (g *MemoryGateway) GetProfile(_ context.Context, userID string) (*Profile, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	u, ok := g.users[userID]
	if !ok || u.profile == nil {
		return nil, ErrNotFound
	}
	profile := *u.profile
	return &profile, nil
}

func (g *MemoryGateway) SetProfile(_ context.Context, userID string, profile *Profile) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	clone := *profile
	clone.UpdatedAt = time.Now()
	g.user(userID).profile = &clone
	return nil
}

func (g *MemoryGateway) GetContacts(_ context.Context, userID string) ([]Contact, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	u, ok := g.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]Contact, len(u.contacts))
	copy(out, u.contacts)
	return out, nil
}

func (g *MemoryGateway) AddContact(_ context.Context, userID string, contact Contact) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.user(userID)
	for _, c := range u.contacts {
		if c.Address == contact.Address {
			return ErrContactExists
		}
	}
	if contact.AddedAt.IsZero() {
		contact.AddedAt = time.Now()
	}
	u.contacts = append(u.contacts, contact)
	return nil
}

func (g *MemoryGateway) RemoveContact(_ context.Context, userID, address string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.user(userID)
	for i, c := range u.contacts {
		if c.Address == address {
			u.contacts = append(u.contacts[:i], u.contacts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (g *MemoryGateway) ToggleFavorite(_ context.Context, userID, address string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.user(userID)
	for i := range u.contacts {
		if u.contacts[i].Address == address {
			u.contacts[i].Favorite = !u.contacts[i].Favorite
			return nil
		}
	}
	return ErrNotFound
}

func (g *MemoryGateway) UpdateLastCallTime(_ context.Context, userID, address string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.user(userID)
	for i := range u.contacts {
		if u.contacts[i].Address == address {
			u.contacts[i].LastCallAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (g *MemoryGateway) GetCallHistory(_ context.Context, userID string) ([]CallHistoryEntry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	u, ok := g.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]CallHistoryEntry, len(u.history))
	copy(out, u.history)
	return out, nil
}

func (g *MemoryGateway) AppendCallHistory(_ context.Context, userID string, entry CallHistoryEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	u := g.user(userID)
	u.history = append(u.history, entry)
	return nil
}

func (g *MemoryGateway) UpdateCallHistory(_ context.Context, userID, remoteAddress string, update CallHistoryUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.user(userID)
	// Most recent entry first.
	for i := len(u.history) - 1; i >= 0; i-- {
		if applyHistoryUpdate(&u.history[i], remoteAddress, update) {
			return nil
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":       "UpdateCallHistory",
		"remote_address": remoteAddress,
	}).Debug("No open history entry matched update")
	return nil
}

func (g *MemoryGateway) ClearCallHistory(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.user(userID).history = nil
	return nil
}

func (g *MemoryGateway) GetPreferences(_ context.Context, userID string) (Preferences, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	u, ok := g.users[userID]
	if !ok || u.prefs == nil {
		return DefaultPreferences(), nil
	}
	return *u.prefs, nil
}

func (g *MemoryGateway) SetPreferences(_ context.Context, userID string, prefs Preferences) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.user(userID).prefs = &prefs
	return nil
}

func (g *MemoryGateway) GetDeviceSettings(_ context.Context, userID string) (DeviceSettings, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	u, ok := g.users[userID]
	if !ok || u.devices == nil {
		return DefaultDeviceSettings(), nil
	}
	return *u.devices, nil
}

func (g *MemoryGateway) SetDeviceSettings(_ context.Context, userID string, settings DeviceSettings) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.user(userID).devices = &settings
	return nil
}

func (g *MemoryGateway) ClearAll(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.users, userID)
	return nil
}

func (g *MemoryGateway) Close() error {
	return nil
}
