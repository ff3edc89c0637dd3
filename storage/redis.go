package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Logical keys under the per-user namespace. The layout is one JSON value
// per logical key: meetcore:{userID}:{key}.
const (
	keyProfile     = "profile"
	keyContacts    = "contacts"
	keyCallHistory = "call_history"
	keyPreferences = "preferences"
	keyDevices     = "device_settings"

	redisKeyPrefix = "meetcore"
)

// RedisGateway is a Gateway backed by Redis. Values are stored as JSON
// blobs, one per logical key, matching the layout the web client used.
type RedisGateway struct {
	client *redis.Client
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// NewRedisGateway connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisGateway(cfg RedisConfig) (*RedisGateway, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRedisGateway",
		"address":  cfg.Address,
		"db":       cfg.DB,
	}).Info("Connected to Redis")

	return &RedisGateway{client: client}, nil
}

func userKey(userID, logical string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, userID, logical)
}

// getJSON loads and unmarshals one logical key. Missing keys map to
// ErrNotFound.
func (g *RedisGateway) getJSON(ctx context.Context, userID, logical string, out interface{}) error {
	data, err := g.client.Get(ctx, userKey(userID, logical)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s from Redis: %w", logical, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("failed to decode stored %s: %w", logical, err)
	}
	return nil
}

func (g *RedisGateway) setJSON(ctx context.Context, userID, logical string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", logical, err)
	}
	if err := g.client.Set(ctx, userKey(userID, logical), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", logical, err)
	}
	return nil
}

func (g *RedisGateway) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	if err := g.getJSON(ctx, userID, keyProfile, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (g *RedisGateway) SetProfile(ctx context.Context, userID string, profile *Profile) error {
	clone := *profile
	clone.UpdatedAt = time.Now()
	return g.setJSON(ctx, userID, keyProfile, &clone)
}

func (g *RedisGateway) GetContacts(ctx context.Context, userID string) ([]Contact, error) {
	var contacts []Contact
	err := g.getJSON(ctx, userID, keyContacts, &contacts)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return contacts, err
}

func (g *RedisGateway) AddContact(ctx context.Context, userID string, contact Contact) error {
	contacts, err := g.GetContacts(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range contacts {
		if c.Address == contact.Address {
			return ErrContactExists
		}
	}
	if contact.AddedAt.IsZero() {
		contact.AddedAt = time.Now()
	}
	return g.setJSON(ctx, userID, keyContacts, append(contacts, contact))
}

func (g *RedisGateway) RemoveContact(ctx context.Context, userID, address string) error {
	contacts, err := g.GetContacts(ctx, userID)
	if err != nil {
		return err
	}
	for i, c := range contacts {
		if c.Address == address {
			return g.setJSON(ctx, userID, keyContacts, append(contacts[:i], contacts[i+1:]...))
		}
	}
	return ErrNotFound
}

func (g *RedisGateway) ToggleFavorite(ctx context.Context, userID, address string) error {
	contacts, err := g.GetContacts(ctx, userID)
	if err != nil {
		return err
	}
	for i := range contacts {
		if contacts[i].Address == address {
			contacts[i].Favorite = !contacts[i].Favorite
			return g.setJSON(ctx, userID, keyContacts, contacts)
		}
	}
	return ErrNotFound
}

func (g *RedisGateway) UpdateLastCallTime(ctx context.Context, userID, address string) error {
	contacts, err := g.GetContacts(ctx, userID)
	if err != nil {
		return err
	}
	for i := range contacts {
		if contacts[i].Address == address {
			contacts[i].LastCallAt = time.Now()
			return g.setJSON(ctx, userID, keyContacts, contacts)
		}
	}
	return ErrNotFound
}

func (g *RedisGateway) GetCallHistory(ctx context.Context, userID string) ([]CallHistoryEntry, error) {
	var history []CallHistoryEntry
	err := g.getJSON(ctx, userID, keyCallHistory, &history)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return history, err
}

func (g *RedisGateway) AppendCallHistory(ctx context.Context, userID string, entry CallHistoryEntry) error {
	history, err := g.GetCallHistory(ctx, userID)
	if err != nil {
		return err
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	return g.setJSON(ctx, userID, keyCallHistory, append(history, entry))
}

func (g *RedisGateway) UpdateCallHistory(ctx context.Context, userID, remoteAddress string, update CallHistoryUpdate) error {
	history, err := g.GetCallHistory(ctx, userID)
	if err != nil {
		return err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if applyHistoryUpdate(&history[i], remoteAddress, update) {
			return g.setJSON(ctx, userID, keyCallHistory, history)
		}
	}
	return nil
}

func (g *RedisGateway) ClearCallHistory(ctx context.Context, userID string) error {
	return g.client.Del(ctx, userKey(userID, keyCallHistory)).Err()
}

func (g *RedisGateway) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	var prefs Preferences
	err := g.getJSON(ctx, userID, keyPreferences, &prefs)
	if errors.Is(err, ErrNotFound) {
		return DefaultPreferences(), nil
	}
	return prefs, err
}

func (g *RedisGateway) SetPreferences(ctx context.Context, userID string, prefs Preferences) error {
	return g.setJSON(ctx, userID, keyPreferences, prefs)
}

func (g *RedisGateway) GetDeviceSettings(ctx context.Context, userID string) (DeviceSettings, error) {
	var settings DeviceSettings
	err := g.getJSON(ctx, userID, keyDevices, &settings)
	if errors.Is(err, ErrNotFound) {
		return DefaultDeviceSettings(), nil
	}
	return settings, err
}

func (g *RedisGateway) SetDeviceSettings(ctx context.Context, userID string, settings DeviceSettings) error {
	return g.setJSON(ctx, userID, keyDevices, settings)
}

func (g *RedisGateway) ClearAll(ctx context.Context, userID string) error {
	keys := []string{
		userKey(userID, keyProfile),
		userKey(userID, keyContacts),
		userKey(userID, keyCallHistory),
		userKey(userID, keyPreferences),
		userKey(userID, keyDevices),
	}
	return g.client.Del(ctx, keys...).Err()
}

func (g *RedisGateway) Close() error {
	return g.client.Close()
}
