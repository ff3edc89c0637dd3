// Package meetcore is a peer-to-peer calling client core: identity
// derivation, call orchestration, in-call chat signaling, automatic
// reconnection and a persistence gateway, composed behind one Client.
//
// The Client does not implement a network transport or media codec
// itself; callers supply a transport.Network and transport.MediaDevices
// for the platform they run on. The testnet package provides in-memory
// implementations for tests and examples.
package meetcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meetcore/call"
	"github.com/opd-ai/meetcore/config"
	"github.com/opd-ai/meetcore/identity"
	"github.com/opd-ai/meetcore/reconnect"
	"github.com/opd-ai/meetcore/signaling"
	"github.com/opd-ai/meetcore/storage"
	"github.com/opd-ai/meetcore/transport"
)

// Options configures a Client. Network and Devices are required; every
// other field has a usable default.
type Options struct {
	// UserID keys all persisted data. Generated when empty.
	UserID string

	// Network is the platform transport implementation.
	Network transport.Network

	// Devices is the platform capture-device implementation.
	Devices transport.MediaDevices

	// Ringtone plays the incoming-call alert. Silent when nil.
	Ringtone call.Ringtone

	// Gateway overrides the storage selection from Config. The caller
	// keeps ownership and must close it.
	Gateway storage.Gateway

	// Config tunes timing, reconnection and storage. config.DefaultConfig
	// when nil.
	Config *config.Config

	// Clock supplies the current time. Tests inject a fake.
	Clock func() time.Time
}

// Client is the assembled calling stack.
type Client struct {
	userID  string
	cfg     *config.Config
	handle  *transport.Handle
	chat    *signaling.Channel
	gateway storage.Gateway
	sup     *reconnect.Supervisor
	orch    *call.Orchestrator

	ownsGateway bool
	clock       func() time.Time
}

// New assembles and starts a Client.
func New(opts Options) (*Client, error) {
	if opts.Network == nil {
		return nil, errors.New("network implementation is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("media devices implementation is required")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	configureLogging(cfg)

	userID := opts.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	handle, err := transport.NewHandle(opts.Network, opts.Devices)
	if err != nil {
		return nil, err
	}
	chat := signaling.NewChannel(handle)
	chat.SetMessageLimit(cfg.Call.ChatMessageLimit)

	gateway := opts.Gateway
	ownsGateway := false
	if gateway == nil {
		gateway = storage.New(storage.Config{
			RedisEnabled: cfg.Redis.Enabled,
			Redis: storage.RedisConfig{
				Address:  cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				PoolSize: cfg.Redis.PoolSize,
			},
		})
		ownsGateway = true
	}

	sup, err := reconnect.NewSupervisor(handle, reconnect.Config{
		BaseDelay:   cfg.Reconnect.BaseDelay,
		MaxDelay:    cfg.Reconnect.MaxDelay,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	}, nil)
	if err != nil {
		return nil, err
	}

	callCfg := call.DefaultConfig(userID)
	callCfg.EndCallLinger = cfg.Call.EndCallLinger
	callCfg.RingtoneTimeout = cfg.Call.RingtoneTimeout
	callCfg.Now = clock

	orch, err := call.New(handle, chat, gateway, sup, opts.Ringtone, callCfg)
	if err != nil {
		return nil, err
	}
	orch.Start()

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"user_id":  userID,
	}).Info("Client started")

	return &Client{
		userID:      userID,
		cfg:         cfg,
		handle:      handle,
		chat:        chat,
		gateway:     gateway,
		sup:         sup,
		orch:        orch,
		ownsGateway: ownsGateway,
		clock:       clock,
	}, nil
}

// configureLogging applies the logging section globally.
func configureLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

// UserID returns the persistence key for this client.
func (c *Client) UserID() string {
	return c.userID
}

// SetDisplayName derives the rotating address for the name and goes
// online under it.
func (c *Client) SetDisplayName(name string) error {
	return c.orch.SetDisplayName(name)
}

// Reconnect re-registers the current address immediately.
func (c *Client) Reconnect() error {
	return c.orch.Reconnect()
}

// LocalAddress returns the registered address, or "" while offline.
func (c *Client) LocalAddress() string {
	return c.orch.LocalAddress()
}

// DaysUntilRotation reports how many whole days remain before the
// derived address changes.
func (c *Client) DaysUntilRotation() int {
	return identity.DaysUntilRotation(c.clock())
}

// Snapshot returns the current call state.
func (c *Client) Snapshot() call.Snapshot {
	return c.orch.Snapshot()
}

// SetUpdateHandler subscribes to call state changes.
func (c *Client) SetUpdateHandler(handler call.UpdateHandler) {
	c.orch.SetUpdateHandler(handler)
}

// PlaceVideoCall starts a video call to the remote address.
func (c *Client) PlaceVideoCall(remoteAddress string) error {
	return c.orch.PlaceCall(remoteAddress, transport.MediaKindVideo)
}

// PlaceAudioCall starts an audio-only call to the remote address.
func (c *Client) PlaceAudioCall(remoteAddress string) error {
	return c.orch.PlaceCall(remoteAddress, transport.MediaKindAudio)
}

// AcceptCall answers the pending incoming call.
func (c *Client) AcceptCall() error {
	return c.orch.AcceptCall()
}

// RejectCall declines the pending incoming call.
func (c *Client) RejectCall() error {
	return c.orch.RejectCall()
}

// EndCall hangs up. Safe to call in any state.
func (c *Client) EndCall() error {
	return c.orch.EndCall()
}

// ToggleAudio flips the microphone mute state.
func (c *Client) ToggleAudio() bool {
	return c.orch.ToggleAudio()
}

// ToggleVideo flips the camera mute state.
func (c *Client) ToggleVideo() bool {
	return c.orch.ToggleVideo()
}

// TestRingtone plays the configured ringtone so the user can verify
// their sound output before a call comes in. Playback stops on its own
// after the unanswered-call bound.
func (c *Client) TestRingtone() error {
	return c.orch.PreviewRingtone()
}

// StopRingtone silences a ringtone test. An actual incoming-call alert
// is unaffected.
func (c *Client) StopRingtone() error {
	return c.orch.StopRingtonePreview()
}

// SendChatMessage sends a chat message to the current call peer.
func (c *Client) SendChatMessage(message string) bool {
	return c.orch.SendChatMessage(message)
}

// RemoteMedia returns the remote stream handle for presentation.
func (c *Client) RemoteMedia() transport.RemoteMedia {
	return c.orch.RemoteMedia()
}

// Contacts returns the saved contacts.
func (c *Client) Contacts(ctx context.Context) ([]storage.Contact, error) {
	return c.gateway.GetContacts(ctx, c.userID)
}

// AddContact saves a peer under the given name.
func (c *Client) AddContact(ctx context.Context, address, name string) error {
	return c.gateway.AddContact(ctx, c.userID, storage.Contact{
		Address: address,
		Name:    name,
		AddedAt: c.clock(),
	})
}

// RemoveContact deletes a saved contact.
func (c *Client) RemoveContact(ctx context.Context, address string) error {
	return c.gateway.RemoveContact(ctx, c.userID, address)
}

// ToggleFavorite flips a contact's favorite flag.
func (c *Client) ToggleFavorite(ctx context.Context, address string) error {
	return c.gateway.ToggleFavorite(ctx, c.userID, address)
}

// CallHistory returns the call log, most recent first.
func (c *Client) CallHistory(ctx context.Context) ([]storage.CallHistoryEntry, error) {
	return c.gateway.GetCallHistory(ctx, c.userID)
}

// ClearCallHistory removes every history entry.
func (c *Client) ClearCallHistory(ctx context.Context) error {
	return c.gateway.ClearCallHistory(ctx, c.userID)
}

// Preferences returns the stored preferences.
func (c *Client) Preferences(ctx context.Context) (storage.Preferences, error) {
	return c.gateway.GetPreferences(ctx, c.userID)
}

// SetPreferences stores preferences.
func (c *Client) SetPreferences(ctx context.Context, prefs storage.Preferences) error {
	return c.gateway.SetPreferences(ctx, c.userID, prefs)
}

// DeviceSettings returns the stored device settings.
func (c *Client) DeviceSettings(ctx context.Context) (storage.DeviceSettings, error) {
	return c.gateway.GetDeviceSettings(ctx, c.userID)
}

// SetDeviceSettings stores device settings.
func (c *Client) SetDeviceSettings(ctx context.Context, settings storage.DeviceSettings) error {
	return c.gateway.SetDeviceSettings(ctx, c.userID, settings)
}

// ClearAllData wipes everything stored for this user.
func (c *Client) ClearAllData(ctx context.Context) error {
	return c.gateway.ClearAll(ctx, c.userID)
}

// Kill stops every component and releases held resources. The client is
// unusable afterwards.
func (c *Client) Kill() {
	logrus.WithFields(logrus.Fields{
		"function": "Kill",
		"user_id":  c.userID,
	}).Info("Shutting client down")

	c.sup.Stop()
	c.orch.Stop()
	c.handle.Kill()
	if c.ownsGateway {
		if err := c.gateway.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Kill",
				"error":    err.Error(),
			}).Warn("Failed to close storage gateway")
		}
	}
}
