package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meetcore/reconnect"
	"github.com/opd-ai/meetcore/signaling"
	"github.com/opd-ai/meetcore/storage"
	"github.com/opd-ai/meetcore/transport"
)

// intentBuffer sizes the intent queue feeding the actor loop.
const intentBuffer = 64

// persistBuffer sizes the serialized persistence write queue.
const persistBuffer = 128

// Config tunes the orchestrator's timing behavior.
type Config struct {
	// UserID keys all persistence writes.
	UserID string
	// EndCallLinger is how long the post-call state is shown before the
	// orchestrator returns to connected.
	EndCallLinger time.Duration
	// RingtoneTimeout bounds ringtone playback for an unanswered call.
	RingtoneTimeout time.Duration
	// PersistTimeout bounds each fire-and-forget persistence write.
	PersistTimeout time.Duration
	// Now supplies the current time. Tests inject a fake clock.
	Now func() time.Time
}

// DefaultConfig returns the standard timing parameters.
func DefaultConfig(userID string) Config {
	return Config{
		UserID:          userID,
		EndCallLinger:   2 * time.Second,
		RingtoneTimeout: 30 * time.Second,
		PersistTimeout:  3 * time.Second,
		Now:             time.Now,
	}
}

// UpdateHandler observes every snapshot change. It usually runs on the
// actor goroutine, except for updates triggered by direct actions such as
// SendChatMessage, which run on the caller's goroutine.
type UpdateHandler func(Snapshot)

// Orchestrator is the serialized call-state actor. All transitions happen
// on one loop goroutine fed by transport events, user intents and the
// completions of asynchronous work.
type Orchestrator struct {
	handle *transport.Handle
	chat   *signaling.Channel
	store  storage.Gateway
	sup    *reconnect.Supervisor
	ring   Ringtone
	cfg    Config

	intents   chan intent
	persist   chan persistJob
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu           sync.RWMutex
	state        State
	reason       string
	displayName  string
	localAddress string
	wantAddress  string
	session      *Session
	incoming     *IncomingDescriptor
	remoteMedia  transport.RemoteMedia
	onUpdate     UpdateHandler

	// Loop-owned fields, never touched off the actor goroutine.
	callSeq         uint64
	activeSession   transport.MediaSession
	pendingIncoming transport.MediaSession
	prefs           storage.Preferences
	ringTimer       *time.Timer
}

// New wires an orchestrator over its collaborators. The supervisor may be
// nil when automatic reconnection is not wanted; a nil ringtone defaults
// to NopRingtone. Start must be called before any action.
func New(handle *transport.Handle, chat *signaling.Channel, store storage.Gateway, sup *reconnect.Supervisor, ring Ringtone, cfg Config) (*Orchestrator, error) {
	if handle == nil {
		return nil, errors.New("transport handle must not be nil")
	}
	if chat == nil {
		return nil, errors.New("signaling channel must not be nil")
	}
	if store == nil {
		return nil, errors.New("storage gateway must not be nil")
	}
	if ring == nil {
		ring = NopRingtone{}
	}
	if cfg.UserID == "" {
		return nil, errors.New("user ID must not be empty")
	}
	if cfg.EndCallLinger <= 0 {
		cfg.EndCallLinger = 2 * time.Second
	}
	if cfg.RingtoneTimeout <= 0 {
		cfg.RingtoneTimeout = 30 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	o := &Orchestrator{
		handle:  handle,
		chat:    chat,
		store:   store,
		sup:     sup,
		ring:    ring,
		cfg:     cfg,
		intents: make(chan intent, intentBuffer),
		persist: make(chan persistJob, persistBuffer),
		done:    make(chan struct{}),
		state:   StateIdle,
		prefs:   storage.DefaultPreferences(),
	}
	chat.SetEnvelopeHandler(o.handleEnvelope)
	if sup != nil {
		sup.SetFailureCallback(func(err error) {
			_ = o.post(intent{op: intentReconnectFailed, err: err})
		})
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"user_id":  cfg.UserID,
	}).Debug("Call orchestrator created")

	return o, nil
}

// Start launches the actor loop and the persistence writer. Idempotent.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		o.wg.Add(2)
		go o.run()
		go o.persistLoop()
	})
}

// Stop terminates the actor loop and silences the ringtone. Pending
// asynchronous completions are discarded.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.done)
	})
	o.wg.Wait()
	o.stopRingtone()
}

// SetUpdateHandler installs the snapshot subscriber.
func (o *Orchestrator) SetUpdateHandler(handler UpdateHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onUpdate = handler
}

// Snapshot returns an immutable view of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := Snapshot{
		State:          o.state,
		Reason:         o.reason,
		LocalAddress:   o.localAddress,
		DisplayName:    o.displayName,
		HasRemoteMedia: o.remoteMedia != nil,
		ChatLog:        o.chat.Log(),
	}
	if o.session != nil {
		s := *o.session
		snap.ActiveCall = &s
	}
	if o.incoming != nil {
		d := *o.incoming
		snap.Incoming = &d
	}
	return snap
}

// State returns the current state only.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// LocalAddress returns the registered address, or "" before registration.
func (o *Orchestrator) LocalAddress() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.localAddress
}

// RemoteMedia returns the remote party's stream handle for presentation
// attachment, or nil before the call is established.
func (o *Orchestrator) RemoteMedia() transport.RemoteMedia {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.remoteMedia
}

// SetDisplayName derives the rotating address for the name and registers
// it, replacing any previous registration. Rejected while a call is
// active or pending.
func (o *Orchestrator) SetDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoDisplayName
	}
	if o.inCall() {
		return ErrAlreadyInCall
	}
	return o.post(intent{op: intentSetName, name: name})
}

// Reconnect re-registers the current derived address immediately,
// resetting the retry counter. Used from the error state or after a
// manual disconnect.
func (o *Orchestrator) Reconnect() error {
	o.mu.RLock()
	address := o.wantAddress
	o.mu.RUnlock()
	if address == "" {
		return ErrNoDisplayName
	}
	if o.inCall() {
		return ErrAlreadyInCall
	}
	return o.post(intent{op: intentReconnect})
}

// PlaceCall starts an outbound call to the remote address. Media
// acquisition and the network offer happen asynchronously; progress is
// observable through snapshots.
func (o *Orchestrator) PlaceCall(remoteAddress string, kind transport.MediaKind) error {
	remoteAddress = strings.TrimSpace(remoteAddress)
	if remoteAddress == "" {
		return errors.New("remote address is required")
	}
	if kind != transport.MediaKindAudio {
		kind = transport.MediaKindVideo
	}

	o.mu.RLock()
	state := o.state
	o.mu.RUnlock()
	switch state {
	case StateCallingPeer, StateIncomingCall, StateInCall, StateCallEnded:
		return ErrAlreadyInCall
	case StateConnected:
	default:
		return ErrNotConnected
	}
	return o.post(intent{op: intentPlaceCall, remote: remoteAddress, mediaKind: kind})
}

// AcceptCall answers the pending incoming call.
func (o *Orchestrator) AcceptCall() error {
	if o.State() != StateIncomingCall {
		return ErrNoIncomingCall
	}
	return o.post(intent{op: intentAccept})
}

// RejectCall declines the pending incoming call, notifies the caller and
// records a missed call.
func (o *Orchestrator) RejectCall() error {
	if o.State() != StateIncomingCall {
		return ErrNoIncomingCall
	}
	return o.post(intent{op: intentReject})
}

// EndCall hangs up the active call or cancels a ringing one. A no-op in
// every other state, so repeated invocation is safe.
func (o *Orchestrator) EndCall() error {
	return o.post(intent{op: intentEnd})
}

// ToggleAudio flips the local microphone mute state and notifies the
// remote party. Returns the new enabled state, false when no media is
// held.
func (o *Orchestrator) ToggleAudio() bool {
	media := o.handle.HeldMedia()
	if media == nil {
		return false
	}
	enabled := media.ToggleAudio()
	o.broadcastMediaControl("audio", enabled)
	return enabled
}

// ToggleVideo flips the local camera mute state and notifies the remote
// party. Returns the new enabled state, false when no video is held.
func (o *Orchestrator) ToggleVideo() bool {
	media := o.handle.HeldMedia()
	if media == nil {
		return false
	}
	enabled := media.ToggleVideo()
	o.broadcastMediaControl("video", enabled)
	return enabled
}

// SendChatMessage sends one chat message to the current call peer.
// Returns false when no call session exists or the channel cannot send;
// the message is dropped, never queued.
func (o *Orchestrator) SendChatMessage(message string) bool {
	o.mu.RLock()
	session := o.session
	localAddress := o.localAddress
	displayName := o.displayName
	o.mu.RUnlock()

	if session == nil {
		return false
	}
	if !o.chat.SendChat(session.RemoteAddress, localAddress, displayName, message, o.cfg.Now()) {
		return false
	}
	o.notifyUpdate()
	return true
}

// PreviewRingtone plays the configured ringtone so the user can check
// their sound output. The playback bound for unanswered calls applies.
// Ignored while an incoming call is already ringing.
func (o *Orchestrator) PreviewRingtone() error {
	return o.post(intent{op: intentRingPreview})
}

// StopRingtonePreview silences a running preview. A real incoming-call
// alert is left alone.
func (o *Orchestrator) StopRingtonePreview() error {
	return o.post(intent{op: intentRingStop})
}

// inCall reports whether a call session or offer is active.
func (o *Orchestrator) inCall() bool {
	switch o.State() {
	case StateCallingPeer, StateIncomingCall, StateInCall, StateCallEnded:
		return true
	}
	return false
}

// post enqueues an intent for the actor loop.
func (o *Orchestrator) post(in intent) error {
	select {
	case <-o.done:
		return ErrOrchestratorStopped
	case o.intents <- in:
		return nil
	}
}

// postFromLoop enqueues without blocking; used only on the actor
// goroutine, where blocking on a full queue would deadlock.
func (o *Orchestrator) postFromLoop(in intent) {
	select {
	case o.intents <- in:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "postFromLoop",
			"intent":   in.op,
		}).Warn("Intent queue full, dropping internal intent")
	}
}

// setState records a transition and notifies the subscriber.
func (o *Orchestrator) setState(next State, reason string) {
	o.mu.Lock()
	prev := o.state
	o.state = next
	o.reason = reason
	o.mu.Unlock()

	if prev != next {
		logrus.WithFields(logrus.Fields{
			"function": "setState",
			"from":     prev.String(),
			"to":       next.String(),
			"reason":   reason,
		}).Info("Call state transition")
	}
	o.notifyUpdate()
}

// notifyUpdate delivers a fresh snapshot to the subscriber, if any.
func (o *Orchestrator) notifyUpdate() {
	o.mu.RLock()
	handler := o.onUpdate
	o.mu.RUnlock()
	if handler != nil {
		handler(o.Snapshot())
	}
}

// broadcastMediaControl tells the call peer about a local mute change.
// Best effort; a closed channel just drops the notice.
func (o *Orchestrator) broadcastMediaControl(media string, enabled bool) {
	o.mu.RLock()
	session := o.session
	localAddress := o.localAddress
	o.mu.RUnlock()
	if session == nil {
		return
	}
	env := signaling.NewMediaControlEnvelope(localAddress, media, enabled, o.cfg.Now())
	o.chat.Send(session.RemoteAddress, env)
	o.notifyUpdate()
}

// handleEnvelope is installed as the chat channel's envelope subscriber.
// It runs inside HandleData, on whichever goroutine delivered the
// payload; state mutation is forwarded to the loop as intents.
func (o *Orchestrator) handleEnvelope(env signaling.Envelope) {
	switch env.Kind {
	case signaling.KindSystem:
		if env.System != nil && env.System.Event == signaling.SystemCallRejected {
			o.postFromLoop(intent{op: intentRemoteDeclined})
		}
	case signaling.KindMediaControl:
		if env.MediaControl == nil {
			return
		}
		o.mu.Lock()
		if o.session != nil {
			switch env.MediaControl.Media {
			case "audio":
				o.session.RemoteAudioMuted = !env.MediaControl.Enabled
			case "video":
				o.session.RemoteVideoMuted = !env.MediaControl.Enabled
			}
		}
		o.mu.Unlock()
	}
}

// persistJob is one queued persistence write.
type persistJob struct {
	op string
	fn func(ctx context.Context) error
}

// persistAsync enqueues a persistence write. Writes run in submission
// order on a single worker so an append always lands before the update
// that patches it. A full queue drops the write; persistence failures
// never block call handling.
func (o *Orchestrator) persistAsync(op string, fn func(ctx context.Context) error) {
	select {
	case o.persist <- persistJob{op: op, fn: fn}:
	default:
		logrus.WithFields(logrus.Fields{
			"function":  "persistAsync",
			"operation": op,
		}).Warn("Persistence queue full, dropping write")
	}
}

// persistLoop drains the persistence queue.
func (o *Orchestrator) persistLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case job := <-o.persist:
			ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
			err := job.fn(ctx)
			cancel()
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function":  "persistLoop",
					"operation": job.op,
					"error":     err.Error(),
				}).Warn("Persistence write failed")
			}
		}
	}
}

// appendHistory writes a new history entry in the background.
func (o *Orchestrator) appendHistory(entry storage.CallHistoryEntry) {
	o.persistAsync("append_call_history", func(ctx context.Context) error {
		return o.store.AppendCallHistory(ctx, o.cfg.UserID, entry)
	})
}

// updateHistory patches the open history entry for the remote address in
// the background.
func (o *Orchestrator) updateHistory(remoteAddress string, update storage.CallHistoryUpdate) {
	o.persistAsync("update_call_history", func(ctx context.Context) error {
		return o.store.UpdateCallHistory(ctx, o.cfg.UserID, remoteAddress, update)
	})
}

// touchContact bumps the saved contact's last-call time, if the peer is a
// contact at all.
func (o *Orchestrator) touchContact(remoteAddress string) {
	o.persistAsync("update_last_call_time", func(ctx context.Context) error {
		err := o.store.UpdateLastCallTime(ctx, o.cfg.UserID, remoteAddress)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
}

// persistProfile stores the display name and derived address.
func (o *Orchestrator) persistProfile(name, address string) {
	now := o.cfg.Now()
	o.persistAsync("set_profile", func(ctx context.Context) error {
		profile, err := o.store.GetProfile(ctx, o.cfg.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			profile = &storage.Profile{ID: o.cfg.UserID, CreatedAt: now}
		} else if err != nil {
			return err
		}
		profile.Name = name
		profile.Address = address
		profile.UpdatedAt = now
		return o.store.SetProfile(ctx, o.cfg.UserID, profile)
	})
}

// refreshPreferences reloads preferences and hands them to the loop.
func (o *Orchestrator) refreshPreferences() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
		defer cancel()
		prefs, err := o.store.GetPreferences(ctx, o.cfg.UserID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "refreshPreferences",
				"error":    err.Error(),
			}).Warn("Failed to load preferences, keeping current")
			return
		}
		_ = o.post(intent{op: intentPrefsLoaded, prefs: prefs})
	}()
}

// resolveRemoteName looks the peer up in the saved contacts and reports
// the best display name back to the loop.
func (o *Orchestrator) resolveRemoteName(seq uint64, remoteAddress string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
		defer cancel()

		name := remoteAddress
		contacts, err := o.store.GetContacts(ctx, o.cfg.UserID)
		if err == nil {
			for _, c := range contacts {
				if c.Address == remoteAddress && c.Name != "" {
					name = c.Name
					break
				}
			}
		}
		_ = o.post(intent{op: intentNameResolved, seq: seq, remote: remoteAddress, name: name})
	}()
}

// notifyRejected tells a caller their offer was declined: a short-lived
// data session under the reject label carrying one system envelope.
func (o *Orchestrator) notifyRejected(remoteAddress string) {
	session, err := o.handle.OpenDataSession(remoteAddress, signaling.RejectLabel)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "notifyRejected",
			"remote_address": remoteAddress,
			"error":          err.Error(),
		}).Debug("Could not notify caller of rejection")
		return
	}
	env := signaling.NewSystemEnvelope(o.LocalAddress(), signaling.SystemCallRejected, o.cfg.Now())
	if data, err := env.Encode(); err == nil {
		o.handle.SendData(session, data)
	}
	_ = session.Close()
}

// playRingtone starts the alert with a playback bound for unanswered
// calls. Failures are logged only.
func (o *Orchestrator) playRingtone() {
	if err := o.ring.Play(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "playRingtone",
			"error":    err.Error(),
		}).Warn("Ringtone playback failed")
		return
	}
	o.ringTimer = time.AfterFunc(o.cfg.RingtoneTimeout, o.ring.Stop)
}

// stopRingtone silences the alert and cancels the playback bound.
func (o *Orchestrator) stopRingtone() {
	if o.ringTimer != nil {
		o.ringTimer.Stop()
		o.ringTimer = nil
	}
	o.ring.Stop()
}
