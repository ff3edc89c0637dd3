package call

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meetcore/identity"
	"github.com/opd-ai/meetcore/signaling"
	"github.com/opd-ai/meetcore/storage"
	"github.com/opd-ai/meetcore/transport"
)

// intentOp enumerates the messages the actor loop consumes besides
// transport events.
type intentOp uint8

const (
	intentSetName intentOp = iota
	intentReconnect
	intentPlaceCall
	intentAccept
	intentReject
	intentEnd
	intentMediaReady
	intentNameResolved
	intentLinger
	intentPrefsLoaded
	intentRemoteDeclined
	intentReconnectFailed
	intentRingPreview
	intentRingStop
)

// acquirePurpose tags a media acquisition with the flow it belongs to.
type acquirePurpose uint8

const (
	purposePlace acquirePurpose = iota
	purposeAccept
)

// intent is one message on the actor loop's internal queue. seq carries
// the call attempt the message belongs to so stale completions from a
// finished attempt are discarded.
type intent struct {
	op        intentOp
	seq       uint64
	name      string
	remote    string
	mediaKind transport.MediaKind
	local     *transport.LocalMedia
	err       error
	purpose   acquirePurpose
	prefs     storage.Preferences
}

// run is the actor loop. Every state transition in the orchestrator
// happens here.
func (o *Orchestrator) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case ev := <-o.handle.Events():
			o.handleTransportEvent(ev)
		case in := <-o.intents:
			o.handleIntent(in)
		}
	}
}

func (o *Orchestrator) handleIntent(in intent) {
	switch in.op {
	case intentSetName:
		o.doSetName(in.name)
	case intentReconnect:
		o.doReconnect()
	case intentPlaceCall:
		o.doPlaceCall(in.remote, in.mediaKind)
	case intentAccept:
		o.doAccept()
	case intentReject:
		o.doReject()
	case intentEnd:
		o.doEnd()
	case intentMediaReady:
		o.doMediaReady(in)
	case intentNameResolved:
		o.doNameResolved(in)
	case intentLinger:
		if in.seq == o.callSeq && o.State() == StateCallEnded {
			o.clearSession()
			o.setState(StateConnected, "")
		}
	case intentPrefsLoaded:
		o.prefs = in.prefs
	case intentRemoteDeclined:
		o.doRemoteDeclined()
	case intentReconnectFailed:
		o.doReconnectFailed()
	case intentRingPreview:
		// A real incoming-call alert owns the ringtone.
		if o.State() != StateIncomingCall {
			o.playRingtone()
		}
	case intentRingStop:
		if o.State() != StateIncomingCall {
			o.stopRingtone()
		}
	}
}

func (o *Orchestrator) handleTransportEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventOpened:
		o.doOpened(ev.LocalAddress)
	case transport.EventDisconnected:
		o.doDisconnected()
	case transport.EventIncomingMediaSession:
		o.doIncomingMediaSession(ev.RemoteAddress, ev.MediaSess)
	case transport.EventIncomingDataSession:
		o.doIncomingDataSession(ev.RemoteAddress, ev.DataSess)
	case transport.EventMediaReceived:
		o.doMediaReceived(ev.RemoteAddress, ev.RemoteMedia)
	case transport.EventDataReceived:
		o.doDataReceived(ev.RemoteAddress, ev.Payload)
	case transport.EventSessionClosed:
		o.doSessionClosed(ev.RemoteAddress)
	case transport.EventError:
		o.doTransportError(ev.Err)
	}
}

// doSetName derives the rotating address for the name and registers it.
func (o *Orchestrator) doSetName(name string) {
	if o.inCall() {
		logrus.WithFields(logrus.Fields{
			"function": "doSetName",
		}).Warn("Ignoring name change during active call")
		return
	}

	addr := identity.DeriveAddress(name, o.cfg.Now())

	o.mu.Lock()
	o.displayName = name
	o.wantAddress = addr.Value
	o.mu.Unlock()

	o.setState(StateWaitingForIdentity, "")
	if o.sup != nil {
		o.sup.SetAddress(addr.Value)
	}
	o.persistProfile(name, addr.Value)

	o.setState(StateConnecting, "")
	if err := o.handle.Register(addr.Value); err != nil {
		o.setState(StateError, err.Error())
	}
}

// doReconnect re-registers the known address right away.
func (o *Orchestrator) doReconnect() {
	o.mu.RLock()
	address := o.wantAddress
	o.mu.RUnlock()
	if address == "" || o.inCall() {
		return
	}

	o.setState(StateConnecting, "")
	var err error
	if o.sup != nil {
		err = o.sup.ManualReconnect(address)
	} else {
		err = o.handle.Register(address)
	}
	if err != nil {
		o.setState(StateError, err.Error())
	}
}

// doOpened records the registration and settles into connected, unless a
// call survived a mid-call re-registration.
func (o *Orchestrator) doOpened(localAddress string) {
	o.mu.Lock()
	o.localAddress = localAddress
	o.mu.Unlock()

	if o.sup != nil {
		o.sup.NotifyOpened()
	}
	o.refreshPreferences()

	switch o.State() {
	case StateWaitingForIdentity, StateConnecting, StateError:
		o.setState(StateConnected, "")
	default:
		o.notifyUpdate()
	}
}

// doDisconnected hands recovery to the supervisor. An active call is left
// untouched; only the idle connected state is downgraded.
func (o *Orchestrator) doDisconnected() {
	logrus.WithFields(logrus.Fields{
		"function": "doDisconnected",
		"state":    o.State().String(),
	}).Warn("Registration lost")

	if o.sup != nil {
		o.sup.NotifyDisconnected()
	}
	if o.State() == StateConnected {
		o.setState(StateConnecting, "")
	}
}

// doReconnectFailed surfaces retry exhaustion. An active call cannot
// outlive the transport, so it is torn down first.
func (o *Orchestrator) doReconnectFailed() {
	if o.session != nil || o.pendingIncoming != nil {
		o.finishHistoryOnAbort()
		o.teardownCall()
		o.clearSession()
		o.callSeq++
	}
	o.setState(StateError, ReasonConnectionLost)
}

// doPlaceCall begins the outbound flow: session bookkeeping first, then
// asynchronous media acquisition that re-enters as intentMediaReady.
func (o *Orchestrator) doPlaceCall(remote string, kind transport.MediaKind) {
	if o.State() != StateConnected || o.hasSession() {
		logrus.WithFields(logrus.Fields{
			"function":       "doPlaceCall",
			"remote_address": remote,
			"state":          o.State().String(),
		}).Warn("Ignoring call placement outside connected state")
		return
	}

	o.callSeq++
	seq := o.callSeq

	o.mu.Lock()
	o.session = &Session{
		RemoteAddress: remote,
		Direction:     DirectionOutgoing,
		MediaKind:     kind,
	}
	o.remoteMedia = nil
	o.mu.Unlock()

	o.chat.ClearLog()
	o.setState(StateCallingPeer, "")

	go func() {
		media, err := o.handle.AcquireMedia(transport.DefaultConstraints(kind))
		_ = o.post(intent{
			op:        intentMediaReady,
			seq:       seq,
			purpose:   purposePlace,
			remote:    remote,
			mediaKind: kind,
			local:     media,
			err:       err,
		})
	}()
}

// doMediaReady resumes a flow suspended on device acquisition. Stale
// completions from an attempt the user already abandoned are dropped,
// releasing the device if nothing else claimed it.
func (o *Orchestrator) doMediaReady(in intent) {
	expected := StateCallingPeer
	if in.purpose == purposeAccept {
		expected = StateIncomingCall
	}
	if in.seq != o.callSeq || o.State() != expected {
		logrus.WithFields(logrus.Fields{
			"function": "doMediaReady",
			"state":    o.State().String(),
		}).Debug("Dropping stale media acquisition result")
		if !o.hasSession() && o.pendingIncoming == nil {
			o.handle.ReleaseMedia()
		}
		return
	}

	if in.purpose == purposeAccept {
		o.completeAccept(in)
		return
	}
	o.completePlace(in)
}

// completePlace sends the network offer once media is in hand.
func (o *Orchestrator) completePlace(in intent) {
	if in.err != nil {
		o.abortOutgoing(ReasonMediaAccessDenied)
		return
	}

	session, err := o.handle.PlaceMediaCall(in.remote, in.local, transport.CallMetadata{
		CallerName: o.displayNameLocked(),
		MediaKind:  in.mediaKind,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "completePlace",
			"remote_address": in.remote,
			"error":          err.Error(),
		}).Warn("Failed to place call")
		o.abortOutgoing(ReasonPeerUnreachable)
		return
	}

	o.activeSession = session

	// The history row exists only once the offer is actually out. An
	// attempt that died on device access or an unreachable peer leaves
	// no trace in the call log.
	o.appendHistory(storage.CallHistoryEntry{
		ID:            uuid.NewString(),
		RemoteAddress: in.remote,
		DisplayName:   storage.PlaceholderName,
		Direction:     storage.DirectionOutgoing,
		MediaKind:     string(in.mediaKind),
		OccurredAt:    o.cfg.Now(),
	})

	if err := o.chat.EnsureOpen(in.remote); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "completePlace",
			"remote_address": in.remote,
			"error":          err.Error(),
		}).Warn("Failed to open chat channel")
	}
}

// completeAccept answers the pending offer once media is in hand. A
// caller hanging up just before the answer lands is a normal race, not a
// failure.
func (o *Orchestrator) completeAccept(in intent) {
	remote := o.incomingAddress()
	if in.err != nil {
		if o.pendingIncoming != nil {
			_ = o.pendingIncoming.Close()
		}
		o.updateHistory(remote, missedUpdate())
		o.teardownCall()
		o.clearSession()
		o.callSeq++
		o.setState(StateError, ReasonMediaAccessDenied)
		return
	}

	err := o.handle.AnswerMediaSession(o.pendingIncoming, in.local)
	if errors.Is(err, transport.ErrSessionAlreadyClosed) {
		logrus.WithFields(logrus.Fields{
			"function":       "completeAccept",
			"remote_address": remote,
		}).Info("Caller hung up before the answer, returning to connected")
		o.updateHistory(remote, missedUpdate())
		o.teardownCall()
		o.clearSession()
		o.callSeq++
		o.setState(StateConnected, "")
		return
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "completeAccept",
			"remote_address": remote,
			"error":          err.Error(),
		}).Warn("Failed to answer call")
		if o.pendingIncoming != nil {
			_ = o.pendingIncoming.Close()
		}
		o.updateHistory(remote, missedUpdate())
		o.teardownCall()
		o.clearSession()
		o.callSeq++
		o.setState(StateError, ReasonPeerUnreachable)
		return
	}

	o.activeSession = o.pendingIncoming
	o.pendingIncoming = nil

	o.mu.Lock()
	desc := o.incoming
	o.incoming = nil
	o.session = &Session{
		RemoteAddress: desc.CallerAddress,
		RemoteName:    desc.CallerName,
		Direction:     DirectionIncoming,
		MediaKind:     desc.MediaKind,
		StartedAt:     o.cfg.Now(),
	}
	o.mu.Unlock()

	if err := o.chat.EnsureOpen(remote); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "completeAccept",
			"remote_address": remote,
			"error":          err.Error(),
		}).Warn("Failed to open chat channel")
	}
	o.setState(StateInCall, "")
}

// doAccept starts answering the pending offer.
func (o *Orchestrator) doAccept() {
	if o.State() != StateIncomingCall || o.pendingIncoming == nil {
		return
	}
	o.stopRingtone()

	seq := o.callSeq
	kind := o.incomingMediaKind()
	go func() {
		media, err := o.handle.AcquireMedia(transport.DefaultConstraints(kind))
		_ = o.post(intent{
			op:      intentMediaReady,
			seq:     seq,
			purpose: purposeAccept,
			local:   media,
			err:     err,
		})
	}()
}

// doReject declines the pending offer: notify the caller, close the
// session, record the miss. The notice goes out before the close so the
// caller learns the decline reason rather than a bare hang-up.
func (o *Orchestrator) doReject() {
	if o.State() != StateIncomingCall || o.pendingIncoming == nil {
		return
	}
	o.stopRingtone()

	remote := o.incomingAddress()
	o.notifyRejected(remote)

	_ = o.pendingIncoming.Close()
	o.pendingIncoming = nil
	o.updateHistory(remote, missedUpdate())
	o.teardownCall()
	o.clearSession()
	o.callSeq++
	o.setState(StateConnected, "")
}

// doEnd handles the local hang-up in every state where it means
// something. Everywhere else it is a silent no-op.
func (o *Orchestrator) doEnd() {
	switch o.State() {
	case StateInCall:
		o.finishEstablishedCall()
	case StateCallingPeer:
		o.updateHistory(o.sessionAddress(), missedUpdate())
		o.teardownCall()
		o.clearSession()
		o.callSeq++
		o.setState(StateConnected, "")
	case StateIncomingCall:
		o.doReject()
	default:
		logrus.WithFields(logrus.Fields{
			"function": "doEnd",
			"state":    o.State().String(),
		}).Debug("End call ignored outside call states")
	}
}

// finishEstablishedCall ends an in-progress call: duration and name go to
// history, resources are released, and the post-call state lingers
// briefly before connected.
func (o *Orchestrator) finishEstablishedCall() {
	o.mu.RLock()
	session := *o.session
	o.mu.RUnlock()

	duration := int(o.cfg.Now().Sub(session.StartedAt).Seconds())
	if duration < 1 {
		duration = 1
	}
	name := session.RemoteName
	if name == "" {
		name = session.RemoteAddress
	}

	o.updateHistory(session.RemoteAddress, storage.CallHistoryUpdate{
		DisplayName:     &name,
		DurationSeconds: &duration,
	})
	o.touchContact(session.RemoteAddress)
	o.teardownCall()

	o.callSeq++
	seq := o.callSeq
	o.setState(StateCallEnded, "")
	time.AfterFunc(o.cfg.EndCallLinger, func() {
		_ = o.post(intent{op: intentLinger, seq: seq})
	})
}

// doIncomingMediaSession admits at most one pending offer. A second
// inbound call while any session exists is closed before any state is
// touched.
func (o *Orchestrator) doIncomingMediaSession(remote string, session transport.MediaSession) {
	if o.hasSession() || o.pendingIncoming != nil || o.State() != StateConnected {
		logrus.WithFields(logrus.Fields{
			"function":       "doIncomingMediaSession",
			"remote_address": remote,
			"state":          o.State().String(),
		}).Info("Busy, closing additional inbound call")
		_ = session.Close()
		return
	}

	meta := session.Metadata()
	kind := meta.MediaKind
	if kind != transport.MediaKindAudio {
		kind = transport.MediaKindVideo
	}
	name := meta.CallerName
	if name == "" {
		name = "Unknown"
	}

	o.callSeq++
	o.pendingIncoming = session

	o.mu.Lock()
	o.incoming = &IncomingDescriptor{
		ID:            uuid.NewString(),
		CallerAddress: remote,
		CallerName:    name,
		CallerAvatar:  meta.CallerAvatar,
		MediaKind:     kind,
		ReceivedAt:    o.cfg.Now(),
	}
	o.remoteMedia = nil
	o.mu.Unlock()

	o.chat.ClearLog()
	o.setState(StateIncomingCall, "")

	o.appendHistory(storage.CallHistoryEntry{
		ID:            uuid.NewString(),
		RemoteAddress: remote,
		DisplayName:   name,
		Direction:     storage.DirectionIncoming,
		MediaKind:     string(kind),
		OccurredAt:    o.cfg.Now(),
	})

	if o.prefs.AutoAcceptCalls {
		o.postFromLoop(intent{op: intentAccept})
		return
	}
	if o.prefs.SoundEnabled {
		o.playRingtone()
	}
}

// doIncomingDataSession routes inbound data channels by label: the chat
// channel of the current call is adopted, a rejection notice ends the
// outbound attempt, anything else is closed.
func (o *Orchestrator) doIncomingDataSession(remote string, session transport.DataSession) {
	switch session.Label() {
	case signaling.RejectLabel:
		_ = session.Close()
		o.doRemoteDeclined()
	case signaling.ChatLabel:
		if o.callPeer() == remote {
			o.chat.Adopt(session)
			return
		}
		logrus.WithFields(logrus.Fields{
			"function":       "doIncomingDataSession",
			"remote_address": remote,
		}).Debug("Closing chat session from non-call peer")
		_ = session.Close()
	default:
		logrus.WithFields(logrus.Fields{
			"function":       "doIncomingDataSession",
			"remote_address": remote,
			"label":          session.Label(),
		}).Debug("Closing data session with unknown label")
		_ = session.Close()
	}
}

// doRemoteDeclined ends a ringing outbound call after the callee said no.
func (o *Orchestrator) doRemoteDeclined() {
	if o.State() != StateCallingPeer {
		return
	}
	remote := o.sessionAddress()
	logrus.WithFields(logrus.Fields{
		"function":       "doRemoteDeclined",
		"remote_address": remote,
	}).Info("Call was declined by the callee")

	o.updateHistory(remote, missedUpdate())
	o.teardownCall()
	o.clearSession()
	o.callSeq++
	o.setState(StateError, ReasonCallDeclined)
}

// doMediaReceived records the remote stream. Without a prior local call
// attempt the stream is meaningless and ignored.
func (o *Orchestrator) doMediaReceived(remote string, media transport.RemoteMedia) {
	o.mu.RLock()
	session := o.session
	o.mu.RUnlock()
	if session == nil || session.RemoteAddress != remote {
		logrus.WithFields(logrus.Fields{
			"function":       "doMediaReceived",
			"remote_address": remote,
		}).Debug("Ignoring remote media without a matching call")
		return
	}

	o.mu.Lock()
	o.remoteMedia = media
	o.mu.Unlock()

	switch o.State() {
	case StateCallingPeer:
		// Callee answered: the outbound call is established now.
		o.mu.Lock()
		o.session.StartedAt = o.cfg.Now()
		o.mu.Unlock()
		if err := o.chat.EnsureOpen(remote); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":       "doMediaReceived",
				"remote_address": remote,
				"error":          err.Error(),
			}).Warn("Failed to open chat channel")
		}
		o.resolveRemoteName(o.callSeq, remote)
		o.setState(StateInCall, "")
	case StateInCall:
		o.notifyUpdate()
	default:
		logrus.WithFields(logrus.Fields{
			"function": "doMediaReceived",
			"state":    o.State().String(),
		}).Debug("Remote media in unexpected state")
	}
}

// doNameResolved replaces the placeholder with the contact's real name.
func (o *Orchestrator) doNameResolved(in intent) {
	if in.seq != o.callSeq {
		return
	}
	o.mu.Lock()
	if o.session != nil && o.session.RemoteAddress == in.remote && o.session.RemoteName == "" {
		o.session.RemoteName = in.name
	}
	o.mu.Unlock()

	o.updateHistory(in.remote, storage.CallHistoryUpdate{DisplayName: &in.name})
	o.notifyUpdate()
}

// doDataReceived hands payloads from the call peer to the chat channel.
// Payloads from anyone else, including stragglers after a call ended,
// are dropped.
func (o *Orchestrator) doDataReceived(remote string, payload []byte) {
	if o.callPeer() != remote {
		logrus.WithFields(logrus.Fields{
			"function":       "doDataReceived",
			"remote_address": remote,
		}).Debug("Dropping data from non-call peer")
		return
	}
	o.chat.HandleData(remote, payload)
	o.notifyUpdate()
}

// doSessionClosed reacts to the remote side ending the media session.
func (o *Orchestrator) doSessionClosed(remote string) {
	switch o.State() {
	case StateInCall:
		if o.sessionAddress() == remote {
			o.finishEstablishedCall()
		}
	case StateCallingPeer:
		if o.sessionAddress() == remote {
			o.updateHistory(remote, missedUpdate())
			o.teardownCall()
			o.clearSession()
			o.callSeq++
			o.setState(StateConnected, "")
		}
	case StateIncomingCall:
		if o.incomingAddress() == remote {
			logrus.WithFields(logrus.Fields{
				"function":       "doSessionClosed",
				"remote_address": remote,
			}).Info("Caller hung up before a decision")
			o.updateHistory(remote, missedUpdate())
			o.teardownCall()
			o.clearSession()
			o.callSeq++
			o.setState(StateConnected, "")
		}
	}
}

// doTransportError maps transport failures onto the current flow.
func (o *Orchestrator) doTransportError(err error) {
	if err == nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "doTransportError",
		"state":    o.State().String(),
		"error":    err.Error(),
	}).Warn("Transport error")

	switch o.State() {
	case StateWaitingForIdentity, StateConnecting:
		o.setState(StateError, err.Error())
	case StateCallingPeer:
		o.abortOutgoing(ReasonPeerUnreachable)
	}
}

// abortOutgoing tears a not-yet-established outbound call down and lands
// in the error state with a user-facing reason.
func (o *Orchestrator) abortOutgoing(reason string) {
	o.updateHistory(o.sessionAddress(), missedUpdate())
	o.teardownCall()
	o.clearSession()
	o.callSeq++
	o.setState(StateError, reason)
}

// finishHistoryOnAbort closes the open history entry when a call dies
// from transport loss rather than a hang-up.
func (o *Orchestrator) finishHistoryOnAbort() {
	o.mu.RLock()
	session := o.session
	o.mu.RUnlock()

	if session == nil {
		if remote := o.incomingAddress(); remote != "" {
			o.updateHistory(remote, missedUpdate())
		}
		return
	}
	if session.StartedAt.IsZero() {
		o.updateHistory(session.RemoteAddress, missedUpdate())
		return
	}
	duration := int(o.cfg.Now().Sub(session.StartedAt).Seconds())
	if duration < 1 {
		duration = 1
	}
	name := session.RemoteName
	if name == "" {
		name = session.RemoteAddress
	}
	o.updateHistory(session.RemoteAddress, storage.CallHistoryUpdate{
		DisplayName:     &name,
		DurationSeconds: &duration,
	})
}

// teardownCall releases every call-scoped resource. Safe on every exit
// path: closes are idempotent and the device handle is released exactly
// once.
func (o *Orchestrator) teardownCall() {
	o.stopRingtone()
	if o.activeSession != nil {
		_ = o.activeSession.Close()
		o.activeSession = nil
	}
	if o.pendingIncoming != nil {
		_ = o.pendingIncoming.Close()
		o.pendingIncoming = nil
	}
	o.chat.TeardownAll()
	o.handle.ReleaseMedia()

	o.mu.Lock()
	o.incoming = nil
	o.remoteMedia = nil
	o.mu.Unlock()
}

// clearSession drops the session record once no state needs it anymore.
func (o *Orchestrator) clearSession() {
	o.mu.Lock()
	o.session = nil
	o.mu.Unlock()
}

func (o *Orchestrator) hasSession() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session != nil
}

func (o *Orchestrator) sessionAddress() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return ""
	}
	return o.session.RemoteAddress
}

func (o *Orchestrator) incomingAddress() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.incoming == nil {
		return ""
	}
	return o.incoming.CallerAddress
}

func (o *Orchestrator) incomingMediaKind() transport.MediaKind {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.incoming == nil {
		return transport.MediaKindVideo
	}
	return o.incoming.MediaKind
}

// callPeer returns the address of the current call party, established or
// pending, or "".
func (o *Orchestrator) callPeer() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session != nil {
		return o.session.RemoteAddress
	}
	if o.incoming != nil {
		return o.incoming.CallerAddress
	}
	return ""
}

func (o *Orchestrator) displayNameLocked() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.displayName
}

// missedUpdate marks an open history entry as a missed call.
func missedUpdate() storage.CallHistoryUpdate {
	missed := storage.DirectionMissed
	return storage.CallHistoryUpdate{Direction: &missed}
}
