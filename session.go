// Package roomcore coordinates a multi-party real-time room session.
//
// A Session reconciles events from two independent asynchronous backends —
// a media transport engine (package media) and an IM/signaling channel
// (package signal) — into one consistent room model, and exposes room
// control operations (speech permission workflow, muting, membership) as
// non-blocking calls whose outcomes arrive later through caller-supplied
// completion callbacks.
//
// Example:
//
//	engine := media.NewNullEngine()
//	channel := wschannel.New("wss://rooms.example.com/signal")
//
//	session, err := roomcore.New(engine, channel, sink, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Login(appID, "alice", userSig, func(oc roomcore.Outcome) {
//	    session.EnterRoom("room-42", func(oc roomcore.Outcome) {
//	        if oc.Succeeded() {
//	            session.SendSpeechApplication(nil)
//	        }
//	    })
//	})
//
// Both backends deliver callbacks on their own goroutines. The Session
// serializes every state mutation under one lock and delivers all outward
// notifications and completion callbacks on a single dispatch goroutine,
// never inline, so sinks and callbacks may issue new commands freely.
package roomcore

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomcore/media"
	"github.com/opd-ai/roomcore/pending"
	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

// Session owns the room state for one login. It is created by New and
// released by Close; no state survives across logins.
type Session struct {
	engine  media.Engine
	channel signal.Channel
	sink    EventSink

	// mu guards the state store, the lifecycle flags and the issue path
	// of every control operation. Both backend adapters funnel through
	// methods that take it, so a media event and a signaling event about
	// the same user can never interleave half-applied mutations.
	mu    sync.Mutex
	store *state.Store
	ops   *pending.Registry
	disp  *dispatcher

	identity signal.Credentials
	loggedIn bool

	// Room entry is the one sequential protocol in the session: the
	// media join (phase 2) starts only after the signaling join
	// (phase 1) succeeds, and a second entry fails fast while one is in
	// flight.
	entering    bool
	creating    bool
	enterRoomID string
	enterMode   state.SpeechMode
	entered     bool
	exiting     bool

	closed bool

	log *logrus.Entry
}

// New creates a Session bound to the given backends. A nil sink selects a
// silent sink; nil opts selects NewOptions(). The session registers itself
// as the handler on both backends.
func New(engine media.Engine, channel signal.Channel, sink EventSink, opts *Options) (*Session, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if channel == nil {
		return nil, ErrNilChannel
	}
	if sink == nil {
		sink = NullEventSink{}
	}
	if opts == nil {
		opts = NewOptions()
	}

	s := &Session{
		engine:  engine,
		channel: channel,
		sink:    sink,
		store:   state.NewStore(),
		disp:    newDispatcher(),
		log:     logrus.WithField("component", "roomcore"),
	}
	s.ops = pending.NewRegistry(opts.PendingTimeout, opts.Clock, func(cb pending.CompletionFunc, oc pending.Outcome) {
		s.disp.post(func() { cb(oc) })
	})

	engine.SetHandler(&mediaAdapter{s: s})
	channel.SetHandler(&signalAdapter{s: s})

	s.log.WithFields(logrus.Fields{
		"pending_timeout": opts.PendingTimeout.String(),
	}).Debug("session created")
	return s, nil
}

// Close tears down the session: any in-flight operations resolve as
// canceled, the backends are released and the dispatch goroutine is
// stopped after draining. Close must not be called from within an
// EventSink callback.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.loggedIn = false
	s.entering = false
	s.entered = false
	s.store.Reset()
	s.mu.Unlock()

	s.ops.Drain(Outcome{Status: pending.StatusCanceled, Message: "session closed"})
	s.ops.Close()
	if err := s.channel.Close(); err != nil {
		s.log.WithError(err).Warn("signaling channel close failed")
	}
	s.disp.close()
	s.log.Debug("session closed")
	return nil
}

// emit posts a sink notification to the dispatch goroutine. Safe to call
// with or without the session lock held.
func (s *Session) emit(fn func(EventSink)) {
	sink := s.sink
	s.disp.post(func() { fn(sink) })
}

// -----------------------------------------------------------------------
// Login / logout
// -----------------------------------------------------------------------

// Login authenticates with the signaling backend. The outcome arrives via
// cb; on success the local user is installed in the (still empty) roster.
func (s *Session) Login(appID int, userID, userSig string, cb CompletionFunc) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loggedIn {
		s.mu.Unlock()
		return ErrAlreadyLoggedIn
	}
	s.identity = signal.Credentials{AppID: appID, UserID: userID, UserSig: userSig}
	token := s.ops.Register(pending.KindLogin, "", cb)
	creds := s.identity
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"app_id":  appID,
		"user_id": userID,
	}).Info("logging in to signaling backend")
	if err := s.channel.Login(creds); err != nil {
		s.ops.ResolveToken(token, Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
	return nil
}

// Logout ends the signaling login. Any established room is torn down
// first; all state is dropped regardless of the backend's reply.
func (s *Session) Logout(cb CompletionFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.loggedIn {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	wasInRoom := s.entered || s.entering
	s.entered = false
	s.entering = false
	s.exiting = false
	s.mu.Unlock()

	if wasInRoom {
		s.teardownRoom("logout")
	}
	s.ops.Drain(Outcome{Status: pending.StatusCanceled, Message: "logging out"})

	s.mu.Lock()
	token := s.ops.Register(pending.KindLogout, "", cb)
	s.mu.Unlock()

	s.log.Info("logging out of signaling backend")
	if err := s.channel.Logout(); err != nil {
		s.ops.ResolveToken(token, Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
	return nil
}

// SetSelfProfile publishes the local display name and avatar.
func (s *Session) SetSelfProfile(name, avatarURL string) error {
	s.mu.Lock()
	if !s.loggedIn {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	s.store.SetLocalUser(state.UserInfo{
		UserID:    s.identity.UserID,
		Name:      name,
		AvatarURL: avatarURL,
	})
	s.mu.Unlock()
	return s.channel.SetProfile(name, avatarURL)
}

// -----------------------------------------------------------------------
// Read-only accessors
// -----------------------------------------------------------------------

// GetRoomInfo returns a copy of the current room attributes.
func (s *Session) GetRoomInfo() state.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Room()
}

// GetUsers returns a copy of every roster entry.
func (s *Session) GetUsers() []state.UserInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Users()
}

// GetUser returns a copy of one roster entry.
func (s *Session) GetUser(userID string) (state.UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.User(userID)
}

// LocalUserID returns the logged-in user's identifier, empty before login.
func (s *Session) LocalUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LocalUserID()
}

// IsMaster reports whether the local user currently owns the room.
func (s *Session) IsMaster() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.IsMaster(s.store.LocalUserID())
}

// -----------------------------------------------------------------------
// Room lifecycle: two-phase entry, reverse-order teardown
// -----------------------------------------------------------------------

// CreateRoom creates a room on the signaling backend and enters it as
// master. Entry is all-or-nothing: the media join starts only after the
// signaling create succeeds, and a failure of either phase tears both
// down. The outcome arrives via cb.
func (s *Session) CreateRoom(roomID string, mode state.SpeechMode, cb CompletionFunc) error {
	return s.beginEntry(roomID, mode, true, cb)
}

// EnterRoom joins an existing room: signaling first, then — gated on its
// success — the media channel. A second EnterRoom while one is in flight
// fails fast with ErrEntryInProgress.
func (s *Session) EnterRoom(roomID string, cb CompletionFunc) error {
	return s.beginEntry(roomID, state.SpeechModeApply, false, cb)
}

func (s *Session) beginEntry(roomID string, mode state.SpeechMode, create bool, cb CompletionFunc) error {
	if roomID == "" {
		return ErrEmptyRoomID
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.loggedIn {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	if s.entered {
		s.mu.Unlock()
		return ErrAlreadyInRoom
	}
	if s.entering {
		s.mu.Unlock()
		return ErrEntryInProgress
	}
	s.entering = true
	s.creating = create
	s.enterRoomID = roomID
	s.enterMode = mode
	kind := pending.KindEnterRoom
	if create {
		kind = pending.KindCreateRoom
	}
	token := s.ops.Register(kind, "", s.entryCallback(create, cb))
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"create":  create,
	}).Info("starting two-phase room entry")

	var err error
	if create {
		err = s.channel.CreateRoom(roomID, mode)
	} else {
		err = s.channel.EnterRoom(roomID)
	}
	if err != nil {
		s.mu.Lock()
		s.resetEntryLocked()
		s.mu.Unlock()
		s.ops.ResolveToken(token, Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
	return nil
}

// handleSignalJoin is phase-one completion: the signaling join (or create)
// replied. On success the media join starts; on failure nothing was
// committed and the entry resolves immediately.
func (s *Session) handleSignalJoin(create bool, code int, message string) {
	kind := pending.KindEnterRoom
	if create {
		kind = pending.KindCreateRoom
	}

	s.mu.Lock()
	if !s.entering || s.creating != create || !s.ops.Active(kind, "") {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"code":   code,
			"create": create,
		}).Warn("stale signaling join reply ignored")
		return
	}
	if code != 0 {
		s.resetEntryLocked()
		s.store.Clear()
		s.mu.Unlock()
		s.ops.Resolve(kind, "", Outcome{Status: pending.StatusFailure, Code: code, Message: message})
		return
	}

	info := state.RoomInfo{
		RoomID:     s.enterRoomID,
		SpeechMode: s.enterMode,
	}
	if create {
		info.MasterID = s.identity.UserID
	}
	s.store.ApplyRoomInfo(info)
	params := media.RoomParams{
		AppID:   s.identity.AppID,
		RoomID:  s.enterRoomID,
		UserID:  s.identity.UserID,
		UserSig: s.identity.UserSig,
	}
	s.mu.Unlock()

	s.log.WithField("room_id", params.RoomID).Debug("signaling join confirmed, starting media join")
	if err := s.engine.JoinRoom(params); err != nil {
		// Phase 2 could not even start: roll back phase 1 so entry
		// stays all-or-nothing.
		s.rollbackEntry(create)
		s.ops.Resolve(kind, "", Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
}

// handleMediaJoin is phase-two completion: the media engine reported its
// join result. A non-negative result completes the entry; a negative one
// is the single fatal outcome in the session and rolls back to a clean,
// re-enterable state.
func (s *Session) handleMediaJoin(result int) {
	s.mu.Lock()
	create := s.creating
	kind := pending.KindEnterRoom
	if create {
		kind = pending.KindCreateRoom
	}
	if !s.entering || !s.ops.Active(kind, "") {
		s.mu.Unlock()
		s.log.WithField("result", result).Warn("stale media join result ignored")
		return
	}

	if result < 0 {
		s.resetEntryLocked()
		s.store.Clear()
		s.mu.Unlock()
		s.rollbackEntry(create)
		s.ops.Resolve(kind, "", Outcome{Status: pending.StatusFailure, Code: result, Message: "media join failed"})
		return
	}

	s.entering = false
	s.creating = false
	s.entered = true
	if local, ok := s.store.LocalUser(); ok {
		s.store.ApplyUserJoined(local)
	}
	room := s.store.Room()
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"room_id": room.RoomID,
		"elapsed": result,
	}).Info("room entry complete")
	s.ops.Resolve(kind, "", Outcome{Status: pending.StatusSuccess})
	s.emit(func(sink EventSink) { sink.OnRoomEntered(room) })
}

// entryCallback wraps the entry completion so an expired or canceled
// entry rolls back before the caller hears the outcome. Without the
// rollback the entering flag would pin the session in ErrEntryInProgress
// forever, and a late backend reply could complete an entry the caller
// was already told failed.
func (s *Session) entryCallback(create bool, cb CompletionFunc) CompletionFunc {
	return func(o Outcome) {
		if o.Status == pending.StatusTimeout || o.Status == pending.StatusCanceled {
			s.abortEntry(create)
		}
		if cb != nil {
			cb(o)
		}
	}
}

// abortEntry undoes whatever a half-finished entry may have committed on
// either backend. The teardown calls are best-effort: the entry never
// completed, so the backends may not have anything to release. No-op when
// the entry flags are already cleared, which is how LeaveRoom, Logout and
// Close hand their canceled entries here without a second teardown.
func (s *Session) abortEntry(create bool) {
	s.mu.Lock()
	if !s.entering {
		s.mu.Unlock()
		return
	}
	s.resetEntryLocked()
	s.store.Clear()
	s.mu.Unlock()

	s.log.WithField("create", create).Info("rolling back timed-out room entry")
	if err := s.engine.LeaveRoom(); err != nil {
		s.log.WithError(err).Debug("media teardown after aborted entry")
	}
	var err error
	if create {
		err = s.channel.DestroyRoom()
	} else {
		err = s.channel.ExitRoom()
	}
	if err != nil {
		s.log.WithError(err).Debug("signaling teardown after aborted entry")
	}
}

// rollbackEntry undoes the signaling join after a media-phase failure.
func (s *Session) rollbackEntry(create bool) {
	var err error
	if create {
		err = s.channel.DestroyRoom()
	} else {
		err = s.channel.ExitRoom()
	}
	if err != nil {
		s.log.WithError(err).Warn("signaling rollback after failed media join")
	}
	s.mu.Lock()
	s.resetEntryLocked()
	s.store.Clear()
	s.mu.Unlock()
}

func (s *Session) resetEntryLocked() {
	s.entering = false
	s.creating = false
	s.enterRoomID = ""
}

// LeaveRoom exits the room: media channel first, then signaling, and the
// room state is cleared unconditionally even if either teardown call
// fails, since local state must not reference a session that may already
// be gone server-side. Calling LeaveRoom while an entry is still in flight
// cancels the entry.
func (s *Session) LeaveRoom(cb CompletionFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.entered && !s.entering {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	s.entered = false
	s.resetEntryLocked()
	s.exiting = true
	s.mu.Unlock()

	// Outstanding control operations can never be confirmed once the
	// room is gone; resolve them before admitting the exit operation.
	s.ops.Drain(Outcome{Status: pending.StatusCanceled, Message: "leaving room"})

	s.mu.Lock()
	token := s.ops.Register(pending.KindExitRoom, "", cb)
	s.mu.Unlock()

	s.teardownRoom("leave")
	if err := s.channel.ExitRoom(); err != nil {
		s.mu.Lock()
		s.exiting = false
		s.mu.Unlock()
		s.ops.ResolveToken(token, Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
	return nil
}

// DestroyRoom dissolves the room. Master only. Teardown order and state
// clearing follow LeaveRoom; members are notified through their own
// signaling push.
func (s *Session) DestroyRoom(cb CompletionFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.entered {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	if !s.store.IsMaster(s.store.LocalUserID()) {
		s.mu.Unlock()
		return ErrNotMaster
	}
	s.entered = false
	s.resetEntryLocked()
	s.mu.Unlock()

	s.ops.Drain(Outcome{Status: pending.StatusCanceled, Message: "destroying room"})

	s.mu.Lock()
	token := s.ops.Register(pending.KindDestroyRoom, "", cb)
	s.mu.Unlock()

	s.teardownRoom("destroy")
	if err := s.channel.DestroyRoom(); err != nil {
		s.ops.ResolveToken(token, Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
	return nil
}

// teardownRoom leaves the media channel and clears the room state. The
// media leave is best-effort; state is cleared regardless.
func (s *Session) teardownRoom(cause string) {
	if err := s.engine.LeaveRoom(); err != nil {
		s.log.WithError(err).WithField("cause", cause).Warn("media leave failed during teardown")
	}
	s.mu.Lock()
	s.store.Clear()
	s.mu.Unlock()
}

// TransferRoomMaster hands room ownership to another member. Fire and
// forget: the actual effect is confirmed only by the master-changed push
// from the signaling channel.
func (s *Session) TransferRoomMaster(userID string) error {
	s.mu.Lock()
	if !s.entered {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	local := s.store.LocalUserID()
	if !s.store.IsMaster(local) {
		s.mu.Unlock()
		return ErrNotMaster
	}
	if userID == "" || userID == local {
		s.mu.Unlock()
		return ErrInvalidTarget
	}
	if _, ok := s.store.User(userID); !ok {
		s.mu.Unlock()
		return ErrUnknownUser
	}
	s.mu.Unlock()
	s.log.WithField("user_id", userID).Info("transferring room mastership")
	return s.channel.TransferMaster(userID)
}
