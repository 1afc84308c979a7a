package roomcore

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomcore/pending"
	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

// signalAdapter translates signaling pushes and replies into session
// state changes, pending-operation resolutions and sink notifications.
// The channel delivers these on its own goroutine.
type signalAdapter struct {
	s *Session
}

var _ signal.EventHandler = (*signalAdapter)(nil)

// -----------------------------------------------------------------------
// Login lifecycle
// -----------------------------------------------------------------------

func (a *signalAdapter) OnLogin(code int, message string) {
	s := a.s
	s.mu.Lock()
	userID := s.identity.UserID
	if code == 0 {
		s.loggedIn = true
		s.store.SetLocalUser(state.UserInfo{UserID: userID})
	}
	s.mu.Unlock()

	if code == 0 {
		s.log.WithField("user_id", userID).Info("login complete")
		s.ops.Resolve(pending.KindLogin, "", Outcome{Status: pending.StatusSuccess})
		return
	}
	s.log.WithFields(logrus.Fields{
		"code":    code,
		"message": message,
	}).Error("login failed")
	s.ops.Resolve(pending.KindLogin, "", Outcome{Status: pending.StatusFailure, Code: code, Message: message})
}

func (a *signalAdapter) OnLogout(code int, message string) {
	s := a.s
	s.mu.Lock()
	s.loggedIn = false
	s.store.Reset()
	s.mu.Unlock()

	oc := Outcome{Status: pending.StatusSuccess}
	if code != 0 {
		oc = Outcome{Status: pending.StatusFailure, Code: code, Message: message}
	}
	s.ops.Resolve(pending.KindLogout, "", oc)
}

func (a *signalAdapter) OnError(code int, message string) {
	a.s.log.WithFields(logrus.Fields{
		"code":    code,
		"message": message,
	}).Error("signaling error")
	a.s.emit(func(sink EventSink) { sink.OnError(code, message) })
}

// -----------------------------------------------------------------------
// Room lifecycle
// -----------------------------------------------------------------------

func (a *signalAdapter) OnRoomCreated(code int, message string) {
	a.s.handleSignalJoin(true, code, message)
}

func (a *signalAdapter) OnRoomEntered(code int, message string) {
	a.s.handleSignalJoin(false, code, message)
}

func (a *signalAdapter) OnRoomDestroyed(code int, message string) {
	s := a.s
	oc := Outcome{Status: pending.StatusSuccess}
	if code != 0 {
		oc = Outcome{Status: pending.StatusFailure, Code: code, Message: message}
	}
	s.ops.Resolve(pending.KindDestroyRoom, "", oc)
}

// OnRoomExited is both the reply to the local user's own exit and the
// push that ends membership involuntarily (kicked, room destroyed).
func (a *signalAdapter) OnRoomExited(reason signal.ExitReason, message string) {
	s := a.s
	s.mu.Lock()
	ownExit := s.exiting
	s.exiting = false
	wasInRoom := s.entered || s.entering
	s.entered = false
	s.resetEntryLocked()
	s.mu.Unlock()

	if ownExit {
		s.ops.Resolve(pending.KindExitRoom, "", Outcome{Status: pending.StatusSuccess})
		return
	}
	if !wasInRoom {
		return
	}

	s.log.WithFields(logrus.Fields{
		"reason":  reason.String(),
		"message": message,
	}).Info("removed from room")
	s.ops.Drain(Outcome{Status: pending.StatusCanceled, Message: "room exited: " + reason.String()})
	s.teardownRoom(reason.String())
	s.emit(func(sink EventSink) { sink.OnRoomExited(reason, message) })
}

// -----------------------------------------------------------------------
// Command replies
// -----------------------------------------------------------------------

// commandKind maps a wire command to its pending-operation kind.
// ackResolves is false for commands whose success reply is only a
// delivery acknowledgement: an invitation or application stays pending
// until the counterpart answers.
func commandKind(cmd signal.Command) (pending.Kind, bool, bool) {
	switch cmd {
	case signal.CmdMuteMicrophone:
		return pending.KindMuteMicrophone, true, true
	case signal.CmdMuteCamera:
		return pending.KindMuteCamera, true, true
	case signal.CmdKick:
		return pending.KindKick, true, true
	case signal.CmdReplyRollCall:
		return pending.KindRollCallReply, true, true
	case signal.CmdSendInvitation:
		return pending.KindInvitation, false, true
	case signal.CmdCancelInvitation:
		return pending.KindInvitationCancel, true, true
	case signal.CmdReplyInvitation:
		return pending.KindInvitationReply, true, true
	case signal.CmdSendApplication:
		return pending.KindApplication, false, true
	case signal.CmdCancelApplication:
		return pending.KindApplicationCancel, true, true
	case signal.CmdReplyApplication:
		return pending.KindApplicationReply, true, true
	case signal.CmdSendOffSpeaker:
		return pending.KindSendOff, true, true
	case signal.CmdSendOffAll:
		return pending.KindSendOffAll, true, true
	}
	return 0, false, false
}

func (a *signalAdapter) OnCommandResult(cmd signal.Command, target string, code int, message string) {
	s := a.s
	kind, ackResolves, known := commandKind(cmd)
	if !known {
		s.log.WithField("cmd", int(cmd)).Warn("unknown command in result")
		return
	}

	if code != 0 {
		s.log.WithFields(logrus.Fields{
			"cmd":    cmd.String(),
			"target": target,
			"code":   code,
		}).Warn("command rejected")
		s.ops.Resolve(kind, target, Outcome{Status: pending.StatusFailure, Code: code, Message: message})
		return
	}
	if !ackResolves {
		// Delivered; the semantic reply resolves it.
		return
	}
	s.ops.Resolve(kind, target, Outcome{Status: pending.StatusSuccess})
}

// -----------------------------------------------------------------------
// Membership
// -----------------------------------------------------------------------

func (a *signalAdapter) OnUserEntered(member signal.MemberInfo) {
	s := a.s
	s.mu.Lock()
	isNew := s.store.ApplyUserJoined(state.UserInfo{
		UserID:    member.UserID,
		Name:      member.Name,
		AvatarURL: member.AvatarURL,
	})
	u, _ := s.store.User(member.UserID)
	s.mu.Unlock()

	if isNew {
		s.emit(func(sink EventSink) { sink.OnUserJoined(u) })
	}
}

func (a *signalAdapter) OnUserExited(userID string) {
	a.s.handleUserGone(userID, "signal")
}

func (a *signalAdapter) OnMasterChanged(userID string) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyMasterChanged(userID)
	s.mu.Unlock()
	if changed {
		s.log.WithField("user_id", userID).Info("room master changed")
		s.emit(func(sink EventSink) { sink.OnMasterChanged(userID) })
	}
}

func (a *signalAdapter) OnMemberList(members []signal.MemberInfo) {
	s := a.s
	var joined []state.UserInfo
	s.mu.Lock()
	for _, m := range members {
		isNew := s.store.ApplyUserJoined(state.UserInfo{
			UserID:    m.UserID,
			Name:      m.Name,
			AvatarURL: m.AvatarURL,
		})
		if isNew {
			u, _ := s.store.User(m.UserID)
			joined = append(joined, u)
		}
	}
	s.mu.Unlock()

	for _, u := range joined {
		u := u
		s.emit(func(sink EventSink) { sink.OnUserJoined(u) })
	}
}

func (a *signalAdapter) OnRoomInfo(meta signal.RoomMeta) {
	s := a.s
	s.mu.Lock()
	prev := s.store.Room()
	info := state.RoomInfo{
		RoomID:                meta.RoomID,
		SpeechMode:            meta.SpeechMode,
		MasterID:              meta.MasterID,
		ChatMuted:             meta.ChatMuted,
		ApplicationsForbidden: meta.ApplicationsForbidden,
		RollCallActive:        meta.RollCallActive,
		// Mute-all flags travel on their own push, keep what we have.
		AllMicrophonesMuted: prev.AllMicrophonesMuted,
		AllCamerasMuted:     prev.AllCamerasMuted,
	}
	changed := s.store.ApplyRoomInfo(info)
	s.mu.Unlock()
	if changed {
		s.emit(func(sink EventSink) { sink.OnRoomInfoChanged(info) })
	}
}

// -----------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------

func (a *signalAdapter) OnChatMessage(userID, message string) {
	a.s.emit(func(sink EventSink) { sink.OnChatMessage(userID, message) })
}

func (a *signalAdapter) OnCustomMessage(userID, message string) {
	a.s.emit(func(sink EventSink) { sink.OnCustomMessage(userID, message) })
}

func (a *signalAdapter) OnChatRoomMuted(muted bool) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyChatMuted(muted)
	s.mu.Unlock()
	if changed {
		s.emit(func(sink EventSink) { sink.OnChatRoomMuted(muted) })
	}
}

// -----------------------------------------------------------------------
// Speech workflow pushes
// -----------------------------------------------------------------------

func (a *signalAdapter) OnReceiveInvitation() {
	s := a.s
	s.mu.Lock()
	local := s.store.LocalUserID()
	changed := s.store.ApplySpeechState(local, state.SpeechInvited)
	s.mu.Unlock()

	if changed {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechInvited) })
	}
	s.emit(func(sink EventSink) { sink.OnReceiveInvitation() })
}

func (a *signalAdapter) OnInvitationCancelled() {
	s := a.s
	s.mu.Lock()
	local := s.store.LocalUserID()
	u, _ := s.store.User(local)
	reverted := false
	if u.Speech == state.SpeechInvited {
		s.store.ApplySpeechState(local, state.SpeechNone)
		reverted = true
	}
	s.mu.Unlock()

	if reverted {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechNone) })
	}
	s.emit(func(sink EventSink) { sink.OnInvitationCancelled() })
}

// OnInvitationReply carries the member's answer back to the master. It
// resolves the invitation: accepted maps to a successful outcome with
// Agree set, refused to a failed one.
func (a *signalAdapter) OnInvitationReply(userID string, agree bool) {
	s := a.s
	s.mu.Lock()
	next := state.SpeechNone
	if agree {
		next = state.SpeechOnStage
	}
	changed := s.store.ApplySpeechState(userID, next)
	s.mu.Unlock()

	if changed {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(userID, next) })
	}
	oc := Outcome{Status: pending.StatusSuccess, Agree: true}
	if !agree {
		oc = Outcome{Status: pending.StatusFailure, Agree: false, Message: "invitation refused"}
	}
	s.ops.Resolve(pending.KindInvitation, userID, oc)
}

func (a *signalAdapter) OnReceiveApplication(userID string) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplySpeechState(userID, state.SpeechApplying)
	s.mu.Unlock()

	if changed {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(userID, state.SpeechApplying) })
	}
	s.emit(func(sink EventSink) { sink.OnReceiveApplication(userID) })
}

func (a *signalAdapter) OnApplicationCancelled(userID string) {
	s := a.s
	s.mu.Lock()
	u, _ := s.store.User(userID)
	reverted := false
	if u.Speech == state.SpeechApplying {
		s.store.ApplySpeechState(userID, state.SpeechNone)
		reverted = true
	}
	s.mu.Unlock()

	if reverted {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(userID, state.SpeechNone) })
	}
	s.emit(func(sink EventSink) { sink.OnApplicationCancelled(userID) })
}

// OnApplicationReply carries the master's verdict to the applying member.
// The roster reflects the verdict before the application's completion
// callback runs.
func (a *signalAdapter) OnApplicationReply(agree bool) {
	s := a.s
	s.mu.Lock()
	local := s.store.LocalUserID()
	next := state.SpeechNone
	if agree {
		next = state.SpeechOnStage
	}
	changed := s.store.ApplySpeechState(local, next)
	s.mu.Unlock()

	if changed {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, next) })
	}
	oc := Outcome{Status: pending.StatusSuccess, Agree: true}
	if !agree {
		oc = Outcome{Status: pending.StatusFailure, Agree: false, Message: "application rejected"}
	}
	s.ops.Resolve(pending.KindApplication, "", oc)
}

func (a *signalAdapter) OnApplicationsForbidden(forbidden bool) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyForbidApplications(forbidden)
	local := s.store.LocalUserID()
	u, _ := s.store.User(local)
	applying := u.Speech == state.SpeechApplying
	if forbidden && applying {
		s.store.ApplySpeechState(local, state.SpeechNone)
	}
	s.mu.Unlock()

	if forbidden && applying {
		s.ops.Resolve(pending.KindApplication, "", Outcome{Status: pending.StatusFailure, Message: "applications forbidden"})
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechNone) })
	}
	if changed {
		s.emit(func(sink EventSink) { sink.OnApplicationsForbidden(forbidden) })
	}
}

// OnOrderedToExitSpeech takes the local user off the stage on the
// master's order: capture stops and the state resets before the
// application is told.
func (a *signalAdapter) OnOrderedToExitSpeech() {
	s := a.s
	s.mu.Lock()
	local := s.store.LocalUserID()
	changed := s.store.ApplySpeechState(local, state.SpeechNone)
	s.mu.Unlock()

	if !changed {
		return
	}
	if err := s.engine.StopLocalAudio(); err != nil {
		s.log.WithError(err).Warn("stopping local audio on send-off")
	}
	if err := s.engine.StopLocalVideo(); err != nil {
		s.log.WithError(err).Warn("stopping local video on send-off")
	}
	s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechNone) })
	s.emit(func(sink EventSink) { sink.OnOrderedToExitSpeech() })
}

func (a *signalAdapter) OnSpeechStateEnded(userID string) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplySpeechState(userID, state.SpeechNone)
	s.mu.Unlock()
	if changed {
		s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(userID, state.SpeechNone) })
	}
}

// -----------------------------------------------------------------------
// Roll call
// -----------------------------------------------------------------------

func (a *signalAdapter) OnRollCallStarted() {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyRollCall(true)
	s.mu.Unlock()
	if changed {
		s.emit(func(sink EventSink) { sink.OnRollCallStarted() })
	}
}

func (a *signalAdapter) OnRollCallStopped() {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyRollCall(false)
	s.mu.Unlock()
	if changed {
		s.emit(func(sink EventSink) { sink.OnRollCallStopped() })
	}
}

func (a *signalAdapter) OnRollCallReplied(userID string) {
	a.s.emit(func(sink EventSink) { sink.OnRollCallReplied(userID) })
}

// -----------------------------------------------------------------------
// Muting pushes
// -----------------------------------------------------------------------

// OnUserMuted is the room-wide broadcast of a master-imposed mute. When
// it names the local user the published stream is paused or resumed to
// honor it.
func (a *signalAdapter) OnUserMuted(userID string, device state.Device, muted bool) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyMuteState(userID, device, muted)
	isLocal := userID == s.store.LocalUserID()
	s.mu.Unlock()

	if isLocal {
		s.enforceLocalMute(device, muted)
	}
	if changed {
		s.emit(func(sink EventSink) { sink.OnUserMuted(userID, device, muted) })
	}
}

func (a *signalAdapter) OnAllMuted(device state.Device, muted bool) {
	s := a.s
	s.mu.Lock()
	changedIDs := s.store.ApplyMuteAll(device, muted)
	local := s.store.LocalUserID()
	isMaster := s.store.IsMaster(local)
	s.mu.Unlock()

	// The master issues the command and is exempt from it.
	if !isMaster {
		s.enforceLocalMute(device, muted)
	}
	if len(changedIDs) > 0 {
		s.emit(func(sink EventSink) { sink.OnAllMuted(device, muted) })
	}
}

func (s *Session) enforceLocalMute(device state.Device, muted bool) {
	var err error
	switch device {
	case state.DeviceMicrophone:
		err = s.engine.MuteLocalAudio(muted)
	case state.DeviceCamera:
		err = s.engine.MuteLocalVideo(muted)
	}
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"device": device.String(),
			"muted":  muted,
		}).Warn("enforcing master-imposed mute")
	}
}
