package roomcore

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomcore/media"
	"github.com/opd-ai/roomcore/pending"
	"github.com/opd-ai/roomcore/state"
)

// issue registers a pending operation, then sends the command on the
// signaling channel. A synchronous send failure resolves the operation
// immediately; otherwise the outcome arrives through the backend adapters
// or the registry's timeout sweep.
func (s *Session) issue(kind pending.Kind, target string, cb CompletionFunc, send func() error) error {
	s.mu.Lock()
	token := s.ops.Register(kind, target, cb)
	s.mu.Unlock()

	if err := send(); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":   kind.String(),
			"target": target,
		}).Warn("command send failed")
		s.ops.ResolveToken(token, Outcome{Status: pending.StatusFailure, Message: err.Error()})
	}
	return nil
}

// requireMaster verifies the session is in a room with the local user as
// master, and that target names another current member when non-empty.
func (s *Session) requireMaster(target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.entered {
		return ErrNotInRoom
	}
	local := s.store.LocalUserID()
	if !s.store.IsMaster(local) {
		return ErrNotMaster
	}
	if target != "" {
		if target == local {
			return ErrInvalidTarget
		}
		if _, ok := s.store.User(target); !ok {
			return ErrUnknownUser
		}
	}
	return nil
}

// requireMember verifies the session is in a room with the local user as
// an ordinary member. The speech workflow's member half is never
// available to the master.
func (s *Session) requireMember() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.entered {
		return ErrNotInRoom
	}
	if s.store.IsMaster(s.store.LocalUserID()) {
		return ErrMasterNotAllowed
	}
	return nil
}

// -----------------------------------------------------------------------
// Master controls: muting, kicking, roll call
// -----------------------------------------------------------------------

// MuteUserMicrophone asks a member's client to mute or unmute its
// microphone. Master only.
func (s *Session) MuteUserMicrophone(userID string, mute bool, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	return s.issue(pending.KindMuteMicrophone, userID, cb, func() error {
		return s.channel.MuteUser(userID, state.DeviceMicrophone, mute)
	})
}

// MuteUserCamera asks a member's client to mute or unmute its camera.
// Master only.
func (s *Session) MuteUserCamera(userID string, mute bool, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	return s.issue(pending.KindMuteCamera, userID, cb, func() error {
		return s.channel.MuteUser(userID, state.DeviceCamera, mute)
	})
}

// MuteAllUsersMicrophone mutes or unmutes every member's microphone. The
// flag persists in the room attributes for late joiners. Master only.
func (s *Session) MuteAllUsersMicrophone(mute bool) error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	s.log.WithField("mute", mute).Info("muting all microphones")
	return s.channel.MuteAll(state.DeviceMicrophone, mute)
}

// MuteAllUsersCamera mutes or unmutes every member's camera. Master only.
func (s *Session) MuteAllUsersCamera(mute bool) error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	s.log.WithField("mute", mute).Info("muting all cameras")
	return s.channel.MuteAll(state.DeviceCamera, mute)
}

// MuteChatRoom forbids or permits text messages from members. Master only.
func (s *Session) MuteChatRoom(mute bool) error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.channel.MuteChatRoom(mute)
}

// KickOffUser removes a member from the room. Master only.
func (s *Session) KickOffUser(userID string, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	s.log.WithField("user_id", userID).Info("kicking user")
	return s.issue(pending.KindKick, userID, cb, func() error {
		return s.channel.Kick(userID)
	})
}

// StartCallingRoll begins a roll call. While it is active members may
// answer with ReplyCallingRoll. Master only.
func (s *Session) StartCallingRoll() error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.channel.StartRollCall()
}

// StopCallingRoll ends the roll call. Master only.
func (s *Session) StopCallingRoll() error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.channel.StopRollCall()
}

// ReplyCallingRoll answers the active roll call. Member only.
func (s *Session) ReplyCallingRoll(cb CompletionFunc) error {
	if err := s.requireMember(); err != nil {
		return err
	}
	s.mu.Lock()
	active := s.store.Room().RollCallActive
	s.mu.Unlock()
	if !active {
		return ErrRollCallInactive
	}
	return s.issue(pending.KindRollCallReply, "", cb, s.channel.ReplyRollCall)
}

// -----------------------------------------------------------------------
// Speech permission workflow, master half
// -----------------------------------------------------------------------

// SendSpeechInvitation invites a member onto the stage. The outcome
// carries the member's answer: Agree is true when they accepted.
// Re-inviting the same member supersedes the previous invitation. Master
// only.
func (s *Session) SendSpeechInvitation(userID string, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	s.mu.Lock()
	u, _ := s.store.User(userID)
	onStage := u.Speech == state.SpeechOnStage
	s.mu.Unlock()
	if onStage {
		return ErrBadSpeechState
	}
	s.log.WithField("user_id", userID).Info("sending speech invitation")
	return s.issue(pending.KindInvitation, userID, cb, func() error {
		return s.channel.SendInvitation(userID)
	})
}

// CancelSpeechInvitation withdraws an outstanding invitation. The
// invitation itself resolves as canceled; cb reports delivery of the
// cancellation. Master only.
func (s *Session) CancelSpeechInvitation(userID string, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	s.ops.Resolve(pending.KindInvitation, userID, Outcome{Status: pending.StatusCanceled, Message: "invitation cancelled"})
	return s.issue(pending.KindInvitationCancel, userID, cb, func() error {
		return s.channel.CancelInvitation(userID)
	})
}

// ReplySpeechApplication approves or rejects a member's speech
// application. Master only.
func (s *Session) ReplySpeechApplication(userID string, agree bool, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"agree":   agree,
	}).Info("replying to speech application")
	return s.issue(pending.KindApplicationReply, userID, cb, func() error {
		return s.channel.ReplyApplication(userID, agree)
	})
}

// ForbidSpeechApplication turns the application half of the workflow off
// or back on. Members with an application in flight have it rejected by
// the backend push. Master only.
func (s *Session) ForbidSpeechApplication(forbid bool) error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.channel.ForbidApplications(forbid)
}

// SendOffSpeaker orders one speaker off the stage. Master only.
func (s *Session) SendOffSpeaker(userID string, cb CompletionFunc) error {
	if err := s.requireMaster(userID); err != nil {
		return err
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	s.mu.Lock()
	u, _ := s.store.User(userID)
	onStage := u.Speech == state.SpeechOnStage
	s.mu.Unlock()
	if !onStage {
		return ErrBadSpeechState
	}
	return s.issue(pending.KindSendOff, userID, cb, func() error {
		return s.channel.SendOffSpeaker(userID)
	})
}

// SendOffAllSpeakers orders every speaker off the stage. Master only.
func (s *Session) SendOffAllSpeakers(cb CompletionFunc) error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.issue(pending.KindSendOffAll, "", cb, s.channel.SendOffAll)
}

// -----------------------------------------------------------------------
// Speech permission workflow, member half
// -----------------------------------------------------------------------

// ReplySpeechInvitation answers a pending invitation from the master.
// Accepting moves the local user onto the stage immediately; the move is
// reverted if the reply cannot be delivered.
func (s *Session) ReplySpeechInvitation(agree bool, cb CompletionFunc) error {
	if err := s.requireMember(); err != nil {
		return err
	}
	s.mu.Lock()
	local := s.store.LocalUserID()
	u, _ := s.store.User(local)
	if u.Speech != state.SpeechInvited {
		s.mu.Unlock()
		return ErrBadSpeechState
	}
	next := state.SpeechNone
	if agree {
		next = state.SpeechOnStage
	}
	s.store.ApplySpeechState(local, next)
	s.mu.Unlock()
	s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, next) })

	wrapped := func(oc Outcome) {
		if !oc.Succeeded() && agree {
			s.mu.Lock()
			s.store.ApplySpeechState(local, state.SpeechNone)
			s.mu.Unlock()
			s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechNone) })
		}
		if cb != nil {
			cb(oc)
		}
	}
	return s.issue(pending.KindInvitationReply, "", wrapped, func() error {
		return s.channel.ReplyInvitation(agree)
	})
}

// SendSpeechApplication asks the master for permission to speak. The
// outcome carries the master's answer; on approval the local user is on
// stage by the time cb runs. Member only, and only while no application
// or invitation is in progress.
func (s *Session) SendSpeechApplication(cb CompletionFunc) error {
	if err := s.requireMember(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.store.Room().ApplicationsForbidden {
		s.mu.Unlock()
		return ErrApplicationsForbidden
	}
	local := s.store.LocalUserID()
	u, _ := s.store.User(local)
	if u.Speech != state.SpeechNone {
		s.mu.Unlock()
		return ErrBadSpeechState
	}
	s.store.ApplySpeechState(local, state.SpeechApplying)
	s.mu.Unlock()
	s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechApplying) })

	// Timeout and cancellation leave the member in Applying with no
	// reply ever coming; fold those back to None here. The approved and
	// rejected paths are applied by the signaling adapter before the
	// callback fires.
	wrapped := func(oc Outcome) {
		if oc.Status == pending.StatusTimeout || oc.Status == pending.StatusCanceled {
			s.mu.Lock()
			changed := s.store.ApplySpeechState(local, state.SpeechNone)
			s.mu.Unlock()
			if changed {
				s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechNone) })
			}
		}
		if cb != nil {
			cb(oc)
		}
	}
	return s.issue(pending.KindApplication, "", wrapped, s.channel.SendApplication)
}

// CancelSpeechApplication withdraws the in-flight speech application.
// Member only.
func (s *Session) CancelSpeechApplication(cb CompletionFunc) error {
	if err := s.requireMember(); err != nil {
		return err
	}
	s.mu.Lock()
	local := s.store.LocalUserID()
	u, _ := s.store.User(local)
	if u.Speech != state.SpeechApplying {
		s.mu.Unlock()
		return ErrBadSpeechState
	}
	s.mu.Unlock()

	s.ops.Resolve(pending.KindApplication, "", Outcome{Status: pending.StatusCanceled, Message: "application cancelled"})
	return s.issue(pending.KindApplicationCancel, "", cb, s.channel.CancelApplication)
}

// ExitSpeechState steps down from the stage voluntarily: local capture
// stops and the master is notified. Member only.
func (s *Session) ExitSpeechState() error {
	if err := s.requireMember(); err != nil {
		return err
	}
	s.mu.Lock()
	local := s.store.LocalUserID()
	u, _ := s.store.User(local)
	if u.Speech != state.SpeechOnStage {
		s.mu.Unlock()
		return ErrBadSpeechState
	}
	s.store.ApplySpeechState(local, state.SpeechNone)
	s.mu.Unlock()

	if err := s.engine.StopLocalAudio(); err != nil {
		s.log.WithError(err).Warn("stopping local audio on speech exit")
	}
	if err := s.engine.StopLocalVideo(); err != nil {
		s.log.WithError(err).Warn("stopping local video on speech exit")
	}
	s.emit(func(sink EventSink) { sink.OnSpeechStateChanged(local, state.SpeechNone) })
	return s.channel.ExitSpeech()
}

// -----------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------

// SendChatMessage sends a text message to the room. Members are refused
// while the chat room is muted; the master is not.
func (s *Session) SendChatMessage(message string) error {
	if message == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	if !s.entered {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	muted := s.store.Room().ChatMuted && !s.store.IsMaster(s.store.LocalUserID())
	s.mu.Unlock()
	if muted {
		return ErrChatMuted
	}
	return s.channel.SendChatMessage(message)
}

// SendCustomMessage sends an application-defined payload to the room. Not
// subject to chat muting.
func (s *Session) SendCustomMessage(message string) error {
	if message == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	entered := s.entered
	s.mu.Unlock()
	if !entered {
		return ErrNotInRoom
	}
	return s.channel.SendCustomMessage(message)
}

// -----------------------------------------------------------------------
// Local media controls, forwarded to the engine
// -----------------------------------------------------------------------

// StartCameraPreview starts local camera capture and publishing.
func (s *Session) StartCameraPreview() error { return s.engine.StartLocalVideo() }

// StopCameraPreview stops local camera capture.
func (s *Session) StopCameraPreview() error { return s.engine.StopLocalVideo() }

// StartLocalAudio starts microphone capture at the given quality.
func (s *Session) StartLocalAudio(quality media.AudioQuality) error {
	return s.engine.StartLocalAudio(quality)
}

// StopLocalAudio stops microphone capture.
func (s *Session) StopLocalAudio() error { return s.engine.StopLocalAudio() }

// MuteLocalCamera pauses or resumes the published video stream.
func (s *Session) MuteLocalCamera(mute bool) error { return s.engine.MuteLocalVideo(mute) }

// MuteLocalMicrophone pauses or resumes the published audio stream.
func (s *Session) MuteLocalMicrophone(mute bool) error { return s.engine.MuteLocalAudio(mute) }

// StartRemoteView subscribes to a remote user's stream.
func (s *Session) StartRemoteView(userID string, stream media.StreamType) error {
	return s.engine.StartRemoteView(userID, stream)
}

// StopRemoteView unsubscribes from a remote user's stream.
func (s *Session) StopRemoteView(userID string, stream media.StreamType) error {
	return s.engine.StopRemoteView(userID, stream)
}

// SetVideoMirror toggles horizontal mirroring of the local preview.
func (s *Session) SetVideoMirror(mirror bool) error { return s.engine.SetVideoMirror(mirror) }

// SetQosPreference selects clarity versus smoothness under congestion.
func (s *Session) SetQosPreference(pref media.QosPreference) error {
	return s.engine.SetQosPreference(pref)
}

// SetBeautyStyle configures the beauty filter on local video.
func (s *Session) SetBeautyStyle(params media.BeautyParams) error {
	return s.engine.SetBeautyStyle(params)
}

// EnableAINoiseReduction toggles noise suppression on captured audio.
func (s *Session) EnableAINoiseReduction(enable bool) error {
	return s.engine.EnableAINoiseReduction(enable)
}

// StartCloudRecord starts server-side recording of the room.
func (s *Session) StartCloudRecord() error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.engine.StartCloudRecord()
}

// StopCloudRecord stops server-side recording.
func (s *Session) StopCloudRecord() error {
	if err := s.requireMaster(""); err != nil {
		return err
	}
	return s.engine.StopCloudRecord()
}
