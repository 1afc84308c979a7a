package roomcore

import (
	"github.com/opd-ai/roomcore/media"
	"github.com/opd-ai/roomcore/pending"
	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

// Outcome carries the terminal result of a control operation to its
// completion callback.
type Outcome = pending.Outcome

// CompletionFunc receives a control operation's terminal outcome. It is
// always invoked on the session's dispatch goroutine, never inline.
type CompletionFunc = pending.CompletionFunc

// EventSink is the single listener interface through which the session
// delivers all derived, deduplicated notifications to the owning
// application. Every method is invoked on one dispatch goroutine, in the
// order the underlying events were applied to the room state, so sink
// implementations need no locking of their own and may freely call back
// into the Session.
//
// Applications embed NullEventSink and override the methods they care
// about.
type EventSink interface {
	// OnError reports a backend error not tied to a pending operation.
	OnError(code int, message string)
	// OnWarning reports a recoverable backend condition.
	OnWarning(code int, message string)

	// OnRoomEntered reports the two-phase room entry completed.
	OnRoomEntered(room state.RoomInfo)
	// OnRoomExited reports the local user left the room, voluntarily or
	// otherwise.
	OnRoomExited(reason signal.ExitReason, message string)
	// OnRoomInfoChanged reports the room attributes changed.
	OnRoomInfoChanged(room state.RoomInfo)

	// OnUserJoined reports a member was added to the roster.
	OnUserJoined(user state.UserInfo)
	// OnUserLeft reports a member was removed from the roster.
	OnUserLeft(user state.UserInfo)
	// OnMasterChanged reports room ownership moved to another member.
	OnMasterChanged(userID string)

	// OnStreamAvailable reports a member's stream availability flipped.
	OnStreamAvailable(userID string, kind state.StreamKind, available bool)
	// OnFirstVideoFrame reports the first decoded frame of a stream.
	OnFirstVideoFrame(userID string, stream media.StreamType, width, height int)
	// OnUserVolumes reports periodic speaking volume samples.
	OnUserVolumes(volumes []media.VolumeInfo, total int)
	// OnNetworkQuality reports periodic network quality samples.
	OnNetworkQuality(local media.QualityInfo, remote []media.QualityInfo)
	// OnStatistics reports the engine's periodic aggregate statistics.
	OnStatistics(stats media.Statistics)

	// OnChatMessage reports a chat message from a member.
	OnChatMessage(userID, message string)
	// OnCustomMessage reports an application-defined payload.
	OnCustomMessage(userID, message string)
	// OnChatRoomMuted reports the room-wide chat mute toggled.
	OnChatRoomMuted(muted bool)

	// OnSpeechStateChanged reports a member moved through the speech
	// permission workflow.
	OnSpeechStateChanged(userID string, speech state.SpeechState)
	// OnReceiveInvitation reports the master invited the local member to
	// the stage.
	OnReceiveInvitation()
	// OnInvitationCancelled reports the master withdrew the invitation.
	OnInvitationCancelled()
	// OnReceiveApplication reports a member applied to speak.
	OnReceiveApplication(userID string)
	// OnApplicationCancelled reports a member withdrew their application.
	OnApplicationCancelled(userID string)
	// OnApplicationsForbidden reports the master toggled the block on
	// new speech applications.
	OnApplicationsForbidden(forbidden bool)
	// OnOrderedToExitSpeech reports the master sent the local member off
	// the stage.
	OnOrderedToExitSpeech()

	// OnRollCallStarted reports an attendance check began.
	OnRollCallStarted()
	// OnRollCallStopped reports the attendance check ended.
	OnRollCallStopped()
	// OnRollCallReplied reports a member recorded attendance.
	OnRollCallReplied(userID string)

	// OnUserMuted reports the master muted or unmuted one member.
	OnUserMuted(userID string, device state.Device, muted bool)
	// OnAllMuted reports a room-wide device mute broadcast.
	OnAllMuted(device state.Device, muted bool)
}

// NullEventSink is an EventSink that ignores every notification. Embed it
// to implement only the callbacks of interest.
type NullEventSink struct{}

func (NullEventSink) OnError(code int, message string)   {}
func (NullEventSink) OnWarning(code int, message string) {}

func (NullEventSink) OnRoomEntered(room state.RoomInfo)                          {}
func (NullEventSink) OnRoomExited(reason signal.ExitReason, message string)      {}
func (NullEventSink) OnRoomInfoChanged(room state.RoomInfo)                      {}
func (NullEventSink) OnUserJoined(user state.UserInfo)                           {}
func (NullEventSink) OnUserLeft(user state.UserInfo)                             {}
func (NullEventSink) OnMasterChanged(userID string)                              {}
func (NullEventSink) OnStreamAvailable(userID string, kind state.StreamKind, available bool) {
}
func (NullEventSink) OnFirstVideoFrame(userID string, stream media.StreamType, width, height int) {
}
func (NullEventSink) OnUserVolumes(volumes []media.VolumeInfo, total int)                   {}
func (NullEventSink) OnNetworkQuality(local media.QualityInfo, remote []media.QualityInfo) {}
func (NullEventSink) OnStatistics(stats media.Statistics)                                  {}
func (NullEventSink) OnChatMessage(userID, message string)                                 {}
func (NullEventSink) OnCustomMessage(userID, message string)                               {}
func (NullEventSink) OnChatRoomMuted(muted bool)                                           {}
func (NullEventSink) OnSpeechStateChanged(userID string, speech state.SpeechState)         {}
func (NullEventSink) OnReceiveInvitation()                                                 {}
func (NullEventSink) OnInvitationCancelled()                                               {}
func (NullEventSink) OnReceiveApplication(userID string)                                   {}
func (NullEventSink) OnApplicationCancelled(userID string)                                 {}
func (NullEventSink) OnApplicationsForbidden(forbidden bool)                               {}
func (NullEventSink) OnOrderedToExitSpeech()                                               {}
func (NullEventSink) OnRollCallStarted()                                                   {}
func (NullEventSink) OnRollCallStopped()                                                   {}
func (NullEventSink) OnRollCallReplied(userID string)                                      {}
func (NullEventSink) OnUserMuted(userID string, device state.Device, muted bool)           {}
func (NullEventSink) OnAllMuted(device state.Device, muted bool)                           {}
