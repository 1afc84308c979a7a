// Package signal defines the boundary to the instant-messaging/signaling
// channel.
//
// The channel is a callback-emitting black box: the coordinator issues
// commands through the Channel interface and consumes replies and pushed
// notifications through EventHandler. Message delivery and room-roster
// persistence live behind the channel; this package only names the
// commands, the reply events and the push events the coordinator needs.
// The wschannel subpackage provides a reference implementation over a
// websocket JSON protocol.
package signal

import "github.com/opd-ai/roomcore/state"

// Command identifies a command class for generic reply events. Commands
// with richer semantics (lifecycle, invitations, applications) have
// dedicated reply events instead.
type Command uint8

const (
	// CmdMuteMicrophone is a per-user microphone mute command.
	CmdMuteMicrophone Command = iota
	// CmdMuteCamera is a per-user camera mute command.
	CmdMuteCamera
	// CmdKick is a kick-user command.
	CmdKick
	// CmdReplyRollCall is a member's roll-call reply.
	CmdReplyRollCall
	// CmdSendInvitation is the master's speech invitation.
	CmdSendInvitation
	// CmdCancelInvitation withdraws a speech invitation.
	CmdCancelInvitation
	// CmdReplyInvitation is a member's answer to an invitation.
	CmdReplyInvitation
	// CmdSendApplication is a member's speech application.
	CmdSendApplication
	// CmdCancelApplication withdraws a speech application.
	CmdCancelApplication
	// CmdReplyApplication is the master's answer to an application.
	CmdReplyApplication
	// CmdSendOffSpeaker sends one speaker off the stage.
	CmdSendOffSpeaker
	// CmdSendOffAll sends every speaker off the stage.
	CmdSendOffAll
)

// String returns a human-readable command name.
func (c Command) String() string {
	names := [...]string{
		"mute-microphone", "mute-camera", "kick", "reply-roll-call",
		"send-invitation", "cancel-invitation", "reply-invitation",
		"send-application", "cancel-application", "reply-application",
		"send-off-speaker", "send-off-all",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

// ExitReason classifies why the local user left the room.
type ExitReason uint8

const (
	// ExitNormal is a self-initiated exit.
	ExitNormal ExitReason = iota
	// ExitKicked means the master removed the local user.
	ExitKicked
	// ExitRoomDestroyed means the master dissolved the room.
	ExitRoomDestroyed
)

// String returns a human-readable exit reason.
func (r ExitReason) String() string {
	switch r {
	case ExitNormal:
		return "normal"
	case ExitKicked:
		return "kicked"
	case ExitRoomDestroyed:
		return "room-destroyed"
	default:
		return "unknown"
	}
}

// MemberInfo is a roster entry as known to the signaling backend.
type MemberInfo struct {
	UserID    string
	Name      string
	AvatarURL string
}

// RoomMeta is the room description as persisted by the signaling backend.
type RoomMeta struct {
	RoomID                string
	SpeechMode            state.SpeechMode
	MasterID              string
	ChatMuted             bool
	ApplicationsForbidden bool
	RollCallActive        bool
}

// Credentials identify the local user to the signaling backend.
type Credentials struct {
	AppID   int
	UserID  string
	UserSig string
}

// Channel is the command surface of the signaling backend. Commands return
// a synchronous error only when the command could not be issued at all;
// semantic outcomes arrive through EventHandler on the channel's own
// delivery context.
type Channel interface {
	// SetHandler registers the consumer of the channel's events. Must be
	// called before Login.
	SetHandler(h EventHandler)

	// Login authenticates with the signaling backend. Reply: OnLogin.
	Login(creds Credentials) error
	// Logout ends the authenticated session. Reply: OnLogout.
	Logout() error
	// SetProfile publishes the local display name and avatar.
	SetProfile(name, avatarURL string) error

	// CreateRoom creates and joins a room's control channel as master.
	// Reply: OnRoomCreated.
	CreateRoom(roomID string, mode state.SpeechMode) error
	// DestroyRoom dissolves the room. Reply: OnRoomDestroyed; members
	// receive OnRoomExited with ExitRoomDestroyed.
	DestroyRoom() error
	// EnterRoom joins a room's control channel. Reply: OnRoomEntered.
	EnterRoom(roomID string) error
	// ExitRoom leaves the control channel. Reply: OnRoomExited.
	ExitRoom() error
	// TransferMaster hands room ownership to another member. The effect
	// is confirmed only by the OnMasterChanged push.
	TransferMaster(userID string) error

	// SendChatMessage broadcasts a chat message to the room.
	SendChatMessage(message string) error
	// SendCustomMessage broadcasts an application-defined payload.
	SendCustomMessage(message string) error

	// MuteUser asks the backend to mute one member's device.
	// Reply: OnCommandResult(CmdMuteMicrophone|CmdMuteCamera).
	MuteUser(userID string, device state.Device, mute bool) error
	// MuteAll broadcasts a room-wide device mute. No per-command reply;
	// the effect arrives as OnAllMuted on every member.
	MuteAll(device state.Device, mute bool) error
	// MuteChatRoom toggles the room-wide chat mute.
	MuteChatRoom(mute bool) error
	// Kick removes a member from the room. Reply: OnCommandResult(CmdKick).
	Kick(userID string) error

	// StartRollCall begins a master-initiated attendance check.
	StartRollCall() error
	// StopRollCall ends the attendance check.
	StopRollCall() error
	// ReplyRollCall records the local member's attendance.
	// Reply: OnCommandResult(CmdReplyRollCall).
	ReplyRollCall() error

	// SendInvitation invites a member to the stage. The semantic answer
	// arrives as OnInvitationReply; delivery failure as
	// OnCommandResult(CmdSendInvitation).
	SendInvitation(userID string) error
	// CancelInvitation withdraws a pending invitation.
	CancelInvitation(userID string) error
	// ReplyInvitation answers the master's invitation.
	ReplyInvitation(agree bool) error

	// SendApplication asks the master for the stage. The semantic answer
	// arrives as OnApplicationReply; delivery failure as
	// OnCommandResult(CmdSendApplication).
	SendApplication() error
	// CancelApplication withdraws a pending application.
	CancelApplication() error
	// ReplyApplication answers a member's application.
	ReplyApplication(userID string, agree bool) error
	// ForbidApplications blocks or unblocks new speech applications.
	ForbidApplications(forbid bool) error

	// SendOffSpeaker orders one speaker off the stage.
	SendOffSpeaker(userID string) error
	// SendOffAll orders every speaker off the stage.
	SendOffAll() error
	// ExitSpeech reports the local member left the stage voluntarily.
	ExitSpeech() error

	// Close releases the channel's resources.
	Close() error
}

// EventHandler consumes the channel's replies and pushed notifications.
// The channel invokes these on its own delivery context, which may run
// concurrently with media events and caller commands; implementations
// serialize internally.
type EventHandler interface {
	// OnLogin is the reply to Login.
	OnLogin(code int, message string)
	// OnLogout is the reply to Logout.
	OnLogout(code int, message string)
	// OnError reports a channel error unrelated to a specific command.
	OnError(code int, message string)

	// OnRoomCreated is the reply to CreateRoom.
	OnRoomCreated(code int, message string)
	// OnRoomDestroyed is the reply to DestroyRoom.
	OnRoomDestroyed(code int, message string)
	// OnRoomEntered is the reply to EnterRoom.
	OnRoomEntered(code int, message string)
	// OnRoomExited is the reply to ExitRoom, and also the push a member
	// receives when kicked or when the room is dissolved.
	OnRoomExited(reason ExitReason, message string)

	// OnCommandResult is the generic delivery reply for the command
	// classes without dedicated events. A zero code means delivered.
	OnCommandResult(cmd Command, target string, code int, message string)

	// OnUserEntered reports a member joined the room.
	OnUserEntered(member MemberInfo)
	// OnUserExited reports a member left the room.
	OnUserExited(userID string)
	// OnMasterChanged reports room ownership moved to another member.
	OnMasterChanged(userID string)
	// OnMemberList delivers the full roster, typically right after entry.
	OnMemberList(members []MemberInfo)
	// OnRoomInfo delivers the full room description.
	OnRoomInfo(meta RoomMeta)

	// OnChatMessage reports a chat message from a member.
	OnChatMessage(userID, message string)
	// OnCustomMessage reports an application-defined payload.
	OnCustomMessage(userID, message string)
	// OnChatRoomMuted reports the room-wide chat mute toggled.
	OnChatRoomMuted(muted bool)

	// OnReceiveInvitation reports the master invited the local member.
	OnReceiveInvitation()
	// OnInvitationCancelled reports the master withdrew the invitation.
	OnInvitationCancelled()
	// OnInvitationReply reports a member's answer to the local master's
	// invitation.
	OnInvitationReply(userID string, agree bool)

	// OnReceiveApplication reports a member applied to speak (master).
	OnReceiveApplication(userID string)
	// OnApplicationCancelled reports a member withdrew their application.
	OnApplicationCancelled(userID string)
	// OnApplicationReply reports the master's answer to the local
	// member's application.
	OnApplicationReply(agree bool)
	// OnApplicationsForbidden reports the master toggled the application
	// block.
	OnApplicationsForbidden(forbidden bool)

	// OnOrderedToExitSpeech reports the master sent the local member off
	// the stage.
	OnOrderedToExitSpeech()
	// OnSpeechStateEnded reports a member left the stage.
	OnSpeechStateEnded(userID string)

	// OnRollCallStarted reports the master began an attendance check.
	OnRollCallStarted()
	// OnRollCallStopped reports the attendance check ended.
	OnRollCallStopped()
	// OnRollCallReplied reports a member recorded attendance (master).
	OnRollCallReplied(userID string)

	// OnUserMuted reports the master muted or unmuted one member.
	OnUserMuted(userID string, device state.Device, muted bool)
	// OnAllMuted reports a room-wide device mute broadcast.
	OnAllMuted(device state.Device, muted bool)
}
