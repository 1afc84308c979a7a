package wschannel

import (
	"encoding/json"

	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

// envelope is the frame exchanged with the signaling server: a type tag
// and a type-specific JSON payload.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client-to-server frame types.
const (
	msgLogin         = "login"
	msgLogout        = "logout"
	msgSetProfile    = "set_profile"
	msgCreateRoom    = "create_room"
	msgDestroyRoom   = "destroy_room"
	msgEnterRoom     = "enter_room"
	msgExitRoom      = "exit_room"
	msgTransfer      = "transfer_master"
	msgChat          = "chat"
	msgCustom        = "custom"
	msgCommand       = "command"
	msgMuteChat      = "mute_chat"
	msgMuteAll       = "mute_all"
	msgRollStart     = "roll_start"
	msgRollStop      = "roll_stop"
	msgForbidApplies = "forbid_applications"
	msgExitSpeech    = "exit_speech"
)

// Server-to-client frame types.
const (
	msgLoginResult    = "login_result"
	msgLogoutResult   = "logout_result"
	msgErr            = "error"
	msgRoomCreated    = "room_created"
	msgRoomDestroyed  = "room_destroyed"
	msgRoomEntered    = "room_entered"
	msgRoomExited     = "room_exited"
	msgCommandResult  = "command_result"
	msgUserEntered    = "user_entered"
	msgUserExited     = "user_exited"
	msgMasterChanged  = "master_changed"
	msgMemberList     = "member_list"
	msgRoomInfo       = "room_info"
	msgChatPush       = "chat_push"
	msgCustomPush     = "custom_push"
	msgChatMuted      = "chat_muted"
	msgInvitation     = "invitation"
	msgInviteCancel   = "invitation_cancelled"
	msgInviteReply    = "invitation_reply"
	msgApplication    = "application"
	msgApplyCancel    = "application_cancelled"
	msgApplyReply     = "application_reply"
	msgApplyForbidden = "applications_forbidden"
	msgOrderedExit    = "ordered_exit_speech"
	msgSpeechEnded    = "speech_ended"
	msgRollStarted    = "roll_started"
	msgRollStopped    = "roll_stopped"
	msgRollReplied    = "roll_replied"
	msgUserMuted      = "user_muted"
	msgAllMuted       = "all_muted"
)

type loginPayload struct {
	AppID   int    `json:"app_id"`
	UserID  string `json:"user_id"`
	UserSig string `json:"user_sig"`
}

type profilePayload struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type roomPayload struct {
	RoomID     string `json:"room_id"`
	SpeechMode string `json:"speech_mode,omitempty"`
}

type textPayload struct {
	Message string `json:"message"`
}

type userPayload struct {
	UserID string `json:"user_id"`
}

type boolPayload struct {
	Value bool `json:"value"`
}

type mutePayload struct {
	UserID string `json:"user_id,omitempty"`
	Device string `json:"device"`
	Mute   bool   `json:"mute"`
}

// commandPayload is the generic room-control command frame; the server
// acknowledges it with a command_result carrying the same cmd and target.
type commandPayload struct {
	Cmd    string `json:"cmd"`
	Target string `json:"target,omitempty"`
	Agree  bool   `json:"agree,omitempty"`
	Device string `json:"device,omitempty"`
	Mute   bool   `json:"mute,omitempty"`
}

type resultPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type commandResultPayload struct {
	Cmd     string `json:"cmd"`
	Target  string `json:"target,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type memberPayload struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type memberListPayload struct {
	Members []memberPayload `json:"members"`
}

type roomInfoPayload struct {
	RoomID                string `json:"room_id"`
	SpeechMode            string `json:"speech_mode"`
	MasterID              string `json:"master_id"`
	ChatMuted             bool   `json:"chat_muted"`
	ApplicationsForbidden bool   `json:"applications_forbidden"`
	RollCallActive        bool   `json:"roll_call_active"`
}

type chatPushPayload struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type replyPayload struct {
	UserID string `json:"user_id,omitempty"`
	Agree  bool   `json:"agree"`
}

type exitPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// Command names on the wire.
var cmdNames = map[signal.Command]string{
	signal.CmdMuteMicrophone:    "mute_microphone",
	signal.CmdMuteCamera:        "mute_camera",
	signal.CmdKick:              "kick",
	signal.CmdReplyRollCall:     "reply_roll_call",
	signal.CmdSendInvitation:    "send_invitation",
	signal.CmdCancelInvitation:  "cancel_invitation",
	signal.CmdReplyInvitation:   "reply_invitation",
	signal.CmdSendApplication:   "send_application",
	signal.CmdCancelApplication: "cancel_application",
	signal.CmdReplyApplication:  "reply_application",
	signal.CmdSendOffSpeaker:    "send_off_speaker",
	signal.CmdSendOffAll:        "send_off_all",
}

var cmdByName = func() map[string]signal.Command {
	m := make(map[string]signal.Command, len(cmdNames))
	for cmd, name := range cmdNames {
		m[name] = cmd
	}
	return m
}()

func deviceName(d state.Device) string {
	if d == state.DeviceCamera {
		return "camera"
	}
	return "microphone"
}

func deviceByName(name string) state.Device {
	if name == "camera" {
		return state.DeviceCamera
	}
	return state.DeviceMicrophone
}

func speechModeName(m state.SpeechMode) string {
	if m == state.SpeechModeFree {
		return "free"
	}
	return "apply"
}

func speechModeByName(name string) state.SpeechMode {
	if name == "free" {
		return state.SpeechModeFree
	}
	return state.SpeechModeApply
}

func exitReasonByName(name string) signal.ExitReason {
	switch name {
	case "kicked":
		return signal.ExitKicked
	case "room_destroyed":
		return signal.ExitRoomDestroyed
	default:
		return signal.ExitNormal
	}
}
