package state

// SpeechMode is the room-wide policy governing whether members may transmit
// audio/video freely or only after being granted the floor.
type SpeechMode uint8

const (
	// SpeechModeFree lets every member speak without prior approval.
	SpeechModeFree SpeechMode = iota
	// SpeechModeApply requires members to apply for or be invited to
	// the stage before transmitting.
	SpeechModeApply
)

// String returns a human-readable speech mode name.
func (m SpeechMode) String() string {
	switch m {
	case SpeechModeFree:
		return "free"
	case SpeechModeApply:
		return "apply"
	default:
		return "unknown"
	}
}

// SpeechState tracks where a member currently sits in the speech
// permission workflow. Applying and Invited are independent entry paths
// that both land on OnStage when granted.
type SpeechState uint8

const (
	// SpeechNone means the member is neither applying nor on stage.
	SpeechNone SpeechState = iota
	// SpeechApplying means the member has asked the master for the floor.
	SpeechApplying
	// SpeechInvited means the master has invited the member to speak.
	SpeechInvited
	// SpeechOnStage means the member is currently permitted to transmit.
	SpeechOnStage
)

// String returns a human-readable speech state name.
func (s SpeechState) String() string {
	switch s {
	case SpeechNone:
		return "none"
	case SpeechApplying:
		return "applying"
	case SpeechInvited:
		return "invited"
	case SpeechOnStage:
		return "on-stage"
	default:
		return "unknown"
	}
}

// Device identifies which capture device a mute command addresses.
type Device uint8

const (
	// DeviceMicrophone addresses the audio capture device.
	DeviceMicrophone Device = iota
	// DeviceCamera addresses the video capture device.
	DeviceCamera
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case DeviceMicrophone:
		return "microphone"
	case DeviceCamera:
		return "camera"
	default:
		return "unknown"
	}
}

// StreamKind identifies which of a member's streams an availability flag
// refers to.
type StreamKind uint8

const (
	// StreamVideo is the member's camera stream.
	StreamVideo StreamKind = iota
	// StreamAudio is the member's microphone stream.
	StreamAudio
	// StreamScreen is the member's screen-share stream.
	StreamScreen
)

// String returns a human-readable stream kind name.
func (k StreamKind) String() string {
	switch k {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	case StreamScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// RoomInfo holds the room-wide attributes shared by every member.
type RoomInfo struct {
	RoomID                  string
	SpeechMode              SpeechMode
	MasterID                string
	ChatMuted               bool
	ApplicationsForbidden   bool
	RollCallActive          bool
	AllMicrophonesMuted     bool
	AllCamerasMuted         bool
}

// UserInfo holds the per-member view the coordinator maintains.
type UserInfo struct {
	UserID    string
	Name      string
	AvatarURL string

	// Stream availability as reported by the media channel.
	HasVideoStream  bool
	HasAudioStream  bool
	HasScreenStream bool

	// Mute flags imposed by the room master via signaling.
	MicMutedByMaster    bool
	CameraMutedByMaster bool

	Speech SpeechState
}
