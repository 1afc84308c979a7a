// Package media defines the boundary to the audio/video transport engine.
//
// The engine is a callback-emitting black box: the coordinator issues
// commands through the Engine interface and consumes asynchronous
// notifications through EventHandler. Nothing in this package captures,
// encodes or transmits media; implementations wrap a real transport SDK,
// and NullEngine provides a no-media stand-in for signaling-only sessions
// and tests.
package media

// StreamType distinguishes a remote user's camera stream from their
// screen-share stream when starting or stopping a view.
type StreamType uint8

const (
	// StreamCamera is the user's primary camera stream.
	StreamCamera StreamType = iota
	// StreamScreen is the user's screen-share stream.
	StreamScreen
)

// String returns a human-readable stream type name.
func (t StreamType) String() string {
	switch t {
	case StreamCamera:
		return "camera"
	case StreamScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// QosPreference selects the engine's trade-off under poor network
// conditions.
type QosPreference uint8

const (
	// QosPreferClear keeps the picture sharp at the cost of smoothness.
	QosPreferClear QosPreference = iota
	// QosPreferSmooth keeps playback fluent at the cost of sharpness.
	QosPreferSmooth
)

// AudioQuality selects the capture profile for the local microphone.
type AudioQuality uint8

const (
	// AudioQualityDefault is the engine's standard voice profile.
	AudioQualityDefault AudioQuality = iota
	// AudioQualitySpeech favours intelligibility on unstable networks.
	AudioQualitySpeech
	// AudioQualityMusic favours fidelity for music and effects.
	AudioQualityMusic
)

// BeautyStyle selects the engine's skin-smoothing algorithm.
type BeautyStyle uint8

const (
	// BeautySmooth is the stronger, show-oriented style.
	BeautySmooth BeautyStyle = iota
	// BeautyNature preserves more facial detail.
	BeautyNature
)

// BeautyParams carries the video filter levels, each 0 (off) to 9.
type BeautyParams struct {
	Style     BeautyStyle
	Beauty    uint8
	Whiteness uint8
	Ruddiness uint8
}

// RoomParams carries everything the engine needs to join a room once the
// signaling join has succeeded.
type RoomParams struct {
	AppID   int
	RoomID  string
	UserID  string
	UserSig string
}

// VolumeInfo is one user's speaking volume sample, 0-100.
type VolumeInfo struct {
	UserID string
	Volume int
}

// QualityInfo is one network quality sample; higher Quality is worse,
// matching the transport engine's convention (0 unknown, 1 excellent,
// 6 down).
type QualityInfo struct {
	UserID  string
	Quality int
}

// Statistics is the engine's periodic aggregate report. Reported verbatim
// to the application; the coordinator computes nothing from it.
type Statistics struct {
	UpLossPercent    int
	DownLossPercent  int
	AppCPUPercent    int
	SystemCPUPercent int
	RTTMillis        int
	SentBytes        uint64
	ReceivedBytes    uint64
}

// Engine is the command surface of the media transport. Every command is
// non-blocking; outcomes and state changes arrive through EventHandler on
// the engine's own delivery context.
type Engine interface {
	// SetHandler registers the consumer of the engine's notifications.
	// Must be called before JoinRoom.
	SetHandler(h EventHandler)

	// JoinRoom asynchronously connects to the room's media session.
	// The result arrives via OnRoomEntered.
	JoinRoom(params RoomParams) error
	// LeaveRoom asynchronously disconnects from the media session.
	// Confirmation arrives via OnRoomExited.
	LeaveRoom() error

	// StartLocalVideo begins camera capture and publishing.
	StartLocalVideo() error
	// StopLocalVideo stops camera capture and publishing.
	StopLocalVideo() error
	// StartLocalAudio begins microphone capture with the given profile.
	StartLocalAudio(quality AudioQuality) error
	// StopLocalAudio stops microphone capture.
	StopLocalAudio() error
	// MuteLocalVideo pauses publishing without stopping capture.
	MuteLocalVideo(mute bool) error
	// MuteLocalAudio pauses publishing without stopping capture.
	MuteLocalAudio(mute bool) error

	// StartRemoteView begins rendering a remote user's stream.
	StartRemoteView(userID string, stream StreamType) error
	// StopRemoteView stops rendering a remote user's stream.
	StopRemoteView(userID string, stream StreamType) error

	// SetQosPreference sets the weak-network trade-off.
	SetQosPreference(pref QosPreference) error
	// SetVideoMirror toggles horizontal mirroring of the local preview.
	SetVideoMirror(mirror bool) error
	// SetBeautyStyle applies video filter parameters.
	SetBeautyStyle(params BeautyParams) error
	// EnableAINoiseReduction toggles the noise suppression stage.
	EnableAINoiseReduction(enable bool) error

	// StartCloudRecord asks the backend to begin server-side recording.
	StartCloudRecord() error
	// StopCloudRecord stops server-side recording.
	StopCloudRecord() error
}

// EventHandler consumes the engine's asynchronous notifications. The
// engine invokes these on its own delivery context, which may run
// concurrently with signaling events and caller commands; implementations
// serialize internally.
type EventHandler interface {
	// OnRoomEntered reports the media join result: elapsed milliseconds
	// when non-negative, an error code when negative.
	OnRoomEntered(result int)
	// OnRoomExited reports the media session ended, with a reason code.
	OnRoomExited(reason int)

	// OnRemoteUserEntered reports a remote user joined the media session.
	OnRemoteUserEntered(userID string)
	// OnRemoteUserLeft reports a remote user left, with a reason code.
	OnRemoteUserLeft(userID string, reason int)

	// OnVideoAvailable reports a remote camera stream toggled.
	OnVideoAvailable(userID string, available bool)
	// OnAudioAvailable reports a remote audio stream toggled.
	OnAudioAvailable(userID string, available bool)
	// OnScreenAvailable reports a remote screen-share stream toggled.
	OnScreenAvailable(userID string, available bool)
	// OnFirstVideoFrame reports the first decoded frame of a stream.
	OnFirstVideoFrame(userID string, stream StreamType, width, height int)

	// OnUserVolumes reports periodic speaking volume samples.
	OnUserVolumes(volumes []VolumeInfo, totalVolume int)
	// OnNetworkQuality reports periodic network quality samples.
	OnNetworkQuality(local QualityInfo, remote []QualityInfo)
	// OnStatistics reports the periodic aggregate statistics.
	OnStatistics(stats Statistics)

	// OnWarning reports a recoverable engine condition.
	OnWarning(code int, message string)
	// OnError reports an engine error. Errors never terminate the
	// session by themselves.
	OnError(code int, message string)
	// OnLog passes through an engine log line.
	OnLog(line string)
}
