package media

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// NullEngine is an Engine that carries no media at all. Join and leave are
// acknowledged asynchronously on a private goroutine, mimicking a real
// engine's delivery context, and every other command succeeds without
// side effects. It backs signaling-only sessions and tests.
type NullEngine struct {
	mu      sync.Mutex
	handler EventHandler
	joined  bool
}

// NewNullEngine creates a NullEngine.
func NewNullEngine() *NullEngine {
	return &NullEngine{}
}

// SetHandler registers the notification consumer.
func (e *NullEngine) SetHandler(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// JoinRoom acknowledges the join asynchronously with a zero-cost result.
func (e *NullEngine) JoinRoom(params RoomParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handler == nil {
		return errors.New("no event handler registered")
	}
	if e.joined {
		return errors.New("already joined")
	}
	e.joined = true
	logrus.WithFields(logrus.Fields{
		"room_id": params.RoomID,
		"user_id": params.UserID,
	}).Debug("null media engine joining room")
	h := e.handler
	go h.OnRoomEntered(0)
	return nil
}

// LeaveRoom acknowledges the leave asynchronously.
func (e *NullEngine) LeaveRoom() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.joined {
		return nil
	}
	e.joined = false
	h := e.handler
	if h != nil {
		go h.OnRoomExited(0)
	}
	return nil
}

// StartLocalVideo is a no-op.
func (e *NullEngine) StartLocalVideo() error { return nil }

// StopLocalVideo is a no-op.
func (e *NullEngine) StopLocalVideo() error { return nil }

// StartLocalAudio is a no-op.
func (e *NullEngine) StartLocalAudio(quality AudioQuality) error { return nil }

// StopLocalAudio is a no-op.
func (e *NullEngine) StopLocalAudio() error { return nil }

// MuteLocalVideo is a no-op.
func (e *NullEngine) MuteLocalVideo(mute bool) error { return nil }

// MuteLocalAudio is a no-op.
func (e *NullEngine) MuteLocalAudio(mute bool) error { return nil }

// StartRemoteView is a no-op.
func (e *NullEngine) StartRemoteView(userID string, stream StreamType) error { return nil }

// StopRemoteView is a no-op.
func (e *NullEngine) StopRemoteView(userID string, stream StreamType) error { return nil }

// SetQosPreference is a no-op.
func (e *NullEngine) SetQosPreference(pref QosPreference) error { return nil }

// SetVideoMirror is a no-op.
func (e *NullEngine) SetVideoMirror(mirror bool) error { return nil }

// SetBeautyStyle is a no-op.
func (e *NullEngine) SetBeautyStyle(params BeautyParams) error { return nil }

// EnableAINoiseReduction is a no-op.
func (e *NullEngine) EnableAINoiseReduction(enable bool) error { return nil }

// StartCloudRecord is a no-op.
func (e *NullEngine) StartCloudRecord() error { return nil }

// StopCloudRecord is a no-op.
func (e *NullEngine) StopCloudRecord() error { return nil }
