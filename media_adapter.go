package roomcore

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomcore/media"
	"github.com/opd-ai/roomcore/pending"
	"github.com/opd-ai/roomcore/state"
)

// mediaAdapter translates engine events into session state changes and
// sink notifications. The engine delivers these on its own goroutines;
// every mutation goes through the session lock and every notification
// through the dispatcher.
//
// The media channel is authoritative for stream availability; the
// signaling channel is authoritative for membership. A user seen on the
// media channel before their signaling join gets a provisional roster
// entry so stream flags have somewhere to land.
type mediaAdapter struct {
	s *Session
}

var _ media.EventHandler = (*mediaAdapter)(nil)

func (a *mediaAdapter) OnRoomEntered(result int) {
	a.s.handleMediaJoin(result)
}

func (a *mediaAdapter) OnRoomExited(reason int) {
	s := a.s
	s.mu.Lock()
	entered := s.entered
	exiting := s.exiting
	s.mu.Unlock()

	if !entered || exiting {
		// Expected during teardown, stale otherwise.
		return
	}
	// The media channel dropped while the signaling session is still
	// up. Membership stays; surface it and let the application decide
	// whether to leave.
	s.log.WithField("reason", reason).Warn("media channel exited while in room")
	s.emit(func(sink EventSink) { sink.OnWarning(reason, "media channel exited") })
}

func (a *mediaAdapter) OnRemoteUserEntered(userID string) {
	s := a.s
	s.mu.Lock()
	isNew := s.store.ApplyUserJoined(state.UserInfo{UserID: userID})
	var u state.UserInfo
	if isNew {
		u, _ = s.store.User(userID)
	}
	s.mu.Unlock()

	if isNew {
		s.log.WithField("user_id", userID).Debug("provisional roster entry from media channel")
		s.emit(func(sink EventSink) { sink.OnUserJoined(u) })
	}
}

func (a *mediaAdapter) OnRemoteUserLeft(userID string, reason int) {
	a.s.handleUserGone(userID, "media")
}

func (a *mediaAdapter) OnVideoAvailable(userID string, available bool) {
	a.streamAvailable(userID, state.StreamVideo, available)
}

func (a *mediaAdapter) OnAudioAvailable(userID string, available bool) {
	a.streamAvailable(userID, state.StreamAudio, available)
}

func (a *mediaAdapter) OnScreenAvailable(userID string, available bool) {
	a.streamAvailable(userID, state.StreamScreen, available)
}

func (a *mediaAdapter) streamAvailable(userID string, kind state.StreamKind, available bool) {
	s := a.s
	s.mu.Lock()
	changed := s.store.ApplyStreamAvailable(userID, kind, available)
	s.mu.Unlock()
	if changed {
		s.emit(func(sink EventSink) { sink.OnStreamAvailable(userID, kind, available) })
	}
}

func (a *mediaAdapter) OnFirstVideoFrame(userID string, stream media.StreamType, width, height int) {
	a.s.emit(func(sink EventSink) { sink.OnFirstVideoFrame(userID, stream, width, height) })
}

func (a *mediaAdapter) OnUserVolumes(volumes []media.VolumeInfo, totalVolume int) {
	a.s.emit(func(sink EventSink) { sink.OnUserVolumes(volumes, totalVolume) })
}

func (a *mediaAdapter) OnNetworkQuality(local media.QualityInfo, remote []media.QualityInfo) {
	a.s.emit(func(sink EventSink) { sink.OnNetworkQuality(local, remote) })
}

func (a *mediaAdapter) OnStatistics(stats media.Statistics) {
	a.s.emit(func(sink EventSink) { sink.OnStatistics(stats) })
}

func (a *mediaAdapter) OnWarning(code int, message string) {
	a.s.log.WithFields(logrus.Fields{
		"code":    code,
		"message": message,
	}).Warn("media engine warning")
	a.s.emit(func(sink EventSink) { sink.OnWarning(code, message) })
}

func (a *mediaAdapter) OnError(code int, message string) {
	a.s.log.WithFields(logrus.Fields{
		"code":    code,
		"message": message,
	}).Error("media engine error")
	a.s.emit(func(sink EventSink) { sink.OnError(code, message) })
}

func (a *mediaAdapter) OnLog(line string) {
	a.s.log.WithField("engine", line).Trace("media engine log")
}

// handleUserGone removes a user from the roster and fails any operation
// waiting on them. Both backends report departures; the first one to
// arrive wins and the second is a no-op.
func (s *Session) handleUserGone(userID, source string) {
	s.mu.Lock()
	u, changed := s.store.ApplyUserLeft(userID)
	s.mu.Unlock()
	if !changed {
		return
	}
	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"source":  source,
	}).Debug("user left room")
	s.ops.ResolveTarget(userID, Outcome{Status: pending.StatusTargetGone, Message: "user left the room"})
	s.emit(func(sink EventSink) { sink.OnUserLeft(u) })
}
