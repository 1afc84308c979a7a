package roomcore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/roomcore/media"
	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

// Wait bounds for assertions on asynchronous delivery.
const (
	waitLong = 2 * time.Second
	waitTick = 10 * time.Millisecond
)

// mockEngine records every call and lets tests drive the media handler
// by hand.
type mockEngine struct {
	mu      sync.Mutex
	handler media.EventHandler
	calls   []string
	errs    map[string]error

	// autoJoin delivers OnRoomEntered(joinResult) on its own goroutine
	// whenever JoinRoom is accepted, imitating a live engine.
	autoJoin   bool
	joinResult int
}

func newMockEngine() *mockEngine {
	return &mockEngine{errs: make(map[string]error), autoJoin: true}
}

func (e *mockEngine) record(call string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	return e.errs[call]
}

func (e *mockEngine) callCount(call string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (e *mockEngine) Handler() media.EventHandler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handler
}

func (e *mockEngine) SetHandler(h media.EventHandler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *mockEngine) JoinRoom(params media.RoomParams) error {
	if err := e.record("JoinRoom"); err != nil {
		return err
	}
	e.mu.Lock()
	auto, h, result := e.autoJoin, e.handler, e.joinResult
	e.mu.Unlock()
	if auto && h != nil {
		go h.OnRoomEntered(result)
	}
	return nil
}

func (e *mockEngine) LeaveRoom() error       { return e.record("LeaveRoom") }
func (e *mockEngine) StartLocalVideo() error { return e.record("StartLocalVideo") }
func (e *mockEngine) StopLocalVideo() error  { return e.record("StopLocalVideo") }
func (e *mockEngine) StopLocalAudio() error  { return e.record("StopLocalAudio") }
func (e *mockEngine) MuteLocalVideo(mute bool) error {
	return e.record(fmt.Sprintf("MuteLocalVideo(%v)", mute))
}
func (e *mockEngine) MuteLocalAudio(mute bool) error {
	return e.record(fmt.Sprintf("MuteLocalAudio(%v)", mute))
}
func (e *mockEngine) SetVideoMirror(mirror bool) error  { return e.record("SetVideoMirror") }
func (e *mockEngine) EnableAINoiseReduction(bool) error { return e.record("EnableAINoiseReduction") }
func (e *mockEngine) StartCloudRecord() error           { return e.record("StartCloudRecord") }
func (e *mockEngine) StopCloudRecord() error            { return e.record("StopCloudRecord") }

func (e *mockEngine) StartLocalAudio(quality media.AudioQuality) error {
	return e.record("StartLocalAudio")
}

func (e *mockEngine) StartRemoteView(userID string, stream media.StreamType) error {
	return e.record("StartRemoteView:" + userID)
}

func (e *mockEngine) StopRemoteView(userID string, stream media.StreamType) error {
	return e.record("StopRemoteView:" + userID)
}

func (e *mockEngine) SetQosPreference(pref media.QosPreference) error {
	return e.record("SetQosPreference")
}

func (e *mockEngine) SetBeautyStyle(params media.BeautyParams) error {
	return e.record("SetBeautyStyle")
}

// mockChannel records every signaling call. Replies are driven by the
// test through Handler(); nothing answers automatically.
type mockChannel struct {
	mu      sync.Mutex
	handler signal.EventHandler
	calls   []string
	errs    map[string]error
}

func newMockChannel() *mockChannel {
	return &mockChannel{errs: make(map[string]error)}
}

func (c *mockChannel) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.errs[call]
}

func (c *mockChannel) failCall(call string, err error) {
	c.mu.Lock()
	c.errs[call] = err
	c.mu.Unlock()
}

func (c *mockChannel) callCount(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, rec := range c.calls {
		if rec == call {
			n++
		}
	}
	return n
}

func (c *mockChannel) Handler() signal.EventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *mockChannel) SetHandler(h signal.EventHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *mockChannel) Login(creds signal.Credentials) error { return c.record("Login") }
func (c *mockChannel) Logout() error                        { return c.record("Logout") }
func (c *mockChannel) SetProfile(name, avatar string) error { return c.record("SetProfile") }
func (c *mockChannel) CreateRoom(roomID string, mode state.SpeechMode) error {
	return c.record("CreateRoom:" + roomID)
}
func (c *mockChannel) DestroyRoom() error                 { return c.record("DestroyRoom") }
func (c *mockChannel) EnterRoom(roomID string) error      { return c.record("EnterRoom:" + roomID) }
func (c *mockChannel) ExitRoom() error                    { return c.record("ExitRoom") }
func (c *mockChannel) TransferMaster(userID string) error { return c.record("TransferMaster:" + userID) }
func (c *mockChannel) SendChatMessage(msg string) error   { return c.record("SendChatMessage") }
func (c *mockChannel) SendCustomMessage(msg string) error { return c.record("SendCustomMessage") }
func (c *mockChannel) MuteChatRoom(mute bool) error       { return c.record("MuteChatRoom") }
func (c *mockChannel) Kick(userID string) error           { return c.record("Kick:" + userID) }
func (c *mockChannel) StartRollCall() error               { return c.record("StartRollCall") }
func (c *mockChannel) StopRollCall() error                { return c.record("StopRollCall") }
func (c *mockChannel) ReplyRollCall() error               { return c.record("ReplyRollCall") }
func (c *mockChannel) SendInvitation(userID string) error { return c.record("SendInvitation:" + userID) }
func (c *mockChannel) CancelInvitation(userID string) error {
	return c.record("CancelInvitation:" + userID)
}
func (c *mockChannel) ReplyInvitation(agree bool) error {
	return c.record(fmt.Sprintf("ReplyInvitation(%v)", agree))
}
func (c *mockChannel) SendApplication() error   { return c.record("SendApplication") }
func (c *mockChannel) CancelApplication() error { return c.record("CancelApplication") }
func (c *mockChannel) ReplyApplication(userID string, agree bool) error {
	return c.record(fmt.Sprintf("ReplyApplication:%s(%v)", userID, agree))
}
func (c *mockChannel) ForbidApplications(forbid bool) error { return c.record("ForbidApplications") }
func (c *mockChannel) SendOffSpeaker(userID string) error   { return c.record("SendOffSpeaker:" + userID) }
func (c *mockChannel) SendOffAll() error                    { return c.record("SendOffAll") }
func (c *mockChannel) ExitSpeech() error                    { return c.record("ExitSpeech") }
func (c *mockChannel) Close() error                         { return c.record("Close") }

func (c *mockChannel) MuteUser(userID string, device state.Device, mute bool) error {
	return c.record(fmt.Sprintf("MuteUser:%s:%s(%v)", userID, device, mute))
}

func (c *mockChannel) MuteAll(device state.Device, mute bool) error {
	return c.record(fmt.Sprintf("MuteAll:%s(%v)", device, mute))
}

// recordingSink publishes every notification as a formatted string on a
// buffered channel so tests can await them in delivery order.
type recordingSink struct {
	NullEventSink
	events chan string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan string, 128)}
}

func (r *recordingSink) push(ev string) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *recordingSink) OnError(code int, message string)   { r.push(fmt.Sprintf("error:%d", code)) }
func (r *recordingSink) OnWarning(code int, message string) { r.push(fmt.Sprintf("warning:%d", code)) }
func (r *recordingSink) OnRoomEntered(room state.RoomInfo)  { r.push("room-entered:" + room.RoomID) }
func (r *recordingSink) OnRoomExited(reason signal.ExitReason, message string) {
	r.push("room-exited:" + reason.String())
}
func (r *recordingSink) OnRoomInfoChanged(room state.RoomInfo) { r.push("room-info") }
func (r *recordingSink) OnUserJoined(user state.UserInfo)      { r.push("user-joined:" + user.UserID) }
func (r *recordingSink) OnUserLeft(user state.UserInfo)        { r.push("user-left:" + user.UserID) }
func (r *recordingSink) OnMasterChanged(userID string)         { r.push("master:" + userID) }
func (r *recordingSink) OnStreamAvailable(userID string, kind state.StreamKind, available bool) {
	r.push(fmt.Sprintf("stream:%s:%s:%v", userID, kind, available))
}
func (r *recordingSink) OnChatMessage(userID, message string) { r.push("chat:" + userID) }
func (r *recordingSink) OnChatRoomMuted(muted bool)           { r.push(fmt.Sprintf("chat-muted:%v", muted)) }
func (r *recordingSink) OnSpeechStateChanged(userID string, speech state.SpeechState) {
	r.push(fmt.Sprintf("speech:%s:%s", userID, speech))
}
func (r *recordingSink) OnReceiveInvitation()               { r.push("invitation") }
func (r *recordingSink) OnInvitationCancelled()             { r.push("invitation-cancelled") }
func (r *recordingSink) OnReceiveApplication(userID string) { r.push("application:" + userID) }
func (r *recordingSink) OnApplicationCancelled(userID string) {
	r.push("application-cancelled:" + userID)
}
func (r *recordingSink) OnApplicationsForbidden(forbidden bool) {
	r.push(fmt.Sprintf("applications-forbidden:%v", forbidden))
}
func (r *recordingSink) OnOrderedToExitSpeech()          { r.push("ordered-exit") }
func (r *recordingSink) OnRollCallStarted()              { r.push("roll-started") }
func (r *recordingSink) OnRollCallStopped()              { r.push("roll-stopped") }
func (r *recordingSink) OnRollCallReplied(userID string) { r.push("roll-replied:" + userID) }
func (r *recordingSink) OnUserMuted(userID string, device state.Device, muted bool) {
	r.push(fmt.Sprintf("muted:%s:%s:%v", userID, device, muted))
}
func (r *recordingSink) OnAllMuted(device state.Device, muted bool) {
	r.push(fmt.Sprintf("all-muted:%s:%v", device, muted))
}

// expect consumes events until the wanted one arrives, failing the test
// after a bounded wait. Events delivered in between are discarded so a
// test can assert only on the notifications it cares about.
func (r *recordingSink) expect(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("event %q never delivered", want)
		}
	}
}

// expectNone asserts the given event does not arrive within a short
// window.
func (r *recordingSink) expectNone(t *testing.T, unwanted string) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case got := <-r.events:
			if got == unwanted {
				t.Fatalf("event %q should not have been delivered", unwanted)
			}
		case <-deadline:
			return
		}
	}
}

// awaitOutcome converts a completion callback into a channel receive.
func awaitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case oc := <-ch:
		return oc
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
		return Outcome{}
	}
}

func outcomeRecorder() (CompletionFunc, <-chan Outcome) {
	ch := make(chan Outcome, 1)
	return func(oc Outcome) { ch <- oc }, ch
}

// testSession builds a logged-in session backed by the mocks.
func testSession(t *testing.T) (*Session, *mockEngine, *mockChannel, *recordingSink) {
	t.Helper()
	engine := newMockEngine()
	channel := newMockChannel()
	sink := newRecordingSink()

	s, err := New(engine, channel, sink, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cb, done := outcomeRecorder()
	if err := s.Login(7, "alice", "sig-alice", cb); err != nil {
		t.Fatalf("Login: %v", err)
	}
	channel.Handler().OnLogin(0, "")
	if oc := awaitOutcome(t, done); !oc.Succeeded() {
		t.Fatalf("login outcome: %+v", oc)
	}
	return s, engine, channel, sink
}

// enterTestRoom drives a successful two-phase entry with alice as master.
func enterTestRoom(t *testing.T, s *Session, channel *mockChannel, sink *recordingSink) {
	t.Helper()
	cb, done := outcomeRecorder()
	if err := s.CreateRoom("room-1", state.SpeechModeApply, cb); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	channel.Handler().OnRoomCreated(0, "")
	if oc := awaitOutcome(t, done); !oc.Succeeded() {
		t.Fatalf("entry outcome: %+v", oc)
	}
	sink.expect(t, "room-entered:room-1")
}

func signalMember(userID, name string) signal.MemberInfo {
	return signal.MemberInfo{UserID: userID, Name: name}
}

func memberList(ids ...string) []signal.MemberInfo {
	members := make([]signal.MemberInfo, 0, len(ids))
	for _, id := range ids {
		members = append(members, signal.MemberInfo{UserID: id, Name: id})
	}
	return members
}

// joinMember adds a remote member through the signaling channel.
func joinMember(t *testing.T, channel *mockChannel, sink *recordingSink, userID string) {
	t.Helper()
	channel.Handler().OnUserEntered(signal.MemberInfo{UserID: userID, Name: userID})
	sink.expect(t, "user-joined:"+userID)
}
