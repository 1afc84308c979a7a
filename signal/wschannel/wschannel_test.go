package wschannel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

// testServer upgrades one connection, exposes received frames and lets
// tests push frames back.
type testServer struct {
	*httptest.Server
	frames chan envelope
	conns  chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		frames: make(chan envelope, 64),
		conns:  make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ts.conns <- conn
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.frames <- env
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		ts.conns <- c
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection established")
		return nil
	}
}

func (ts *testServer) push(t *testing.T, msgType string, payload interface{}) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	require.NoError(t, ts.conn(t).WriteJSON(envelope{Type: msgType, Payload: raw}))
}

func (ts *testServer) nextFrame(t *testing.T, wantType string) envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ts.frames:
			if env.Type == wantType {
				return env
			}
		case <-deadline:
			t.Fatalf("frame %q never received", wantType)
		}
	}
}

// recordingHandler publishes each inbound event as a formatted string.
type recordingHandler struct {
	events chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{events: make(chan string, 64)}
}

func (r *recordingHandler) push(ev string) {
	select {
	case r.events <- ev:
	default:
	}
}

func (r *recordingHandler) expect(t *testing.T, want string) {
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

func (r *recordingHandler) OnLogin(code int, message string)  { r.push(fmt.Sprintf("login:%d", code)) }
func (r *recordingHandler) OnLogout(code int, message string) { r.push(fmt.Sprintf("logout:%d", code)) }
func (r *recordingHandler) OnError(code int, message string)  { r.push(fmt.Sprintf("error:%d", code)) }
func (r *recordingHandler) OnRoomCreated(code int, message string) {
	r.push(fmt.Sprintf("created:%d", code))
}
func (r *recordingHandler) OnRoomDestroyed(code int, message string) {
	r.push(fmt.Sprintf("destroyed:%d", code))
}
func (r *recordingHandler) OnRoomEntered(code int, message string) {
	r.push(fmt.Sprintf("entered:%d", code))
}
func (r *recordingHandler) OnRoomExited(reason signal.ExitReason, message string) {
	r.push("exited:" + reason.String())
}
func (r *recordingHandler) OnCommandResult(cmd signal.Command, target string, code int, message string) {
	r.push(fmt.Sprintf("result:%s:%s:%d", cmdNames[cmd], target, code))
}
func (r *recordingHandler) OnUserEntered(member signal.MemberInfo) {
	r.push("user:" + member.UserID + ":" + member.Name)
}
func (r *recordingHandler) OnUserExited(userID string)    { r.push("exit:" + userID) }
func (r *recordingHandler) OnMasterChanged(userID string) { r.push("master:" + userID) }
func (r *recordingHandler) OnMemberList(members []signal.MemberInfo) {
	r.push(fmt.Sprintf("members:%d", len(members)))
}
func (r *recordingHandler) OnRoomInfo(meta signal.RoomMeta) {
	r.push("info:" + meta.RoomID + ":" + meta.MasterID)
}
func (r *recordingHandler) OnChatMessage(userID, message string)   { r.push("chat:" + userID + ":" + message) }
func (r *recordingHandler) OnCustomMessage(userID, message string) { r.push("custom:" + userID) }
func (r *recordingHandler) OnChatRoomMuted(muted bool)             { r.push(fmt.Sprintf("chatmuted:%v", muted)) }
func (r *recordingHandler) OnReceiveInvitation()                   { r.push("invitation") }
func (r *recordingHandler) OnInvitationCancelled()                 { r.push("invitation-cancelled") }
func (r *recordingHandler) OnInvitationReply(userID string, agree bool) {
	r.push(fmt.Sprintf("invreply:%s:%v", userID, agree))
}
func (r *recordingHandler) OnReceiveApplication(userID string)   { r.push("application:" + userID) }
func (r *recordingHandler) OnApplicationCancelled(userID string) { r.push("appcancel:" + userID) }
func (r *recordingHandler) OnApplicationReply(agree bool) {
	r.push(fmt.Sprintf("appreply:%v", agree))
}
func (r *recordingHandler) OnApplicationsForbidden(forbidden bool) {
	r.push(fmt.Sprintf("forbidden:%v", forbidden))
}
func (r *recordingHandler) OnOrderedToExitSpeech()          { r.push("ordered-exit") }
func (r *recordingHandler) OnSpeechStateEnded(userID string) { r.push("speech-ended:" + userID) }
func (r *recordingHandler) OnRollCallStarted()              { r.push("roll-started") }
func (r *recordingHandler) OnRollCallStopped()              { r.push("roll-stopped") }
func (r *recordingHandler) OnRollCallReplied(userID string) { r.push("roll-replied:" + userID) }
func (r *recordingHandler) OnUserMuted(userID string, device state.Device, muted bool) {
	r.push(fmt.Sprintf("muted:%s:%s:%v", userID, device, muted))
}
func (r *recordingHandler) OnAllMuted(device state.Device, muted bool) {
	r.push(fmt.Sprintf("allmuted:%s:%v", device, muted))
}

func connect(t *testing.T) (*Channel, *testServer, *recordingHandler) {
	t.Helper()
	ts := newTestServer(t)
	ch := New(ts.wsURL())
	h := newRecordingHandler()
	ch.SetHandler(h)
	t.Cleanup(func() { ch.Close() })

	require.NoError(t, ch.Login(signal.Credentials{AppID: 7, UserID: "alice", UserSig: "sig"}))
	return ch, ts, h
}

func TestLoginRoundTrip(t *testing.T) {
	_, ts, h := connect(t)

	env := ts.nextFrame(t, msgLogin)
	var p loginPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 7, p.AppID)
	assert.Equal(t, "alice", p.UserID)

	ts.push(t, msgLoginResult, resultPayload{Code: 0})
	h.expect(t, "login:0")
}

func TestCommandsBeforeLoginAreRefused(t *testing.T) {
	ch := New("ws://localhost:1/signal")
	assert.ErrorIs(t, ch.SendChatMessage("hi"), ErrNotConnected)
	assert.ErrorIs(t, ch.Kick("bob"), ErrNotConnected)
}

func TestCommandFraming(t *testing.T) {
	ch, ts, h := connect(t)

	require.NoError(t, ch.MuteUser("bob", state.DeviceMicrophone, true))
	env := ts.nextFrame(t, msgCommand)
	var p commandPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "mute_microphone", p.Cmd)
	assert.Equal(t, "bob", p.Target)
	assert.True(t, p.Mute)

	ts.push(t, msgCommandResult, commandResultPayload{Cmd: "mute_microphone", Target: "bob", Code: 0})
	h.expect(t, "result:mute_microphone:bob:0")
}

func TestRoomLifecycleFrames(t *testing.T) {
	ch, ts, h := connect(t)

	require.NoError(t, ch.CreateRoom("room-1", state.SpeechModeApply))
	env := ts.nextFrame(t, msgCreateRoom)
	var p roomPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "room-1", p.RoomID)
	assert.Equal(t, "apply", p.SpeechMode)

	ts.push(t, msgRoomCreated, resultPayload{Code: 0})
	h.expect(t, "created:0")

	ts.push(t, msgRoomExited, exitPayload{Reason: "kicked", Message: "bye"})
	h.expect(t, "exited:kicked")
}

func TestSpeechWorkflowFrames(t *testing.T) {
	ch, ts, h := connect(t)

	require.NoError(t, ch.SendInvitation("bob"))
	env := ts.nextFrame(t, msgCommand)
	var p commandPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "send_invitation", p.Cmd)
	assert.Equal(t, "bob", p.Target)

	ts.push(t, msgInviteReply, replyPayload{UserID: "bob", Agree: true})
	h.expect(t, "invreply:bob:true")

	require.NoError(t, ch.ReplyApplication("carol", false))
	env = ts.nextFrame(t, msgCommand)
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "reply_application", p.Cmd)
	assert.Equal(t, "carol", p.Target)
	assert.False(t, p.Agree)
}

func TestPushDispatch(t *testing.T) {
	_, ts, h := connect(t)

	ts.push(t, msgUserEntered, memberPayload{UserID: "bob", Name: "Bob"})
	h.expect(t, "user:bob:Bob")

	ts.push(t, msgRoomInfo, roomInfoPayload{RoomID: "room-1", SpeechMode: "apply", MasterID: "bob"})
	h.expect(t, "info:room-1:bob")

	ts.push(t, msgAllMuted, mutePayload{Device: "microphone", Mute: true})
	h.expect(t, "allmuted:microphone:true")

	ts.push(t, msgOrderedExit, nil)
	h.expect(t, "ordered-exit")
}

func TestMalformedAndUnknownFramesAreSkipped(t *testing.T) {
	_, ts, h := connect(t)

	// Unknown type, then a malformed payload; the connection survives.
	ts.push(t, "future_extension", map[string]int{"x": 1})
	require.NoError(t, ts.conn(t).WriteJSON(envelope{Type: msgUserEntered, Payload: json.RawMessage(`"not an object"`)}))

	ts.push(t, msgChatPush, chatPushPayload{UserID: "bob", Message: "still alive"})
	h.expect(t, "chat:bob:still alive")
}

func TestCloseIsIdempotent(t *testing.T) {
	ch, _, _ := connect(t)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.SendChatMessage("hi"), ErrNotConnected)
}

func TestCloseRacesConnectionLoss(t *testing.T) {
	// Close and a pump noticing the dropped connection both try to end
	// the same session; neither side may close the done channel twice.
	for i := 0; i < 20; i++ {
		ch, ts, _ := connect(t)
		conn := ts.conn(t)

		done := make(chan struct{})
		go func() {
			conn.Close()
			close(done)
		}()
		require.NoError(t, ch.Close())
		<-done
		assert.ErrorIs(t, ch.SendChatMessage("hi"), ErrNotConnected)
	}
}
