// Package wschannel is a signal.Channel carried over a WebSocket. Frames
// are JSON envelopes with a type tag and a per-type payload; a read pump
// and a write pump own the connection, so callers never touch it
// directly.
package wschannel

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomcore/signal"
	"github.com/opd-ai/roomcore/state"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024

	outboundBuffer = 64
)

// ErrNotConnected is returned for any command issued before Login has
// established the connection.
var ErrNotConnected = errors.New("wschannel: not connected")

// Channel implements signal.Channel over a single WebSocket connection
// established at Login and held until Logout or Close.
type Channel struct {
	url    string
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	handler signal.EventHandler
	out     chan envelope
	done    chan struct{}

	log *logrus.Entry
}

// New creates a channel that will dial url when Login is called.
func New(url string) *Channel {
	return &Channel{
		url:    url,
		dialer: websocket.DefaultDialer,
		log:    logrus.WithField("component", "wschannel"),
	}
}

// SetHandler installs the event handler. Must be called before Login.
func (c *Channel) SetHandler(h signal.EventHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Login dials the server, starts the connection pumps and sends the
// authentication frame. The verdict arrives via OnLogin.
func (c *Channel) Login(creds signal.Credentials) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("wschannel: already connected")
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxFrameSize)

	c.mu.Lock()
	c.conn = conn
	c.out = make(chan envelope, outboundBuffer)
	c.done = make(chan struct{})
	out, done := c.out, c.done
	c.mu.Unlock()

	go c.readPump(conn)
	go c.writePump(conn, out, done)

	c.log.WithField("url", c.url).Info("connected to signaling server")
	return c.send(msgLogin, loginPayload{
		AppID:   creds.AppID,
		UserID:  creds.UserID,
		UserSig: creds.UserSig,
	})
}

// Logout announces the logout and tears the connection down after the
// server replies or the write fails.
func (c *Channel) Logout() error {
	return c.send(msgLogout, nil)
}

// Close drops the connection. Safe to call at any time and more than
// once.
func (c *Channel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

// send marshals a frame and hands it to the write pump.
func (c *Channel) send(msgType string, payload interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	c.mu.Lock()
	out := c.out
	connected := c.conn != nil
	done := c.done
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	select {
	case out <- envelope{Type: msgType, Payload: raw}:
		return nil
	case <-done:
		return ErrNotConnected
	}
}

func (c *Channel) writePump(conn *websocket.Conn, out chan envelope, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				c.log.WithError(err).Debug("write failed, dropping connection")
				c.teardown(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.teardown(conn)
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Channel) readPump(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithError(err).Warn("connection lost")
				if h := c.getHandler(); h != nil {
					h.OnError(-1, "connection lost: "+err.Error())
				}
			}
			c.teardown(conn)
			return
		}
		c.dispatch(env)
	}
}

// teardown closes the connection once, from whichever pump noticed the
// failure first. The done close happens under the mutex with a nil-out
// guard so a pump failure racing Close cannot close it twice, and a pump
// of a previous connection cannot kill a newer one.
func (c *Channel) teardown(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.done != nil {
			close(c.done)
			c.done = nil
		}
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Channel) getHandler() signal.EventHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// dispatch routes one inbound frame to the handler. Unknown frame types
// are logged and skipped so protocol additions stay backward compatible.
func (c *Channel) dispatch(env envelope) {
	h := c.getHandler()
	if h == nil {
		return
	}

	decode := func(v interface{}) bool {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			c.log.WithError(err).WithField("type", env.Type).Warn("malformed frame")
			return false
		}
		return true
	}

	switch env.Type {
	case msgLoginResult:
		var p resultPayload
		if decode(&p) {
			h.OnLogin(p.Code, p.Message)
		}
	case msgLogoutResult:
		var p resultPayload
		if decode(&p) {
			h.OnLogout(p.Code, p.Message)
		}
	case msgErr:
		var p resultPayload
		if decode(&p) {
			h.OnError(p.Code, p.Message)
		}
	case msgRoomCreated:
		var p resultPayload
		if decode(&p) {
			h.OnRoomCreated(p.Code, p.Message)
		}
	case msgRoomDestroyed:
		var p resultPayload
		if decode(&p) {
			h.OnRoomDestroyed(p.Code, p.Message)
		}
	case msgRoomEntered:
		var p resultPayload
		if decode(&p) {
			h.OnRoomEntered(p.Code, p.Message)
		}
	case msgRoomExited:
		var p exitPayload
		if decode(&p) {
			h.OnRoomExited(exitReasonByName(p.Reason), p.Message)
		}
	case msgCommandResult:
		var p commandResultPayload
		if decode(&p) {
			cmd, ok := cmdByName[p.Cmd]
			if !ok {
				c.log.WithField("cmd", p.Cmd).Warn("unknown command in result")
				return
			}
			h.OnCommandResult(cmd, p.Target, p.Code, p.Message)
		}
	case msgUserEntered:
		var p memberPayload
		if decode(&p) {
			h.OnUserEntered(signal.MemberInfo{UserID: p.UserID, Name: p.Name, AvatarURL: p.AvatarURL})
		}
	case msgUserExited:
		var p userPayload
		if decode(&p) {
			h.OnUserExited(p.UserID)
		}
	case msgMasterChanged:
		var p userPayload
		if decode(&p) {
			h.OnMasterChanged(p.UserID)
		}
	case msgMemberList:
		var p memberListPayload
		if decode(&p) {
			members := make([]signal.MemberInfo, 0, len(p.Members))
			for _, m := range p.Members {
				members = append(members, signal.MemberInfo{UserID: m.UserID, Name: m.Name, AvatarURL: m.AvatarURL})
			}
			h.OnMemberList(members)
		}
	case msgRoomInfo:
		var p roomInfoPayload
		if decode(&p) {
			h.OnRoomInfo(signal.RoomMeta{
				RoomID:                p.RoomID,
				SpeechMode:            speechModeByName(p.SpeechMode),
				MasterID:              p.MasterID,
				ChatMuted:             p.ChatMuted,
				ApplicationsForbidden: p.ApplicationsForbidden,
				RollCallActive:        p.RollCallActive,
			})
		}
	case msgChatPush:
		var p chatPushPayload
		if decode(&p) {
			h.OnChatMessage(p.UserID, p.Message)
		}
	case msgCustomPush:
		var p chatPushPayload
		if decode(&p) {
			h.OnCustomMessage(p.UserID, p.Message)
		}
	case msgChatMuted:
		var p boolPayload
		if decode(&p) {
			h.OnChatRoomMuted(p.Value)
		}
	case msgInvitation:
		h.OnReceiveInvitation()
	case msgInviteCancel:
		h.OnInvitationCancelled()
	case msgInviteReply:
		var p replyPayload
		if decode(&p) {
			h.OnInvitationReply(p.UserID, p.Agree)
		}
	case msgApplication:
		var p userPayload
		if decode(&p) {
			h.OnReceiveApplication(p.UserID)
		}
	case msgApplyCancel:
		var p userPayload
		if decode(&p) {
			h.OnApplicationCancelled(p.UserID)
		}
	case msgApplyReply:
		var p replyPayload
		if decode(&p) {
			h.OnApplicationReply(p.Agree)
		}
	case msgApplyForbidden:
		var p boolPayload
		if decode(&p) {
			h.OnApplicationsForbidden(p.Value)
		}
	case msgOrderedExit:
		h.OnOrderedToExitSpeech()
	case msgSpeechEnded:
		var p userPayload
		if decode(&p) {
			h.OnSpeechStateEnded(p.UserID)
		}
	case msgRollStarted:
		h.OnRollCallStarted()
	case msgRollStopped:
		h.OnRollCallStopped()
	case msgRollReplied:
		var p userPayload
		if decode(&p) {
			h.OnRollCallReplied(p.UserID)
		}
	case msgUserMuted:
		var p mutePayload
		if decode(&p) {
			h.OnUserMuted(p.UserID, deviceByName(p.Device), p.Mute)
		}
	case msgAllMuted:
		var p mutePayload
		if decode(&p) {
			h.OnAllMuted(deviceByName(p.Device), p.Mute)
		}
	default:
		c.log.WithField("type", env.Type).Debug("unknown frame type")
	}
}

// -----------------------------------------------------------------------
// Outbound commands
// -----------------------------------------------------------------------

func (c *Channel) command(cmd signal.Command, p commandPayload) error {
	p.Cmd = cmdNames[cmd]
	return c.send(msgCommand, p)
}

func (c *Channel) SetProfile(name, avatarURL string) error {
	return c.send(msgSetProfile, profilePayload{Name: name, AvatarURL: avatarURL})
}

func (c *Channel) CreateRoom(roomID string, mode state.SpeechMode) error {
	return c.send(msgCreateRoom, roomPayload{RoomID: roomID, SpeechMode: speechModeName(mode)})
}

func (c *Channel) DestroyRoom() error {
	return c.send(msgDestroyRoom, nil)
}

func (c *Channel) EnterRoom(roomID string) error {
	return c.send(msgEnterRoom, roomPayload{RoomID: roomID})
}

func (c *Channel) ExitRoom() error {
	return c.send(msgExitRoom, nil)
}

func (c *Channel) TransferMaster(userID string) error {
	return c.send(msgTransfer, userPayload{UserID: userID})
}

func (c *Channel) SendChatMessage(message string) error {
	return c.send(msgChat, textPayload{Message: message})
}

func (c *Channel) SendCustomMessage(message string) error {
	return c.send(msgCustom, textPayload{Message: message})
}

func (c *Channel) MuteUser(userID string, device state.Device, mute bool) error {
	cmd := signal.CmdMuteMicrophone
	if device == state.DeviceCamera {
		cmd = signal.CmdMuteCamera
	}
	return c.command(cmd, commandPayload{Target: userID, Device: deviceName(device), Mute: mute})
}

func (c *Channel) MuteAll(device state.Device, mute bool) error {
	return c.send(msgMuteAll, mutePayload{Device: deviceName(device), Mute: mute})
}

func (c *Channel) MuteChatRoom(mute bool) error {
	return c.send(msgMuteChat, boolPayload{Value: mute})
}

func (c *Channel) Kick(userID string) error {
	return c.command(signal.CmdKick, commandPayload{Target: userID})
}

func (c *Channel) StartRollCall() error {
	return c.send(msgRollStart, nil)
}

func (c *Channel) StopRollCall() error {
	return c.send(msgRollStop, nil)
}

func (c *Channel) ReplyRollCall() error {
	return c.command(signal.CmdReplyRollCall, commandPayload{})
}

func (c *Channel) SendInvitation(userID string) error {
	return c.command(signal.CmdSendInvitation, commandPayload{Target: userID})
}

func (c *Channel) CancelInvitation(userID string) error {
	return c.command(signal.CmdCancelInvitation, commandPayload{Target: userID})
}

func (c *Channel) ReplyInvitation(agree bool) error {
	return c.command(signal.CmdReplyInvitation, commandPayload{Agree: agree})
}

func (c *Channel) SendApplication() error {
	return c.command(signal.CmdSendApplication, commandPayload{})
}

func (c *Channel) CancelApplication() error {
	return c.command(signal.CmdCancelApplication, commandPayload{})
}

func (c *Channel) ReplyApplication(userID string, agree bool) error {
	return c.command(signal.CmdReplyApplication, commandPayload{Target: userID, Agree: agree})
}

func (c *Channel) ForbidApplications(forbid bool) error {
	return c.send(msgForbidApplies, boolPayload{Value: forbid})
}

func (c *Channel) SendOffSpeaker(userID string) error {
	return c.command(signal.CmdSendOffSpeaker, commandPayload{Target: userID})
}

func (c *Channel) SendOffAll() error {
	return c.command(signal.CmdSendOffAll, commandPayload{})
}

func (c *Channel) ExitSpeech() error {
	return c.send(msgExitSpeech, nil)
}

var _ signal.Channel = (*Channel)(nil)
