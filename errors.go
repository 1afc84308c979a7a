package roomcore

import "errors"

// Precondition violations are rejected synchronously, before any command
// is issued to a backend channel.
var (
	// ErrClosed means the session has been closed.
	ErrClosed = errors.New("session is closed")

	// ErrNilEngine and ErrNilChannel reject session construction
	// without both backends.
	ErrNilEngine  = errors.New("media engine is nil")
	ErrNilChannel = errors.New("signaling channel is nil")
	// ErrNotLoggedIn means the operation requires a signaling login.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrAlreadyLoggedIn means a login is already established.
	ErrAlreadyLoggedIn = errors.New("already logged in")
	// ErrNotInRoom means the operation requires an entered room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrAlreadyInRoom means a room is already entered.
	ErrAlreadyInRoom = errors.New("already in a room")
	// ErrEntryInProgress means a room entry is already in flight; a
	// second entry fails fast rather than racing state.
	ErrEntryInProgress = errors.New("room entry already in progress")
	// ErrNotMaster means the operation is reserved for the room master.
	ErrNotMaster = errors.New("operation requires room master")
	// ErrMasterNotAllowed means the room master may not perform this
	// member-only operation.
	ErrMasterNotAllowed = errors.New("operation not available to room master")
	// ErrUnknownUser means the target is not in the roster.
	ErrUnknownUser = errors.New("unknown user")
	// ErrInvalidTarget means the target is empty or the local user.
	ErrInvalidTarget = errors.New("invalid target user")
	// ErrApplicationsForbidden means the master has blocked new speech
	// applications.
	ErrApplicationsForbidden = errors.New("speech applications are forbidden")
	// ErrBadSpeechState means the member's speech state does not permit
	// the operation.
	ErrBadSpeechState = errors.New("operation not applicable in current speech state")
	// ErrChatMuted means the room chat is muted by the master.
	ErrChatMuted = errors.New("chat room is muted")
	// ErrRollCallInactive means no roll call is currently running.
	ErrRollCallInactive = errors.New("no roll call in progress")
	// ErrEmptyMessage means a chat or custom message had no content.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrEmptyUserID means a user identifier was empty.
	ErrEmptyUserID = errors.New("user identifier cannot be empty")
	// ErrEmptyRoomID means a room identifier was empty.
	ErrEmptyRoomID = errors.New("room identifier cannot be empty")
)
