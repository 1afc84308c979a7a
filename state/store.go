// Package state implements the room state store: room identity, speech
// mode, the member roster, per-user stream and mute flags, and the local
// session identity.
//
// The store holds no coordination logic of its own. Every mutation entry
// point takes already-validated fields and reports whether the state
// actually changed, which lets the coordinator de-duplicate repeated
// notifications from its two backend channels. The store is not
// synchronized internally; the owning coordinator serializes all access
// under a single lock so that a media-channel event and a signaling-channel
// event can never interleave half-applied mutations.
package state

// Store is the authoritative in-memory room model. It is exclusively owned
// by the room session coordinator; backend adapters mutate it only through
// the coordinator's locked entry points.
type Store struct {
	room    RoomInfo
	users   map[string]*UserInfo
	hasRoom bool

	localID string
}

// NewStore creates an empty store with no room and no roster.
func NewStore() *Store {
	return &Store{
		users: make(map[string]*UserInfo),
	}
}

// SetLocalUser records the local member's identity. The entry is added to
// the roster so the local user is always present once entry succeeds.
func (s *Store) SetLocalUser(u UserInfo) {
	s.localID = u.UserID
	copied := u
	s.users[u.UserID] = &copied
}

// LocalUserID returns the local member's identifier, empty before login.
func (s *Store) LocalUserID() string {
	return s.localID
}

// LocalUser returns the local member's roster entry, if present.
func (s *Store) LocalUser() (UserInfo, bool) {
	return s.User(s.localID)
}

// HasRoom reports whether a room is currently established.
func (s *Store) HasRoom() bool {
	return s.hasRoom
}

// Room returns a copy of the current room attributes.
func (s *Store) Room() RoomInfo {
	return s.room
}

// User returns a copy of the roster entry for the given identifier.
func (s *Store) User(userID string) (UserInfo, bool) {
	u, ok := s.users[userID]
	if !ok {
		return UserInfo{}, false
	}
	return *u, true
}

// Users returns a copy of every roster entry.
func (s *Store) Users() []UserInfo {
	out := make([]UserInfo, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out
}

// UserCount returns the number of roster entries.
func (s *Store) UserCount() int {
	return len(s.users)
}

// IsMaster reports whether the given member currently owns the room.
func (s *Store) IsMaster(userID string) bool {
	return s.hasRoom && userID != "" && s.room.MasterID == userID
}

// ApplyRoomInfo establishes or updates the room attributes. It reports
// whether anything changed.
func (s *Store) ApplyRoomInfo(info RoomInfo) bool {
	if s.hasRoom && s.room == info {
		return false
	}
	s.room = info
	s.hasRoom = true
	return true
}

// ApplyUserJoined inserts a member into the roster. Re-joining an already
// present member refreshes profile fields only and reports false, so the
// coordinator does not double-fire join notifications. The identifier must
// be unique within the roster; that invariant holds by construction since
// the roster is keyed by it.
func (s *Store) ApplyUserJoined(u UserInfo) bool {
	if existing, ok := s.users[u.UserID]; ok {
		if u.Name != "" {
			existing.Name = u.Name
		}
		if u.AvatarURL != "" {
			existing.AvatarURL = u.AvatarURL
		}
		return false
	}
	copied := u
	s.users[u.UserID] = &copied
	return true
}

// ApplyUserLeft removes a member from the roster and returns the removed
// entry. Removing an unknown member is a no-op reported through the second
// return value, never an error: duplicate "user left" events from the two
// channels are expected.
func (s *Store) ApplyUserLeft(userID string) (UserInfo, bool) {
	u, ok := s.users[userID]
	if !ok {
		return UserInfo{}, false
	}
	delete(s.users, userID)
	return *u, true
}

// ApplyMuteState sets a master-imposed mute flag on one member. It reports
// whether the flag actually flipped; unknown members report false.
func (s *Store) ApplyMuteState(userID string, device Device, muted bool) bool {
	u, ok := s.users[userID]
	if !ok {
		return false
	}
	switch device {
	case DeviceMicrophone:
		if u.MicMutedByMaster == muted {
			return false
		}
		u.MicMutedByMaster = muted
	case DeviceCamera:
		if u.CameraMutedByMaster == muted {
			return false
		}
		u.CameraMutedByMaster = muted
	default:
		return false
	}
	return true
}

// ApplyMuteAll sets a master-imposed mute flag on every member currently in
// the roster and returns the identifiers whose flag flipped. The expansion
// is taken against the roster snapshot at the moment of receipt; members
// joining afterwards start unmuted.
func (s *Store) ApplyMuteAll(device Device, muted bool) []string {
	var changed []string
	for id := range s.users {
		if s.ApplyMuteState(id, device, muted) {
			changed = append(changed, id)
		}
	}
	switch device {
	case DeviceMicrophone:
		s.room.AllMicrophonesMuted = muted
	case DeviceCamera:
		s.room.AllCamerasMuted = muted
	}
	return changed
}

// ApplyMasterChanged records a room ownership hand-off. It reports whether
// the master actually changed.
func (s *Store) ApplyMasterChanged(userID string) bool {
	if s.room.MasterID == userID {
		return false
	}
	s.room.MasterID = userID
	return true
}

// ApplySpeechState moves a member to the given speech state. Unknown
// members and repeated states report false.
func (s *Store) ApplySpeechState(userID string, st SpeechState) bool {
	u, ok := s.users[userID]
	if !ok {
		return false
	}
	if u.Speech == st {
		return false
	}
	u.Speech = st
	return true
}

// ApplyStreamAvailable sets one of a member's stream availability flags as
// reported by the media channel. Unknown members and repeated values
// report false.
func (s *Store) ApplyStreamAvailable(userID string, kind StreamKind, available bool) bool {
	u, ok := s.users[userID]
	if !ok {
		return false
	}
	switch kind {
	case StreamVideo:
		if u.HasVideoStream == available {
			return false
		}
		u.HasVideoStream = available
	case StreamAudio:
		if u.HasAudioStream == available {
			return false
		}
		u.HasAudioStream = available
	case StreamScreen:
		if u.HasScreenStream == available {
			return false
		}
		u.HasScreenStream = available
	default:
		return false
	}
	return true
}

// ApplyChatMuted sets the room-wide chat mute flag.
func (s *Store) ApplyChatMuted(muted bool) bool {
	if s.room.ChatMuted == muted {
		return false
	}
	s.room.ChatMuted = muted
	return true
}

// ApplyForbidApplications sets the flag blocking new speech applications.
func (s *Store) ApplyForbidApplications(forbidden bool) bool {
	if s.room.ApplicationsForbidden == forbidden {
		return false
	}
	s.room.ApplicationsForbidden = forbidden
	return true
}

// ApplyRollCall sets the roll-call-active flag. Roll call is orthogonal to
// speech state: replies record attendance only.
func (s *Store) ApplyRollCall(active bool) bool {
	if s.room.RollCallActive == active {
		return false
	}
	s.room.RollCallActive = active
	return true
}

// Clear resets all room and roster state to empty. It is idempotent and
// callable from any state; the local identity survives so the session can
// re-enter a room without logging in again.
func (s *Store) Clear() {
	local, hadLocal := s.users[s.localID]
	s.room = RoomInfo{}
	s.hasRoom = false
	s.users = make(map[string]*UserInfo)
	if s.localID == "" {
		return
	}
	// Keep the local identity but drop all in-room flags.
	restored := &UserInfo{UserID: s.localID}
	if hadLocal {
		restored.Name = local.Name
		restored.AvatarURL = local.AvatarURL
	}
	s.users[s.localID] = restored
}

// Reset drops everything including the local identity. Used on logout.
func (s *Store) Reset() {
	s.localID = ""
	s.room = RoomInfo{}
	s.hasRoom = false
	s.users = make(map[string]*UserInfo)
}
