// internal/game/room_store.go
package game

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrTokenTaken    = errors.New("room token already in use")
	ErrAlreadyInRoom = errors.New("participant is already in a room")
	ErrEmptyToken    = errors.New("room token is empty")
)

// roomEntry is the store's own view of a room. Its fields are guarded by the
// store mutex, so lookups never need a room lock.
type roomEntry struct {
	room         *Room
	seq          uint64
	open         bool
	participants []string
}

// RoomInfo is a point-in-time description of a stored room. Private rooms
// carry no token since the token is their only admission check.
type RoomInfo struct {
	Token        string    `json:"token,omitempty"`
	Private      bool      `json:"private"`
	Open         bool      `json:"open"`
	Participants int       `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RoomStore holds all live rooms keyed by token plus an index from participant
// to the token of the room they occupy.
//
// Lock order is Room.Mu before RoomStore.mu. The store never takes a room lock,
// so callers may use it while holding one.
type RoomStore struct {
	mu            sync.Mutex
	rooms         map[string]*roomEntry
	byParticipant map[string]string
	seq           uint64
	now           func() time.Time

	// NewToken produces candidate room tokens.
	NewToken func() string
}

// NewRoomStore returns an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:         make(map[string]*roomEntry),
		byParticipant: make(map[string]string),
		now:           time.Now,
		NewToken:      uuid.NewString,
	}
}

// GenerateToken returns a fresh random token. Uniqueness is only guaranteed
// once CreateRoom accepts it.
func (s *RoomStore) GenerateToken() string {
	return s.NewToken()
}

// CreateRoom inserts a waiting room owned by host.
func (s *RoomStore) CreateRoom(token string, private bool, host string) (*Room, error) {
	return s.CreateRoomFunc(token, private, host, nil)
}

// CreateRoomFunc is CreateRoom with a hook that runs while the new room's lock
// is still held, before any other caller can observe it in a locked state.
func (s *RoomStore) CreateRoomFunc(token string, private bool, host string, onCreated func(*Room)) (*Room, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	room := newRoom(token, private, host, s.now())
	room.Mu.Lock()
	defer room.Mu.Unlock()

	s.mu.Lock()
	if _, taken := s.rooms[token]; taken {
		s.mu.Unlock()
		return nil, ErrTokenTaken
	}
	if _, busy := s.byParticipant[host]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	s.seq++
	s.rooms[token] = &roomEntry{
		room:         room,
		seq:          s.seq,
		open:         true,
		participants: []string{host},
	}
	s.byParticipant[host] = token
	s.mu.Unlock()

	if onCreated != nil {
		onCreated(room)
	}
	return room, nil
}

// JoinRoom seats participant as the second player and starts the first round.
func (s *RoomStore) JoinRoom(token, participant string) (*Room, error) {
	return s.JoinRoomFunc(token, participant, nil)
}

// JoinRoomFunc is JoinRoom with a hook that runs under the room lock right
// after the room becomes active. A failed join leaves the room untouched.
func (s *RoomStore) JoinRoomFunc(token, participant string, onJoined func(*Room)) (*Room, error) {
	room, ok := s.GetRoom(token)
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.Mu.Lock()
	defer room.Mu.Unlock()

	if room.closed {
		return nil, ErrRoomNotFound
	}
	if !room.IsWaitingUnsafe() {
		return nil, ErrRoomFull
	}
	if room.HostUnsafe() == participant {
		return nil, ErrAlreadyInRoom
	}

	s.mu.Lock()
	entry, ok := s.rooms[token]
	if !ok || entry.room != room {
		s.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if _, busy := s.byParticipant[participant]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	entry.open = false
	entry.participants = append(entry.participants, participant)
	s.byParticipant[participant] = token
	s.mu.Unlock()

	room.activateUnsafe(participant)
	if onJoined != nil {
		onJoined(room)
	}
	return room, nil
}

// GetRoom returns the room for token.
func (s *RoomStore) GetRoom(token string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[token]
	if !ok {
		return nil, false
	}
	return entry.room, true
}

// FindOpenPublicRoom returns the token of the earliest-created public room that
// is still waiting for an opponent.
func (s *RoomStore) FindOpenPublicRoom() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *roomEntry
	for _, entry := range s.rooms {
		if entry.room.Private || !entry.open {
			continue
		}
		if best == nil || entry.seq < best.seq {
			best = entry
		}
	}
	if best == nil {
		return "", false
	}
	return best.room.Token, true
}

// IsPrivateRoomAvailable reports whether token names an existing private room.
func (s *RoomStore) IsPrivateRoomAvailable(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[token]
	return ok && entry.room.Private
}

// FindRoomByParticipant returns the room participant currently occupies.
func (s *RoomStore) FindRoomByParticipant(participant string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.byParticipant[participant]
	if !ok {
		return nil, false
	}
	entry, ok := s.rooms[token]
	if !ok {
		return nil, false
	}
	return entry.room, true
}

// DeleteRoom closes the room named by token and frees its participants.
// Deleting an absent token reports false. It takes the room lock, so callers
// already holding it use CloseRoomUnsafe.
func (s *RoomStore) DeleteRoom(token string) bool {
	room, ok := s.GetRoom(token)
	if !ok {
		return false
	}
	room.Mu.Lock()
	defer room.Mu.Unlock()
	return s.CloseRoomUnsafe(room)
}

// CloseRoomUnsafe marks room closed and removes it from the store. The caller
// must hold room.Mu; anyone who picked up the room pointer earlier sees the
// closed flag once they get the lock, and so does any timer still armed on it.
func (s *RoomStore) CloseRoomUnsafe(room *Room) bool {
	if room.closed {
		return false
	}
	room.closed = true

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[room.Token]
	if !ok || entry.room != room {
		return false
	}
	delete(s.rooms, room.Token)
	for _, p := range entry.participants {
		if s.byParticipant[p] == room.Token {
			delete(s.byParticipant, p)
		}
	}
	return true
}

// Len returns the number of live rooms.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Snapshot describes every live room, oldest first.
func (s *RoomStore) Snapshot() []RoomInfo {
	s.mu.Lock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, entry := range s.rooms {
		entries = append(entries, entry)
	}
	out := make([]RoomInfo, 0, len(entries))
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, entry := range entries {
		info := RoomInfo{
			Private:      entry.room.Private,
			Open:         entry.open,
			Participants: len(entry.participants),
			CreatedAt:    entry.room.CreatedAt,
		}
		if !entry.room.Private {
			info.Token = entry.room.Token
		}
		out = append(out, info)
	}
	s.mu.Unlock()
	return out
}
