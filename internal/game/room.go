// internal/game/room.go
package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// roomState is either waitingState or activeState.
type roomState interface {
	isRoomState()
}

// waitingState is a room holding only its creator.
type waitingState struct {
	host string
}

// activeState is a full room playing a series.
type activeState struct {
	series *Series
}

func (waitingState) isRoomState() {}
func (activeState) isRoomState()  {}

// timerSlot tracks one armed timer and the generation it was armed with.
// Bumping gen invalidates a callback that already fired but has not yet
// acquired the room lock.
type timerSlot struct {
	t   clockwork.Timer
	gen uint64
}

type roomTimers struct {
	wait timerSlot
	idle timerSlot
	move [2]timerSlot
}

// Room pairs two participants under a shareable token.
//
// Mu guards every field below it. Methods suffixed Unsafe expect Mu to be held.
type Room struct {
	Token     string
	Private   bool
	CreatedAt time.Time

	Mu     sync.Mutex
	state  roomState
	closed bool
	timers roomTimers
}

func newRoom(token string, private bool, host string, now time.Time) *Room {
	return &Room{
		Token:     token,
		Private:   private,
		CreatedAt: now,
		state:     waitingState{host: host},
	}
}

// IsClosedUnsafe reports whether the room has been torn down.
func (r *Room) IsClosedUnsafe() bool { return r.closed }

// IsWaitingUnsafe reports whether the room still lacks its second participant.
func (r *Room) IsWaitingUnsafe() bool {
	_, ok := r.state.(waitingState)
	return ok
}

// HostUnsafe returns the participant who created the room.
func (r *Room) HostUnsafe() string {
	switch s := r.state.(type) {
	case waitingState:
		return s.host
	case activeState:
		host, _ := s.series.Participants()
		return host
	}
	return ""
}

// SeriesUnsafe returns the running series, if the room is full.
func (r *Room) SeriesUnsafe() (*Series, bool) {
	if s, ok := r.state.(activeState); ok {
		return s.series, true
	}
	return nil, false
}

// ParticipantsUnsafe lists the current participants, host first.
func (r *Room) ParticipantsUnsafe() []string {
	switch s := r.state.(type) {
	case waitingState:
		return []string{s.host}
	case activeState:
		host, guest := s.series.Participants()
		return []string{host, guest}
	}
	return nil
}

// HasParticipantUnsafe reports whether participant occupies a slot in the room.
func (r *Room) HasParticipantUnsafe(participant string) bool {
	for _, p := range r.ParticipantsUnsafe() {
		if p == participant {
			return true
		}
	}
	return false
}

// OthersUnsafe lists every participant except the given one.
func (r *Room) OthersUnsafe(participant string) []string {
	var out []string
	for _, p := range r.ParticipantsUnsafe() {
		if p != participant {
			out = append(out, p)
		}
	}
	return out
}

// activateUnsafe moves a waiting room into play with guest as second participant.
func (r *Room) activateUnsafe(guest string) {
	w := r.state.(waitingState)
	r.state = activeState{series: newSeries(w.host, guest)}
}
