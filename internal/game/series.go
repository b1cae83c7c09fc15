// internal/game/series.go
package game

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySubmitted is returned when a participant moves twice in one round.
	ErrAlreadySubmitted = errors.New("move already submitted this round")
	// ErrNotParticipant is returned when the submitter does not belong to the series.
	ErrNotParticipant = errors.New("not a participant of this series")
)

// RoundStatus describes what a submission did to the active round.
type RoundStatus int

const (
	// RoundPending means the submitter's move was stored and the opponent has not moved yet.
	RoundPending RoundStatus = iota
	// RoundResolved means both moves were in and the round was scored.
	RoundResolved
	// RoundAborted means an Undefined move cancelled the round.
	RoundAborted
)

// Side is one participant's view of a finished or pending round.
type Side struct {
	Participant string
	Move        Move
	Submitted   bool
	Outcome     Outcome // only meaningful when the round is resolved
}

// RoundReport is returned by every accepted submission. Sides[0] is always the
// participant whose submission produced the report.
type RoundReport struct {
	Status RoundStatus
	Round  int
	Sides  [2]Side
}

// slot holds one participant's choice for the active round.
type slot struct {
	participant string
	move        Move
	filled      bool
}

// Series is the unbounded sequence of rounds between the same two participants.
// It is not safe for concurrent use; callers serialise access with the owning
// Room's lock.
type Series struct {
	round int
	slots [2]slot
}

func newSeries(host, guest string) *Series {
	return &Series{
		round: 1,
		slots: [2]slot{{participant: host}, {participant: guest}},
	}
}

// Round is the 1-based number of the active round.
func (s *Series) Round() int { return s.round }

// Participants returns the host and the guest.
func (s *Series) Participants() (string, string) {
	return s.slots[0].participant, s.slots[1].participant
}

// Opponent returns the other participant.
func (s *Series) Opponent(participant string) (string, bool) {
	idx := s.indexOf(participant)
	if idx < 0 {
		return "", false
	}
	return s.slots[1-idx].participant, true
}

// HasSubmitted reports whether participant already moved in the active round.
func (s *Series) HasSubmitted(participant string) bool {
	idx := s.indexOf(participant)
	return idx >= 0 && s.slots[idx].filled
}

// SubmitMove applies a participant's move text to the active round. Duplicate
// submissions are rejected before the text is parsed. Neither error path
// changes the round.
func (s *Series) SubmitMove(participant, moveText string) (RoundReport, error) {
	idx := s.indexOf(participant)
	if idx < 0 {
		return RoundReport{}, ErrNotParticipant
	}
	if s.slots[idx].filled {
		return RoundReport{}, ErrAlreadySubmitted
	}
	move, err := ParseMove(moveText)
	if err != nil {
		return RoundReport{}, err
	}
	return s.apply(idx, move), nil
}

// Expire submits Undefined on behalf of participant. It reports false and
// leaves the round alone if the participant already moved.
func (s *Series) Expire(participant string) (RoundReport, bool) {
	idx := s.indexOf(participant)
	if idx < 0 || s.slots[idx].filled {
		return RoundReport{}, false
	}
	return s.apply(idx, MoveUndefined), true
}

func (s *Series) apply(idx int, move Move) RoundReport {
	mine, theirs := &s.slots[idx], &s.slots[1-idx]

	report := RoundReport{Round: s.round}
	if move == MoveUndefined {
		report.Status = RoundAborted
		report.Sides = [2]Side{
			{Participant: mine.participant, Move: MoveUndefined, Submitted: true},
			{Participant: theirs.participant, Move: theirs.move, Submitted: theirs.filled},
		}
		s.reset()
		return report
	}

	mine.move, mine.filled = move, true
	if !theirs.filled {
		report.Status = RoundPending
		report.Sides = [2]Side{
			{Participant: mine.participant, Move: move, Submitted: true},
			{Participant: theirs.participant},
		}
		return report
	}

	outcome := Resolve(mine.move, theirs.move)
	report.Status = RoundResolved
	report.Sides = [2]Side{
		{Participant: mine.participant, Move: mine.move, Submitted: true, Outcome: outcome},
		{Participant: theirs.participant, Move: theirs.move, Submitted: true, Outcome: outcome.Invert()},
	}
	s.reset()
	return report
}

func (s *Series) reset() {
	for i := range s.slots {
		s.slots[i].move = MoveUndefined
		s.slots[i].filled = false
	}
	s.round++
}

func (s *Series) indexOf(participant string) int {
	for i := range s.slots {
		if s.slots[i].participant == participant {
			return i
		}
	}
	return -1
}

// Summary renders the line-oriented round summary shown to one side.
func (sd Side) Summary(opponent Side) string {
	return fmt.Sprintf("Your choice: %s\nOpponent's choice: %s\nRound result: %s\n",
		sd.Move, opponent.Move, sd.Outcome)
}
