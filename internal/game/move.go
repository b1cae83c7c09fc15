// internal/game/move.go
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// ErrInvalidMove is returned when move text does not name a known move.
var ErrInvalidMove = errors.New("invalid move option")

// Move is a single choice made by a participant in a round.
type Move int

const (
	// MoveUndefined marks a participant who did not choose in time.
	MoveUndefined Move = iota
	MoveRock
	MovePaper
	MoveScissors
)

func (m Move) String() string {
	switch m {
	case MoveUndefined:
		return "Undefined"
	case MoveRock:
		return "Rock"
	case MovePaper:
		return "Paper"
	case MoveScissors:
		return "Scissors"
	}
	return fmt.Sprintf("Move(%d)", int(m))
}

// Playable reports whether m can take part in outcome resolution.
func (m Move) Playable() bool {
	return m == MoveRock || m == MovePaper || m == MoveScissors
}

// MarshalText encodes the move by name.
func (m Move) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the same names as ParseMove.
func (m *Move) UnmarshalText(b []byte) error {
	parsed, err := ParseMove(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMove maps move text to a Move, ignoring case and surrounding whitespace.
func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock":
		return MoveRock, nil
	case "paper":
		return MovePaper, nil
	case "scissors":
		return MoveScissors, nil
	case "undefined":
		return MoveUndefined, nil
	}
	return MoveUndefined, fmt.Errorf("%w: %q", ErrInvalidMove, s)
}

// RandomMove picks one of the playable moves uniformly.
func RandomMove() Move {
	return playableMoves[rand.Intn(len(playableMoves))]
}

var playableMoves = [...]Move{MoveRock, MovePaper, MoveScissors}
