// internal/game/outcome.go
package game

import "fmt"

// Outcome is the result of a round from one participant's point of view.
type Outcome int

const (
	OutcomeDraw Outcome = iota
	OutcomeWin
	OutcomeLoss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDraw:
		return "Draw"
	case OutcomeWin:
		return "Win"
	case OutcomeLoss:
		return "Loss"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Invert returns the outcome the opponent sees.
func (o Outcome) Invert() Outcome {
	switch o {
	case OutcomeWin:
		return OutcomeLoss
	case OutcomeLoss:
		return OutcomeWin
	}
	return o
}

// beats maps each playable move to the move it defeats.
var beats = map[Move]Move{
	MoveRock:     MoveScissors,
	MoveScissors: MovePaper,
	MovePaper:    MoveRock,
}

// Resolve returns the outcome for the participant who played `player` against
// `opponent`. It panics unless both moves are playable.
func Resolve(player, opponent Move) Outcome {
	if !player.Playable() || !opponent.Playable() {
		panic(fmt.Sprintf("game: cannot resolve %s against %s", player, opponent))
	}
	switch {
	case player == opponent:
		return OutcomeDraw
	case beats[player] == opponent:
		return OutcomeWin
	default:
		return OutcomeLoss
	}
}
