// internal/game/events.go
package game

// Result is the code returned to the caller of a session operation.
type Result string

const (
	ResultWaitingForPlayerToJoin Result = "WaitingForPlayerToJoin"
	ResultGameStart              Result = "GameStart"
	ResultWaitingForPlayerToPlay Result = "WaitingForPlayerToPlay"
	ResultGameEnd                Result = "GameEnd"
	ResultGameClosed             Result = "GameClosed"
	ResultErrorOccured           Result = "ErrorOccured"
)

// EventType identifies a notification pushed to a participant.
type EventType string

const (
	// EventReceiveMessage carries free text for display.
	EventReceiveMessage EventType = "ReceiveMessage"
	EventGameStart      EventType = "GameStart"
	// EventGameEnd carries the round summary for one side.
	EventGameEnd EventType = "GameEnd"
	// EventGameAborted tells a participant their opponent ran out of time.
	EventGameAborted EventType = "GameAborted"
	EventGameClosed  EventType = "GameClosed"
	// EventErrorOccured is sent alongside an ErrorOccured result.
	EventErrorOccured EventType = "ErrorOccured"
)

// RoundSummary is one side's view of a resolved or aborted round.
type RoundSummary struct {
	Round        int      `json:"round"`
	Aborted      bool     `json:"aborted"`
	YourMove     Move     `json:"yourMove"`
	OpponentMove Move     `json:"opponentMove"`
	Outcome      *Outcome `json:"outcome,omitempty"` // nil when aborted
	Text         string   `json:"text"`
}

// Event is a push notification addressed to a single participant.
type Event struct {
	Type    EventType     `json:"type"`
	Message string        `json:"message,omitempty"`
	Token   string        `json:"token,omitempty"`
	Summary *RoundSummary `json:"summary,omitempty"`
}

// Notifier delivers events to participants. Implementations must not block;
// it is called with room locks held.
type Notifier interface {
	Notify(participant string, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(participant string, ev Event)

func (f NotifierFunc) Notify(participant string, ev Event) { f(participant, ev) }
