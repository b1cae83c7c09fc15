// internal/handlers/game_server.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/rps/internal/game"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Texts pushed to participants as ReceiveMessage or round summaries.
const (
	msgWaitingForOpponent  = "Waiting for the opponent..."
	msgPrivateCreated      = "Private game successfully created\nPrivate game token: %s"
	msgOpponentJoined      = "Opponent joined the game"
	msgGameReady           = "Game is ready!"
	msgPrivateNotFound     = "Private game with this token doesn't exist"
	msgJoinFailed          = "Error occured while joining private game"
	msgFindFailed          = "Error occured while finding an opponent"
	msgCreateFailed        = "Error occured while creating a game"
	msgAlreadyInGame       = "You are already in a game"
	msgNotAllowedToMove    = "You are not allowed to make moves in this game"
	msgNoOpponentYet       = "Wait for an opponent to join before making a move"
	msgInvalidMove         = "Invalid move option"
	msgAlreadyMoved        = "You already made your move"
	msgWaitingForMove      = "Waiting for opponent to make move"
	msgYourTimeExpired     = "Round is canceled, your time to make move expired"
	msgOpponentTimeExpired = "Round is canceled, opponent's time to make move expired"
	msgNotInGame           = "You are not in the game right now"
	msgOpponentLeft        = "\nYour opponent left the game"
	msgDisconnected        = "\nDisconnected"
	msgNoOpponentJoined    = "Nobody joined the game in time, returning to the menu"
	msgClosedForInactivity = "Game closed due to inactivity"
)

const (
	defaultStatsTimeout    = 2 * time.Second
	maxTokenAttempts       = 5
	maxMatchmakingAttempts = 3
	maxParticipantLookups  = 3
)

// StatsRecorder receives one call per side for every resolved round.
type StatsRecorder interface {
	Record(ctx context.Context, participant string, outcome game.Outcome, move game.Move) error
}

// Reply is the synchronous answer to a session operation.
type Reply struct {
	Result  game.Result `json:"result"`
	Token   string      `json:"token,omitempty"`
	Message string      `json:"message,omitempty"`
}

// GameServer turns participant requests into room and series transitions and
// fans the resulting state changes out as events.
type GameServer struct {
	Rooms      *game.RoomStore
	Supervisor *game.Supervisor
	Notifier   game.Notifier
	Stats      StatsRecorder

	StatsTimeout time.Duration
	logger       *logrus.Logger
}

// NewGameServer wires a store and a timeout supervisor driven by clock. stats
// may be nil, in which case rounds are not recorded.
func NewGameServer(logger *logrus.Logger, clock clockwork.Clock, notifier game.Notifier, stats StatsRecorder) *GameServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gs := &GameServer{
		Rooms:        game.NewRoomStore(),
		Supervisor:   game.NewSupervisor(clock, logger),
		Notifier:     notifier,
		Stats:        stats,
		StatsTimeout: defaultStatsTimeout,
		logger:       logger,
	}
	gs.Supervisor.OnWaitExpired = gs.handleWaitExpired
	gs.Supervisor.OnMoveExpired = gs.handleMoveExpired
	gs.Supervisor.OnIdleExpired = gs.handleIdleExpired
	return gs
}

// CreatePrivateRoom opens a private room and hands its token to the creator.
func (gs *GameServer) CreatePrivateRoom(participant string) Reply {
	return gs.createRoom(participant, true)
}

// FindPublicGame joins the oldest waiting public room, or opens a new one when
// none is waiting.
func (gs *GameServer) FindPublicGame(participant string) Reply {
	for attempt := 0; attempt < maxMatchmakingAttempts; attempt++ {
		token, ok := gs.Rooms.FindOpenPublicRoom()
		if !ok {
			return gs.createRoom(participant, false)
		}
		_, err := gs.Rooms.JoinRoomFunc(token, participant, gs.startSeriesUnsafe)
		switch {
		case err == nil:
			gs.logger.WithFields(logrus.Fields{"room": token, "participant": participant}).Info("joined public room")
			return Reply{Result: game.ResultGameStart, Token: token}
		case errors.Is(err, game.ErrAlreadyInRoom):
			return gs.fail(participant, msgAlreadyInGame)
		case errors.Is(err, game.ErrRoomFull), errors.Is(err, game.ErrRoomNotFound):
			// lost the race for this room, look again
			continue
		default:
			gs.logger.WithError(err).WithField("participant", participant).Error("public join failed")
			return gs.fail(participant, msgFindFailed)
		}
	}
	// every candidate was taken under us; wait for the next arrival instead
	return gs.createRoom(participant, false)
}

// JoinPrivateRoom seats participant in the private room named by token.
func (gs *GameServer) JoinPrivateRoom(participant, token string) Reply {
	if !gs.Rooms.IsPrivateRoomAvailable(token) {
		return gs.fail(participant, msgPrivateNotFound)
	}
	_, err := gs.Rooms.JoinRoomFunc(token, participant, gs.startSeriesUnsafe)
	switch {
	case err == nil:
		gs.logger.WithFields(logrus.Fields{"room": token, "participant": participant}).Info("joined private room")
		return Reply{Result: game.ResultGameStart, Token: token}
	case errors.Is(err, game.ErrAlreadyInRoom):
		return gs.fail(participant, msgAlreadyInGame)
	case errors.Is(err, game.ErrRoomNotFound):
		return gs.fail(participant, msgPrivateNotFound)
	default:
		gs.logger.WithError(err).WithFields(logrus.Fields{"room": token, "participant": participant}).Info("private join rejected")
		return gs.fail(participant, msgJoinFailed)
	}
}

// MakeMove submits a move for the active round of the participant's room.
func (gs *GameServer) MakeMove(participant, moveText string) Reply {
	room, ok := gs.lockRoomOf(participant)
	if !ok {
		return gs.fail(participant, msgNotAllowedToMove)
	}
	defer room.Mu.Unlock()

	series, ok := room.SeriesUnsafe()
	if !ok {
		return gs.fail(participant, msgNoOpponentYet)
	}

	report, err := series.SubmitMove(participant, moveText)
	switch {
	case errors.Is(err, game.ErrAlreadySubmitted):
		return gs.fail(participant, msgAlreadyMoved)
	case errors.Is(err, game.ErrInvalidMove):
		return gs.fail(participant, msgInvalidMove)
	case err != nil:
		return gs.fail(participant, msgNotAllowedToMove)
	}

	switch report.Status {
	case game.RoundAborted:
		gs.abortRoundUnsafe(room, report)
		return Reply{Result: game.ResultGameEnd, Token: room.Token}
	case game.RoundPending:
		gs.Supervisor.CancelMoveUnsafe(room, participant)
		gs.Supervisor.TouchIdleUnsafe(room)
		gs.message(participant, msgWaitingForMove)
		return Reply{Result: game.ResultWaitingForPlayerToPlay, Token: room.Token}
	default:
		gs.Supervisor.TouchIdleUnsafe(room)
		gs.finishRoundUnsafe(room, report)
		return Reply{Result: game.ResultGameEnd, Token: room.Token}
	}
}

// LeaveGame closes the participant's room for everyone in it.
func (gs *GameServer) LeaveGame(participant string) Reply {
	room, ok := gs.lockRoomOf(participant)
	if !ok {
		return gs.fail(participant, msgNotInGame)
	}
	defer room.Mu.Unlock()

	others := room.OthersUnsafe(participant)
	gs.closeRoomUnsafe(room)

	for _, p := range others {
		gs.message(p, msgOpponentLeft)
		gs.notify(p, game.Event{Type: game.EventGameClosed, Token: room.Token})
	}
	gs.message(participant, msgDisconnected)
	gs.notify(participant, game.Event{Type: game.EventGameClosed, Token: room.Token})

	gs.logger.WithFields(logrus.Fields{"room": room.Token, "participant": participant}).Info("participant left, room closed")
	return Reply{Result: game.ResultGameClosed, Token: room.Token}
}

func (gs *GameServer) createRoom(participant string, private bool) Reply {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token := gs.Rooms.GenerateToken()
		_, err := gs.Rooms.CreateRoomFunc(token, private, participant, func(room *game.Room) {
			gs.Supervisor.ArmWaitUnsafe(room)
			if private {
				gs.message(participant, fmt.Sprintf(msgPrivateCreated, token))
			} else {
				gs.message(participant, msgWaitingForOpponent)
			}
		})
		switch {
		case err == nil:
			gs.logger.WithFields(logrus.Fields{
				"room":        token,
				"participant": participant,
				"private":     private,
			}).Info("room created")
			return Reply{Result: game.ResultWaitingForPlayerToJoin, Token: token}
		case errors.Is(err, game.ErrTokenTaken):
			gs.logger.WithField("room", token).Warn("token collision, regenerating")
			continue
		case errors.Is(err, game.ErrAlreadyInRoom):
			return gs.fail(participant, msgAlreadyInGame)
		default:
			gs.logger.WithError(err).WithField("participant", participant).Error("room creation failed")
			return gs.fail(participant, msgCreateFailed)
		}
	}
	return gs.fail(participant, msgCreateFailed)
}

// startSeriesUnsafe runs under the room lock once the second participant is seated.
func (gs *GameServer) startSeriesUnsafe(room *game.Room) {
	gs.Supervisor.CancelWaitUnsafe(room)
	gs.Supervisor.ArmRoundUnsafe(room)
	gs.Supervisor.TouchIdleUnsafe(room)

	gs.message(room.HostUnsafe(), msgOpponentJoined)
	for _, p := range room.ParticipantsUnsafe() {
		gs.message(p, msgGameReady)
		gs.notify(p, game.Event{Type: game.EventGameStart, Token: room.Token})
	}
}

func (gs *GameServer) finishRoundUnsafe(room *game.Room, report game.RoundReport) {
	for i, side := range report.Sides {
		opponent := report.Sides[1-i]
		outcome := side.Outcome
		gs.notify(side.Participant, game.Event{
			Type:  game.EventGameEnd,
			Token: room.Token,
			Summary: &game.RoundSummary{
				Round:        report.Round,
				YourMove:     side.Move,
				OpponentMove: opponent.Move,
				Outcome:      &outcome,
				Text:         side.Summary(opponent),
			},
		})
		gs.recordAsync(side.Participant, side.Outcome, side.Move)
	}
	gs.logger.WithFields(logrus.Fields{
		"room":  room.Token,
		"round": report.Round,
	}).Debug("round resolved")
	gs.Supervisor.ArmRoundUnsafe(room)
}

// abortRoundUnsafe reports a cancelled round. Sides[0] is the participant
// whose time ran out or who submitted Undefined.
func (gs *GameServer) abortRoundUnsafe(room *game.Room, report game.RoundReport) {
	expired, other := report.Sides[0], report.Sides[1]

	gs.notify(expired.Participant, game.Event{
		Type:  game.EventGameEnd,
		Token: room.Token,
		Summary: &game.RoundSummary{
			Round:        report.Round,
			Aborted:      true,
			YourMove:     expired.Move,
			OpponentMove: other.Move,
			Text:         msgYourTimeExpired,
		},
	})
	gs.notify(other.Participant, game.Event{
		Type:  game.EventGameEnd,
		Token: room.Token,
		Summary: &game.RoundSummary{
			Round:        report.Round,
			Aborted:      true,
			YourMove:     other.Move,
			OpponentMove: expired.Move,
			Text:         msgOpponentTimeExpired,
		},
	})
	gs.notify(other.Participant, game.Event{Type: game.EventGameAborted, Token: room.Token})

	gs.logger.WithFields(logrus.Fields{
		"room":        room.Token,
		"round":       report.Round,
		"participant": expired.Participant,
	}).Info("round aborted")
	gs.Supervisor.ArmRoundUnsafe(room)
}

func (gs *GameServer) closeRoomUnsafe(room *game.Room) {
	gs.Supervisor.CancelAllUnsafe(room)
	gs.Rooms.CloseRoomUnsafe(room)
}

func (gs *GameServer) handleWaitExpired(room *game.Room) {
	host := room.HostUnsafe()
	gs.closeRoomUnsafe(room)
	gs.message(host, msgNoOpponentJoined)
	gs.notify(host, game.Event{Type: game.EventGameClosed, Token: room.Token})
	gs.logger.WithFields(logrus.Fields{"room": room.Token, "participant": host}).Info("no opponent joined, room closed")
}

func (gs *GameServer) handleMoveExpired(room *game.Room, participant string) {
	series, ok := room.SeriesUnsafe()
	if !ok {
		return
	}
	report, ok := series.Expire(participant)
	if !ok {
		return
	}
	gs.abortRoundUnsafe(room, report)
}

func (gs *GameServer) handleIdleExpired(room *game.Room) {
	participants := room.ParticipantsUnsafe()
	gs.closeRoomUnsafe(room)
	for _, p := range participants {
		gs.message(p, msgClosedForInactivity)
		gs.notify(p, game.Event{Type: game.EventGameClosed, Token: room.Token})
	}
	gs.logger.WithField("room", room.Token).Info("series idle, room closed")
}

// lockRoomOf returns the participant's room with its lock held. A room that
// was closed between lookup and locking is skipped.
func (gs *GameServer) lockRoomOf(participant string) (*game.Room, bool) {
	for i := 0; i < maxParticipantLookups; i++ {
		room, ok := gs.Rooms.FindRoomByParticipant(participant)
		if !ok {
			return nil, false
		}
		room.Mu.Lock()
		if !room.IsClosedUnsafe() && room.HasParticipantUnsafe(participant) {
			return room, true
		}
		room.Mu.Unlock()
	}
	return nil, false
}

func (gs *GameServer) recordAsync(participant string, outcome game.Outcome, move game.Move) {
	if gs.Stats == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gs.StatsTimeout)
		defer cancel()
		if err := gs.Stats.Record(ctx, participant, outcome, move); err != nil {
			gs.logger.WithError(err).WithFields(logrus.Fields{
				"participant": participant,
				"outcome":     outcome,
			}).Warn("failed to record round statistics")
		}
	}()
}

func (gs *GameServer) fail(participant, message string) Reply {
	gs.notify(participant, game.Event{Type: game.EventErrorOccured, Message: message})
	return Reply{Result: game.ResultErrorOccured, Message: message}
}

func (gs *GameServer) message(participant, text string) {
	gs.notify(participant, game.Event{Type: game.EventReceiveMessage, Message: text})
}

func (gs *GameServer) notify(participant string, ev game.Event) {
	if gs.Notifier == nil || participant == "" {
		return
	}
	gs.Notifier.Notify(participant, ev)
}
