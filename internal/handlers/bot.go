// internal/handlers/bot.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jason-s-yu/rps/internal/auth"
	"github.com/jason-s-yu/rps/internal/game"
	"github.com/sirupsen/logrus"
)

// BotRoundResponse is the result of one round against the house.
type BotRoundResponse struct {
	UserMoveOption game.Move    `json:"userMoveOption"`
	BotMoveOption  game.Move    `json:"botMoveOption"`
	RoundResult    game.Outcome `json:"roundResult"`
}

// BotPlayHandler plays a single round against a random bot move. The body is
// either a bare move name or a JSON string.
func BotPlayHandler(logger *logrus.Logger, botMove func() game.Move) http.HandlerFunc {
	if botMove == nil {
		botMove = game.RandomMove
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		participant, err := auth.Participant(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 256))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		text := strings.TrimSpace(string(body))
		var quoted string
		if json.Unmarshal(body, &quoted) == nil {
			text = quoted
		}

		move, err := game.ParseMove(text)
		if err != nil || !move.Playable() {
			http.Error(w, "invalid move option", http.StatusBadRequest)
			return
		}

		bot := botMove()
		resp := BotRoundResponse{
			UserMoveOption: move,
			BotMoveOption:  bot,
			RoundResult:    game.Resolve(move, bot),
		}
		logger.WithFields(logrus.Fields{
			"participant": participant,
			"move":        move,
			"bot":         bot,
			"result":      resp.RoundResult,
		}).Debug("bot round")
		writeJSON(w, http.StatusOK, resp)
	}
}
