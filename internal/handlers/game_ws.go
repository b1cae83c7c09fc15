// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/rps/internal/auth"
	"github.com/jason-s-yu/rps/internal/game"
	"github.com/jason-s-yu/rps/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Subprotocol clients must request when dialing /game/ws.
const Subprotocol = "rps"

const (
	outboundBuffer = 64
	pingInterval   = 30 * time.Second
	writeTimeout   = 5 * time.Second
)

// Client operations accepted on the socket.
const (
	OpCreatePrivateRoom = "create_private_room"
	OpFindPublicGame    = "find_public_game"
	OpJoinPrivateRoom   = "join_private_room"
	OpMakeMove          = "make_move"
	OpLeaveGame         = "leave_game"
	OpPing              = "ping"
)

// ClientMessage is one request read from the socket.
type ClientMessage struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	Move      string `json:"move,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ResultMessage answers a ClientMessage. Push events travel on the same socket
// with their own type.
type ResultMessage struct {
	Type      string `json:"type"`
	Op        string `json:"op"`
	RequestID string `json:"requestId,omitempty"`
	Reply
}

// WSOptions tunes the socket handler.
type WSOptions struct {
	OriginPatterns []string
}

// GameWSHandler authenticates the caller (issuing a guest identity if needed),
// upgrades to a websocket and routes its requests to gs. Events for the
// participant are delivered through hub.
func GameWSHandler(logger *logrus.Logger, gs *GameServer, hub *ConnectionHub, opts WSOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// resolved before the upgrade so a guest cookie rides on the 101 response
		participant, err := auth.EnsureParticipant(w, r)
		if err != nil {
			logger.WithError(err).Warn("failed to resolve participant")
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept failed")
			return
		}
		defer c.CloseNow()

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, fmt.Sprintf("client must use the %q subprotocol", Subprotocol))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := NewConnection(participant, cancel, outboundBuffer)
		hub.Register(conn)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path, participant)

		go writePump(ctx, c, conn, logger)
		err = readPump(ctx, c, conn, gs, logger)

		// A dropped socket does not touch the room; its timers settle it.
		hub.Unregister(conn)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, participant, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump handles requests until the socket closes or ctx is cancelled.
func readPump(ctx context.Context, c *websocket.Conn, conn *Connection, gs *GameServer, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			conn.Write(errorMessage("", "", "binary messages are not supported"))
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Write(errorMessage("", "", "invalid JSON format"))
			continue
		}

		logger.WithFields(logrus.Fields{
			"participant": conn.Participant,
			"op":          msg.Type,
		}).Debug("ws request")

		if msg.Type == OpPing {
			conn.Write(map[string]string{"type": "pong", "requestId": msg.RequestID})
			continue
		}

		reply, ok := dispatch(gs, conn.Participant, msg)
		if !ok {
			conn.Write(errorMessage(msg.Type, msg.RequestID, fmt.Sprintf("unknown message type: %s", msg.Type)))
			continue
		}
		conn.Write(ResultMessage{Type: "result", Op: msg.Type, RequestID: msg.RequestID, Reply: reply})
	}
}

func dispatch(gs *GameServer, participant string, msg ClientMessage) (Reply, bool) {
	switch msg.Type {
	case OpCreatePrivateRoom:
		return gs.CreatePrivateRoom(participant), true
	case OpFindPublicGame:
		return gs.FindPublicGame(participant), true
	case OpJoinPrivateRoom:
		return gs.JoinPrivateRoom(participant, msg.Token), true
	case OpMakeMove:
		return gs.MakeMove(participant, msg.Move), true
	case OpLeaveGame:
		return gs.LeaveGame(participant), true
	}
	return Reply{}, false
}

func errorMessage(op, requestID, text string) ResultMessage {
	return ResultMessage{
		Type:      "error",
		Op:        op,
		RequestID: requestID,
		Reply:     Reply{Result: game.ResultErrorOccured, Message: text},
	}
}

// writePump drains conn.OutChan onto the socket and keeps it alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.WithError(err).WithField("participant", conn.Participant).Warn("failed to marshal outgoing message")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("participant", conn.Participant).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("participant", conn.Participant).Debug("ping failed, assuming disconnect")
				return
			}
		}
	}
}
