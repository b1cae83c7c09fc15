// internal/handlers/connections.go
package handlers

import (
	"context"
	"sync"

	"github.com/jason-s-yu/rps/internal/game"
	"github.com/sirupsen/logrus"
)

// Connection is one participant's live socket as seen by the rest of the
// server: a buffered outbound queue drained by the write pump.
type Connection struct {
	Participant string
	OutChan     chan any
	Cancel      context.CancelFunc

	closeOnce sync.Once
}

// NewConnection allocates the outbound queue for participant.
func NewConnection(participant string, cancel context.CancelFunc, buffer int) *Connection {
	return &Connection{
		Participant: participant,
		OutChan:     make(chan any, buffer),
		Cancel:      cancel,
	}
}

// Write queues msg without blocking. It reports false when the queue is full.
func (c *Connection) Write(msg any) bool {
	select {
	case c.OutChan <- msg:
		return true
	default:
		return false
	}
}

// Close stops the connection's goroutines. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.Cancel != nil {
			c.Cancel()
		}
	})
}

// ConnectionHub maps participants to their live connection and implements
// game.Notifier on top of it.
type ConnectionHub struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	logger *logrus.Logger
}

// NewConnectionHub returns an empty hub.
func NewConnectionHub(logger *logrus.Logger) *ConnectionHub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConnectionHub{
		conns:  make(map[string]*Connection),
		logger: logger,
	}
}

// Register makes conn the participant's delivery target, closing any
// connection it replaces.
func (h *ConnectionHub) Register(conn *Connection) {
	h.mu.Lock()
	old, had := h.conns[conn.Participant]
	h.conns[conn.Participant] = conn
	h.mu.Unlock()

	if had && old != conn {
		h.logger.WithField("participant", conn.Participant).Info("replacing existing connection")
		old.Close()
	}
}

// Unregister removes conn if it is still the participant's current connection.
func (h *ConnectionHub) Unregister(conn *Connection) {
	h.mu.Lock()
	if cur, ok := h.conns[conn.Participant]; ok && cur == conn {
		delete(h.conns, conn.Participant)
	}
	h.mu.Unlock()
	conn.Close()
}

// Connected reports whether participant has a registered connection.
func (h *ConnectionHub) Connected(participant string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[participant]
	return ok
}

// Notify queues ev for participant. Events for offline participants are dropped.
func (h *ConnectionHub) Notify(participant string, ev game.Event) {
	h.mu.RLock()
	conn, ok := h.conns[participant]
	h.mu.RUnlock()
	if !ok {
		h.logger.WithFields(logrus.Fields{
			"participant": participant,
			"event":       ev.Type,
		}).Debug("participant offline, event dropped")
		return
	}
	if !conn.Write(ev) {
		h.logger.WithFields(logrus.Fields{
			"participant": participant,
			"event":       ev.Type,
		}).Warn("outbound queue full, event dropped")
	}
}
