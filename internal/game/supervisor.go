// internal/game/supervisor.go
package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Default deadlines.
const (
	DefaultWaitTimeout = 60 * time.Second
	DefaultMoveTimeout = 20 * time.Second
	DefaultIdleTimeout = 300 * time.Second
)

// Supervisor owns the three deadlines attached to a room: waiting for an
// opponent, waiting for each participant's move and waiting for any activity
// in a running series.
//
// All Arm/Cancel methods expect the room lock to be held. Expiry hooks are
// called with the room lock held and only when the timer is still current, so
// a callback racing with the transition that cancelled it becomes a no-op.
type Supervisor struct {
	clock  clockwork.Clock
	logger *logrus.Logger

	WaitTimeout time.Duration
	MoveTimeout time.Duration
	IdleTimeout time.Duration

	// OnWaitExpired fires when nobody joined a waiting room in time.
	OnWaitExpired func(room *Room)
	// OnMoveExpired fires when participant did not move before the deadline.
	OnMoveExpired func(room *Room, participant string)
	// OnIdleExpired fires when an active series saw no moves for IdleTimeout.
	OnIdleExpired func(room *Room)
}

// NewSupervisor returns a supervisor with default deadlines. A nil clock means
// the real clock.
func NewSupervisor(clock clockwork.Clock, logger *logrus.Logger) *Supervisor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Supervisor{
		clock:       clock,
		logger:      logger,
		WaitTimeout: DefaultWaitTimeout,
		MoveTimeout: DefaultMoveTimeout,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// ArmWaitUnsafe starts the opponent-wait deadline for a freshly created room.
func (s *Supervisor) ArmWaitUnsafe(room *Room) {
	s.arm(room, &room.timers.wait, s.WaitTimeout, "wait", func() {
		if !room.IsWaitingUnsafe() {
			return
		}
		if s.OnWaitExpired != nil {
			s.OnWaitExpired(room)
		}
	})
}

// CancelWaitUnsafe stops the opponent-wait deadline.
func (s *Supervisor) CancelWaitUnsafe(room *Room) {
	cancelSlot(&room.timers.wait)
}

// ArmRoundUnsafe (re)starts both participants' move deadlines for the active
// round. It is a no-op for a room that is not playing.
func (s *Supervisor) ArmRoundUnsafe(room *Room) {
	series, ok := room.SeriesUnsafe()
	if !ok {
		return
	}
	host, guest := series.Participants()
	round := series.Round()
	for i, participant := range [2]string{host, guest} {
		participant := participant
		s.arm(room, &room.timers.move[i], s.MoveTimeout, "move", func() {
			current, ok := room.SeriesUnsafe()
			if !ok || current.Round() != round || current.HasSubmitted(participant) {
				return
			}
			if s.OnMoveExpired != nil {
				s.OnMoveExpired(room, participant)
			}
		})
	}
}

// CancelMoveUnsafe stops the move deadline of one participant.
func (s *Supervisor) CancelMoveUnsafe(room *Room, participant string) {
	series, ok := room.SeriesUnsafe()
	if !ok {
		return
	}
	host, _ := series.Participants()
	if participant == host {
		cancelSlot(&room.timers.move[0])
	} else {
		cancelSlot(&room.timers.move[1])
	}
}

// TouchIdleUnsafe restarts the series-idle deadline.
func (s *Supervisor) TouchIdleUnsafe(room *Room) {
	s.arm(room, &room.timers.idle, s.IdleTimeout, "idle", func() {
		if _, ok := room.SeriesUnsafe(); !ok {
			return
		}
		if s.OnIdleExpired != nil {
			s.OnIdleExpired(room)
		}
	})
}

// CancelAllUnsafe stops every deadline attached to the room.
func (s *Supervisor) CancelAllUnsafe(room *Room) {
	cancelSlot(&room.timers.wait)
	cancelSlot(&room.timers.idle)
	for i := range room.timers.move {
		cancelSlot(&room.timers.move[i])
	}
}

// arm replaces whatever timer occupies ts. The callback hops onto its own
// goroutine before taking the room lock so the clock never blocks on it.
func (s *Supervisor) arm(room *Room, ts *timerSlot, d time.Duration, kind string, fire func()) {
	cancelSlot(ts)
	gen := ts.gen
	ts.t = s.clock.AfterFunc(d, func() {
		go func() {
			room.Mu.Lock()
			defer room.Mu.Unlock()
			if room.closed || ts.gen != gen {
				s.logger.WithFields(logrus.Fields{
					"room":  room.Token,
					"timer": kind,
				}).Trace("stale timer ignored")
				return
			}
			ts.t = nil
			s.logger.WithFields(logrus.Fields{
				"room":  room.Token,
				"timer": kind,
			}).Debug("timer expired")
			fire()
		}()
	})
}

func cancelSlot(ts *timerSlot) {
	if ts.t != nil {
		ts.t.Stop()
		ts.t = nil
	}
	ts.gen++
}
