package game

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expiryLog collects hook invocations from the supervisor.
type expiryLog struct {
	mu   sync.Mutex
	wait []string
	move []string
	idle []string
}

func (l *expiryLog) snapshot() (wait, move, idle []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.wait...), append([]string(nil), l.move...), append([]string(nil), l.idle...)
}

func setupSupervisor(t *testing.T) (*Supervisor, *clockwork.FakeClock, *RoomStore, *expiryLog) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	sup := NewSupervisor(clock, logger)
	sup.WaitTimeout = 10 * time.Second
	sup.MoveTimeout = 5 * time.Second
	sup.IdleTimeout = 30 * time.Second

	log := &expiryLog{}
	sup.OnWaitExpired = func(room *Room) {
		log.mu.Lock()
		defer log.mu.Unlock()
		log.wait = append(log.wait, room.Token)
	}
	sup.OnMoveExpired = func(room *Room, participant string) {
		log.mu.Lock()
		defer log.mu.Unlock()
		log.move = append(log.move, participant)
	}
	sup.OnIdleExpired = func(room *Room) {
		log.mu.Lock()
		defer log.mu.Unlock()
		log.idle = append(log.idle, room.Token)
	}
	return sup, clock, NewRoomStore(), log
}

func TestWaitTimerFiresForLonelyRoom(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	_, err := store.CreateRoomFunc("T", false, "alice", sup.ArmWaitUnsafe)
	require.NoError(t, err)

	clock.Advance(9 * time.Second)
	time.Sleep(10 * time.Millisecond)
	wait, _, _ := log.snapshot()
	assert.Empty(t, wait)

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool {
		wait, _, _ := log.snapshot()
		return len(wait) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWaitTimerCancelledByJoin(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	_, err := store.CreateRoomFunc("T", false, "alice", sup.ArmWaitUnsafe)
	require.NoError(t, err)
	_, err = store.JoinRoomFunc("T", "bob", sup.CancelWaitUnsafe)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	wait, _, _ := log.snapshot()
	assert.Empty(t, wait)
}

func TestMoveTimersTargetSilentParticipant(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	_, err := store.CreateRoom("T", false, "alice")
	require.NoError(t, err)
	room, err := store.JoinRoomFunc("T", "bob", sup.ArmRoundUnsafe)
	require.NoError(t, err)

	room.Mu.Lock()
	series, _ := room.SeriesUnsafe()
	_, err = series.SubmitMove("alice", "Rock")
	require.NoError(t, err)
	sup.CancelMoveUnsafe(room, "alice")
	room.Mu.Unlock()

	clock.Advance(6 * time.Second)
	require.Eventually(t, func() bool {
		_, move, _ := log.snapshot()
		return len(move) == 1
	}, time.Second, 5*time.Millisecond)
	_, move, _ := log.snapshot()
	assert.Equal(t, []string{"bob"}, move)
}

func TestMoveTimerStaleAfterRoundAdvances(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	_, err := store.CreateRoom("T", false, "alice")
	require.NoError(t, err)
	room, err := store.JoinRoomFunc("T", "bob", sup.ArmRoundUnsafe)
	require.NoError(t, err)

	// round 1 resolves without cancelling timers; the old timers must not
	// act on round 2
	room.Mu.Lock()
	series, _ := room.SeriesUnsafe()
	_, err = series.SubmitMove("alice", "Rock")
	require.NoError(t, err)
	_, err = series.SubmitMove("bob", "Paper")
	require.NoError(t, err)
	room.Mu.Unlock()

	clock.Advance(6 * time.Second)
	time.Sleep(20 * time.Millisecond)
	_, move, _ := log.snapshot()
	assert.Empty(t, move)
}

func TestIdleTimerRestartsOnTouch(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	_, err := store.CreateRoom("T", false, "alice")
	require.NoError(t, err)
	room, err := store.JoinRoomFunc("T", "bob", sup.TouchIdleUnsafe)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	room.Mu.Lock()
	sup.TouchIdleUnsafe(room)
	room.Mu.Unlock()

	clock.Advance(20 * time.Second)
	time.Sleep(20 * time.Millisecond)
	_, _, idle := log.snapshot()
	assert.Empty(t, idle, "touch at 20s pushes the deadline to 50s")

	clock.Advance(11 * time.Second)
	require.Eventually(t, func() bool {
		_, _, idle := log.snapshot()
		return len(idle) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCancelAllSilencesRoom(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	_, err := store.CreateRoom("T", false, "alice")
	require.NoError(t, err)
	room, err := store.JoinRoomFunc("T", "bob", func(r *Room) {
		sup.ArmRoundUnsafe(r)
		sup.TouchIdleUnsafe(r)
	})
	require.NoError(t, err)

	room.Mu.Lock()
	sup.CancelAllUnsafe(room)
	store.CloseRoomUnsafe(room)
	room.Mu.Unlock()

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	wait, move, idle := log.snapshot()
	assert.Empty(t, wait)
	assert.Empty(t, move)
	assert.Empty(t, idle)
}

func TestClosedRoomIgnoresFiredTimer(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	room, err := store.CreateRoomFunc("T", false, "alice", sup.ArmWaitUnsafe)
	require.NoError(t, err)

	// hold the lock across expiry so the callback is parked, then close
	room.Mu.Lock()
	clock.Advance(11 * time.Second)
	time.Sleep(20 * time.Millisecond)
	store.CloseRoomUnsafe(room)
	room.Mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	wait, _, _ := log.snapshot()
	assert.Empty(t, wait)
}

func TestDeletedRoomIgnoresArmedTimers(t *testing.T) {
	sup, clock, store, log := setupSupervisor(t)
	room, err := store.CreateRoomFunc("T", false, "alice", sup.ArmWaitUnsafe)
	require.NoError(t, err)

	require.True(t, store.DeleteRoom("T"))
	room.Mu.Lock()
	assert.True(t, room.IsClosedUnsafe())
	room.Mu.Unlock()

	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	wait, _, _ := log.snapshot()
	assert.Empty(t, wait)
}
