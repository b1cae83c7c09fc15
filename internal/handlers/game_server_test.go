// internal/handlers/game_server_test.go
package handlers

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/rps/internal/game"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog is a Notifier that keeps every event per participant.
type eventLog struct {
	mu     sync.Mutex
	events map[string][]game.Event
}

func newEventLog() *eventLog {
	return &eventLog{events: make(map[string][]game.Event)}
}

func (l *eventLog) Notify(participant string, ev game.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[participant] = append(l.events[participant], ev)
}

func (l *eventLog) of(participant string) []game.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]game.Event(nil), l.events[participant]...)
}

func (l *eventLog) ofType(participant string, typ game.EventType) []game.Event {
	var out []game.Event
	for _, ev := range l.of(participant) {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) messages(participant string) []string {
	var out []string
	for _, ev := range l.ofType(participant, game.EventReceiveMessage) {
		out = append(out, ev.Message)
	}
	return out
}

type recordedRound struct {
	participant string
	outcome     game.Outcome
	move        game.Move
}

type fakeRecorder struct {
	mu     sync.Mutex
	rounds []recordedRound
}

func (f *fakeRecorder) Record(_ context.Context, participant string, outcome game.Outcome, move game.Move) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds = append(f.rounds, recordedRound{participant, outcome, move})
	return nil
}

func (f *fakeRecorder) snapshot() []recordedRound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRound(nil), f.rounds...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T) (*GameServer, *clockwork.FakeClock, *eventLog, *fakeRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	events := newEventLog()
	stats := &fakeRecorder{}
	gs := NewGameServer(quietLogger(), clock, events, stats)
	gs.Supervisor.WaitTimeout = 10 * time.Second
	gs.Supervisor.MoveTimeout = 5 * time.Second
	gs.Supervisor.IdleTimeout = 60 * time.Second
	return gs, clock, events, stats
}

// startMatch seats alice and bob in a public room and returns its token.
func startMatch(t *testing.T, gs *GameServer) string {
	t.Helper()
	first := gs.FindPublicGame("alice")
	require.Equal(t, game.ResultWaitingForPlayerToJoin, first.Result)
	second := gs.FindPublicGame("bob")
	require.Equal(t, game.ResultGameStart, second.Result)
	require.Equal(t, first.Token, second.Token)
	return first.Token
}

func TestPublicMatchResolvesRound(t *testing.T) {
	gs, _, events, stats := newTestServer(t)
	token := startMatch(t, gs)

	assert.Contains(t, events.messages("alice"), msgWaitingForOpponent)
	assert.Contains(t, events.messages("alice"), msgOpponentJoined)
	assert.Len(t, events.ofType("alice", game.EventGameStart), 1)
	assert.Len(t, events.ofType("bob", game.EventGameStart), 1)

	r := gs.MakeMove("alice", "Rock")
	assert.Equal(t, game.ResultWaitingForPlayerToPlay, r.Result)
	assert.Contains(t, events.messages("alice"), msgWaitingForMove)

	r = gs.MakeMove("bob", "Scissors")
	assert.Equal(t, game.ResultGameEnd, r.Result)
	assert.Equal(t, token, r.Token)

	ends := events.ofType("alice", game.EventGameEnd)
	require.Len(t, ends, 1)
	sum := ends[0].Summary
	require.NotNil(t, sum)
	require.NotNil(t, sum.Outcome)
	assert.Equal(t, game.OutcomeWin, *sum.Outcome)
	assert.Equal(t, game.MoveRock, sum.YourMove)
	assert.Equal(t, game.MoveScissors, sum.OpponentMove)
	assert.Equal(t, "Your choice: Rock\nOpponent's choice: Scissors\nRound result: Win\n", sum.Text)

	ends = events.ofType("bob", game.EventGameEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, game.OutcomeLoss, *ends[0].Summary.Outcome)

	require.Eventually(t, func() bool { return len(stats.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	got := map[string]recordedRound{}
	for _, rr := range stats.snapshot() {
		got[rr.participant] = rr
	}
	assert.Equal(t, game.OutcomeWin, got["alice"].outcome)
	assert.Equal(t, game.MoveRock, got["alice"].move)
	assert.Equal(t, game.OutcomeLoss, got["bob"].outcome)

	// the series continues in the same room
	assert.Equal(t, game.ResultWaitingForPlayerToPlay, gs.MakeMove("bob", "Paper").Result)
}

func TestPrivateRoomFlow(t *testing.T) {
	gs, _, events, _ := newTestServer(t)

	r := gs.CreatePrivateRoom("alice")
	require.Equal(t, game.ResultWaitingForPlayerToJoin, r.Result)
	require.NotEmpty(t, r.Token)
	msgs := events.messages("alice")
	require.NotEmpty(t, msgs)
	assert.True(t, strings.HasSuffix(msgs[0], r.Token))

	// private rooms are invisible to matchmaking
	pub := gs.FindPublicGame("carol")
	assert.Equal(t, game.ResultWaitingForPlayerToJoin, pub.Result)
	assert.NotEqual(t, r.Token, pub.Token)

	bad := gs.JoinPrivateRoom("bob", "no-such-token")
	assert.Equal(t, game.ResultErrorOccured, bad.Result)
	assert.Equal(t, msgPrivateNotFound, bad.Message)
	require.Len(t, events.ofType("bob", game.EventErrorOccured), 1)

	// a public token is not joinable as a private one
	assert.Equal(t, game.ResultErrorOccured, gs.JoinPrivateRoom("bob", pub.Token).Result)

	ok := gs.JoinPrivateRoom("bob", r.Token)
	assert.Equal(t, game.ResultGameStart, ok.Result)
	assert.Equal(t, r.Token, ok.Token)

	full := gs.JoinPrivateRoom("dave", r.Token)
	assert.Equal(t, game.ResultErrorOccured, full.Result)
}

func TestDuplicateMoveRejected(t *testing.T) {
	gs, _, events, _ := newTestServer(t)
	startMatch(t, gs)

	require.Equal(t, game.ResultWaitingForPlayerToPlay, gs.MakeMove("alice", "Paper").Result)
	dup := gs.MakeMove("alice", "Scissors")
	assert.Equal(t, game.ResultErrorOccured, dup.Result)
	assert.Equal(t, msgAlreadyMoved, dup.Message)

	require.Equal(t, game.ResultGameEnd, gs.MakeMove("bob", "Rock").Result)
	ends := events.ofType("alice", game.EventGameEnd)
	require.Len(t, ends, 1)
	assert.Equal(t, game.MovePaper, ends[0].Summary.YourMove)
	assert.Equal(t, game.OutcomeWin, *ends[0].Summary.Outcome)
}

func TestMakeMoveErrors(t *testing.T) {
	gs, _, _, _ := newTestServer(t)

	r := gs.MakeMove("alice", "Rock")
	assert.Equal(t, msgNotAllowedToMove, r.Message)

	gs.CreatePrivateRoom("alice")
	r = gs.MakeMove("alice", "Rock")
	assert.Equal(t, msgNoOpponentYet, r.Message)

	gs.LeaveGame("alice")
	startMatch(t, gs)
	r = gs.MakeMove("alice", "lizard")
	assert.Equal(t, game.ResultErrorOccured, r.Result)
	assert.Equal(t, msgInvalidMove, r.Message)

	// invalid input left the slot empty
	assert.Equal(t, game.ResultWaitingForPlayerToPlay, gs.MakeMove("alice", "rock").Result)
}

func TestAlreadyInGame(t *testing.T) {
	gs, _, _, _ := newTestServer(t)
	gs.FindPublicGame("alice")

	r := gs.FindPublicGame("alice")
	assert.Equal(t, msgAlreadyInGame, r.Message)
	r = gs.CreatePrivateRoom("alice")
	assert.Equal(t, msgAlreadyInGame, r.Message)
	assert.Equal(t, 1, gs.Rooms.Len())
}

func TestUndefinedMoveAbortsRound(t *testing.T) {
	gs, _, events, stats := newTestServer(t)
	startMatch(t, gs)

	gs.MakeMove("bob", "Rock")
	r := gs.MakeMove("alice", "Undefined")
	assert.Equal(t, game.ResultGameEnd, r.Result)

	ends := events.ofType("alice", game.EventGameEnd)
	require.Len(t, ends, 1)
	assert.True(t, ends[0].Summary.Aborted)
	assert.Nil(t, ends[0].Summary.Outcome)
	assert.Len(t, events.ofType("bob", game.EventGameAborted), 1)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, stats.snapshot())
}

func TestMoveTimeoutAbortsRound(t *testing.T) {
	gs, clock, events, stats := newTestServer(t)
	startMatch(t, gs)

	gs.MakeMove("alice", "Rock")
	clock.Advance(6 * time.Second)

	require.Eventually(t, func() bool {
		return len(events.ofType("alice", game.EventGameAborted)) == 1
	}, time.Second, 5*time.Millisecond)

	bobEnds := events.ofType("bob", game.EventGameEnd)
	require.Len(t, bobEnds, 1)
	assert.Equal(t, msgYourTimeExpired, bobEnds[0].Summary.Text)
	aliceEnds := events.ofType("alice", game.EventGameEnd)
	require.Len(t, aliceEnds, 1)
	assert.Equal(t, msgOpponentTimeExpired, aliceEnds[0].Summary.Text)
	assert.Empty(t, events.ofType("bob", game.EventGameAborted))
	assert.Empty(t, stats.snapshot())

	// next round accepts moves again
	assert.Equal(t, game.ResultWaitingForPlayerToPlay, gs.MakeMove("alice", "Paper").Result)
}

func TestBothSilentBothExpire(t *testing.T) {
	gs, clock, events, _ := newTestServer(t)
	startMatch(t, gs)

	clock.Advance(6 * time.Second)
	// the first expiry aborts the round; the second timer finds the round
	// advanced and is ignored
	require.Eventually(t, func() bool {
		return len(events.ofType("alice", game.EventGameEnd)) >= 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, events.ofType("alice", game.EventGameEnd), 1)
	assert.Len(t, events.ofType("bob", game.EventGameEnd), 1)
}

func TestLeaveGameClosesRoom(t *testing.T) {
	gs, _, events, _ := newTestServer(t)
	token := startMatch(t, gs)

	r := gs.LeaveGame("bob")
	assert.Equal(t, game.ResultGameClosed, r.Result)
	assert.Equal(t, token, r.Token)

	assert.Contains(t, events.messages("alice"), msgOpponentLeft)
	assert.Contains(t, events.messages("bob"), msgDisconnected)
	assert.Len(t, events.ofType("alice", game.EventGameClosed), 1)
	assert.Len(t, events.ofType("bob", game.EventGameClosed), 1)
	assert.Zero(t, gs.Rooms.Len())

	assert.Equal(t, msgNotInGame, gs.LeaveGame("bob").Message)
	assert.Equal(t, msgNotAllowedToMove, gs.MakeMove("alice", "Rock").Message)

	// both are free to play again
	startMatch(t, gs)
}

func TestWaitTimeoutClosesLonelyRoom(t *testing.T) {
	gs, clock, events, _ := newTestServer(t)
	r := gs.CreatePrivateRoom("alice")

	clock.Advance(11 * time.Second)
	require.Eventually(t, func() bool {
		return len(events.ofType("alice", game.EventGameClosed)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, events.messages("alice"), msgNoOpponentJoined)
	assert.Zero(t, gs.Rooms.Len())

	assert.Equal(t, game.ResultErrorOccured, gs.JoinPrivateRoom("bob", r.Token).Result)
}

func TestIdleTimeoutClosesSeries(t *testing.T) {
	gs, clock, events, _ := newTestServer(t)
	gs.Supervisor.MoveTimeout = time.Hour
	startMatch(t, gs)

	clock.Advance(61 * time.Second)
	require.Eventually(t, func() bool {
		return len(events.ofType("bob", game.EventGameClosed)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, events.messages("alice"), msgClosedForInactivity)
	assert.Zero(t, gs.Rooms.Len())
}

func TestConcurrentMatchmakingPairsEveryone(t *testing.T) {
	gs, _, _, _ := newTestServer(t)
	const players = 40

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			gs.FindPublicGame(p)
		}("p" + string(rune('A'+i)))
	}
	wg.Wait()

	seated := 0
	for _, info := range gs.Rooms.Snapshot() {
		assert.LessOrEqual(t, info.Participants, 2)
		assert.Equal(t, info.Open, info.Participants == 1)
		seated += info.Participants
	}
	assert.Equal(t, players, seated, "every participant sits in exactly one room")
}

func TestCreateRoomRegeneratesCollidingToken(t *testing.T) {
	gs, _, events, _ := newTestServer(t)
	var mu sync.Mutex
	tokens := []string{"dup", "dup", "fresh"}
	gs.Rooms.NewToken = func() string {
		mu.Lock()
		defer mu.Unlock()
		tok := tokens[0]
		tokens = tokens[1:]
		return tok
	}

	first := gs.CreatePrivateRoom("alice")
	require.Equal(t, game.ResultWaitingForPlayerToJoin, first.Result)
	require.Equal(t, "dup", first.Token)

	second := gs.CreatePrivateRoom("bob")
	assert.Equal(t, game.ResultWaitingForPlayerToJoin, second.Result)
	assert.Equal(t, "fresh", second.Token)
	assert.Empty(t, events.ofType("bob", game.EventErrorOccured))
	assert.Equal(t, 2, gs.Rooms.Len())
}

// stallingRecorder blocks until released and then fails.
type stallingRecorder struct {
	release chan struct{}
}

func (s *stallingRecorder) Record(ctx context.Context, _ string, _ game.Outcome, _ game.Move) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return errors.New("stats store unavailable")
}

func TestFailingStatsNeverDelayRoundEnd(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	clock := clockwork.NewFakeClock()
	events := newEventLog()
	rec := &stallingRecorder{release: make(chan struct{})}
	gs := NewGameServer(logger, clock, events, rec)
	gs.StatsTimeout = time.Hour
	startMatch(t, gs)

	require.Equal(t, game.ResultWaitingForPlayerToPlay, gs.MakeMove("alice", "Rock").Result)
	r := gs.MakeMove("bob", "Paper")
	assert.Equal(t, game.ResultGameEnd, r.Result)
	assert.Empty(t, r.Message)
	require.Len(t, events.ofType("alice", game.EventGameEnd), 1)
	require.Len(t, events.ofType("bob", game.EventGameEnd), 1)

	close(rec.release)
	require.Eventually(t, func() bool {
		warnings := 0
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && e.Message == "failed to record round statistics" {
				warnings++
			}
		}
		return warnings == 2
	}, time.Second, 5*time.Millisecond)

	// the series carries on
	assert.Equal(t, game.ResultWaitingForPlayerToPlay, gs.MakeMove("alice", "Scissors").Result)
}

func TestFindPublicGameOpensRoomAfterLostRaces(t *testing.T) {
	gs, _, _, _ := newTestServer(t)

	var rooms []*game.Room
	for _, host := range []string{"carol", "dave", "erin"} {
		r := gs.FindPublicGame(host)
		require.Equal(t, game.ResultWaitingForPlayerToJoin, r.Result)
		room, ok := gs.Rooms.GetRoom(r.Token)
		require.True(t, ok)
		room.Mu.Lock()
		rooms = append(rooms, room)
	}

	done := make(chan Reply, 1)
	go func() { done <- gs.FindPublicGame("bob") }()

	// each room bob reaches is torn down before he gets its lock
	for _, room := range rooms {
		time.Sleep(20 * time.Millisecond)
		gs.closeRoomUnsafe(room)
		room.Mu.Unlock()
	}

	select {
	case r := <-done:
		assert.Equal(t, game.ResultWaitingForPlayerToJoin, r.Result)
		assert.NotEmpty(t, r.Token)
		room, ok := gs.Rooms.FindRoomByParticipant("bob")
		require.True(t, ok)
		assert.Equal(t, r.Token, room.Token)
	case <-time.After(time.Second):
		t.Fatal("FindPublicGame did not return")
	}
}
