package services

import (
	"sync"
	"testing"
	"time"

	"naval-session-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTimers replaces the gocron scheduler in tests: deadlines fire
// only when the test says so.
type manualTimers struct {
	mu    sync.Mutex
	fires map[string]func()
}

func newManualTimers() *manualTimers {
	return &manualTimers{fires: make(map[string]func())}
}

func (m *manualTimers) Arm(key string, at time.Time, fire func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fires[key] = fire
}

func (m *manualTimers) Disarm(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fires, key)
}

// capture returns the currently armed callback without consuming it,
// so tests can replay a stale deadline.
func (m *manualTimers) capture(key string) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fires[key]
}

func (m *manualTimers) fire(key string) {
	m.mu.Lock()
	f := m.fires[key]
	delete(m.fires, key)
	m.mu.Unlock()
	if f != nil {
		f()
	}
}

type testEngine struct {
	store    Store
	events   *EventHub
	timers   *manualTimers
	registry *SessionRegistry
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	store := NewMemoryStore()
	events := NewEventHub()
	timers := newManualTimers()
	settlement := NewSettlementService(store, events)
	registry := NewSessionRegistry(store, events, timers, settlement)
	return &testEngine{store: store, events: events, timers: timers, registry: registry}
}

func fleetCells() []models.Cell {
	var cells []models.Cell
	for _, ship := range validFleet() {
		cells = append(cells, ship.Cells()...)
	}
	return cells
}

func openCells() []models.Cell {
	occupied := make(map[models.Cell]bool)
	for _, c := range fleetCells() {
		occupied[c] = true
	}
	var cells []models.Cell
	for y := 0; y < models.GridSize; y++ {
		for x := 0; x < models.GridSize; x++ {
			c := models.Cell{X: x, Y: y}
			if !occupied[c] {
				cells = append(cells, c)
			}
		}
	}
	return cells
}

// startedSession builds a free session with both boards committed and
// the game active.
func startedSession(t *testing.T, eng *testEngine) *GameSession {
	t.Helper()
	sess, err := eng.registry.CreatePaired("alice", "bob", "free", 0, nil)
	require.NoError(t, err)
	require.NoError(t, sess.SubmitBoard("alice", validFleet()))
	require.NoError(t, sess.SubmitBoard("bob", validFleet()))
	require.Equal(t, models.SessionActive, sess.Snapshot().Status)
	require.NotNil(t, sess.Snapshot().CurrentTurn)
	return sess
}

func TestSubmitBoardLifecycle(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := eng.registry.CreatePaired("alice", "bob", "free", 0, nil)
	require.NoError(t, err)

	require.Error(t, sess.SubmitBoard("mallory", validFleet()))
	assert.ErrorIs(t, sess.SubmitBoard("mallory", validFleet()), ErrNotParticipant)

	// Resubmission before lock-in overwrites.
	require.NoError(t, sess.SubmitBoard("alice", validFleet()))
	require.NoError(t, sess.SubmitBoard("alice", validFleet()))
	assert.Equal(t, models.SessionPlayersJoined, sess.Snapshot().Status)

	require.NoError(t, sess.SubmitBoard("bob", validFleet()))
	assert.Equal(t, models.SessionActive, sess.Snapshot().Status)

	// After lock-in resubmission is refused.
	assert.ErrorIs(t, sess.SubmitBoard("alice", validFleet()), ErrAlreadyCommitted)
}

func TestStakedSessionGatesStart(t *testing.T) {
	eng := newTestEngine(t)
	sess, err := eng.registry.CreatePaired("alice", "bob", "bronze", 5, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, sess.SubmitBoard("alice", validFleet()), ErrStakeNotConfirmed)

	sess.MarkStakeConfirmed("alice")
	sess.MarkStakeConfirmed("bob")
	require.NoError(t, sess.SubmitBoard("alice", validFleet()))
	require.NoError(t, sess.SubmitBoard("bob", validFleet()))

	// Both boards in, but the game contract is missing. The blocked
	// start must be reported on the stream, not swallowed.
	assert.Equal(t, models.SessionBoardsSubmitted, sess.Snapshot().Status)
	var blocked bool
	for _, ev := range eng.events.History(sess.ID()) {
		if ev.Type == EventError {
			data, ok := ev.Data.(ErrorEventData)
			if ok && data.Reason == ErrContractMissing.Error() {
				blocked = true
			}
		}
	}
	assert.True(t, blocked, "missing contract should surface as an error event")

	require.NoError(t, sess.RegisterGameContract("0xabc", "game-1"))
	assert.Equal(t, models.SessionActive, sess.Snapshot().Status)
}

func TestFireShotTurnOrder(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	first := *sess.Snapshot().CurrentTurn
	second := "alice"
	if first == "alice" {
		second = "bob"
	}

	_, err := sess.FireShot(second, 7, 7)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = sess.FireShot(first, 8, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	shot, err := sess.FireShot(first, 7, 7)
	require.NoError(t, err)
	assert.Equal(t, models.ShotMiss, shot.Result)
	assert.Equal(t, second, *sess.Snapshot().CurrentTurn)

	// Same cell on the same board is refused on the next turn.
	_, err = sess.FireShot(second, 0, 7)
	require.NoError(t, err)
	_, err = sess.FireShot(first, 7, 7)
	assert.ErrorIs(t, err, ErrAlreadyShot)
}

func TestFullGameToSettlement(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	winner := *sess.Snapshot().CurrentTurn
	loser := "alice"
	if winner == "alice" {
		loser = "bob"
	}

	targets := fleetCells()
	misses := openCells()
	for sess.Snapshot().Status == models.SessionActive {
		turn := *sess.Snapshot().CurrentTurn
		if turn == winner {
			c := targets[0]
			targets = targets[1:]
			shot, err := sess.FireShot(winner, c.X, c.Y)
			require.NoError(t, err)
			assert.Contains(t, []models.ShotOutcome{models.ShotHit, models.ShotSunk}, shot.Result)
		} else {
			c := misses[0]
			misses = misses[1:]
			shot, err := sess.FireShot(loser, c.X, c.Y)
			require.NoError(t, err)
			assert.Equal(t, models.ShotMiss, shot.Result)
		}
	}

	assert.Empty(t, targets, "all 17 ship cells should be needed")
	assert.Equal(t, models.SessionGameEndCompleted, sess.Snapshot().Status)

	rec, err := eng.store.GetScoreRecordBySession(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWin, rec.Outcome)
	assert.Equal(t, winner, rec.Winner)

	st, err := eng.store.GetStanding(winner)
	require.NoError(t, err)
	assert.Equal(t, PointsWin, st.TotalPoints)
	assert.Equal(t, int64(1), st.Wins)

	st, err = eng.store.GetStanding(loser)
	require.NoError(t, err)
	assert.Equal(t, PointsLoss, st.TotalPoints)
	assert.Equal(t, int64(1), st.Losses)
}

func TestTurnTimeoutForfeits(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	slow := *sess.Snapshot().CurrentTurn
	opponent := "alice"
	if slow == "alice" {
		opponent = "bob"
	}

	eng.timers.fire(sess.ID())

	snap := sess.Snapshot()
	assert.Equal(t, models.SessionGameEndCompleted, snap.Status)
	assert.Equal(t, models.ForfeitTimeout, snap.ForfeitReason)

	rec, err := eng.store.GetScoreRecordBySession(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWin, rec.Outcome)
	assert.Equal(t, opponent, rec.Winner)
}

func TestStaleTimeoutIsNoOp(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	turn := *sess.Snapshot().CurrentTurn

	// Grab the deadline armed for this turn, then let the shot land
	// before it fires.
	stale := eng.timers.capture(sess.ID())
	require.NotNil(t, stale)
	_, err := sess.FireShot(turn, 7, 7)
	require.NoError(t, err)

	stale()

	// The raced expiry must not forfeit anyone.
	assert.Equal(t, models.SessionActive, sess.Snapshot().Status)
}

func TestForfeitAndVoid(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	require.NoError(t, sess.Forfeit("alice", models.ForfeitPlayerQuit))
	snap := sess.Snapshot()
	assert.Equal(t, models.SessionGameEndCompleted, snap.Status)

	rec, err := eng.store.GetScoreRecordBySession(sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Winner)

	// A finished session cannot be forfeited again.
	assert.ErrorIs(t, sess.Forfeit("bob", models.ForfeitPlayerQuit), ErrWrongState)

	// Empty offender voids the session.
	eng2 := newTestEngine(t)
	sess2 := startedSession(t, eng2)
	require.NoError(t, sess2.Forfeit("", models.ForfeitPlayerQuit))
	rec2, err := eng2.store.GetScoreRecordBySession(sess2.ID())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeVoid, rec2.Outcome)
	assert.Empty(t, rec2.Winner)
	assert.Zero(t, rec2.Player1Points)
	assert.Zero(t, rec2.Player2Points)
}

func TestRematchMutualAcceptance(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)
	require.NoError(t, sess.Forfeit("alice", models.ForfeitPlayerQuit))

	require.NoError(t, sess.RequestRematch("alice"))
	assert.Equal(t, models.SessionRematchPending, sess.Snapshot().Status)

	newID, err := sess.AcceptRematch("bob")
	require.NoError(t, err)
	require.NotEmpty(t, newID)
	assert.Equal(t, models.SessionClosed, sess.Snapshot().Status)

	next, err := eng.registry.Get(newID)
	require.NoError(t, err)
	snap := next.Snapshot()
	assert.Equal(t, models.SessionPlayersJoined, snap.Status)
	require.NotNil(t, snap.RematchOfSessionID)
	assert.Equal(t, sess.ID(), *snap.RematchOfSessionID)
}

func TestRematchWindowExpires(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)
	require.NoError(t, sess.Forfeit("alice", models.ForfeitPlayerQuit))

	require.NoError(t, sess.RequestRematch("alice"))
	eng.timers.fire(sess.ID() + rematchTimerKey)

	assert.Equal(t, models.SessionClosed, sess.Snapshot().Status)
	_, err := sess.AcceptRematch("bob")
	assert.ErrorIs(t, err, ErrRematchExpired)
}

func TestRegistryDestroyRules(t *testing.T) {
	eng := newTestEngine(t)
	sess := startedSession(t, eng)

	// In-flight sessions are not destroyable.
	assert.ErrorIs(t, eng.registry.Destroy(sess.ID()), ErrWrongState)

	require.NoError(t, sess.Forfeit("alice", models.ForfeitPlayerQuit))
	require.NoError(t, eng.registry.Destroy(sess.ID()))
	_, err := eng.registry.Get(sess.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}
