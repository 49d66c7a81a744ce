package services

import (
	"log"
	"sync"
	"time"

	"naval-session-engine/models"

	"github.com/google/uuid"
)

// SessionRegistry is the process-wide owner of live sessions. It is
// the only component allowed to destroy one, and only after the
// session is terminal and settled.
type SessionRegistry struct {
	mu   sync.RWMutex
	live map[string]*GameSession

	store      Store
	events     *EventHub
	timers     TurnTimers
	settlement *SettlementService

	clock func() time.Time

	TurnTimeout   time.Duration
	RematchWindow time.Duration
}

// NewSessionRegistry wires the registry with its collaborators.
func NewSessionRegistry(store Store, events *EventHub, timers TurnTimers, settlement *SettlementService) *SessionRegistry {
	return &SessionRegistry{
		live:          make(map[string]*GameSession),
		store:         store,
		events:        events,
		timers:        timers,
		settlement:    settlement,
		clock:         time.Now,
		TurnTimeout:   60 * time.Second,
		RematchWindow: 30 * time.Second,
	}
}

// SetClock overrides the time source (tests).
func (r *SessionRegistry) SetClock(clock func() time.Time) { r.clock = clock }

func (r *SessionRegistry) newSession(state models.Session) (*GameSession, error) {
	state.LastActivityAt = r.clock()
	sess := &GameSession{
		state:        state,
		boards:       make(map[string]*models.Board),
		stakePending: make(map[string]bool),
		reg:          r,
	}
	if err := sess.persistLocked(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.live[state.ID] = sess
	r.mu.Unlock()
	return sess, nil
}

// CreatePaired registers a session with both players known up front
// (matchmaking pairings and rematches).
func (r *SessionRegistry) CreatePaired(player1, player2, stakeLevel string, stakeUSDC float64, rematchOf *string) (*GameSession, error) {
	state := models.Session{
		ID:                 uuid.NewString(),
		Status:             models.SessionPlayersJoined,
		Player1:            player1,
		Player2:            player2,
		StakeLevel:         stakeLevel,
		StakeAmountUSDC:    stakeUSDC,
		RematchOfSessionID: rematchOf,
	}
	sess, err := r.newSession(state)
	if err != nil {
		return nil, err
	}
	if stakeUSDC > 0 && rematchOf == nil {
		sess.stakePending[player1] = true
		sess.stakePending[player2] = true
	}
	r.events.Emit(state.ID, EventSessionState, sess.Snapshot())
	r.events.Emit(state.ID, EventPlayerJoined, PlayerEventData{Player: player1})
	r.events.Emit(state.ID, EventPlayerJoined, PlayerEventData{Player: player2})
	return sess, nil
}

// CreateWithCreator registers an invite-created session awaiting its
// second player.
func (r *SessionRegistry) CreateWithCreator(creator, stakeLevel string, stakeUSDC float64) (*GameSession, error) {
	state := models.Session{
		ID:              uuid.NewString(),
		Status:          models.SessionCreated,
		Player1:         creator,
		StakeLevel:      stakeLevel,
		StakeAmountUSDC: stakeUSDC,
	}
	sess, err := r.newSession(state)
	if err != nil {
		return nil, err
	}
	if stakeUSDC > 0 {
		sess.stakePending[creator] = true
	}
	r.events.Emit(state.ID, EventSessionState, sess.Snapshot())
	r.events.Emit(state.ID, EventPlayerJoined, PlayerEventData{Player: creator})
	return sess, nil
}

// Get returns the live session or ErrNotFound.
func (r *SessionRegistry) Get(id string) (*GameSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sess, ok := r.live[id]; ok {
		return sess, nil
	}
	return nil, ErrNotFound
}

// Destroy evicts a terminal, settled session from the registry and
// drops its event stream. Refused for anything still in flight.
func (r *SessionRegistry) Destroy(id string) error {
	r.mu.Lock()
	sess, ok := r.live[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if !sess.Destroyable() {
		return ErrWrongState
	}
	r.timers.Disarm(id)
	r.timers.Disarm(id + rematchTimerKey)
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
	r.events.Drop(id)
	log.Printf("[Registry] Destroyed session %s", id)
	return nil
}

// CloseIdleSessions closes completed sessions idle past maxIdle and
// evicts everything destroyable. Returns how many were evicted.
func (r *SessionRegistry) CloseIdleSessions(maxIdle time.Duration) int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	now := r.clock()
	evicted := 0
	for _, id := range ids {
		sess, err := r.Get(id)
		if err != nil {
			continue
		}
		if now.Sub(sess.IdleSince()) < maxIdle {
			continue
		}
		sess.mu.Lock()
		if sess.state.Status == models.SessionGameEndCompleted && !sess.rematchOpen {
			sess.closeRematchLocked()
		}
		sess.mu.Unlock()
		if err := r.Destroy(id); err == nil {
			evicted++
		}
	}
	return evicted
}

// LiveCount reports the number of registered sessions.
func (r *SessionRegistry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
