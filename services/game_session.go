package services

import (
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"naval-session-engine/models"
)

// Typed payloads for the session event stream. Together with EventType
// these form the exhaustive message union clients switch on.
type PlayerEventData struct {
	Player string `json:"player"`
}

type GameStartedData struct {
	StartingPlayer string `json:"starting_player"`
	TurnSeconds    int    `json:"turn_seconds"`
}

type ShotFiredData struct {
	Player string `json:"player"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type ShotResultData struct {
	Player   string             `json:"player"`
	X        int                `json:"x"`
	Y        int                `json:"y"`
	Result   models.ShotOutcome `json:"result"`
	Variant  models.ShipVariant `json:"variant,omitempty"`
	NextTurn string             `json:"next_turn,omitempty"`
}

type GameEndData struct {
	Outcome models.GameOutcome   `json:"outcome"`
	Winner  string               `json:"winner,omitempty"`
	Reason  models.ForfeitReason `json:"reason,omitempty"`
}

type RematchProposalData struct {
	RequestedBy string    `json:"requested_by"`
	Deadline    time.Time `json:"deadline"`
}

type RematchReadyData struct {
	NewSessionID string `json:"new_session_id"`
}

type ErrorEventData struct {
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

// GameSession is the per-match state machine. Every transition runs
// under one mutex, which is the single serialization point for the
// shot/timeout race. Boards and the shot history are in-memory and
// owned exclusively by this struct.
type GameSession struct {
	mu    sync.Mutex
	state models.Session

	boards map[string]*models.Board
	shots  []models.Shot

	// turnEpoch increments on every turn handoff. A timeout that
	// captured an older epoch lost the race and must be a no-op.
	turnEpoch int64

	// stakePending holds players whose on-chain stake is not yet
	// confirmed; board submission is refused while any remain.
	stakePending map[string]bool

	rematchOpen     bool
	rematchDeadline time.Time
	rematchVotes    map[string]bool

	reg *SessionRegistry
}

// Snapshot returns a copy of the durable session state.
func (s *GameSession) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the session id (immutable, safe without the lock).
func (s *GameSession) ID() string { return s.state.ID }

func (s *GameSession) isParticipant(player string) bool {
	return player != "" && (player == s.state.Player1 || player == s.state.Player2)
}

// startingPlayer is a deterministic coin flip seeded from the session
// id, so both sides can verify the assignment.
func (s *GameSession) startingPlayer() string {
	h := fnv.New32a()
	h.Write([]byte(s.state.ID))
	if h.Sum32()%2 == 0 {
		return s.state.Player1
	}
	return s.state.Player2
}

// persistLocked writes the session row with bounded retries. Callers
// hold s.mu. A persistent store failure is returned for the caller to
// escalate; it is never silently swallowed.
func (s *GameSession) persistLocked() error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = s.reg.store.SaveSession(&s.state); err == nil {
			return nil
		}
		log.Printf("[Session %s] Save attempt %d failed: %v", s.state.ID, attempt, err)
	}
	return err
}

func (s *GameSession) touchLocked() {
	s.state.LastActivityAt = s.reg.clock()
}

// Join attaches the second player to an invite-created session.
func (s *GameSession) Join(player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != models.SessionCreated {
		return ErrWrongState
	}
	if player == "" || player == s.state.Player1 {
		return ErrSelfJoin
	}
	s.state.Player2 = player
	s.state.Status = models.SessionPlayersJoined
	if s.state.StakeAmountUSDC > 0 {
		s.stakePending[player] = true
	}
	s.touchLocked()
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.reg.events.Emit(s.state.ID, EventPlayerJoined, PlayerEventData{Player: player})
	s.reg.events.Emit(s.state.ID, EventSessionState, s.state)
	return nil
}

// MarkStakeConfirmed clears a player's pending on-chain stake.
func (s *GameSession) MarkStakeConfirmed(player string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stakePending[player] {
		return
	}
	delete(s.stakePending, player)
	s.reg.events.Emit(s.state.ID, EventMessage, fmt.Sprintf("stake confirmed for %s", player))
	s.maybeStartLocked()
}

// RegisterGameContract associates on-chain identifiers with the
// session. Required before a staked session may go active.
func (s *GameSession) RegisterGameContract(contractAddress, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case models.SessionCreated, models.SessionPlayersJoined, models.SessionBoardsSubmitted:
	default:
		return ErrWrongState
	}
	s.state.GameContractAddress = contractAddress
	s.state.GameID = gameID
	s.touchLocked()
	if err := s.persistLocked(); err != nil {
		return err
	}
	s.reg.events.Emit(s.state.ID, EventMessage, fmt.Sprintf("game contract registered: %s", contractAddress))
	s.maybeStartLocked()
	return nil
}

// SubmitBoard validates and commits a player's fleet. Resubmission
// before the game locks in overwrites; after that it is rejected.
func (s *GameSession) SubmitBoard(player string, ships []models.Ship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isParticipant(player) {
		return ErrNotParticipant
	}
	switch s.state.Status {
	case models.SessionPlayersJoined:
	case models.SessionBoardsSubmitted, models.SessionActive:
		return ErrAlreadyCommitted
	default:
		return ErrWrongState
	}
	if len(s.stakePending) > 0 {
		return ErrStakeNotConfirmed
	}
	if err := ValidateFleet(ships); err != nil {
		return err
	}
	s.boards[player] = models.NewBoard(player, ships)
	s.boards[player].Committed = true
	s.touchLocked()
	s.reg.events.Emit(s.state.ID, EventBoardSubmitted, PlayerEventData{Player: player})

	if len(s.boards) == 2 {
		s.state.Status = models.SessionBoardsSubmitted
		if err := s.persistLocked(); err != nil {
			return err
		}
		s.reg.events.Emit(s.state.ID, EventSessionState, s.state)
		s.maybeStartLocked()
	}
	return nil
}

// maybeStartLocked moves boards_submitted → active once every
// precondition holds: both boards committed, stakes confirmed, and the
// game contract registered for staked sessions.
func (s *GameSession) maybeStartLocked() {
	if s.state.Status != models.SessionBoardsSubmitted {
		return
	}
	if len(s.boards) != 2 || len(s.stakePending) > 0 {
		return
	}
	if s.state.StakeAmountUSDC > 0 && s.state.GameContractAddress == "" {
		// Every other precondition holds; tell subscribers what the
		// start is still waiting on instead of stalling silently.
		s.reg.events.Emit(s.state.ID, EventError, ErrorEventData{Op: "game_start", Reason: ErrContractMissing.Error()})
		return
	}
	start := s.startingPlayer()
	s.state.CurrentTurn = &start
	s.state.Status = models.SessionActive
	s.turnEpoch++
	s.touchLocked()
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist game start: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventGameStarted, GameStartedData{
		StartingPlayer: start,
		TurnSeconds:    int(s.reg.TurnTimeout.Seconds()),
	})
	s.armTurnTimerLocked()
}

func (s *GameSession) armTurnTimerLocked() {
	epoch := s.turnEpoch
	s.reg.timers.Arm(s.state.ID, s.reg.clock().Add(s.reg.TurnTimeout), func() {
		s.handleTurnTimeout(epoch)
	})
}

// handleTurnTimeout is the timer-expiry entry point. The epoch check
// under the session lock makes a stale expiry a no-op: a shot accepted
// before the timer fired has already advanced the epoch.
func (s *GameSession) handleTurnTimeout(epoch int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != models.SessionActive || epoch != s.turnEpoch || s.state.CurrentTurn == nil {
		return
	}
	offender := *s.state.CurrentTurn
	s.reg.events.Emit(s.state.ID, EventTurnTimeout, PlayerEventData{Player: offender})
	s.forfeitLocked(offender, models.ForfeitTimeout)
}

// FireShot resolves one shot by the player whose turn it is.
func (s *GameSession) FireShot(player string, x, y int) (models.Shot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero models.Shot
	if !s.isParticipant(player) {
		return zero, ErrNotParticipant
	}
	if s.state.Status != models.SessionActive {
		return zero, ErrWrongState
	}
	if s.state.CurrentTurn == nil || *s.state.CurrentTurn != player {
		return zero, ErrNotYourTurn
	}
	if x < 0 || x >= models.GridSize || y < 0 || y >= models.GridSize {
		return zero, ErrOutOfBounds
	}
	opponent := s.opponentOf(player)
	board := s.boards[opponent]
	if board.Targeted[models.Cell{X: x, Y: y}] {
		return zero, ErrAlreadyShot
	}

	outcome, variant := board.ApplyShot(x, y)
	shot := models.Shot{
		Seq:    len(s.shots) + 1,
		By:     player,
		X:      x,
		Y:      y,
		Result: outcome,
		At:     s.reg.clock(),
	}
	s.shots = append(s.shots, shot)
	s.touchLocked()

	s.reg.events.Emit(s.state.ID, EventShotFired, ShotFiredData{Player: player, X: x, Y: y})

	if board.AllSunk() {
		s.reg.events.Emit(s.state.ID, EventShotResult, ShotResultData{
			Player: player, X: x, Y: y, Result: outcome, Variant: variant,
		})
		s.reg.timers.Disarm(s.state.ID)
		s.turnEpoch++
		s.finishLocked(models.OutcomeWin, player, "")
		return shot, nil
	}

	// Turn passes: the epoch bump invalidates the old timer before the
	// replacement is armed.
	s.state.CurrentTurn = &opponent
	s.turnEpoch++
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist turn handoff: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventShotResult, ShotResultData{
		Player: player, X: x, Y: y, Result: outcome, Variant: variant, NextTurn: opponent,
	})
	s.armTurnTimerLocked()
	return shot, nil
}

func (s *GameSession) opponentOf(player string) string {
	if player == s.state.Player1 {
		return s.state.Player2
	}
	return s.state.Player1
}

// Forfeit terminates the session outside normal shot resolution.
// offender is the player charged with the forfeit; empty means both
// sides are unreachable and the session is voided.
func (s *GameSession) Forfeit(offender string, reason models.ForfeitReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case models.SessionActive, models.SessionBoardsSubmitted, models.SessionPlayersJoined, models.SessionCreated:
	default:
		return ErrWrongState
	}
	if offender != "" && !s.isParticipant(offender) {
		return ErrNotParticipant
	}
	s.reg.timers.Disarm(s.state.ID)
	s.turnEpoch++
	s.forfeitLocked(offender, reason)
	return nil
}

func (s *GameSession) forfeitLocked(offender string, reason models.ForfeitReason) {
	s.state.ForfeitReason = reason
	s.state.Status = models.SessionForfeited
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist forfeit: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventSessionState, s.state)
	if offender == "" {
		s.finishLocked(models.OutcomeVoid, "", reason)
		return
	}
	s.finishLocked(models.OutcomeWin, s.opponentOf(offender), reason)
}

// finishLocked runs the terminal transition: game_end_processing,
// settlement (exactly once), then game_end_completed — or the
// distressed game_end_failed state when settlement cannot complete.
func (s *GameSession) finishLocked(outcome models.GameOutcome, winner string, reason models.ForfeitReason) {
	s.state.CurrentTurn = nil
	s.state.Status = models.SessionGameEndProcessing
	s.touchLocked()
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist end processing: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventGameEndProcessing, GameEndData{Outcome: outcome, Winner: winner, Reason: reason})

	rec, err := s.reg.settlement.Settle(s.state, s.shots, outcome, winner)
	if err != nil {
		s.state.Status = models.SessionGameEndFailed
		if perr := s.persistLocked(); perr != nil {
			log.Printf("[Session %s] Failed to persist distressed state: %v", s.state.ID, perr)
		}
		log.Printf("❌ [Session %s] Settlement failed, session queued for manual resolution: %v", s.state.ID, err)
		s.reg.events.Emit(s.state.ID, EventError, ErrorEventData{Op: "settlement", Reason: err.Error()})
		return
	}

	s.state.Status = models.SessionGameEndCompleted
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist completion: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventGameEndCompleted, GameEndData{Outcome: rec.Outcome, Winner: rec.Winner, Reason: reason})
}

// RequestRematch opens (or votes in) the rematch window after a
// completed game. Mutual acceptance within the window yields a new
// linked session.
func (s *GameSession) RequestRematch(player string) error {
	_, err := s.voteRematch(player)
	return err
}

// AcceptRematch votes for the pending rematch. When both players have
// voted inside the window it returns the new session's id.
func (s *GameSession) AcceptRematch(player string) (string, error) {
	return s.voteRematch(player)
}

func (s *GameSession) voteRematch(player string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isParticipant(player) {
		return "", ErrNotParticipant
	}
	now := s.reg.clock()
	if s.rematchOpen && now.After(s.rematchDeadline) {
		s.closeRematchLocked()
	}
	switch s.state.Status {
	case models.SessionGameEndCompleted:
	case models.SessionRematchPending:
	case models.SessionClosed:
		return "", ErrRematchExpired
	default:
		return "", ErrWrongState
	}

	if !s.rematchOpen {
		s.rematchOpen = true
		s.rematchDeadline = now.Add(s.reg.RematchWindow)
		s.rematchVotes = map[string]bool{player: true}
		s.state.Status = models.SessionRematchPending
		s.touchLocked()
		if err := s.persistLocked(); err != nil {
			return "", err
		}
		s.reg.events.Emit(s.state.ID, EventDrawRematch, RematchProposalData{
			RequestedBy: player,
			Deadline:    s.rematchDeadline,
		})
		deadline := s.rematchDeadline
		s.reg.timers.Arm(s.state.ID+rematchTimerKey, deadline, func() {
			s.handleRematchExpiry(deadline)
		})
		return "", nil
	}

	s.rematchVotes[player] = true
	if !s.rematchVotes[s.state.Player1] || !s.rematchVotes[s.state.Player2] {
		return "", nil
	}

	// Both accepted inside the window: spin up the linked session.
	s.reg.timers.Disarm(s.state.ID + rematchTimerKey)
	s.rematchOpen = false
	oldID := s.state.ID
	next, err := s.reg.CreatePaired(s.state.Player1, s.state.Player2, s.state.StakeLevel, s.state.StakeAmountUSDC, &oldID)
	if err != nil {
		s.reg.events.Emit(s.state.ID, EventError, ErrorEventData{Op: "rematch", Reason: err.Error()})
		return "", err
	}
	s.state.Status = models.SessionClosed
	s.touchLocked()
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist rematch closure: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventRematchReady, RematchReadyData{NewSessionID: next.ID()})
	s.reg.events.Emit(s.state.ID, EventSessionState, s.state)
	return next.ID(), nil
}

const rematchTimerKey = "/rematch"

// handleRematchExpiry closes the window when its deadline passes with
// no mutual acceptance. A vote serialized before this fires has either
// produced the new session (window closed) or is still short one vote.
func (s *GameSession) handleRematchExpiry(deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rematchOpen || !s.rematchDeadline.Equal(deadline) {
		return
	}
	s.closeRematchLocked()
}

func (s *GameSession) closeRematchLocked() {
	s.rematchOpen = false
	s.rematchVotes = nil
	s.state.Status = models.SessionClosed
	s.touchLocked()
	if err := s.persistLocked(); err != nil {
		log.Printf("[Session %s] Failed to persist close: %v", s.state.ID, err)
	}
	s.reg.events.Emit(s.state.ID, EventSessionState, s.state)
}

// Destroyable reports whether the registry may evict this session:
// terminal, settled, and no rematch window still open.
func (s *GameSession) Destroyable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case models.SessionClosed, models.SessionGameEndCompleted:
		return !s.rematchOpen
	default:
		return false
	}
}

// IdleSince returns the last activity timestamp.
func (s *GameSession) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastActivityAt
}
