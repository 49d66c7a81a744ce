package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"naval-session-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Settlement constants. The fee split is frozen on staked invites at
// creation; the same fractions are applied here at game end.
const (
	PlatformFeeFraction = 0.05

	PointsWin  int64 = 25
	PointsDraw int64 = 10
	PointsLoss int64 = 5
)

// StakePool returns the total pool for a per-player stake.
func StakePool(stakeUSDC float64) float64 { return stakeUSDC * 2 }

// StakeFee returns the platform fee taken from a pool.
func StakeFee(poolUSDC float64) float64 { return poolUSDC * PlatformFeeFraction }

// SettlementService computes the one-time ScoreRecord for a finished
// session and keeps the per-player standings current.
type SettlementService struct {
	store  Store
	events *EventHub
	clock  func() time.Time
}

// NewSettlementService wires the service.
func NewSettlementService(store Store, events *EventHub) *SettlementService {
	return &SettlementService{store: store, events: events, clock: time.Now}
}

type transcript struct {
	SessionID string             `json:"session_id"`
	Player1   string             `json:"player1"`
	Player2   string             `json:"player2"`
	Outcome   models.GameOutcome `json:"outcome"`
	Winner    string             `json:"winner,omitempty"`
	Shots     []models.Shot      `json:"shots"`
}

type PointsAwardedData struct {
	Player string `json:"player"`
	Points int64  `json:"points"`
}

type PointsSummaryData struct {
	Player1Points    int64   `json:"player1_points"`
	Player2Points    int64   `json:"player2_points"`
	Winner           string  `json:"winner,omitempty"`
	WinnerPayoutUSDC float64 `json:"winner_payout_usdc"`
	PlatformFeeUSDC  float64 `json:"platform_fee_usdc"`
	RefundEachUSDC   float64 `json:"refund_each_usdc"`
}

func pointsFor(outcome models.GameOutcome, winner, player string) int64 {
	switch outcome {
	case models.OutcomeWin:
		if player == winner {
			return PointsWin
		}
		return PointsLoss
	case models.OutcomeDraw:
		return PointsDraw
	default: // void sessions award nothing
		return 0
	}
}

// Settle computes the session's ScoreRecord exactly once. Observing
// the terminal transition again returns the existing record untouched.
// Store failures are retried a bounded number of times before the
// caller marks the session distressed.
func (s *SettlementService) Settle(sess models.Session, shots []models.Shot, outcome models.GameOutcome, winner string) (*models.ScoreRecord, error) {
	rec := &models.ScoreRecord{
		ID:            uuid.NewString(),
		SessionID:     sess.ID,
		Outcome:       outcome,
		Winner:        winner,
		Player1:       sess.Player1,
		Player2:       sess.Player2,
		Player1Points: pointsFor(outcome, winner, sess.Player1),
		Player2Points: pointsFor(outcome, winner, sess.Player2),
	}

	if sess.StakeAmountUSDC > 0 {
		pool := StakePool(sess.StakeAmountUSDC)
		rec.PoolUSDC = pool
		if outcome == models.OutcomeWin {
			rec.PlatformFeeUSDC = StakeFee(pool)
			rec.WinnerPayoutUSDC = pool - rec.PlatformFeeUSDC
		} else {
			// draw or void: stakes go back, no fee taken
			rec.RefundEachUSDC = sess.StakeAmountUSDC
		}
	}

	tj, err := json.Marshal(transcript{
		SessionID: sess.ID,
		Player1:   sess.Player1,
		Player2:   sess.Player2,
		Outcome:   outcome,
		Winner:    winner,
		Shots:     shots,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: transcript marshal: %v", ErrSettlementFailed, err)
	}
	rec.TranscriptJSON = string(tj)

	var stored *models.ScoreRecord
	var created bool
	for attempt := 1; attempt <= 3; attempt++ {
		stored, created, err = s.store.CreateScoreRecord(rec)
		if err == nil {
			break
		}
		log.Printf("[Settlement] Attempt %d failed for session %s: %v", attempt, sess.ID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if !created {
		// Duplicate trigger: the first settlement already did the
		// standings and events, return its record unchanged.
		return stored, nil
	}

	if err := s.applyStandings(sess, stored); err != nil {
		// The record is durable; standings drift is recoverable and
		// must not void the settlement.
		log.Printf("⚠️ [Settlement] Standings update failed for session %s: %v", sess.ID, err)
	}

	s.events.Emit(sess.ID, EventPointsAwarded, PointsAwardedData{Player: sess.Player1, Points: stored.Player1Points})
	s.events.Emit(sess.ID, EventPointsAwarded, PointsAwardedData{Player: sess.Player2, Points: stored.Player2Points})
	s.events.Emit(sess.ID, EventPointsSummary, PointsSummaryData{
		Player1Points:    stored.Player1Points,
		Player2Points:    stored.Player2Points,
		Winner:           stored.Winner,
		WinnerPayoutUSDC: stored.WinnerPayoutUSDC,
		PlatformFeeUSDC:  stored.PlatformFeeUSDC,
		RefundEachUSDC:   stored.RefundEachUSDC,
	})
	return stored, nil
}

func (s *SettlementService) ensureStanding(address string) (*models.PlayerStanding, error) {
	st, err := s.store.GetStanding(address)
	if errors.Is(err, ErrNotFound) {
		st = &models.PlayerStanding{ID: uuid.NewString(), Address: address}
		if err := s.store.SaveStanding(st); err != nil {
			return nil, err
		}
		return st, nil
	}
	return st, err
}

func (s *SettlementService) applyStandings(sess models.Session, rec *models.ScoreRecord) error {
	for _, player := range []string{sess.Player1, sess.Player2} {
		if player == "" {
			continue
		}
		st, err := s.ensureStanding(player)
		if err != nil {
			return err
		}
		st.TotalGames++
		st.TotalStakedUSDC += sess.StakeAmountUSDC
		switch rec.Outcome {
		case models.OutcomeWin:
			if player == rec.Winner {
				st.Wins++
				st.TotalPoints += PointsWin
				st.TotalWonUSDC += rec.WinnerPayoutUSDC
			} else {
				st.Losses++
				st.TotalPoints += PointsLoss
				if sess.ForfeitReason != "" {
					st.Forfeits++
				}
			}
		case models.OutcomeDraw:
			st.Draws++
			st.TotalPoints += PointsDraw
		}
		if err := s.store.SaveStanding(st); err != nil {
			return err
		}
	}
	return nil
}

// GetStandingEndpoint returns a player's cumulative standing.
func (s *SettlementService) GetStandingEndpoint(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "address required"})
	}
	st, err := s.store.GetStanding(address)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no standing for address"})
	}
	if err != nil {
		log.Printf("DB Error fetching standing for %s: %v", address, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch standing"})
	}
	return c.JSON(st)
}

// GetScoreRecordEndpoint returns the settlement record for a session.
func (s *SettlementService) GetScoreRecordEndpoint(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	rec, err := s.store.GetScoreRecordBySession(sessionID)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no score record for session"})
	}
	if err != nil {
		log.Printf("DB Error fetching score record for %s: %v", sessionID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch score record"})
	}
	return c.JSON(rec)
}
