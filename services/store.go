package services

import (
	"time"

	"naval-session-engine/models"
)

// Store is the persistence boundary for the engine's durable entities.
// Production uses the GORM/Postgres implementation; tests run against
// the in-memory one. Implementations must return ErrNotFound for
// missing rows so callers can match on it.
type Store interface {
	SaveSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)

	SaveInvite(inv *models.Invite) error
	GetInviteByCode(code string) (*models.Invite, error)
	ListExpiredInvites(now time.Time) ([]*models.Invite, error)

	// CreateScoreRecord must refuse a second record for the same
	// session by returning the existing one with created=false.
	CreateScoreRecord(rec *models.ScoreRecord) (*models.ScoreRecord, bool, error)
	GetScoreRecordBySession(sessionID string) (*models.ScoreRecord, error)
	SaveScoreRecord(rec *models.ScoreRecord) error
	ListUnarchivedScoreRecords(limit int) ([]*models.ScoreRecord, error)

	GetStanding(address string) (*models.PlayerStanding, error)
	SaveStanding(st *models.PlayerStanding) error

	UpsertStakeConfirmations(confs []models.StakeConfirmation) error
	ListUnconsumedStakeConfirmations() ([]*models.StakeConfirmation, error)
	SaveStakeConfirmation(conf *models.StakeConfirmation) error
}
