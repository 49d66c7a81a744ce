package services

import (
	"errors"
	"time"

	"naval-session-engine/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore is the Postgres-backed Store.
type gormStore struct {
	DB *gorm.DB
}

// NewGormStore wraps an open gorm connection as a Store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{DB: db}
}

func (g *gormStore) SaveSession(s *models.Session) error {
	return g.DB.Save(s).Error
}

func (g *gormStore) GetSession(id string) (*models.Session, error) {
	var s models.Session
	if err := g.DB.First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (g *gormStore) SaveInvite(inv *models.Invite) error {
	return g.DB.Save(inv).Error
}

func (g *gormStore) GetInviteByCode(code string) (*models.Invite, error) {
	var inv models.Invite
	if err := g.DB.First(&inv, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (g *gormStore) ListExpiredInvites(now time.Time) ([]*models.Invite, error) {
	var invites []*models.Invite
	err := g.DB.Where("status = ? AND expires_at < ?", models.InviteWaiting, now).
		Find(&invites).Error
	return invites, err
}

// CreateScoreRecord is the settlement idempotence point: the unique
// index on session_id means at most one record can ever win.
func (g *gormStore) CreateScoreRecord(rec *models.ScoreRecord) (*models.ScoreRecord, bool, error) {
	res := g.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := g.GetScoreRecordBySession(rec.SessionID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return rec, true, nil
}

func (g *gormStore) GetScoreRecordBySession(sessionID string) (*models.ScoreRecord, error) {
	var rec models.ScoreRecord
	if err := g.DB.First(&rec, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (g *gormStore) SaveScoreRecord(rec *models.ScoreRecord) error {
	return g.DB.Save(rec).Error
}

func (g *gormStore) ListUnarchivedScoreRecords(limit int) ([]*models.ScoreRecord, error) {
	var recs []*models.ScoreRecord
	q := g.DB.Where("archived_at IS NULL").Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&recs).Error
	return recs, err
}

func (g *gormStore) GetStanding(address string) (*models.PlayerStanding, error) {
	var st models.PlayerStanding
	if err := g.DB.First(&st, "address = ?", address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (g *gormStore) SaveStanding(st *models.PlayerStanding) error {
	return g.DB.Save(st).Error
}

// UpsertStakeConfirmations bulk-upserts poll results in one statement.
// Consumed rows are never rewound by a re-poll.
func (g *gormStore) UpsertStakeConfirmations(confs []models.StakeConfirmation) error {
	if len(confs) == 0 {
		return nil
	}
	return g.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "on_chain_ref"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"address",
			"amount_usdc",
			"tx_hash",
			"confirmed_at",
			"updated_at",
		}),
	}).Create(&confs).Error
}

func (g *gormStore) ListUnconsumedStakeConfirmations() ([]*models.StakeConfirmation, error) {
	var confs []*models.StakeConfirmation
	err := g.DB.Where("consumed = ?", false).Order("confirmed_at ASC").Find(&confs).Error
	return confs, err
}

func (g *gormStore) SaveStakeConfirmation(conf *models.StakeConfirmation) error {
	return g.DB.Save(conf).Error
}
