package models

import "time"

// GameOutcome classifies how a session ended.
type GameOutcome string

const (
	OutcomeWin  GameOutcome = "win"
	OutcomeDraw GameOutcome = "draw"
	OutcomeVoid GameOutcome = "void"
)

// ScoreRecord is the immutable per-session settlement result. Exactly
// one exists per session; re-triggering settlement must not change it.
type ScoreRecord struct {
	ID        string      `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID string      `gorm:"uniqueIndex;not null" json:"session_id"`
	Outcome   GameOutcome `gorm:"not null" json:"outcome"`
	Winner    string      `gorm:"index" json:"winner,omitempty"`

	Player1       string `gorm:"not null" json:"player1"`
	Player2       string `gorm:"not null" json:"player2"`
	Player1Points int64  `json:"player1_points"`
	Player2Points int64  `json:"player2_points"`

	// Payout breakdown for staked sessions, zero otherwise
	PoolUSDC         float64 `json:"pool_usdc"`
	PlatformFeeUSDC  float64 `json:"platform_fee_usdc"`
	WinnerPayoutUSDC float64 `json:"winner_payout_usdc"`
	RefundEachUSDC   float64 `json:"refund_each_usdc"`

	// TranscriptJSON holds the full shot history for audit/disputes;
	// the archive worker uploads it to R2 and records the URL.
	TranscriptJSON string     `gorm:"type:text" json:"-"`
	ArchiveURL     string     `json:"archive_url,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`

	Timestamps
}
