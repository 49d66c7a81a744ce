package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionStatus tracks a session through its lifecycle
type SessionStatus string

const (
	SessionCreated           SessionStatus = "created"
	SessionPlayersJoined     SessionStatus = "players_joined"
	SessionBoardsSubmitted   SessionStatus = "boards_submitted"
	SessionActive            SessionStatus = "active"
	SessionGameEndProcessing SessionStatus = "game_end_processing"
	SessionGameEndCompleted  SessionStatus = "game_end_completed"
	SessionGameEndFailed     SessionStatus = "game_end_failed"
	SessionRematchPending    SessionStatus = "rematch_pending"
	SessionForfeited         SessionStatus = "forfeited"
	SessionClosed            SessionStatus = "closed"
)

// ForfeitReason explains a non-shot-based session termination
type ForfeitReason string

const (
	ForfeitTimeout    ForfeitReason = "TIMEOUT"
	ForfeitPlayerQuit ForfeitReason = "PLAYER_QUIT"
	ForfeitCheating   ForfeitReason = "CHEATING_DETECTED"
)

// Session records one ongoing or completed match between two players.
// Boards and shot history live in memory on the running session; only
// the fields here must survive a restart.
type Session struct {
	ID     string        `gorm:"primaryKey;type:uuid" json:"id"`
	Status SessionStatus `gorm:"not null;default:'created';index" json:"status"`

	Player1 string `gorm:"not null;index" json:"player1"`
	Player2 string `gorm:"index" json:"player2,omitempty"`

	// CurrentTurn is nil before the game starts and after it ends
	CurrentTurn *string `json:"current_turn,omitempty"`

	StakeLevel      string  `gorm:"not null;default:'free'" json:"stake_level"`
	StakeAmountUSDC float64 `json:"stake_amount_usdc"`

	// On-chain identifiers, required before a staked session goes active
	GameContractAddress string `json:"game_contract_address,omitempty"`
	GameID              string `json:"game_id,omitempty"`

	// Set when this session was created by a rematch of an earlier one
	RematchOfSessionID *string `gorm:"index" json:"rematch_of_session_id,omitempty"`

	ForfeitReason  ForfeitReason `json:"forfeit_reason,omitempty"`
	LastActivityAt time.Time     `json:"last_activity_at"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
