package models

import "time"

// InviteStatus follows CREATED → WAITING (code shared) → READY | EXPIRED
type InviteStatus string

const (
	InviteCreated InviteStatus = "created"
	InviteWaiting InviteStatus = "waiting"
	InviteReady   InviteStatus = "ready"
	InviteExpired InviteStatus = "expired"
)

// Invite is a shareable code that creates or joins a session outside
// matchmaking. Staked invites freeze the pool/fee/payout split at
// creation so both parties can verify the terms before accepting.
type Invite struct {
	ID        string       `gorm:"primaryKey;type:uuid" json:"id"`
	Code      string       `gorm:"uniqueIndex;not null" json:"code"`
	Creator   string       `gorm:"not null;index" json:"creator"`
	SessionID string       `gorm:"index" json:"session_id,omitempty"`
	Status    InviteStatus `gorm:"not null;default:'created';index" json:"status"`
	ExpiresAt time.Time    `gorm:"not null" json:"expires_at"`

	AcceptedBy string     `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`

	// Staked invite figures, all zero for free invites
	StakeAmountUSDC float64 `json:"stake_amount_usdc"`
	OnChainInviteID string  `gorm:"index" json:"on_chain_invite_id,omitempty"`
	PoolUSDC        float64 `json:"pool_usdc"`
	FeeUSDC         float64 `json:"fee_usdc"`
	PayoutUSDC      float64 `json:"payout_usdc"`

	Timestamps
}

// Staked reports whether the invite carries an on-chain stake.
func (i *Invite) Staked() bool { return i.StakeAmountUSDC > 0 }
