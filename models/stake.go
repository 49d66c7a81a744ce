package models

import "time"

// StakeConfirmation mirrors one confirmed on-chain stake reported by
// the chain gateway. Rows are upserted by the stake sync worker; the
// engine never writes chain state itself.
type StakeConfirmation struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	OnChainRef string  `gorm:"uniqueIndex;not null" json:"on_chain_ref"`
	Address    string  `gorm:"index;not null" json:"address"`
	AmountUSDC float64 `json:"amount_usdc"`
	TxHash     string  `json:"tx_hash"`

	ConfirmedAt time.Time `json:"confirmed_at"`

	// Consumed flips when the confirmation has been applied to a
	// ticket or invite, so a re-poll cannot double-apply it.
	Consumed bool `gorm:"default:false;index" json:"consumed"`

	Timestamps
}
