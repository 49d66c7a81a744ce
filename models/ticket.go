package models

import "time"

// MatchTicket is one waiting player in the matchmaking pool. Tickets
// are in-memory only; a process restart empties the pool and clients
// simply re-join.
type MatchTicket struct {
	Address    string    `json:"address"`
	StakeLevel string    `json:"stake_level"`
	Channel    string    `json:"channel,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`

	// Confirmed is true for free tiers immediately and for staked
	// tiers once the on-chain stake confirmation arrives. Unconfirmed
	// tickets wait without blocking confirmed ones.
	Confirmed bool `json:"confirmed"`

	// OnChainRef links a staked ticket to its chain confirmation.
	OnChainRef string `json:"on_chain_ref,omitempty"`
}
