package models

// PlayerStanding tracks cumulative results per address (denormalized
// for cheap leaderboard reads, same idea as a progression row).
type PlayerStanding struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	Address string `gorm:"uniqueIndex;not null" json:"address"`

	TotalPoints int64 `json:"total_points" gorm:"default:0"`
	TotalGames  int64 `json:"total_games" gorm:"default:0"`
	Wins        int64 `json:"wins" gorm:"default:0"`
	Losses      int64 `json:"losses" gorm:"default:0"`
	Draws       int64 `json:"draws" gorm:"default:0"`
	Forfeits    int64 `json:"forfeits" gorm:"default:0"`

	TotalStakedUSDC float64 `json:"total_staked_usdc" gorm:"default:0"`
	TotalWonUSDC    float64 `json:"total_won_usdc" gorm:"default:0"`

	Timestamps
}
