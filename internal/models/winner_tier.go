package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// WinnerTier is the sealed tier snapshot for a finalized epoch, kept for
// read queries so the winner breakdown never has to be re-derived.
type WinnerTier struct {
	EpochIndex uint64 `gorm:"primaryKey;autoIncrement:false"`
	Rank       int32  `gorm:"primaryKey;autoIncrement:false"`

	VoteCount    int64           `gorm:"not null"`
	WeightBps    int32           `gorm:"not null"`
	TierAmount   decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	CandidateIDs datatypes.JSON  `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (WinnerTier) TableName() string {
	return "winner_tiers"
}
