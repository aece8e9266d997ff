package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoterPosition aggregates one voter's stake in one candidate for one epoch.
// Maintained on every vote; read by "my stats" projections and by the
// finalizer when computing per-voter entitlements.
type VoterPosition struct {
	EpochIndex  uint64 `gorm:"primaryKey;autoIncrement:false"`
	VoterID     string `gorm:"primaryKey;type:varchar(100)"`
	CandidateID string `gorm:"primaryKey;type:varchar(64)"`

	VoteCount  int64           `gorm:"not null;default:0"`
	AmountPaid decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (VoterPosition) TableName() string {
	return "voter_positions"
}
