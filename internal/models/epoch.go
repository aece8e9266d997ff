package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Epoch is one 7-day accounting window. Rows are created lazily the first
// time a vote or claim touches the window and are never deleted. Fee config
// is snapshotted into the row at creation so later admin changes never apply
// retroactively.
type Epoch struct {
	Index     uint64    `gorm:"primaryKey;autoIncrement:false"`
	StartTime time.Time `gorm:"type:timestamptz;not null"`
	EndTime   time.Time `gorm:"type:timestamptz;not null;index"`

	FeeBps            int32  `gorm:"not null"`
	ProtocolRecipient string `gorm:"type:varchar(100);not null"`

	ProtocolCollected decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`
	PrizePool         decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`

	// VoteSeq orders votes across the whole epoch; used for deterministic
	// remainder assignment at finalization.
	VoteSeq int64 `gorm:"not null;default:0"`

	Finalized   bool       `gorm:"not null;default:false;index"`
	FinalizedAt *time.Time `gorm:"type:timestamptz"`

	SweptAmount decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`
	SweptAt     *time.Time      `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Epoch) TableName() string {
	return "epochs"
}
