package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClaimRecord marks one voter's epoch entitlement as paid out. Existence of
// the row is the at-most-once guard; rows are never updated or deleted.
type ClaimRecord struct {
	EpochIndex uint64 `gorm:"primaryKey;autoIncrement:false"`
	VoterID    string `gorm:"primaryKey;type:varchar(100)"`

	Amount    decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	ClaimedAt time.Time       `gorm:"type:timestamptz;not null"`
}

func (ClaimRecord) TableName() string {
	return "claim_records"
}
