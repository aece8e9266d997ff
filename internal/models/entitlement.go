package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entitlement is a voter's sealed claimable share of one epoch's prize pool,
// written at finalization and never modified afterwards.
type Entitlement struct {
	EpochIndex uint64 `gorm:"primaryKey;autoIncrement:false"`
	VoterID    string `gorm:"primaryKey;type:varchar(100)"`

	Amount decimal.Decimal `gorm:"type:numeric(30,0);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}
