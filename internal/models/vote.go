package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vote is one append-only ledger entry. Immutable once recorded.
type Vote struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	EpochIndex  uint64 `gorm:"not null;index:idx_votes_epoch_candidate;index:idx_votes_epoch_voter"`
	CandidateID string `gorm:"type:varchar(64);not null;index:idx_votes_epoch_candidate"`
	VoterID     string `gorm:"type:varchar(100);not null;index:idx_votes_epoch_voter"`

	// Seq is the vote's position in the epoch-wide sequence.
	Seq        int64           `gorm:"not null"`
	AmountPaid decimal.Decimal `gorm:"type:numeric(30,0);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Vote) TableName() string {
	return "votes"
}
