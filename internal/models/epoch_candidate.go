package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EpochCandidate is a candidate's per-epoch tally and price state. The price
// curve is keyed by (epoch, candidate): a candidate starts over at the
// initial price in every new epoch.
type EpochCandidate struct {
	EpochIndex  uint64 `gorm:"primaryKey;autoIncrement:false"`
	CandidateID string `gorm:"primaryKey;type:varchar(64)"`

	CanonicalURL string `gorm:"type:text;not null"`

	VoteCount int64           `gorm:"not null;default:0;index:idx_epoch_candidates_count"`
	LastPrice decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`
	TotalPaid decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`

	// FirstVoteSeq is the epoch-wide sequence of this candidate's first vote.
	FirstVoteSeq int64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (EpochCandidate) TableName() string {
	return "epoch_candidates"
}
