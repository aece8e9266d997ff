package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Engine event types consumed by the external indexing layer.
const (
	EventVoteRecorded   = "vote_recorded"
	EventEpochFinalized = "epoch_finalized"
	EventClaimed        = "claimed"
	EventSwept          = "swept"
)

// EngineEvent is one outbox row. Events are written in the same transaction
// as the state change they describe and carry enough data for the read
// model to rebuild leaderboards without re-deriving engine logic.
type EngineEvent struct {
	ID   string `gorm:"primaryKey;type:varchar(36)"`
	Type string `gorm:"type:varchar(30);not null;index"`

	EpochIndex  uint64          `gorm:"not null;index"`
	CandidateID string          `gorm:"type:varchar(64)"`
	VoterID     string          `gorm:"type:varchar(100)"`
	Amount      decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0"`

	Payload datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (EngineEvent) TableName() string {
	return "engine_events"
}
