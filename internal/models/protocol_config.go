package models

import (
	"time"
)

// ProtocolConfig is the versioned owner configuration. Every change appends
// a new version; operations read the latest committed version when they
// start, so a change only affects operations initiated after it.
type ProtocolConfig struct {
	Version   uint64    `gorm:"primaryKey;autoIncrement"`
	FeeBps    int32     `gorm:"not null"`
	Recipient string    `gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ProtocolConfig) TableName() string {
	return "protocol_configs"
}
