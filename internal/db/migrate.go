package db

import (
	"arena/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.ProtocolConfig{},
		&models.Epoch{},
		&models.EpochCandidate{},
		&models.Vote{},
		&models.VoterPosition{},
		&models.WinnerTier{},
		&models.Entitlement{},
		&models.ClaimRecord{},
		&models.EngineEvent{},
	)
}
