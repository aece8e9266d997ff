package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"arena/internal/models"
)

// ListEventsParams filters the engine-event outbox page consumed by the
// external indexer.
type ListEventsParams struct {
	AfterID    string
	Type       *string
	EpochIndex *uint64
	Limit      int
}

// ListVotesParams filters raw ledger reads.
type ListVotesParams struct {
	EpochIndex  uint64
	CandidateID *string
	VoterID     *string
	Limit       int
	Offset      int
}

// Store is the engine's persistence boundary. Mutations run inside InTx;
// the *Tx methods take the transaction handle so a whole operation commits
// or fails atomically. Plain-context methods are reads.
type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Epochs
	GetEpoch(ctx context.Context, index uint64) (*models.Epoch, error)
	GetEpochTx(tx *gorm.DB, index uint64) (*models.Epoch, error)
	CreateEpochTx(tx *gorm.DB, e *models.Epoch) error
	SaveEpochTx(tx *gorm.DB, e *models.Epoch) error
	ListUnfinalizedEpochsEndingBy(ctx context.Context, t time.Time) ([]models.Epoch, error)
	ListUnsweptEpochsWithDeadlineBefore(ctx context.Context, t time.Time) ([]models.Epoch, error)

	// Candidates (per-epoch price/tally state)
	GetEpochCandidate(ctx context.Context, index uint64, candidateID string) (*models.EpochCandidate, error)
	GetEpochCandidateTx(tx *gorm.DB, index uint64, candidateID string) (*models.EpochCandidate, error)
	SaveEpochCandidateTx(tx *gorm.DB, c *models.EpochCandidate) error
	ListEpochCandidates(ctx context.Context, index uint64) ([]models.EpochCandidate, error)
	ListEpochCandidatesTx(tx *gorm.DB, index uint64) ([]models.EpochCandidate, error)

	// Votes
	InsertVoteTx(tx *gorm.DB, v *models.Vote) error
	ListVotes(ctx context.Context, params ListVotesParams) ([]models.Vote, error)

	// Voter positions
	GetVoterPositionsTx(tx *gorm.DB, index uint64, voterID string) ([]models.VoterPosition, error)
	ListVoterPositions(ctx context.Context, index uint64, voterID string) ([]models.VoterPosition, error)
	ListCandidatePositionsTx(tx *gorm.DB, index uint64, candidateID string) ([]models.VoterPosition, error)
	UpsertVoterPositionTx(tx *gorm.DB, index uint64, voterID, candidateID string, votes int64, paid decimal.Decimal) error

	// Finalization output
	InsertWinnerTiersTx(tx *gorm.DB, items []models.WinnerTier) error
	ListWinnerTiers(ctx context.Context, index uint64) ([]models.WinnerTier, error)
	InsertEntitlementsTx(tx *gorm.DB, items []models.Entitlement) error
	GetEntitlement(ctx context.Context, index uint64, voterID string) (*models.Entitlement, error)
	GetEntitlementTx(tx *gorm.DB, index uint64, voterID string) (*models.Entitlement, error)

	// Claims
	GetClaimRecord(ctx context.Context, index uint64, voterID string) (*models.ClaimRecord, error)
	GetClaimRecordTx(tx *gorm.DB, index uint64, voterID string) (*models.ClaimRecord, error)
	InsertClaimRecordTx(tx *gorm.DB, r *models.ClaimRecord) error
	SumClaimedTx(tx *gorm.DB, index uint64) (decimal.Decimal, error)

	// Protocol config
	LatestProtocolConfig(ctx context.Context) (*models.ProtocolConfig, error)
	LatestProtocolConfigTx(tx *gorm.DB) (*models.ProtocolConfig, error)
	InsertProtocolConfig(ctx context.Context, c *models.ProtocolConfig) error

	// Event outbox
	InsertEngineEventTx(tx *gorm.DB, e *models.EngineEvent) error
	ListEngineEvents(ctx context.Context, params ListEventsParams) ([]models.EngineEvent, error)
}
