package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arena/internal/models"
	"arena/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Epochs -----------------------------------------------------------------

func (s *Store) GetEpoch(ctx context.Context, index uint64) (*models.Epoch, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getEpoch(s.db.WithContext(ctx), index)
}

func (s *Store) GetEpochTx(tx *gorm.DB, index uint64) (*models.Epoch, error) {
	return getEpoch(tx, index)
}

func getEpoch(db *gorm.DB, index uint64) (*models.Epoch, error) {
	var item models.Epoch
	err := db.Where("index = ?", index).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateEpochTx(tx *gorm.DB, e *models.Epoch) error {
	if e == nil {
		return nil
	}
	return tx.Create(e).Error
}

func (s *Store) SaveEpochTx(tx *gorm.DB, e *models.Epoch) error {
	if e == nil {
		return nil
	}
	return tx.Save(e).Error
}

func (s *Store) ListUnfinalizedEpochsEndingBy(ctx context.Context, t time.Time) ([]models.Epoch, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Epoch
	err := s.db.WithContext(ctx).
		Where("finalized = ?", false).
		Where("end_time <= ?", t).
		Order("index asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListUnsweptEpochsWithDeadlineBefore(ctx context.Context, t time.Time) ([]models.Epoch, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Epoch
	err := s.db.WithContext(ctx).
		Where("swept_at IS NULL").
		Where("end_time < ?", t).
		Order("index asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Candidates -------------------------------------------------------------

func (s *Store) GetEpochCandidate(ctx context.Context, index uint64, candidateID string) (*models.EpochCandidate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getEpochCandidate(s.db.WithContext(ctx), index, candidateID)
}

func (s *Store) GetEpochCandidateTx(tx *gorm.DB, index uint64, candidateID string) (*models.EpochCandidate, error) {
	return getEpochCandidate(tx, index, candidateID)
}

func getEpochCandidate(db *gorm.DB, index uint64, candidateID string) (*models.EpochCandidate, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, nil
	}
	var item models.EpochCandidate
	err := db.
		Where("epoch_index = ? AND candidate_id = ?", index, candidateID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveEpochCandidateTx(tx *gorm.DB, c *models.EpochCandidate) error {
	if c == nil {
		return nil
	}
	return tx.Save(c).Error
}

func (s *Store) ListEpochCandidates(ctx context.Context, index uint64) ([]models.EpochCandidate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return listEpochCandidates(s.db.WithContext(ctx), index)
}

func (s *Store) ListEpochCandidatesTx(tx *gorm.DB, index uint64) ([]models.EpochCandidate, error) {
	return listEpochCandidates(tx, index)
}

func listEpochCandidates(db *gorm.DB, index uint64) ([]models.EpochCandidate, error) {
	var items []models.EpochCandidate
	err := db.
		Where("epoch_index = ?", index).
		Order("vote_count desc, first_vote_seq asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Votes ------------------------------------------------------------------

func (s *Store) InsertVoteTx(tx *gorm.DB, v *models.Vote) error {
	if v == nil {
		return nil
	}
	return tx.Create(v).Error
}

func (s *Store) ListVotes(ctx context.Context, params repository.ListVotesParams) ([]models.Vote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("epoch_index = ?", params.EpochIndex)
	if params.CandidateID != nil && strings.TrimSpace(*params.CandidateID) != "" {
		query = query.Where("candidate_id = ?", strings.TrimSpace(*params.CandidateID))
	}
	if params.VoterID != nil && strings.TrimSpace(*params.VoterID) != "" {
		query = query.Where("voter_id = ?", strings.TrimSpace(*params.VoterID))
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.Vote
	if err := query.Order("seq asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Voter positions --------------------------------------------------------

func (s *Store) GetVoterPositionsTx(tx *gorm.DB, index uint64, voterID string) ([]models.VoterPosition, error) {
	return listVoterPositions(tx, index, voterID)
}

func (s *Store) ListVoterPositions(ctx context.Context, index uint64, voterID string) ([]models.VoterPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return listVoterPositions(s.db.WithContext(ctx), index, voterID)
}

func listVoterPositions(db *gorm.DB, index uint64, voterID string) ([]models.VoterPosition, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return nil, nil
	}
	var items []models.VoterPosition
	err := db.
		Where("epoch_index = ? AND voter_id = ?", index, voterID).
		Order("candidate_id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListCandidatePositionsTx(tx *gorm.DB, index uint64, candidateID string) ([]models.VoterPosition, error) {
	var items []models.VoterPosition
	err := tx.
		Where("epoch_index = ? AND candidate_id = ?", index, candidateID).
		Order("voter_id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertVoterPositionTx(tx *gorm.DB, index uint64, voterID, candidateID string, votes int64, paid decimal.Decimal) error {
	item := models.VoterPosition{
		EpochIndex:  index,
		VoterID:     voterID,
		CandidateID: candidateID,
		VoteCount:   votes,
		AmountPaid:  paid,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "epoch_index"}, {Name: "voter_id"}, {Name: "candidate_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"vote_count":  gorm.Expr("voter_positions.vote_count + ?", votes),
			"amount_paid": gorm.Expr("voter_positions.amount_paid + ?", paid),
		}),
	}).Create(&item).Error
}

// --- Finalization output ----------------------------------------------------

func (s *Store) InsertWinnerTiersTx(tx *gorm.DB, items []models.WinnerTier) error {
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func (s *Store) ListWinnerTiers(ctx context.Context, index uint64) ([]models.WinnerTier, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.WinnerTier
	err := s.db.WithContext(ctx).
		Where("epoch_index = ?", index).
		Order("rank asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertEntitlementsTx(tx *gorm.DB, items []models.Entitlement) error {
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func (s *Store) GetEntitlement(ctx context.Context, index uint64, voterID string) (*models.Entitlement, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getEntitlement(s.db.WithContext(ctx), index, voterID)
}

func (s *Store) GetEntitlementTx(tx *gorm.DB, index uint64, voterID string) (*models.Entitlement, error) {
	return getEntitlement(tx, index, voterID)
}

func getEntitlement(db *gorm.DB, index uint64, voterID string) (*models.Entitlement, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return nil, nil
	}
	var item models.Entitlement
	err := db.
		Where("epoch_index = ? AND voter_id = ?", index, voterID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Claims -----------------------------------------------------------------

func (s *Store) GetClaimRecord(ctx context.Context, index uint64, voterID string) (*models.ClaimRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return getClaimRecord(s.db.WithContext(ctx), index, voterID)
}

func (s *Store) GetClaimRecordTx(tx *gorm.DB, index uint64, voterID string) (*models.ClaimRecord, error) {
	return getClaimRecord(tx, index, voterID)
}

func getClaimRecord(db *gorm.DB, index uint64, voterID string) (*models.ClaimRecord, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return nil, nil
	}
	var item models.ClaimRecord
	err := db.
		Where("epoch_index = ? AND voter_id = ?", index, voterID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertClaimRecordTx(tx *gorm.DB, r *models.ClaimRecord) error {
	if r == nil {
		return nil
	}
	return tx.Create(r).Error
}

func (s *Store) SumClaimedTx(tx *gorm.DB, index uint64) (decimal.Decimal, error) {
	var out struct {
		Total decimal.Decimal
	}
	err := tx.Model(&models.ClaimRecord{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("epoch_index = ?", index).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return out.Total, nil
}

// --- Protocol config --------------------------------------------------------

func (s *Store) LatestProtocolConfig(ctx context.Context) (*models.ProtocolConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return latestProtocolConfig(s.db.WithContext(ctx))
}

func (s *Store) LatestProtocolConfigTx(tx *gorm.DB) (*models.ProtocolConfig, error) {
	return latestProtocolConfig(tx)
}

func latestProtocolConfig(db *gorm.DB) (*models.ProtocolConfig, error) {
	var item models.ProtocolConfig
	err := db.Order("version desc").First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertProtocolConfig(ctx context.Context, c *models.ProtocolConfig) error {
	if s == nil || s.db == nil || c == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(c).Error
}

// --- Event outbox -----------------------------------------------------------

func (s *Store) InsertEngineEventTx(tx *gorm.DB, e *models.EngineEvent) error {
	if e == nil {
		return nil
	}
	return tx.Create(e).Error
}

func (s *Store) ListEngineEvents(ctx context.Context, params repository.ListEventsParams) ([]models.EngineEvent, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EngineEvent{})
	if strings.TrimSpace(params.AfterID) != "" {
		var after models.EngineEvent
		err := s.db.WithContext(ctx).
			Where("id = ?", strings.TrimSpace(params.AfterID)).
			First(&after).Error
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}
		if err == nil {
			query = query.Where("created_at > ?", after.CreatedAt)
		}
	}
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(*params.Type))
	}
	if params.EpochIndex != nil {
		query = query.Where("epoch_index = ?", *params.EpochIndex)
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	var items []models.EngineEvent
	if err := query.Order("created_at asc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
