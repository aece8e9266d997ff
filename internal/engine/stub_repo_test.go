package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"arena/internal/models"
	"arena/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Store.
// It keeps value copies so engine code cannot mutate "persisted" state
// outside of an explicit Save.
type stubRepo struct {
	epochs    map[uint64]models.Epoch
	cands     map[string]models.EpochCandidate
	votes     []models.Vote
	positions map[string]models.VoterPosition
	tiers     map[uint64][]models.WinnerTier
	ents      map[string]models.Entitlement
	claims    map[string]models.ClaimRecord
	configs   []models.ProtocolConfig
	events    []models.EngineEvent
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		epochs:    map[uint64]models.Epoch{},
		cands:     map[string]models.EpochCandidate{},
		positions: map[string]models.VoterPosition{},
		tiers:     map[uint64][]models.WinnerTier{},
		ents:      map[string]models.Entitlement{},
		claims:    map[string]models.ClaimRecord{},
	}
}

func key2(index uint64, a string) string    { return fmt.Sprintf("%d|%s", index, a) }
func key3(index uint64, a, b string) string { return fmt.Sprintf("%d|%s|%s", index, a, b) }

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) GetEpoch(ctx context.Context, index uint64) (*models.Epoch, error) {
	return s.GetEpochTx(nil, index)
}

func (s *stubRepo) GetEpochTx(tx *gorm.DB, index uint64) (*models.Epoch, error) {
	if e, ok := s.epochs[index]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) CreateEpochTx(tx *gorm.DB, e *models.Epoch) error {
	if _, ok := s.epochs[e.Index]; ok {
		return fmt.Errorf("epoch %d exists", e.Index)
	}
	s.epochs[e.Index] = *e
	return nil
}

func (s *stubRepo) SaveEpochTx(tx *gorm.DB, e *models.Epoch) error {
	s.epochs[e.Index] = *e
	return nil
}

func (s *stubRepo) ListUnfinalizedEpochsEndingBy(ctx context.Context, t time.Time) ([]models.Epoch, error) {
	var out []models.Epoch
	for _, e := range s.epochs {
		if !e.Finalized && !e.EndTime.After(t) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *stubRepo) ListUnsweptEpochsWithDeadlineBefore(ctx context.Context, t time.Time) ([]models.Epoch, error) {
	var out []models.Epoch
	for _, e := range s.epochs {
		if e.SweptAt == nil && e.EndTime.Before(t) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *stubRepo) GetEpochCandidate(ctx context.Context, index uint64, candidateID string) (*models.EpochCandidate, error) {
	return s.GetEpochCandidateTx(nil, index, candidateID)
}

func (s *stubRepo) GetEpochCandidateTx(tx *gorm.DB, index uint64, candidateID string) (*models.EpochCandidate, error) {
	if c, ok := s.cands[key2(index, candidateID)]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveEpochCandidateTx(tx *gorm.DB, c *models.EpochCandidate) error {
	s.cands[key2(c.EpochIndex, c.CandidateID)] = *c
	return nil
}

func (s *stubRepo) ListEpochCandidates(ctx context.Context, index uint64) ([]models.EpochCandidate, error) {
	return s.ListEpochCandidatesTx(nil, index)
}

func (s *stubRepo) ListEpochCandidatesTx(tx *gorm.DB, index uint64) ([]models.EpochCandidate, error) {
	var out []models.EpochCandidate
	for _, c := range s.cands {
		if c.EpochIndex == index {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VoteCount != out[j].VoteCount {
			return out[i].VoteCount > out[j].VoteCount
		}
		return out[i].FirstVoteSeq < out[j].FirstVoteSeq
	})
	return out, nil
}

func (s *stubRepo) InsertVoteTx(tx *gorm.DB, v *models.Vote) error {
	cp := *v
	cp.ID = uint64(len(s.votes) + 1)
	s.votes = append(s.votes, cp)
	return nil
}

func (s *stubRepo) ListVotes(ctx context.Context, params repository.ListVotesParams) ([]models.Vote, error) {
	var out []models.Vote
	for _, v := range s.votes {
		if v.EpochIndex != params.EpochIndex {
			continue
		}
		if params.CandidateID != nil && v.CandidateID != *params.CandidateID {
			continue
		}
		if params.VoterID != nil && v.VoterID != *params.VoterID {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *stubRepo) GetVoterPositionsTx(tx *gorm.DB, index uint64, voterID string) ([]models.VoterPosition, error) {
	return s.ListVoterPositions(context.Background(), index, voterID)
}

func (s *stubRepo) ListVoterPositions(ctx context.Context, index uint64, voterID string) ([]models.VoterPosition, error) {
	var out []models.VoterPosition
	for _, p := range s.positions {
		if p.EpochIndex == index && p.VoterID == voterID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID < out[j].CandidateID })
	return out, nil
}

func (s *stubRepo) ListCandidatePositionsTx(tx *gorm.DB, index uint64, candidateID string) ([]models.VoterPosition, error) {
	var out []models.VoterPosition
	for _, p := range s.positions {
		if p.EpochIndex == index && p.CandidateID == candidateID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out, nil
}

func (s *stubRepo) UpsertVoterPositionTx(tx *gorm.DB, index uint64, voterID, candidateID string, votes int64, paid decimal.Decimal) error {
	k := key3(index, voterID, candidateID)
	p, ok := s.positions[k]
	if !ok {
		p = models.VoterPosition{
			EpochIndex:  index,
			VoterID:     voterID,
			CandidateID: candidateID,
			AmountPaid:  decimal.Zero,
		}
	}
	p.VoteCount += votes
	p.AmountPaid = p.AmountPaid.Add(paid)
	s.positions[k] = p
	return nil
}

func (s *stubRepo) InsertWinnerTiersTx(tx *gorm.DB, items []models.WinnerTier) error {
	for _, it := range items {
		s.tiers[it.EpochIndex] = append(s.tiers[it.EpochIndex], it)
	}
	return nil
}

func (s *stubRepo) ListWinnerTiers(ctx context.Context, index uint64) ([]models.WinnerTier, error) {
	out := append([]models.WinnerTier(nil), s.tiers[index]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *stubRepo) InsertEntitlementsTx(tx *gorm.DB, items []models.Entitlement) error {
	for _, it := range items {
		k := key2(it.EpochIndex, it.VoterID)
		if _, ok := s.ents[k]; ok {
			return fmt.Errorf("duplicate entitlement %s", k)
		}
		s.ents[k] = it
	}
	return nil
}

func (s *stubRepo) GetEntitlement(ctx context.Context, index uint64, voterID string) (*models.Entitlement, error) {
	return s.GetEntitlementTx(nil, index, voterID)
}

func (s *stubRepo) GetEntitlementTx(tx *gorm.DB, index uint64, voterID string) (*models.Entitlement, error) {
	if e, ok := s.ents[key2(index, voterID)]; ok {
		cp := e
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) GetClaimRecord(ctx context.Context, index uint64, voterID string) (*models.ClaimRecord, error) {
	return s.GetClaimRecordTx(nil, index, voterID)
}

func (s *stubRepo) GetClaimRecordTx(tx *gorm.DB, index uint64, voterID string) (*models.ClaimRecord, error) {
	if r, ok := s.claims[key2(index, voterID)]; ok {
		cp := r
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) InsertClaimRecordTx(tx *gorm.DB, r *models.ClaimRecord) error {
	k := key2(r.EpochIndex, r.VoterID)
	if _, ok := s.claims[k]; ok {
		return fmt.Errorf("duplicate claim %s", k)
	}
	s.claims[k] = *r
	return nil
}

func (s *stubRepo) SumClaimedTx(tx *gorm.DB, index uint64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range s.claims {
		if r.EpochIndex == index {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (s *stubRepo) LatestProtocolConfig(ctx context.Context) (*models.ProtocolConfig, error) {
	return s.LatestProtocolConfigTx(nil)
}

func (s *stubRepo) LatestProtocolConfigTx(tx *gorm.DB) (*models.ProtocolConfig, error) {
	if len(s.configs) == 0 {
		return nil, nil
	}
	cp := s.configs[len(s.configs)-1]
	return &cp, nil
}

func (s *stubRepo) InsertProtocolConfig(ctx context.Context, c *models.ProtocolConfig) error {
	c.Version = uint64(len(s.configs) + 1)
	s.configs = append(s.configs, *c)
	return nil
}

func (s *stubRepo) InsertEngineEventTx(tx *gorm.DB, e *models.EngineEvent) error {
	s.events = append(s.events, *e)
	return nil
}

func (s *stubRepo) ListEngineEvents(ctx context.Context, params repository.ListEventsParams) ([]models.EngineEvent, error) {
	var out []models.EngineEvent
	for _, e := range s.events {
		if params.Type != nil && e.Type != *params.Type {
			continue
		}
		if params.EpochIndex != nil && e.EpochIndex != *params.EpochIndex {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
