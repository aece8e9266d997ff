package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arena/internal/models"
	"arena/internal/repository"
)

// EpochInfo is the display projection of one epoch.
type EpochInfo struct {
	Index             uint64          `json:"index"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	ClaimDeadline     time.Time       `json:"claim_deadline"`
	Finalized         bool            `json:"finalized"`
	FinalizedAt       *time.Time      `json:"finalized_at,omitempty"`
	FeeBps            int32           `json:"fee_bps"`
	ProtocolCollected decimal.Decimal `json:"protocol_collected"`
	PrizePool         decimal.Decimal `json:"prize_pool"`
	SweptAmount       decimal.Decimal `json:"swept_amount"`
	SweptAt           *time.Time      `json:"swept_at,omitempty"`
}

// CurrentEpoch returns the projection of the epoch containing now. The row
// may not exist yet; bounds are always derivable from the calculator.
func (e *Engine) CurrentEpoch(ctx context.Context) (*EpochInfo, error) {
	return e.EpochInfo(ctx, e.calc.Index(e.now()))
}

func (e *Engine) EpochInfo(ctx context.Context, index uint64) (*EpochInfo, error) {
	start, end := e.calc.Bounds(index)
	info := &EpochInfo{
		Index:             index,
		StartTime:         start,
		EndTime:           end,
		ClaimDeadline:     end.Add(e.cfg.claimDeadline()),
		FeeBps:            e.cfg.FeeBps,
		ProtocolCollected: decimal.Zero,
		PrizePool:         decimal.Zero,
		SweptAmount:       decimal.Zero,
	}
	ep, err := e.repo.GetEpoch(ctx, index)
	if err != nil {
		return nil, err
	}
	if ep != nil {
		info.Finalized = ep.Finalized
		info.FinalizedAt = ep.FinalizedAt
		info.FeeBps = ep.FeeBps
		info.ProtocolCollected = ep.ProtocolCollected
		info.PrizePool = ep.PrizePool
		info.SweptAmount = ep.SweptAmount
		info.SweptAt = ep.SweptAt
	}
	return info, nil
}

// CandidateStanding is one row of the epoch leaderboard.
type CandidateStanding struct {
	CandidateID  string          `json:"candidate_id"`
	CanonicalURL string          `json:"canonical_url"`
	VoteCount    int64           `json:"vote_count"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	NextPrice    decimal.Decimal `json:"next_price"`
}

// Standings lists the epoch's candidates by vote count. Display-only; never
// used as a write-side input.
func (e *Engine) Standings(ctx context.Context, index uint64) ([]CandidateStanding, error) {
	cands, err := e.repo.ListEpochCandidates(ctx, index)
	if err != nil {
		return nil, err
	}
	out := make([]CandidateStanding, 0, len(cands))
	for _, c := range cands {
		next := e.curve.First()
		if c.VoteCount > 0 {
			next = e.curve.Next(c.LastPrice)
		}
		out = append(out, CandidateStanding{
			CandidateID:  c.CandidateID,
			CanonicalURL: c.CanonicalURL,
			VoteCount:    c.VoteCount,
			TotalPaid:    c.TotalPaid,
			NextPrice:    next,
		})
	}
	return out, nil
}

// WinnerTiers returns the sealed tier breakdown of a finalized epoch.
func (e *Engine) WinnerTiers(ctx context.Context, index uint64) ([]models.WinnerTier, error) {
	ep, err := e.repo.GetEpoch(ctx, index)
	if err != nil {
		return nil, err
	}
	if ep == nil || !ep.Finalized {
		return nil, ErrEpochNotFinalized
	}
	return e.repo.ListWinnerTiers(ctx, index)
}

// VoterSummary is a voter's per-epoch position projection.
type VoterSummary struct {
	EpochIndex uint64                 `json:"epoch_index"`
	VoterID    string                 `json:"voter_id"`
	TotalPaid  decimal.Decimal        `json:"total_paid"`
	TotalVotes int64                  `json:"total_votes"`
	Positions  []models.VoterPosition `json:"positions"`
}

func (e *Engine) VoterSummary(ctx context.Context, index uint64, voterID string) (*VoterSummary, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" || len(voterID) > maxVoterIDLen {
		return nil, ErrInvalidVoter
	}
	positions, err := e.repo.ListVoterPositions(ctx, index, voterID)
	if err != nil {
		return nil, err
	}
	out := &VoterSummary{
		EpochIndex: index,
		VoterID:    voterID,
		TotalPaid:  decimal.Zero,
		Positions:  positions,
	}
	for _, p := range positions {
		out.TotalPaid = out.TotalPaid.Add(p.AmountPaid)
		out.TotalVotes += p.VoteCount
	}
	return out, nil
}

// EntitlementStatus is a voter's claim-side projection for one epoch.
type EntitlementStatus struct {
	EpochIndex    uint64          `json:"epoch_index"`
	VoterID       string          `json:"voter_id"`
	Finalized     bool            `json:"finalized"`
	Amount        decimal.Decimal `json:"amount"`
	Claimed       bool            `json:"claimed"`
	ClaimedAt     *time.Time      `json:"claimed_at,omitempty"`
	ClaimDeadline time.Time       `json:"claim_deadline"`
}

func (e *Engine) EntitlementStatus(ctx context.Context, index uint64, voterID string) (*EntitlementStatus, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" || len(voterID) > maxVoterIDLen {
		return nil, ErrInvalidVoter
	}
	_, end := e.calc.Bounds(index)
	out := &EntitlementStatus{
		EpochIndex:    index,
		VoterID:       voterID,
		Amount:        decimal.Zero,
		ClaimDeadline: end.Add(e.cfg.claimDeadline()),
	}
	ep, err := e.repo.GetEpoch(ctx, index)
	if err != nil {
		return nil, err
	}
	if ep == nil || !ep.Finalized {
		return out, nil
	}
	out.Finalized = true
	ent, err := e.repo.GetEntitlement(ctx, index, voterID)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		out.Amount = ent.Amount
	}
	record, err := e.repo.GetClaimRecord(ctx, index, voterID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		out.Claimed = true
		out.ClaimedAt = &record.ClaimedAt
	}
	return out, nil
}

// Events pages the engine-event outbox for the external indexer.
func (e *Engine) Events(ctx context.Context, params repository.ListEventsParams) ([]models.EngineEvent, error) {
	return e.repo.ListEngineEvents(ctx, params)
}
