package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"arena/internal/candidate"
	"arena/internal/epoch"
	"arena/internal/events"
	"arena/internal/models"
	"arena/internal/pricing"
	"arena/internal/repository"
)

// Engine error taxonomy. All conditions are deterministic and non-retryable;
// a failed operation leaves no partial state.
var (
	ErrPriceMismatch      = errors.New("payment does not match current vote price")
	ErrEpochNotEnded      = errors.New("epoch has not ended")
	ErrAlreadyFinalized   = errors.New("epoch already finalized")
	ErrEpochNotFinalized  = errors.New("epoch not finalized")
	ErrNoEntitlement      = errors.New("no entitlement for voter")
	ErrAlreadyClaimed     = errors.New("entitlement already claimed")
	ErrClaimExpired       = errors.New("claim deadline has passed")
	ErrDeadlineNotReached = errors.New("claim deadline not reached")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCandidate   = errors.New("invalid candidate")
	ErrInvalidVoter       = errors.New("invalid voter")
)

const (
	// DefaultFeeBps is the protocol fee: 1000 bps = 10%.
	DefaultFeeBps = 1000
	// DefaultClaimDeadline bounds the claim window after epoch end.
	DefaultClaimDeadline = 90 * 24 * time.Hour

	maxVoterIDLen = 100
)

// Config fixes the engine constants at boot. Epoch anchoring and length are
// immutable for the lifetime of the ledger; fee and recipient are only the
// initial values of the versioned protocol config.
type Config struct {
	EpochStart        time.Time
	EpochLength       time.Duration
	InitialPrice      decimal.Decimal
	GrowthBps         int64
	FeeBps            int32
	ProtocolRecipient string
	ClaimDeadline     time.Duration
}

func (c Config) claimDeadline() time.Duration {
	if c.ClaimDeadline <= 0 {
		return DefaultClaimDeadline
	}
	return c.ClaimDeadline
}

// Engine is the epoch settlement core: it prices and records votes, seals
// epochs into winner tiers and entitlements, pays claims exactly once and
// sweeps what is left after the deadline. Every mutating operation is
// serialized per epoch and applied in a single transaction.
type Engine struct {
	repo  repository.Store
	calc  epoch.Calculator
	curve pricing.Curve
	cfg   Config
	bus   *events.Bus
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	epochsMu map[uint64]*sync.Mutex
}

func New(repo repository.Store, cfg Config, bus *events.Bus, log *zap.Logger) *Engine {
	if cfg.FeeBps <= 0 {
		cfg.FeeBps = DefaultFeeBps
	}
	return &Engine{
		repo:     repo,
		calc:     epoch.NewCalculator(cfg.EpochStart, cfg.EpochLength),
		curve:    pricing.NewCurve(cfg.InitialPrice, cfg.GrowthBps),
		cfg:      cfg,
		bus:      bus,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		epochsMu: make(map[uint64]*sync.Mutex),
	}
}

// Calculator exposes the epoch clock for read-only callers.
func (e *Engine) Calculator() epoch.Calculator {
	return e.calc
}

// ClaimDeadline is the configured claim window length.
func (e *Engine) ClaimDeadline() time.Duration {
	return e.cfg.claimDeadline()
}

// EnsureProtocolConfig seeds protocol config version 1 from the boot config
// when the table is empty.
func (e *Engine) EnsureProtocolConfig(ctx context.Context) error {
	latest, err := e.repo.LatestProtocolConfig(ctx)
	if err != nil {
		return err
	}
	if latest != nil {
		return nil
	}
	return e.repo.InsertProtocolConfig(ctx, &models.ProtocolConfig{
		FeeBps:    e.cfg.FeeBps,
		Recipient: e.cfg.ProtocolRecipient,
	})
}

// SetProtocolConfig appends a new protocol config version. It applies only
// to epochs first touched after the change commits.
func (e *Engine) SetProtocolConfig(ctx context.Context, feeBps int32, recipient string) (*models.ProtocolConfig, error) {
	recipient = strings.TrimSpace(recipient)
	if feeBps < 0 || feeBps > 10000 {
		return nil, fmt.Errorf("fee bps %d out of range [0,10000]", feeBps)
	}
	if recipient == "" {
		return nil, fmt.Errorf("empty protocol recipient")
	}
	item := &models.ProtocolConfig{FeeBps: feeBps, Recipient: recipient}
	if err := e.repo.InsertProtocolConfig(ctx, item); err != nil {
		return nil, err
	}
	if e.log != nil {
		e.log.Info("protocol config updated",
			zap.Uint64("version", item.Version),
			zap.Int32("fee_bps", feeBps),
			zap.String("recipient", recipient),
		)
	}
	return item, nil
}

// VoteReceipt reports a committed vote.
type VoteReceipt struct {
	EpochIndex  uint64          `json:"epoch_index"`
	CandidateID string          `json:"candidate_id"`
	VoterID     string          `json:"voter_id"`
	Seq         int64           `json:"seq"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	VoteCount   int64           `json:"vote_count"`
	NextPrice   decimal.Decimal `json:"next_price"`
}

// Vote charges payment for one vote on the candidate identified by rawURL in
// the current epoch. The payment must equal the quoted next price exactly;
// anything else fails with ErrPriceMismatch so a stale quote can never
// overcharge. If an earlier epoch is still open past its end it is finalized
// first, in its own transaction, before the vote is accepted.
func (e *Engine) Vote(ctx context.Context, voterID, rawURL string, payment decimal.Decimal) (*VoteReceipt, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" || len(voterID) > maxVoterIDLen {
		return nil, ErrInvalidVoter
	}
	canonical, err := candidate.Normalize(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	candidateID := candidate.ID(canonical)
	if !payment.Equal(payment.Truncate(0)) || payment.IsNegative() {
		return nil, fmt.Errorf("%w: payment must be a whole amount of base units", ErrPriceMismatch)
	}

	now := e.now()
	idx := e.calc.Index(now)
	if err := e.finalizeDueBefore(ctx, idx, now); err != nil {
		return nil, err
	}

	unlock := e.lockEpoch(idx)
	defer unlock()

	var (
		receipt VoteReceipt
		emitted []models.EngineEvent
	)
	err = e.repo.InTx(ctx, func(tx *gorm.DB) error {
		ep, err := e.loadOrCreateEpochTx(tx, idx)
		if err != nil {
			return err
		}
		if ep.Finalized {
			return ErrAlreadyFinalized
		}

		cand, err := e.repo.GetEpochCandidateTx(tx, idx, candidateID)
		if err != nil {
			return err
		}
		expected := e.curve.First()
		if cand != nil && cand.VoteCount > 0 {
			expected = e.curve.Next(cand.LastPrice)
		}
		if !payment.Equal(expected) {
			return fmt.Errorf("%w: expected %s, got %s", ErrPriceMismatch, expected, payment)
		}

		ep.VoteSeq++
		seq := ep.VoteSeq

		if cand == nil {
			cand = &models.EpochCandidate{
				EpochIndex:   idx,
				CandidateID:  candidateID,
				CanonicalURL: canonical,
				LastPrice:    decimal.Zero,
				TotalPaid:    decimal.Zero,
				FirstVoteSeq: seq,
			}
		}
		cand.VoteCount++
		cand.LastPrice = payment
		cand.TotalPaid = cand.TotalPaid.Add(payment)

		fee := mulDivFloor(payment, int64(ep.FeeBps), 10000)
		prize := payment.Sub(fee)
		ep.ProtocolCollected = ep.ProtocolCollected.Add(fee)
		ep.PrizePool = ep.PrizePool.Add(prize)

		vote := &models.Vote{
			EpochIndex:  idx,
			CandidateID: candidateID,
			VoterID:     voterID,
			Seq:         seq,
			AmountPaid:  payment,
			CreatedAt:   now,
		}
		if err := e.repo.InsertVoteTx(tx, vote); err != nil {
			return err
		}
		if err := e.repo.SaveEpochCandidateTx(tx, cand); err != nil {
			return err
		}
		if err := e.repo.UpsertVoterPositionTx(tx, idx, voterID, candidateID, 1, payment); err != nil {
			return err
		}
		if err := e.repo.SaveEpochTx(tx, ep); err != nil {
			return err
		}

		ev := newEvent(models.EventVoteRecorded, idx, candidateID, voterID, payment, map[string]any{
			"seq":            seq,
			"vote_count":     cand.VoteCount,
			"protocol_fee":   fee.String(),
			"prize_addition": prize.String(),
			"next_price":     e.curve.Next(payment).String(),
		}, now)
		if err := e.repo.InsertEngineEventTx(tx, &ev); err != nil {
			return err
		}
		emitted = append(emitted, ev)

		receipt = VoteReceipt{
			EpochIndex:  idx,
			CandidateID: candidateID,
			VoterID:     voterID,
			Seq:         seq,
			AmountPaid:  payment,
			VoteCount:   cand.VoteCount,
			NextPrice:   e.curve.Next(payment),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(emitted)
	return &receipt, nil
}

// Quote returns the price of the next vote for a candidate in an epoch.
// Read-only; the authoritative check re-runs inside Vote.
func (e *Engine) Quote(ctx context.Context, index uint64, candidateID string) (decimal.Decimal, error) {
	if !candidate.ValidID(candidateID) {
		return decimal.Zero, ErrInvalidCandidate
	}
	cand, err := e.repo.GetEpochCandidate(ctx, index, candidateID)
	if err != nil {
		return decimal.Zero, err
	}
	if cand == nil || cand.VoteCount == 0 {
		return e.curve.First(), nil
	}
	return e.curve.Next(cand.LastPrice), nil
}

// loadOrCreateEpochTx fetches or lazily creates the epoch row, snapshotting
// the latest protocol config into new rows.
func (e *Engine) loadOrCreateEpochTx(tx *gorm.DB, index uint64) (*models.Epoch, error) {
	ep, err := e.repo.GetEpochTx(tx, index)
	if err != nil {
		return nil, err
	}
	if ep != nil {
		return ep, nil
	}
	feeBps := e.cfg.FeeBps
	recipient := e.cfg.ProtocolRecipient
	latest, err := e.repo.LatestProtocolConfigTx(tx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		feeBps = latest.FeeBps
		recipient = latest.Recipient
	}
	start, end := e.calc.Bounds(index)
	ep = &models.Epoch{
		Index:             index,
		StartTime:         start,
		EndTime:           end,
		FeeBps:            feeBps,
		ProtocolRecipient: recipient,
		ProtocolCollected: decimal.Zero,
		PrizePool:         decimal.Zero,
		SweptAmount:       decimal.Zero,
	}
	if err := e.repo.CreateEpochTx(tx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// lockEpoch serializes mutations per epoch. Operations that touch several
// epochs acquire locks in ascending index order.
func (e *Engine) lockEpoch(index uint64) func() {
	e.mu.Lock()
	m, ok := e.epochsMu[index]
	if !ok {
		m = &sync.Mutex{}
		e.epochsMu[index] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (e *Engine) publish(items []models.EngineEvent) {
	if e.bus == nil {
		return
	}
	for _, ev := range items {
		e.bus.Publish(ev)
	}
}

func newEvent(typ string, index uint64, candidateID, voterID string, amount decimal.Decimal, payload map[string]any, at time.Time) models.EngineEvent {
	raw, _ := json.Marshal(payload)
	return models.EngineEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		EpochIndex:  index,
		CandidateID: candidateID,
		VoterID:     voterID,
		Amount:      amount,
		Payload:     raw,
		CreatedAt:   at,
	}
}

func mulDivFloor(x decimal.Decimal, num, den int64) decimal.Decimal {
	q, _ := x.Mul(decimal.NewFromInt(num)).QuoRem(decimal.NewFromInt(den), 0)
	return q
}
