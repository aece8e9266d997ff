package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"arena/internal/models"
)

// ClaimReceipt reports a paid-out entitlement.
type ClaimReceipt struct {
	EpochIndex uint64          `json:"epoch_index"`
	VoterID    string          `json:"voter_id"`
	Amount     decimal.Decimal `json:"amount"`
	ClaimedAt  time.Time       `json:"claimed_at"`
}

// Claim pays out the voter's entitlement for a finalized epoch exactly once.
// An ended but still-open epoch is finalized in the same transaction before
// the claim is checked. The actual transfer is executed by the payment layer
// listening for the Claimed event; the ledger only records the debt as
// settled.
func (e *Engine) Claim(ctx context.Context, index uint64, voterID string) (*ClaimReceipt, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" || len(voterID) > maxVoterIDLen {
		return nil, ErrInvalidVoter
	}

	now := e.now()
	unlock := e.lockEpoch(index)
	defer unlock()

	var (
		receipt ClaimReceipt
		emitted []models.EngineEvent
	)
	err := e.repo.InTx(ctx, func(tx *gorm.DB) error {
		ep, err := e.repo.GetEpochTx(tx, index)
		if err != nil {
			return err
		}
		if ep == nil || !ep.Finalized {
			if !e.calc.Ended(index, now) {
				return ErrEpochNotFinalized
			}
			evs, err := e.finalizeTx(tx, index, now, true)
			if err != nil {
				return err
			}
			emitted = append(emitted, evs...)
			if ep, err = e.repo.GetEpochTx(tx, index); err != nil {
				return err
			}
		}

		ent, err := e.repo.GetEntitlementTx(tx, index, voterID)
		if err != nil {
			return err
		}
		if ent == nil || ent.Amount.IsZero() {
			return ErrNoEntitlement
		}
		existing, err := e.repo.GetClaimRecordTx(tx, index, voterID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyClaimed
		}
		if now.After(ep.EndTime.Add(e.cfg.claimDeadline())) {
			return ErrClaimExpired
		}

		record := &models.ClaimRecord{
			EpochIndex: index,
			VoterID:    voterID,
			Amount:     ent.Amount,
			ClaimedAt:  now,
		}
		if err := e.repo.InsertClaimRecordTx(tx, record); err != nil {
			return err
		}

		ev := newEvent(models.EventClaimed, index, "", voterID, ent.Amount, map[string]any{
			"claimed_at": now.Format(time.RFC3339),
		}, now)
		if err := e.repo.InsertEngineEventTx(tx, &ev); err != nil {
			return err
		}
		emitted = append(emitted, ev)

		receipt = ClaimReceipt{
			EpochIndex: index,
			VoterID:    voterID,
			Amount:     ent.Amount,
			ClaimedAt:  now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(emitted)
	return &receipt, nil
}

// SweepResult reports a sweep of unclaimed entitlements.
type SweepResult struct {
	EpochIndex uint64          `json:"epoch_index"`
	Amount     decimal.Decimal `json:"amount"`
	Recipient  string          `json:"recipient"`
}

// Sweep transfers whatever part of the prize pool is still unclaimed after
// the claim deadline to the protocol recipient. Safe to repeat: the
// remaining amount is re-derived from the ledger every time, so a second
// sweep moves zero.
func (e *Engine) Sweep(ctx context.Context, index uint64) (*SweepResult, error) {
	now := e.now()
	unlock := e.lockEpoch(index)
	defer unlock()

	deadline := e.cfg.claimDeadline()
	var (
		result  SweepResult
		emitted []models.EngineEvent
	)
	err := e.repo.InTx(ctx, func(tx *gorm.DB) error {
		ep, err := e.repo.GetEpochTx(tx, index)
		if err != nil {
			return err
		}
		if ep == nil {
			// Nothing was ever staked in this epoch.
			if !now.After(e.endTime(index).Add(deadline)) {
				return ErrDeadlineNotReached
			}
			result = SweepResult{EpochIndex: index, Amount: decimal.Zero, Recipient: e.cfg.ProtocolRecipient}
			return nil
		}
		if !now.After(ep.EndTime.Add(deadline)) {
			return ErrDeadlineNotReached
		}
		if !ep.Finalized {
			evs, err := e.finalizeTx(tx, index, now, true)
			if err != nil {
				return err
			}
			emitted = append(emitted, evs...)
			if ep, err = e.repo.GetEpochTx(tx, index); err != nil {
				return err
			}
		}

		claimed, err := e.repo.SumClaimedTx(tx, index)
		if err != nil {
			return err
		}
		remaining := ep.PrizePool.Sub(claimed).Sub(ep.SweptAmount)
		if remaining.IsNegative() {
			// Conservation violation; abort rather than truncate value.
			return errSweepUnderflow(index, ep.PrizePool, claimed, ep.SweptAmount)
		}

		sweptAt := now
		ep.SweptAt = &sweptAt
		if remaining.IsPositive() {
			ep.SweptAmount = ep.SweptAmount.Add(remaining)
		}
		if err := e.repo.SaveEpochTx(tx, ep); err != nil {
			return err
		}
		if remaining.IsPositive() {
			ev := newEvent(models.EventSwept, index, "", "", remaining, map[string]any{
				"recipient":     ep.ProtocolRecipient,
				"claimed_total": claimed.String(),
			}, now)
			if err := e.repo.InsertEngineEventTx(tx, &ev); err != nil {
				return err
			}
			emitted = append(emitted, ev)
		}

		result = SweepResult{EpochIndex: index, Amount: remaining, Recipient: ep.ProtocolRecipient}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(emitted)
	if e.log != nil && result.Amount.IsPositive() {
		e.log.Info("epoch swept",
			zap.Uint64("epoch", index),
			zap.String("amount", result.Amount.String()),
			zap.String("recipient", result.Recipient),
		)
	}
	return &result, nil
}

// SweepDue sweeps every epoch whose claim deadline has lapsed. Used by the
// cron job; each epoch goes through the same Sweep entrypoint.
func (e *Engine) SweepDue(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.claimDeadline())
	due, err := e.repo.ListUnsweptEpochsWithDeadlineBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, ep := range due {
		if _, err := e.Sweep(ctx, ep.Index); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func errSweepUnderflow(index uint64, pool, claimed, swept decimal.Decimal) error {
	return fmt.Errorf("epoch %d sweep underflow: prize_pool=%s claimed=%s already_swept=%s",
		index, pool, claimed, swept)
}

func (e *Engine) endTime(index uint64) time.Time {
	_, end := e.calc.Bounds(index)
	return end
}
