package engine

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arena/internal/models"
	"arena/internal/tiers"
)

// Finalize seals an ended epoch: it freezes tallies, ranks candidates into
// tiers, and records each winning voter's entitlement. Explicit trigger;
// fails with ErrEpochNotEnded while the epoch is active and with
// ErrAlreadyFinalized on a repeat call.
func (e *Engine) Finalize(ctx context.Context, index uint64) error {
	now := e.now()
	if !e.calc.Ended(index, now) {
		return ErrEpochNotEnded
	}

	unlock := e.lockEpoch(index)
	defer unlock()

	var emitted []models.EngineEvent
	err := e.repo.InTx(ctx, func(tx *gorm.DB) error {
		evs, err := e.finalizeTx(tx, index, now, false)
		if err != nil {
			return err
		}
		emitted = evs
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(emitted)
	return nil
}

// finalizeDueBefore seals every epoch that has ended by now and precedes
// limit. Each epoch is finalized atomically in its own transaction; the lazy
// guard at the top of vote/claim/sweep is the only thing that advances
// epochs, there is no background scheduler.
func (e *Engine) finalizeDueBefore(ctx context.Context, limit uint64, now time.Time) error {
	due, err := e.repo.ListUnfinalizedEpochsEndingBy(ctx, now)
	if err != nil {
		return err
	}
	for _, ep := range due {
		if ep.Index >= limit {
			continue
		}
		index := ep.Index
		unlock := e.lockEpoch(index)
		var emitted []models.EngineEvent
		err := e.repo.InTx(ctx, func(tx *gorm.DB) error {
			evs, err := e.finalizeTx(tx, index, now, true)
			if err != nil {
				return err
			}
			emitted = evs
			return nil
		})
		unlock()
		if err != nil {
			return err
		}
		e.publish(emitted)
	}
	return nil
}

// finalizeTx runs the sealing algorithm inside the caller's transaction. With
// skipFinalized the already-sealed case is a no-op instead of an error (the
// lazy path must be idempotent under races).
func (e *Engine) finalizeTx(tx *gorm.DB, index uint64, now time.Time, skipFinalized bool) ([]models.EngineEvent, error) {
	ep, err := e.loadOrCreateEpochTx(tx, index)
	if err != nil {
		return nil, err
	}
	if ep.Finalized {
		if skipFinalized {
			return nil, nil
		}
		return nil, ErrAlreadyFinalized
	}
	if now.Before(ep.EndTime) {
		return nil, ErrEpochNotEnded
	}

	cands, err := e.repo.ListEpochCandidatesTx(tx, index)
	if err != nil {
		return nil, err
	}
	standings := make([]tiers.Standing, 0, len(cands))
	for _, c := range cands {
		standings = append(standings, tiers.Standing{
			CandidateID:  c.CandidateID,
			VoteCount:    c.VoteCount,
			FirstVoteSeq: c.FirstVoteSeq,
		})
	}
	allocs := tiers.Allocate(ep.PrizePool, tiers.Rank(standings))

	// Per-voter entitlements: each winning candidate's slice is split
	// pro-rata by the voter's share of that candidate's votes. Flooring
	// dust stays in the pool for the sweep.
	byVoter := map[string]*models.Entitlement{}
	tierRows := make([]models.WinnerTier, 0, len(allocs))
	tierPayload := make([]map[string]any, 0, len(allocs))
	for _, a := range allocs {
		ids := make([]string, 0, len(a.Shares))
		for _, share := range a.Shares {
			ids = append(ids, share.CandidateID)
			positions, err := e.repo.ListCandidatePositionsTx(tx, index, share.CandidateID)
			if err != nil {
				return nil, err
			}
			for _, pos := range positions {
				amount := tiers.ProRata(share.Amount, pos.VoteCount, share.VoteCount)
				if amount.IsZero() {
					continue
				}
				ent, ok := byVoter[pos.VoterID]
				if !ok {
					ent = &models.Entitlement{
						EpochIndex: index,
						VoterID:    pos.VoterID,
					}
					byVoter[pos.VoterID] = ent
				}
				ent.Amount = ent.Amount.Add(amount)
			}
		}
		rawIDs, _ := json.Marshal(ids)
		tierRows = append(tierRows, models.WinnerTier{
			EpochIndex:   index,
			Rank:         int32(a.Tier.Rank),
			VoteCount:    a.Tier.VoteCount,
			WeightBps:    int32(a.Tier.WeightBps),
			TierAmount:   a.Amount,
			CandidateIDs: rawIDs,
		})
		tierPayload = append(tierPayload, map[string]any{
			"rank":       a.Tier.Rank,
			"vote_count": a.Tier.VoteCount,
			"weight_bps": a.Tier.WeightBps,
			"amount":     a.Amount.String(),
			"candidates": ids,
		})
	}

	ents := make([]models.Entitlement, 0, len(byVoter))
	for _, ent := range byVoter {
		ents = append(ents, *ent)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].VoterID < ents[j].VoterID })

	if err := e.repo.InsertWinnerTiersTx(tx, tierRows); err != nil {
		return nil, err
	}
	if err := e.repo.InsertEntitlementsTx(tx, ents); err != nil {
		return nil, err
	}

	finalizedAt := now
	ep.Finalized = true
	ep.FinalizedAt = &finalizedAt
	if err := e.repo.SaveEpochTx(tx, ep); err != nil {
		return nil, err
	}

	ev := newEvent(models.EventEpochFinalized, index, "", "", ep.PrizePool, map[string]any{
		"protocol_collected": ep.ProtocolCollected.String(),
		"prize_pool":         ep.PrizePool.String(),
		"tiers":              tierPayload,
		"entitled_voters":    len(ents),
	}, now)
	if err := e.repo.InsertEngineEventTx(tx, &ev); err != nil {
		return nil, err
	}
	if e.log != nil {
		e.log.Info("epoch finalized",
			zap.Uint64("epoch", index),
			zap.Int("tiers", len(tierRows)),
			zap.Int("entitled_voters", len(ents)),
			zap.String("prize_pool", ep.PrizePool.String()),
		)
	}
	return []models.EngineEvent{ev}, nil
}
