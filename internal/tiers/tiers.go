package tiers

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TotalWeightBps is the full prize pool.
const TotalWeightBps = 10000

// slotWeightsBps are the fixed weights of the three rank slots (60/30/10).
// Rank positions beyond the third carry no weight.
var slotWeightsBps = []int64{6000, 3000, 1000}

// Standing is a candidate's sealed tally for one epoch.
type Standing struct {
	CandidateID  string
	VoteCount    int64
	FirstVoteSeq int64
}

// Tier is a group of candidates sharing one vote count. A tier occupies as
// many consecutive rank slots as it has members and receives the summed
// weight of those slots, so a multi-way tie absorbs the slots below it.
type Tier struct {
	Rank       int // 1-based position of the first slot occupied
	VoteCount  int64
	WeightBps  int64
	Candidates []Standing // ordered by first-vote sequence
}

// Rank groups standings by distinct vote count, highest first, and assigns
// slot weights. Candidates with zero votes never rank. Tiers whose occupied
// slots all fall beyond the third position receive no weight and are
// excluded from the result.
func Rank(standings []Standing) []Tier {
	ranked := make([]Standing, 0, len(standings))
	for _, s := range standings {
		if s.VoteCount > 0 {
			ranked = append(ranked, s)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].VoteCount != ranked[j].VoteCount {
			return ranked[i].VoteCount > ranked[j].VoteCount
		}
		return ranked[i].FirstVoteSeq < ranked[j].FirstVoteSeq
	})

	var out []Tier
	pos := 1
	for i := 0; i < len(ranked); {
		j := i
		for j < len(ranked) && ranked[j].VoteCount == ranked[i].VoteCount {
			j++
		}
		members := ranked[i:j]
		weight := int64(0)
		for k := 0; k < len(members); k++ {
			slot := pos + k
			if slot <= len(slotWeightsBps) {
				weight += slotWeightsBps[slot-1]
			}
		}
		if weight == 0 {
			break
		}
		out = append(out, Tier{
			Rank:       pos,
			VoteCount:  members[0].VoteCount,
			WeightBps:  weight,
			Candidates: members,
		})
		pos += len(members)
		i = j
	}
	return out
}

// CandidateShare is one winning candidate's slice of a tier allocation.
type CandidateShare struct {
	CandidateID string
	VoteCount   int64
	Amount      decimal.Decimal
}

// Allocation is a tier's slice of the prize pool, split equally across its
// members. The integer remainder of the equal split goes to the tier's
// first candidate by insertion order.
type Allocation struct {
	Tier   Tier
	Amount decimal.Decimal
	Shares []CandidateShare
}

// Allocate splits pool across the ranked tiers. Each tier receives
// floor(pool * weight / 10000); flooring dust stays unallocated and is
// recovered by the sweep. The sum of all shares never exceeds pool.
func Allocate(pool decimal.Decimal, ranked []Tier) []Allocation {
	out := make([]Allocation, 0, len(ranked))
	for _, t := range ranked {
		amount := mulDivFloor(pool, t.WeightBps, TotalWeightBps)
		k := int64(len(t.Candidates))
		base, _ := amount.QuoRem(decimal.NewFromInt(k), 0)
		rem := amount.Sub(base.Mul(decimal.NewFromInt(k)))

		shares := make([]CandidateShare, 0, len(t.Candidates))
		for i, c := range t.Candidates {
			share := base
			if i == 0 {
				share = share.Add(rem)
			}
			shares = append(shares, CandidateShare{
				CandidateID: c.CandidateID,
				VoteCount:   c.VoteCount,
				Amount:      share,
			})
		}
		out = append(out, Allocation{Tier: t, Amount: amount, Shares: shares})
	}
	return out
}

// ProRata returns floor(amount * part / total).
func ProRata(amount decimal.Decimal, part, total int64) decimal.Decimal {
	if total <= 0 || part <= 0 {
		return decimal.Zero
	}
	return mulDivFloor(amount, part, total)
}

func mulDivFloor(x decimal.Decimal, num, den int64) decimal.Decimal {
	q, _ := x.Mul(decimal.NewFromInt(num)).QuoRem(decimal.NewFromInt(den), 0)
	return q
}
