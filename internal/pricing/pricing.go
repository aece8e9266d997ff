package pricing

import (
	"github.com/shopspring/decimal"
)

// DefaultGrowthBps is the per-vote price growth: 300 bps = x1.03.
const DefaultGrowthBps = 300

// Curve is the per-(epoch, candidate) escalating price curve. All prices are
// integral amounts in the smallest currency unit; growth is applied with
// truncating fixed-point division so the curve is exactly reproducible.
type Curve struct {
	Initial   decimal.Decimal
	GrowthBps int64
}

func NewCurve(initial decimal.Decimal, growthBps int64) Curve {
	if growthBps <= 0 {
		growthBps = DefaultGrowthBps
	}
	return Curve{Initial: initial.Truncate(0), GrowthBps: growthBps}
}

// First is the price of a candidate's first vote in an epoch.
func (c Curve) First() decimal.Decimal {
	return c.Initial
}

// Next returns the price of the vote following one charged at prev:
// floor(prev * (10000 + growth) / 10000).
func (c Curve) Next(prev decimal.Decimal) decimal.Decimal {
	num := prev.Mul(decimal.NewFromInt(10000 + c.GrowthBps))
	q, _ := num.QuoRem(decimal.NewFromInt(10000), 0)
	return q
}

// At returns the price of the n-th vote (1-based) for a candidate in an
// epoch. Used by projections; the ledger always advances via Next.
func (c Curve) At(n int64) decimal.Decimal {
	p := c.Initial
	for i := int64(1); i < n; i++ {
		p = c.Next(p)
	}
	return p
}
