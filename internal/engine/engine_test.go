package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arena/internal/candidate"
	"arena/internal/events"
	"arena/internal/models"
	"arena/internal/repository"
)

var testAnchor = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

const week = 7 * 24 * time.Hour

const (
	urlAlpha = "https://apps.example/alpha"
	urlBeta  = "https://apps.example/beta"
	urlGamma = "https://apps.example/gamma"
	urlDelta = "https://apps.example/delta"
)

type testEngine struct {
	*Engine
	repo *stubRepo
	now  time.Time
	bus  *events.Bus
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	repo := newStubRepo()
	bus := events.NewBus(zap.NewNop())
	cfg := Config{
		EpochStart:        testAnchor,
		EpochLength:       week,
		InitialPrice:      decimal.NewFromInt(1_000_000),
		GrowthBps:         300,
		FeeBps:            1000,
		ProtocolRecipient: "protocol-treasury",
		ClaimDeadline:     90 * 24 * time.Hour,
	}
	te := &testEngine{repo: repo, now: testAnchor.Add(time.Hour), bus: bus}
	te.Engine = New(repo, cfg, bus, zap.NewNop())
	te.Engine.now = func() time.Time { return te.now }
	return te
}

func (te *testEngine) setTime(t time.Time) { te.now = t }

// vote pays exactly the quoted price, as a well-behaved client would.
func (te *testEngine) vote(t *testing.T, voterID, rawURL string) *VoteReceipt {
	t.Helper()
	ctx := context.Background()
	canonical, err := candidate.Normalize(rawURL)
	if err != nil {
		t.Fatalf("normalize %q: %v", rawURL, err)
	}
	idx := te.Calculator().Index(te.now)
	price, err := te.Quote(ctx, idx, candidate.ID(canonical))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	receipt, err := te.Vote(ctx, voterID, rawURL, price)
	if err != nil {
		t.Fatalf("vote %s %s: %v", voterID, rawURL, err)
	}
	return receipt
}

func amt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestVotePricingEscalatesAndResetsPerEpoch(t *testing.T) {
	te := newTestEngine(t)

	r1 := te.vote(t, "v1", urlAlpha)
	r2 := te.vote(t, "v1", urlAlpha)
	r3 := te.vote(t, "v2", urlAlpha)
	if !r1.AmountPaid.Equal(amt(1_000_000)) || !r2.AmountPaid.Equal(amt(1_030_000)) || !r3.AmountPaid.Equal(amt(1_060_900)) {
		t.Fatalf("prices=%s,%s,%s want 1000000,1030000,1060900", r1.AmountPaid, r2.AmountPaid, r3.AmountPaid)
	}

	// A new epoch starts the curve over.
	te.setTime(testAnchor.Add(week + time.Hour))
	r4 := te.vote(t, "v1", urlAlpha)
	if r4.EpochIndex != 1 {
		t.Fatalf("epoch=%d want=1", r4.EpochIndex)
	}
	if !r4.AmountPaid.Equal(amt(1_000_000)) {
		t.Fatalf("new-epoch price=%s want initial", r4.AmountPaid)
	}
}

func TestVoteRejectsStalePrice(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.vote(t, "v1", urlAlpha)
	_, err := te.Vote(ctx, "v2", urlAlpha, amt(1_000_000)) // stale quote
	if !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("err=%v want ErrPriceMismatch", err)
	}
	if len(te.repo.votes) != 1 {
		t.Fatalf("votes=%d want=1 (failed vote must leave no state)", len(te.repo.votes))
	}
}

func TestVoteValidation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	if _, err := te.Vote(ctx, "", urlAlpha, amt(1)); !errors.Is(err, ErrInvalidVoter) {
		t.Fatalf("err=%v want ErrInvalidVoter", err)
	}
	if _, err := te.Vote(ctx, "v1", "ftp://nope", amt(1)); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("err=%v want ErrInvalidCandidate", err)
	}
	if _, err := te.Vote(ctx, "v1", urlAlpha, decimal.RequireFromString("0.5")); !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("err=%v want ErrPriceMismatch for fractional payment", err)
	}
}

func TestConservationPerEpoch(t *testing.T) {
	te := newTestEngine(t)

	total := decimal.Zero
	for i := 0; i < 4; i++ {
		total = total.Add(te.vote(t, "v1", urlAlpha).AmountPaid)
	}
	for i := 0; i < 3; i++ {
		total = total.Add(te.vote(t, "v2", urlBeta).AmountPaid)
	}
	total = total.Add(te.vote(t, "v3", urlGamma).AmountPaid)

	ep := te.repo.epochs[0]
	if !ep.ProtocolCollected.Add(ep.PrizePool).Equal(total) {
		t.Fatalf("protocol %s + prize %s != payments %s",
			ep.ProtocolCollected, ep.PrizePool, total)
	}
	// 10% fee, floored per payment.
	if !ep.ProtocolCollected.Equal(mulDivFloor(amt(1_000_000), 1000, 10000).
		Add(mulDivFloor(amt(1_030_000), 1000, 10000)).
		Add(mulDivFloor(amt(1_060_900), 1000, 10000)).
		Add(mulDivFloor(amt(1_092_727), 1000, 10000)).
		Add(mulDivFloor(amt(1_000_000), 1000, 10000)).
		Add(mulDivFloor(amt(1_030_000), 1000, 10000)).
		Add(mulDivFloor(amt(1_060_900), 1000, 10000)).
		Add(mulDivFloor(amt(1_000_000), 1000, 10000))) {
		t.Fatalf("protocol collected=%s", ep.ProtocolCollected)
	}
}

func TestQuoteIsSideEffectFree(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.vote(t, "v1", urlAlpha)
	id := candidate.ID(mustNormalize(t, urlAlpha))
	q1, err := te.Quote(ctx, 0, id)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	q2, err := te.Quote(ctx, 0, id)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q1.Equal(q2) || !q1.Equal(amt(1_030_000)) {
		t.Fatalf("quotes=%s,%s want both 1030000", q1, q2)
	}
}

func TestFinalizeGuards(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.vote(t, "v1", urlAlpha)
	if err := te.Finalize(ctx, 0); !errors.Is(err, ErrEpochNotEnded) {
		t.Fatalf("err=%v want ErrEpochNotEnded", err)
	}

	te.setTime(testAnchor.Add(week))
	if err := te.Finalize(ctx, 0); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	entsBefore := len(te.repo.ents)
	if err := te.Finalize(ctx, 0); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("err=%v want ErrAlreadyFinalized", err)
	}
	if len(te.repo.ents) != entsBefore {
		t.Fatalf("second finalize changed entitlements")
	}
}

func TestFinalizeEmptyEpoch(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.setTime(testAnchor.Add(week))
	if err := te.Finalize(ctx, 0); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ep := te.repo.epochs[0]
	if !ep.Finalized || len(te.repo.tiers[0]) != 0 || len(te.repo.ents) != 0 {
		t.Fatalf("empty epoch: finalized=%v tiers=%d ents=%d", ep.Finalized, len(te.repo.tiers[0]), len(te.repo.ents))
	}
}

func TestVoteLazilyFinalizesOutgoingEpoch(t *testing.T) {
	te := newTestEngine(t)

	te.vote(t, "v1", urlAlpha)
	te.setTime(testAnchor.Add(week + time.Minute))
	r := te.vote(t, "v2", urlBeta)
	if r.EpochIndex != 1 {
		t.Fatalf("epoch=%d want=1", r.EpochIndex)
	}
	if !te.repo.epochs[0].Finalized {
		t.Fatalf("epoch 0 not finalized by vote in epoch 1")
	}
	typ := models.EventEpochFinalized
	evs, err := te.Events(context.Background(), listEventsByType(typ))
	if err != nil || len(evs) != 1 {
		t.Fatalf("finalized events=%d err=%v want 1", len(evs), err)
	}
}

// Two candidates tie at 3 votes, one candidate has 1 vote: the tied pair
// shares 90% (45% each) and the single candidate takes the 10% slot.
func TestTwoWayTieAtTop(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	// alpha: v1 votes twice, v2 once (3 votes). beta: v3 three times.
	// gamma: v4 once.
	te.vote(t, "v1", urlAlpha)
	te.vote(t, "v1", urlAlpha)
	te.vote(t, "v2", urlAlpha)
	te.vote(t, "v3", urlBeta)
	te.vote(t, "v3", urlBeta)
	te.vote(t, "v3", urlBeta)
	te.vote(t, "v4", urlGamma)

	te.setTime(testAnchor.Add(week))
	if err := te.Finalize(ctx, 0); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// pool = 2*(1000000+1030000+1060900)*0.9 + 1000000*0.9 = 6463620
	pool := te.repo.epochs[0].PrizePool
	if !pool.Equal(amt(6_463_620)) {
		t.Fatalf("pool=%s want 6463620", pool)
	}

	wantEnts := map[string]int64{
		"v1": 1_939_086, // 2/3 of alpha's 2908629
		"v2": 969_543,   // 1/3 of alpha's 2908629
		"v3": 2_908_629, // all of beta's 45%
		"v4": 646_362,   // all of gamma's 10%
	}
	for voter, want := range wantEnts {
		ent, err := te.repo.GetEntitlement(ctx, 0, voter)
		if err != nil || ent == nil {
			t.Fatalf("entitlement %s: %v %v", voter, ent, err)
		}
		if !ent.Amount.Equal(amt(want)) {
			t.Fatalf("entitlement %s=%s want=%d", voter, ent.Amount, want)
		}
	}

	rows, err := te.WinnerTiers(ctx, 0)
	if err != nil {
		t.Fatalf("winner tiers: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("tiers=%d want=2", len(rows))
	}
	if rows[0].WeightBps != 9000 || rows[1].WeightBps != 1000 {
		t.Fatalf("tier weights=%d,%d want 9000,1000", rows[0].WeightBps, rows[1].WeightBps)
	}
}

// Three candidates tie at 2 votes each and nothing else: the tie absorbs
// all three slots and takes 100% of the pool.
func TestThreeWayTieTakesEverything(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	for voter, url := range map[string]string{"v1": urlAlpha, "v2": urlBeta, "v3": urlGamma} {
		te.vote(t, voter, url)
		te.vote(t, voter, url)
	}

	te.setTime(testAnchor.Add(week))
	if err := te.Finalize(ctx, 0); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	pool := te.repo.epochs[0].PrizePool
	if !pool.Equal(amt(5_481_000)) {
		t.Fatalf("pool=%s want 5481000", pool)
	}
	total := decimal.Zero
	for _, voter := range []string{"v1", "v2", "v3"} {
		ent, err := te.repo.GetEntitlement(ctx, 0, voter)
		if err != nil || ent == nil {
			t.Fatalf("entitlement %s missing", voter)
		}
		if !ent.Amount.Equal(amt(1_827_000)) {
			t.Fatalf("entitlement %s=%s want 1827000", voter, ent.Amount)
		}
		total = total.Add(ent.Amount)
	}
	if !total.Equal(pool) {
		t.Fatalf("entitlements %s != pool %s", total, pool)
	}
}

func TestVoterForUnrankedCandidateGetsNothing(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	// Counts: alpha 3, beta 3, gamma 2, delta 1. The top tie absorbs slots
	// 1-2, gamma takes slot 3, delta falls off the board.
	for i := 0; i < 3; i++ {
		te.vote(t, "v1", urlAlpha)
		te.vote(t, "v2", urlBeta)
	}
	te.vote(t, "v3", urlGamma)
	te.vote(t, "v3", urlGamma)
	te.vote(t, "v4", urlDelta)

	te.setTime(testAnchor.Add(week))
	if err := te.Finalize(ctx, 0); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := te.Claim(ctx, 0, "v4"); !errors.Is(err, ErrNoEntitlement) {
		t.Fatalf("err=%v want ErrNoEntitlement", err)
	}
	if _, err := te.Claim(ctx, 0, "never-voted"); !errors.Is(err, ErrNoEntitlement) {
		t.Fatalf("err=%v want ErrNoEntitlement", err)
	}
}

func TestClaimLifecycle(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.vote(t, "v1", urlAlpha)

	// Active epoch: no claims yet.
	if _, err := te.Claim(ctx, 0, "v1"); !errors.Is(err, ErrEpochNotFinalized) {
		t.Fatalf("err=%v want ErrEpochNotFinalized", err)
	}

	// Past end, claim lazily finalizes and pays.
	te.setTime(testAnchor.Add(week + time.Hour))
	receipt, err := te.Claim(ctx, 0, "v1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !receipt.Amount.Equal(amt(540_000)) { // 60% of 900000
		t.Fatalf("claim amount=%s want 540000", receipt.Amount)
	}
	if !te.repo.epochs[0].Finalized {
		t.Fatalf("claim did not finalize epoch")
	}

	if _, err := te.Claim(ctx, 0, "v1"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("err=%v want ErrAlreadyClaimed", err)
	}
}

func TestClaimDeadlineBoundary(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.vote(t, "v1", urlAlpha)
	te.vote(t, "v2", urlAlpha)

	_, end := te.Calculator().Bounds(0)
	deadline := end.Add(te.ClaimDeadline())

	te.setTime(deadline.Add(-time.Second))
	if _, err := te.Claim(ctx, 0, "v1"); err != nil {
		t.Fatalf("claim one second before deadline: %v", err)
	}

	te.setTime(deadline.Add(time.Second))
	if _, err := te.Claim(ctx, 0, "v2"); !errors.Is(err, ErrClaimExpired) {
		t.Fatalf("err=%v want ErrClaimExpired", err)
	}
}

func TestSweepCollectsExactlyTheRemainder(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	te.vote(t, "v1", urlAlpha)
	te.vote(t, "v2", urlAlpha)

	_, end := te.Calculator().Bounds(0)
	deadline := end.Add(te.ClaimDeadline())

	te.setTime(end)
	if _, err := te.Sweep(ctx, 0); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("err=%v want ErrDeadlineNotReached", err)
	}

	// v1 claims, v2 forgets.
	te.setTime(end.Add(time.Hour))
	receipt, err := te.Claim(ctx, 0, "v1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	te.setTime(deadline.Add(time.Second))
	result, err := te.Sweep(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	pool := te.repo.epochs[0].PrizePool
	if !receipt.Amount.Add(result.Amount).Equal(pool) {
		t.Fatalf("claimed %s + swept %s != pool %s", receipt.Amount, result.Amount, pool)
	}
	if result.Recipient != "protocol-treasury" {
		t.Fatalf("recipient=%q", result.Recipient)
	}

	// Idempotent: the second sweep moves nothing.
	again, err := te.Sweep(ctx, 0)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if !again.Amount.IsZero() {
		t.Fatalf("second sweep moved %s", again.Amount)
	}
}

func TestSweepEpochWithoutVotes(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, end := te.Calculator().Bounds(0)
	te.setTime(end)
	if _, err := te.Sweep(ctx, 0); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("err=%v want ErrDeadlineNotReached", err)
	}
	te.setTime(end.Add(te.ClaimDeadline() + time.Second))
	result, err := te.Sweep(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !result.Amount.IsZero() {
		t.Fatalf("swept %s from an empty epoch", result.Amount)
	}
}

func TestProtocolConfigAppliesOnlyToNewEpochs(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	if err := te.EnsureProtocolConfig(ctx); err != nil {
		t.Fatalf("ensure config: %v", err)
	}
	te.vote(t, "v1", urlAlpha) // snapshots fee 1000 into epoch 0

	if _, err := te.SetProtocolConfig(ctx, 500, "new-treasury"); err != nil {
		t.Fatalf("set config: %v", err)
	}

	// Same epoch keeps the old snapshot.
	r := te.vote(t, "v1", urlAlpha)
	ep := te.repo.epochs[0]
	if ep.FeeBps != 1000 {
		t.Fatalf("epoch 0 fee=%d want 1000", ep.FeeBps)
	}
	wantFee := mulDivFloor(amt(1_000_000), 1000, 10000).Add(mulDivFloor(r.AmountPaid, 1000, 10000))
	if !ep.ProtocolCollected.Equal(wantFee) {
		t.Fatalf("epoch 0 protocol=%s want=%s", ep.ProtocolCollected, wantFee)
	}

	// The next epoch snapshots the new config.
	te.setTime(testAnchor.Add(week + time.Hour))
	te.vote(t, "v1", urlAlpha)
	ep1 := te.repo.epochs[1]
	if ep1.FeeBps != 500 || ep1.ProtocolRecipient != "new-treasury" {
		t.Fatalf("epoch 1 fee=%d recipient=%q want 500, new-treasury", ep1.FeeBps, ep1.ProtocolRecipient)
	}
}

func TestSetProtocolConfigValidation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	if _, err := te.SetProtocolConfig(ctx, 10001, "x"); err == nil {
		t.Fatalf("expected error for fee > 10000")
	}
	if _, err := te.SetProtocolConfig(ctx, 100, "  "); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

func TestEventsReachOutboxAndBus(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	ch, cancel := te.bus.Subscribe(16)
	defer cancel()

	te.vote(t, "v1", urlAlpha)
	select {
	case ev := <-ch:
		if ev.Type != models.EventVoteRecorded {
			t.Fatalf("bus event type=%s", ev.Type)
		}
	default:
		t.Fatalf("no event on bus")
	}

	te.setTime(testAnchor.Add(week + te.ClaimDeadline() + time.Second))
	if _, err := te.Claim(ctx, 0, "v1"); !errors.Is(err, ErrClaimExpired) {
		t.Fatalf("err=%v want ErrClaimExpired", err)
	}
	if _, err := te.Sweep(ctx, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	types := map[string]int{}
	for _, ev := range te.repo.events {
		types[ev.Type]++
	}
	for _, want := range []string{models.EventVoteRecorded, models.EventEpochFinalized, models.EventSwept} {
		if types[want] == 0 {
			t.Fatalf("outbox missing %s events: %v", want, types)
		}
	}
}

func mustNormalize(t *testing.T, raw string) string {
	t.Helper()
	out, err := candidate.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return out
}

func listEventsByType(typ string) repository.ListEventsParams {
	return repository.ListEventsParams{Type: &typ}
}
