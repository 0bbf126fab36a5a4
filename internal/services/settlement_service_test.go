package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"sports-prediction/internal/models"
)

func TestPromoteCreatesPoolAndApproves(t *testing.T) {
	env := setupTestEnv(t)
	event := env.submit(t, "Home wins", true)

	got, err := env.settlement.Promote(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if got.Status != models.EventStatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
	if got.PoolID == nil || *got.PoolID != "pool-1" || got.MatchRef == nil || *got.MatchRef != "match-1" {
		t.Errorf("unexpected pool link %v/%v", got.PoolID, got.MatchRef)
	}
	if env.ledger.createCalls != 1 {
		t.Errorf("expected one create_pool, got %d", env.ledger.createCalls)
	}
	if _, ok := env.mirror.Get("pool-1"); !ok {
		t.Error("expected new pool in the mirror")
	}

	// Promoting again is a no-op.
	if _, err := env.settlement.Promote(context.Background(), event.ID); err != nil {
		t.Fatalf("second Promote failed: %v", err)
	}
	if env.ledger.createCalls != 1 {
		t.Errorf("re-invocation must not create another pool, got %d", env.ledger.createCalls)
	}
}

func TestPromoteSkipsCreateWhenPoolLinked(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.submit(t, "Away wins", true)

	// A previous run created and linked the pool, then failed before approving.
	ref := models.PoolRef{PoolID: "pool-prev", MatchRef: "match-prev"}
	env.ledger.pools[ref.PoolID] = &models.Pool{PoolID: ref.PoolID}
	if ok, err := env.repo.SetPoolLink(ctx, event.ID, ref, "tx-prev"); err != nil || !ok {
		t.Fatalf("SetPoolLink failed: ok=%v err=%v", ok, err)
	}

	got, err := env.settlement.Promote(ctx, event.ID)
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if env.ledger.createCalls != 0 {
		t.Errorf("expected no create_pool, got %d", env.ledger.createCalls)
	}
	if got.Status != models.EventStatusApproved || *got.PoolID != "pool-prev" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestPromoteDiscoveryExhaustionThenResume(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.submit(t, "Penalties", true)

	env.ledger.createResult = &CreatePoolResult{TxRef: "tx-slow"}

	_, err := env.settlement.Promote(ctx, event.ID)
	if !errors.Is(err, ErrPoolIDNotFound) {
		t.Fatalf("expected ErrPoolIDNotFound, got %v", err)
	}
	if env.ledger.lookupCalls != 3 {
		t.Errorf("expected 3 lookups, got %d", env.ledger.lookupCalls)
	}

	pending, _ := env.lifecycle.Get(ctx, event.ID)
	if pending.Status != models.EventStatusPending {
		t.Errorf("event must stay pending, got %s", pending.Status)
	}
	if pending.PoolTxRef == nil || *pending.PoolTxRef != "tx-slow" {
		t.Fatalf("expected tx ref to be kept, got %v", pending.PoolTxRef)
	}

	// The transaction lands later; the retry resumes discovery.
	env.ledger.publish("tx-slow", models.PoolRef{PoolID: "pool-slow", MatchRef: "match-slow"})

	got, err := env.settlement.Promote(ctx, event.ID)
	if err != nil {
		t.Fatalf("Promote retry failed: %v", err)
	}
	if env.ledger.createCalls != 1 {
		t.Errorf("retry must not create a second pool, got %d calls", env.ledger.createCalls)
	}
	if got.Status != models.EventStatusApproved || *got.PoolID != "pool-slow" {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestPromoteAmbiguousCreateKeepsTxRef(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.submit(t, "Extra time", true)

	env.ledger.createResult = &CreatePoolResult{TxRef: "tx-unknown"}
	env.ledger.createErr = fmt.Errorf("%w: send timed out", ErrOutcomeUnknown)

	_, err := env.settlement.Promote(ctx, event.ID)
	var writeErr *LedgerWriteError
	if !errors.As(err, &writeErr) || !writeErr.Ambiguous {
		t.Fatalf("expected ambiguous LedgerWriteError, got %v", err)
	}

	pending, _ := env.lifecycle.Get(ctx, event.ID)
	if pending.PoolTxRef == nil || *pending.PoolTxRef != "tx-unknown" {
		t.Fatalf("expected tx ref to be kept, got %v", pending.PoolTxRef)
	}

	env.ledger.createErr = nil
	env.ledger.publish("tx-unknown", models.PoolRef{PoolID: "pool-u", MatchRef: "match-u"})

	if _, err := env.settlement.Promote(ctx, event.ID); err != nil {
		t.Fatalf("Promote retry failed: %v", err)
	}
	if env.ledger.createCalls != 1 {
		t.Errorf("expected a single create_pool, got %d", env.ledger.createCalls)
	}
}

func TestPromoteFailedCreateIsRetried(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.submit(t, "Red card", true)

	env.ledger.createResult = &CreatePoolResult{TxRef: "tx-bad"}
	env.ledger.lookupErr = fmt.Errorf("%w: custom program error", ErrLedgerTxFailed)

	_, err := env.settlement.Promote(ctx, event.ID)
	var writeErr *LedgerWriteError
	if !errors.As(err, &writeErr) || writeErr.Ambiguous {
		t.Fatalf("expected definite LedgerWriteError, got %v", err)
	}

	pending, _ := env.lifecycle.Get(ctx, event.ID)
	if pending.PoolTxRef != nil {
		t.Errorf("failed tx ref must be cleared, got %v", *pending.PoolTxRef)
	}
}

func TestPromotePreconditions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	noAddr := env.submit(t, "No address", false)
	if _, err := env.settlement.Promote(ctx, noAddr.ID); !IsPreconditionMissing(err) {
		t.Errorf("expected PreconditionMissing, got %v", err)
	}
	if env.ledger.createCalls != 0 {
		t.Error("no pool may be created without a creator address")
	}

	rejected := env.submit(t, "Rejected", true)
	if err := env.lifecycle.Reject(ctx, rejected.ID); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if _, err := env.settlement.Promote(ctx, rejected.ID); !IsIllegalTransition(err) {
		t.Errorf("expected IllegalTransition, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.approved(t, "Corner count over 9")

	got, err := env.settlement.Close(ctx, event.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got.Status != models.EventStatusEnded {
		t.Errorf("expected ended, got %s", got.Status)
	}

	if _, err := env.settlement.Close(ctx, event.ID); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if env.ledger.closeCalls != 1 {
		t.Errorf("expected one close_pool, got %d", env.ledger.closeCalls)
	}
}

func TestCloseSkipsWriteWhenLedgerAlreadyClosed(t *testing.T) {
	env := setupTestEnv(t)
	event := env.approved(t, "Hat trick")
	env.ledger.pools[*event.PoolID].Closed = true

	got, err := env.settlement.Close(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if env.ledger.closeCalls != 0 {
		t.Errorf("expected no close_pool, got %d", env.ledger.closeCalls)
	}
	if got.Status != models.EventStatusEnded {
		t.Errorf("expected ended, got %s", got.Status)
	}
}

func TestCloseMissingMatchRef(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.submit(t, "Own goal", true)

	if ok, err := env.repo.SetPoolLink(ctx, event.ID, models.PoolRef{PoolID: "pool-z"}, "tx-z"); err != nil || !ok {
		t.Fatalf("SetPoolLink failed: ok=%v err=%v", ok, err)
	}
	if ok, err := env.repo.TransitionStatus(ctx, event.ID, models.EventStatusPending, models.EventStatusApproved, nil); err != nil || !ok {
		t.Fatalf("TransitionStatus failed: ok=%v err=%v", ok, err)
	}

	_, err := env.settlement.Close(ctx, event.ID)
	var missing *PreconditionMissingError
	if !errors.As(err, &missing) || missing.What != "match_ref" {
		t.Fatalf("expected missing match_ref, got %v", err)
	}
	if env.ledger.closeCalls != 0 {
		t.Error("close_pool must not be sent")
	}
}

func TestClosePendingIsIllegal(t *testing.T) {
	env := setupTestEnv(t)
	event := env.submit(t, "Pending", true)

	if _, err := env.settlement.Close(context.Background(), event.ID); !IsIllegalTransition(err) {
		t.Errorf("expected IllegalTransition, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.approved(t, "Clean sheet for home")

	// Resolving before staking is closed is illegal.
	if _, err := env.settlement.Resolve(ctx, event.ID, "Yes"); !IsIllegalTransition(err) {
		t.Errorf("expected IllegalTransition on approved event, got %v", err)
	}

	if _, err := env.settlement.Close(ctx, event.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := env.settlement.Resolve(ctx, event.ID, "Maybe"); !IsValidation(err) {
		t.Errorf("expected validation error for unknown label, got %v", err)
	}

	got, err := env.settlement.Resolve(ctx, event.ID, "No")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Status != models.EventStatusCompleted || got.ResultIndex == nil || *got.ResultIndex != 1 {
		t.Errorf("unexpected resolved event %+v", got)
	}

	// Same winner again is a no-op.
	if _, err := env.settlement.Resolve(ctx, event.ID, "No"); err != nil {
		t.Errorf("repeat Resolve failed: %v", err)
	}
	if env.ledger.postCalls != 1 {
		t.Errorf("expected one post_result, got %d", env.ledger.postCalls)
	}

	if _, err := env.settlement.Resolve(ctx, event.ID, "Yes"); !IsIllegalTransition(err) {
		t.Errorf("expected IllegalTransition for a different winner, got %v", err)
	}
}

func TestResolveConflictingLedgerResult(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.approved(t, "Late winner")
	if _, err := env.settlement.Close(ctx, event.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	other := 0
	env.ledger.pools[*event.PoolID].ResultIndex = &other

	if _, err := env.settlement.Resolve(ctx, event.ID, "No"); !IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	got, err := env.settlement.Resolve(ctx, event.ID, "Yes")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if env.ledger.postCalls != 0 {
		t.Errorf("matching ledger result must not be posted again")
	}
	if got.Status != models.EventStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestClaimFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.approved(t, "First half goal")

	winner, loser := testAddress(10), testAddress(11)
	if _, err := env.bets.PlaceBet(ctx, 10, winner, event.ID, &models.PlaceBetRequest{Option: "Yes", Amount: 300}); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if _, err := env.bets.PlaceBet(ctx, 11, loser, event.ID, &models.PlaceBetRequest{Option: "No", Amount: 100}); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	if _, err := env.settlement.ClaimEligibility(ctx, event.ID, 10); !errors.Is(err, ErrClaimBlocked) {
		t.Errorf("expected ErrClaimBlocked before completion, got %v", err)
	}

	if _, err := env.settlement.Close(ctx, event.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := env.settlement.Resolve(ctx, event.ID, "Yes"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	elig, err := env.settlement.ClaimEligibility(ctx, event.ID, 10)
	if err != nil {
		t.Fatalf("ClaimEligibility failed: %v", err)
	}
	if !elig.Eligible || elig.BetOption != "Yes" {
		t.Errorf("expected winner eligible, got %+v", elig)
	}

	elig, _ = env.settlement.ClaimEligibility(ctx, event.ID, 11)
	if elig.Eligible || elig.Reason != "bet did not win" {
		t.Errorf("expected loser ineligible, got %+v", elig)
	}

	elig, _ = env.settlement.ClaimEligibility(ctx, event.ID, 99)
	if elig.Eligible || elig.Reason != "no bet on this prediction" {
		t.Errorf("expected no-bet ineligible, got %+v", elig)
	}

	res, err := env.settlement.Claim(ctx, event.ID, 10)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if res.Payout != 400 {
		t.Errorf("expected payout 400, got %d", res.Payout)
	}

	if _, err := env.settlement.Claim(ctx, event.ID, 10); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	if _, err := env.settlement.Claim(ctx, event.ID, 11); !IsValidation(err) {
		t.Errorf("expected validation error for losing claim, got %v", err)
	}
	if env.ledger.claimCalls != 1 {
		t.Errorf("expected one claim, got %d", env.ledger.claimCalls)
	}
}

func TestClaimEligibilitySecondOptionWins(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.approved(t, "Away side wins")

	if _, err := env.bets.PlaceBet(ctx, 20, testAddress(20), event.ID, &models.PlaceBetRequest{Option: "Yes", Amount: 50}); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if _, err := env.bets.PlaceBet(ctx, 21, testAddress(21), event.ID, &models.PlaceBetRequest{Option: "No", Amount: 50}); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if _, err := env.settlement.Close(ctx, event.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	resolved, err := env.settlement.Resolve(ctx, event.ID, "No")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.ResultIndex == nil || *resolved.ResultIndex != 1 {
		t.Fatalf("expected result index 1, got %+v", resolved.ResultIndex)
	}

	elig, err := env.settlement.ClaimEligibility(ctx, event.ID, 20)
	if err != nil {
		t.Fatalf("ClaimEligibility failed: %v", err)
	}
	if elig.Eligible || elig.Reason != "bet did not win" || elig.BetOption != "Yes" {
		t.Errorf("option_a bet must lose on result 1, got %+v", elig)
	}

	elig, err = env.settlement.ClaimEligibility(ctx, event.ID, 21)
	if err != nil {
		t.Fatalf("ClaimEligibility failed: %v", err)
	}
	if !elig.Eligible || elig.BetOption != "No" {
		t.Errorf("option_b bet must win on result 1, got %+v", elig)
	}
}

func TestPromoteTopRanked(t *testing.T) {
	env := setupTestEnv(t)
	env.submit(t, "Low", true)
	best := env.submit(t, "High", true)
	env.evaluator.scores = map[string]float64{"Low": 55, "High": 88}

	winner, scored, err := env.settlement.PromoteTopRanked(context.Background(), 10)
	if err != nil {
		t.Fatalf("PromoteTopRanked failed: %v", err)
	}
	if winner == nil || winner.Event.ID != best.ID {
		t.Fatalf("expected High to be promoted, got %+v", winner)
	}
	if winner.Event.Status != models.EventStatusApproved {
		t.Errorf("expected approved winner, got %s", winner.Event.Status)
	}
	if len(scored) != 2 {
		t.Errorf("expected 2 scored events, got %d", len(scored))
	}
}

func TestCloseExpired(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.approved(t, "Expires soon")
	env.approved(t, "Also expires")

	env.settlement.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	closed, err := env.settlement.CloseExpired(ctx, 10)
	if err != nil {
		t.Fatalf("CloseExpired failed: %v", err)
	}
	if closed != 2 {
		t.Errorf("expected 2 closed, got %d", closed)
	}

	got, _ := env.lifecycle.Get(ctx, event.ID)
	if got.Status != models.EventStatusEnded {
		t.Errorf("expected ended, got %s", got.Status)
	}
}
