package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"sports-prediction/internal/metrics"
	"sports-prediction/internal/models"
	"sports-prediction/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SettlementService drives events through the ledger: pool creation on
// promotion, closing staking, posting results and claims. Every step can be
// re-invoked after a partial failure.
type SettlementService struct {
	repo      *repository.Repository
	lifecycle *LifecycleService
	scoring   *ScoringService
	mirror    *PoolMirrorService
	ledger    Ledger
	discovery *PollPolicy
	feeBps    uint16
	metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	repo *repository.Repository,
	lifecycle *LifecycleService,
	scoring *ScoringService,
	mirror *PoolMirrorService,
	ledger Ledger,
	discovery *PollPolicy,
	feeBps uint16,
	m *metrics.SettlementMetrics,
) *SettlementService {
	return &SettlementService{
		repo:      repo,
		lifecycle: lifecycle,
		scoring:   scoring,
		mirror:    mirror,
		ledger:    ledger,
		discovery: discovery,
		feeBps:    feeBps,
		metrics:   m,
		now:       time.Now,
	}
}

// Promote creates the ledger pool of a pending event and approves it. An
// event that already carries a pool id skips pool creation.
func (s *SettlementService) Promote(ctx context.Context, id uuid.UUID) (*models.PredictionEvent, error) {
	event, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch event.Status {
	case models.EventStatusApproved:
		return event, nil
	case models.EventStatusPending:
	default:
		return nil, &IllegalTransitionError{From: event.Status, To: models.EventStatusApproved}
	}

	if !event.HasCreatorAddress() || !ValidLedgerAddress(*event.CreatorLedgerAddress) {
		return nil, &PreconditionMissingError{What: "creator ledger address"}
	}

	var ref models.PoolRef
	if event.PoolID != nil && *event.PoolID != "" {
		ref.PoolID = *event.PoolID
		if event.MatchRef != nil {
			ref.MatchRef = *event.MatchRef
		}
		log.Printf("[Settlement] Prediction %s already has pool %s, skipping create", id, ref.PoolID)
	} else {
		created, txRef, err := s.createPool(ctx, event)
		if err != nil {
			return nil, err
		}

		linked, err := s.repo.SetPoolLink(ctx, id, *created, txRef)
		if err != nil {
			return nil, fmt.Errorf("failed to record pool link: %w", err)
		}
		if !linked {
			// Another caller linked a pool first; approve with theirs.
			current, err := s.lifecycle.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if current.PoolID == nil {
				return nil, &IllegalTransitionError{From: current.Status, To: models.EventStatusApproved}
			}
			log.Printf("[Settlement] Prediction %s was linked concurrently to pool %s (ours: %s)",
				id, *current.PoolID, created.PoolID)
			ref.PoolID = *current.PoolID
			if current.MatchRef != nil {
				ref.MatchRef = *current.MatchRef
			}
		} else {
			ref = *created
		}
	}

	if err := s.lifecycle.Approve(ctx, id, ref); err != nil {
		var illegal *IllegalTransitionError
		if errors.As(err, &illegal) && illegal.From == models.EventStatusApproved {
			return s.lifecycle.Get(ctx, id)
		}
		return nil, err
	}

	log.Printf("[Settlement] Prediction %s promoted with pool %s", id, ref.PoolID)

	if _, err := s.mirror.Refresh(ctx, ref.PoolID); err != nil {
		log.Printf("[Settlement] Warning: failed to mirror new pool %s: %v", ref.PoolID, err)
	}

	return s.lifecycle.Get(ctx, id)
}

// createPool creates the pool of event, or resumes discovery of a pool whose
// create_pool transaction was already sent.
func (s *SettlementService) createPool(ctx context.Context, event *models.PredictionEvent) (*models.PoolRef, string, error) {
	if event.PoolTxRef != nil && *event.PoolTxRef != "" {
		txRef := *event.PoolTxRef
		ref, err := s.discoverPool(ctx, txRef)
		if err == nil {
			return ref, txRef, nil
		}
		if !errors.Is(err, ErrLedgerTxFailed) {
			return nil, "", err
		}
		log.Printf("[Settlement] Previous create_pool %s for prediction %s failed, creating again", txRef, event.ID)
		if err := s.repo.ClearPendingTxRef(ctx, event.ID); err != nil {
			return nil, "", fmt.Errorf("failed to clear pool tx ref: %w", err)
		}
	}

	req := CreatePoolRequest{
		Creator:      *event.CreatorLedgerAddress,
		OptionLabels: event.Options(),
		CloseTime:    event.ExpiresAt,
		FeeBps:       s.feeBps,
	}

	started := time.Now()
	res, err := s.ledger.CreatePool(ctx, req)
	s.metrics.RecordLedgerCall("create_pool", started, err)

	if res != nil && res.TxRef != "" && res.Pool == nil {
		// Remember the transaction even when its outcome is unknown so that a
		// retry looks for the pool instead of creating a second one.
		if serr := s.repo.SetPendingTxRef(ctx, event.ID, res.TxRef); serr != nil {
			log.Printf("[Settlement] Warning: failed to store pool tx ref %s: %v", res.TxRef, serr)
		}
	}
	if err != nil {
		return nil, "", &LedgerWriteError{Op: "create_pool", Ambiguous: isAmbiguous(err), Err: err}
	}

	if res.Pool != nil {
		return res.Pool, res.TxRef, nil
	}

	ref, err := s.discoverPool(ctx, res.TxRef)
	if errors.Is(err, ErrLedgerTxFailed) {
		if cerr := s.repo.ClearPendingTxRef(ctx, event.ID); cerr != nil {
			log.Printf("[Settlement] Warning: failed to clear pool tx ref: %v", cerr)
		}
		return nil, "", &LedgerWriteError{Op: "create_pool", Err: err}
	}
	if err != nil {
		return nil, "", err
	}
	return ref, res.TxRef, nil
}

// discoverPool polls LookupPool within the discovery budget
func (s *SettlementService) discoverPool(ctx context.Context, txRef string) (*models.PoolRef, error) {
	var ref *models.PoolRef
	attempts := 0

	err := s.discovery.Execute(ctx, func(err error) bool {
		return errors.Is(err, ErrPoolNotIndexed)
	}, func(attempt int) error {
		attempts = attempt
		started := time.Now()
		r, err := s.ledger.LookupPool(ctx, txRef)
		s.metrics.RecordLedgerCall("lookup_pool", started, err)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	s.metrics.RecordDiscovery(attempts)

	switch {
	case err == nil:
		return ref, nil
	case errors.Is(err, ErrPoolNotIndexed):
		log.Printf("[Settlement] Pool of tx %s not visible after %d attempts", txRef, attempts)
		return nil, fmt.Errorf("%w: tx %s", ErrPoolIDNotFound, txRef)
	case errors.Is(err, ErrLedgerTxFailed):
		return nil, err
	case ctx.Err() != nil:
		return nil, err
	default:
		return nil, &LedgerReadError{Op: "lookup_pool", Err: err}
	}
}

// Close stops staking on the ledger and marks the event ended
func (s *SettlementService) Close(ctx context.Context, id uuid.UUID) (*models.PredictionEvent, error) {
	event, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch event.Status {
	case models.EventStatusEnded, models.EventStatusCompleted:
		return event, nil
	case models.EventStatusApproved:
	default:
		return nil, &IllegalTransitionError{From: event.Status, To: models.EventStatusEnded}
	}

	poolID, matchRef, err := poolRefOf(event)
	if err != nil {
		return nil, err
	}

	// Re-read first: a previous ambiguous close may already have landed.
	pool, err := s.mirror.Refresh(ctx, poolID)
	if err != nil {
		return nil, err
	}

	if pool.Closed {
		log.Printf("[Settlement] Pool %s already closed on ledger", poolID)
	} else {
		started := time.Now()
		_, err := s.ledger.ClosePool(ctx, poolID, matchRef)
		s.metrics.RecordLedgerCall("close_pool", started, err)
		if err != nil {
			return nil, &LedgerWriteError{Op: "close_pool", Ambiguous: isAmbiguous(err), Err: err}
		}
	}

	if err := s.lifecycle.MarkEnded(ctx, id); err != nil {
		return nil, err
	}

	s.refreshQuietly(ctx, poolID)
	return s.lifecycle.Get(ctx, id)
}

// Resolve posts the winning option on the ledger and completes the event
func (s *SettlementService) Resolve(ctx context.Context, id uuid.UUID, winningLabel string) (*models.PredictionEvent, error) {
	event, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	idx, ok := event.OptionIndex(winningLabel)
	if !ok {
		return nil, newValidationError("winning_option", fmt.Sprintf("%q is not an option of this prediction", winningLabel))
	}

	switch event.Status {
	case models.EventStatusCompleted:
		if event.ResultIndex != nil && *event.ResultIndex == idx {
			return event, nil
		}
		return nil, &IllegalTransitionError{From: event.Status, To: models.EventStatusCompleted}
	case models.EventStatusEnded:
	default:
		return nil, &IllegalTransitionError{From: event.Status, To: models.EventStatusCompleted}
	}

	poolID, matchRef, err := poolRefOf(event)
	if err != nil {
		return nil, err
	}

	pool, err := s.mirror.Refresh(ctx, poolID)
	if err != nil {
		return nil, err
	}

	if pool.ResultIndex != nil {
		if *pool.ResultIndex != idx {
			return nil, newValidationError("winning_option",
				fmt.Sprintf("ledger already holds result %d", *pool.ResultIndex))
		}
		log.Printf("[Settlement] Pool %s already holds result %d", poolID, idx)
	} else {
		started := time.Now()
		_, err := s.ledger.PostResult(ctx, poolID, matchRef, idx)
		s.metrics.RecordLedgerCall("post_result", started, err)
		if err != nil {
			return nil, &LedgerWriteError{Op: "post_result", Ambiguous: isAmbiguous(err), Err: err}
		}
	}

	if err := s.lifecycle.MarkCompleted(ctx, id, idx); err != nil {
		return nil, err
	}

	s.refreshQuietly(ctx, poolID)
	return s.lifecycle.Get(ctx, id)
}

// ClaimEligibility computes whether userID may claim a payout on an event
func (s *SettlementService) ClaimEligibility(ctx context.Context, id uuid.UUID, userID uint) (*models.ClaimEligibility, error) {
	elig, _, _, err := s.eligibility(ctx, id, userID)
	return elig, err
}

// Claim pays out a winning bet through the ledger
func (s *SettlementService) Claim(ctx context.Context, id uuid.UUID, userID uint) (*ClaimResult, error) {
	elig, event, bet, err := s.eligibility(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, newValidationError("claim", elig.Reason)
	}

	poolID := *event.PoolID

	started := time.Now()
	claimed, err := s.ledger.HasClaimed(ctx, poolID, bet.UserLedgerAddress)
	s.metrics.RecordLedgerCall("has_claimed", started, err)
	if err != nil {
		return nil, &LedgerReadError{Op: "has_claimed", Err: err}
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	started = time.Now()
	res, err := s.ledger.Claim(ctx, poolID, bet.UserLedgerAddress)
	s.metrics.RecordLedgerCall("claim", started, err)
	if err != nil {
		return nil, &LedgerWriteError{Op: "claim", Ambiguous: isAmbiguous(err), Err: err}
	}

	log.Printf("[Settlement] User %d claimed %d on pool %s (tx %s)", userID, res.Payout, poolID, res.TxRef)
	return res, nil
}

func (s *SettlementService) eligibility(
	ctx context.Context,
	id uuid.UUID,
	userID uint,
) (*models.ClaimEligibility, *models.PredictionEvent, *models.Bet, error) {
	event, err := s.lifecycle.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if event.Status != models.EventStatusCompleted || event.ResultIndex == nil || event.PoolID == nil {
		return nil, nil, nil, ErrClaimBlocked
	}

	elig := &models.ClaimEligibility{
		PredictionID: id.String(),
		ResultIndex:  event.ResultIndex,
	}

	bet, err := s.repo.GetBet(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		elig.Reason = "no bet on this prediction"
		return elig, event, nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get bet: %w", err)
	}

	elig.BetOption = bet.Option
	if bet.OptionIndex == *event.ResultIndex {
		elig.Eligible = true
	} else {
		elig.Reason = "bet did not win"
	}
	return elig, event, bet, nil
}

// PromoteTopRanked scores the pending queue and promotes the best eligible event
func (s *SettlementService) PromoteTopRanked(ctx context.Context, limit int) (*models.ScoredEvent, []*models.ScoredEvent, error) {
	pending, err := s.lifecycle.ListPending(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list pending predictions: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil, nil
	}

	winner, scored, err := s.scoring.RankAndSelect(ctx, pending)
	if err != nil {
		return nil, nil, err
	}
	if winner == nil {
		log.Printf("[Settlement] No eligible prediction among %d pending", len(pending))
		return nil, scored, nil
	}

	event, err := s.Promote(ctx, winner.Event.ID)
	if err != nil {
		return winner, scored, err
	}
	winner.Event = event
	return winner, scored, nil
}

// CloseExpired closes approved events whose deadline has passed. Failures are
// logged and left for the next pass.
func (s *SettlementService) CloseExpired(ctx context.Context, limit int) (int, error) {
	events, err := s.repo.ListExpiredApproved(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired predictions: %w", err)
	}

	closed := 0
	for _, event := range events {
		if _, err := s.Close(ctx, event.ID); err != nil {
			log.Printf("[Settlement] Failed to close expired prediction %s: %v", event.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *SettlementService) refreshQuietly(ctx context.Context, poolID string) {
	if _, err := s.mirror.Refresh(ctx, poolID); err != nil {
		log.Printf("[Settlement] Warning: failed to refresh pool %s: %v", poolID, err)
	}
}

func poolRefOf(event *models.PredictionEvent) (string, string, error) {
	if event.PoolID == nil || *event.PoolID == "" {
		return "", "", &PreconditionMissingError{What: "pool_id"}
	}
	if event.MatchRef == nil || *event.MatchRef == "" {
		return "", "", &PreconditionMissingError{What: "match_ref"}
	}
	return *event.PoolID, *event.MatchRef, nil
}

// isAmbiguous reports whether a failed write may still have committed
func isAmbiguous(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown) || errors.Is(err, context.DeadlineExceeded)
}
