package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"sports-prediction/internal/metrics"
	"sports-prediction/internal/models"
	"sports-prediction/internal/repository"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"gorm.io/gorm"
)

// Deadline window for new submissions
const (
	MinDeadline = time.Hour
	MaxDeadline = 168 * time.Hour
)

// LifecycleService owns the authoritative status of prediction events
type LifecycleService struct {
	repo    *repository.Repository
	metrics *metrics.SettlementMetrics
	now     func() time.Time
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(repo *repository.Repository, m *metrics.SettlementMetrics) *LifecycleService {
	return &LifecycleService{
		repo:    repo,
		metrics: m,
		now:     time.Now,
	}
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to models.EventStatus) bool {
	switch from {
	case models.EventStatusPending:
		return to == models.EventStatusApproved || to == models.EventStatusRejected
	case models.EventStatusApproved:
		return to == models.EventStatusEnded
	case models.EventStatusEnded:
		return to == models.EventStatusCompleted
	case models.EventStatusRejected, models.EventStatusCompleted:
		return false
	}
	return false
}

// Submit validates a draft and stores it as a pending event
func (s *LifecycleService) Submit(
	ctx context.Context,
	creatorID uint,
	req *models.SubmitPredictionRequest,
) (*models.PredictionEvent, error) {
	statement := strings.TrimSpace(req.Statement)
	optionA := strings.TrimSpace(req.OptionA)
	optionB := strings.TrimSpace(req.OptionB)
	gameID := strings.TrimSpace(req.GameID)

	if gameID == "" {
		return nil, newValidationError("game_id", "game id is required")
	}
	if statement == "" {
		return nil, newValidationError("prediction", "prediction statement is required")
	}
	if optionA == "" || optionB == "" {
		return nil, newValidationError("options", "both options are required")
	}
	if strings.EqualFold(optionA, optionB) {
		return nil, newValidationError("options", "options must be different")
	}

	now := s.now()
	untilDeadline := req.Deadline.Sub(now)
	if untilDeadline < MinDeadline || untilDeadline > MaxDeadline {
		return nil, newValidationError("deadline", "deadline must be between 1 hour and 7 days from now")
	}

	event := &models.PredictionEvent{
		ID:        uuid.New(),
		GameID:    gameID,
		Statement: statement,
		OptionA:   optionA,
		OptionB:   optionB,
		Duration:  int(math.Ceil(untilDeadline.Hours())),
		Status:    models.EventStatusPending,
		CreatorID: creatorID,
		CreatedAt: now,
		ExpiresAt: req.Deadline,
	}

	if addr := strings.TrimSpace(req.CreatorLedgerAddress); addr != "" {
		if !ValidLedgerAddress(addr) {
			return nil, newValidationError("user_address", "invalid ledger address")
		}
		event.CreatorLedgerAddress = &addr
	}

	if err := s.repo.CreatePrediction(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create prediction: %w", err)
	}

	log.Printf("[Lifecycle] Prediction %s submitted by user %d (game=%s, duration=%dh)",
		event.ID, creatorID, event.GameID, event.Duration)

	return event, nil
}

// Get returns one event
func (s *LifecycleService) Get(ctx context.Context, id uuid.UUID) (*models.PredictionEvent, error) {
	event, err := s.repo.GetPredictionByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return event, nil
}

// ListPending returns pending events in submission order
func (s *LifecycleService) ListPending(ctx context.Context, limit int) ([]*models.PredictionEvent, error) {
	return s.repo.ListPredictionsByStatus(ctx, models.EventStatusPending, limit)
}

// ListApproved returns events open for staking
func (s *LifecycleService) ListApproved(ctx context.Context, limit int) ([]*models.PredictionEvent, error) {
	return s.repo.ListPredictionsByStatus(ctx, models.EventStatusApproved, limit)
}

// ListByCreator returns a user's submissions
func (s *LifecycleService) ListByCreator(ctx context.Context, creatorID uint) ([]*models.PredictionEvent, error) {
	return s.repo.ListPredictionsByCreator(ctx, creatorID)
}

// Approve moves a pending event to approved. The ledger pool must already exist.
func (s *LifecycleService) Approve(ctx context.Context, id uuid.UUID, ref models.PoolRef) error {
	if ref.PoolID == "" {
		return newValidationError("pool_id", "pool id is required to approve")
	}
	return s.transition(ctx, id, models.EventStatusPending, models.EventStatusApproved, map[string]interface{}{
		"pool_id":   ref.PoolID,
		"match_ref": ref.MatchRef,
	})
}

// Reject moves a pending event to rejected. An event whose pool was already
// created on the ledger cannot be rejected; its promotion must be finished.
func (s *LifecycleService) Reject(ctx context.Context, id uuid.UUID) error {
	from, to := models.EventStatusPending, models.EventStatusRejected

	ok, err := s.repo.TransitionUnlinked(ctx, id, from, to)
	if err != nil {
		s.metrics.RecordTransition(string(to), false)
		return fmt.Errorf("failed to update prediction status: %w", err)
	}
	if ok {
		s.metrics.RecordTransition(string(to), true)
		log.Printf("[Lifecycle] Prediction %s: %s -> %s", id, from, to)
		return nil
	}

	s.metrics.RecordTransition(string(to), false)
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == from && current.PoolID != nil {
		log.Printf("[Lifecycle] Refusing to reject prediction %s linked to pool %s", id, *current.PoolID)
	}
	return &IllegalTransitionError{From: current.Status, To: to, PoolLinked: current.PoolID != nil}
}

// MarkEnded records that staking was closed on the ledger
func (s *LifecycleService) MarkEnded(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, models.EventStatusApproved, models.EventStatusEnded, nil)
}

// MarkCompleted records that a result was posted on the ledger
func (s *LifecycleService) MarkCompleted(ctx context.Context, id uuid.UUID, resultIndex int) error {
	if resultIndex != 0 && resultIndex != 1 {
		return newValidationError("result_index", "result index must be 0 or 1")
	}
	return s.transition(ctx, id, models.EventStatusEnded, models.EventStatusCompleted, map[string]interface{}{
		"result_index": resultIndex,
	})
}

// transition applies from -> to as a single conditional update. When the
// row is not in `from` the current status is reported in the error.
func (s *LifecycleService) transition(
	ctx context.Context,
	id uuid.UUID,
	from models.EventStatus,
	to models.EventStatus,
	extra map[string]interface{},
) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}

	ok, err := s.repo.TransitionStatus(ctx, id, from, to, extra)
	if err != nil {
		s.metrics.RecordTransition(string(to), false)
		return fmt.Errorf("failed to update prediction status: %w", err)
	}

	if !ok {
		s.metrics.RecordTransition(string(to), false)
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		log.Printf("[Lifecycle] Rejected %s -> %s for prediction %s (current status: %s)", from, to, id, current.Status)
		return &IllegalTransitionError{From: current.Status, To: to}
	}

	s.metrics.RecordTransition(string(to), true)
	log.Printf("[Lifecycle] Prediction %s: %s -> %s", id, from, to)
	return nil
}

// ValidLedgerAddress reports whether addr decodes to a 32-byte public key
func ValidLedgerAddress(addr string) bool {
	raw, err := base58.Decode(addr)
	return err == nil && len(raw) == 32
}
