package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"sports-prediction/internal/metrics"
	"sports-prediction/internal/models"
	"sports-prediction/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// DefaultReasoning marks scores produced without the evaluator
const DefaultReasoning = "default scores applied"

// EvaluationInput is what the evaluator sees of an event and its creator
type EvaluationInput struct {
	GameID              string
	Statement           string
	OptionA             string
	OptionB             string
	CreatorID           uint
	CreatorActivityDays int
	CreatorContribution float64
}

// Evaluation is the evaluator's raw judgement
type Evaluation struct {
	Scores    models.SubScores
	Details   models.ScoreDetails
	Reasoning string
}

// Evaluator rates an event on the five scoring criteria
type Evaluator interface {
	Evaluate(ctx context.Context, in EvaluationInput) (*Evaluation, error)
}

// DefaultEvaluation is used whenever the evaluator fails
func DefaultEvaluation() *Evaluation {
	uniform := func(v float64, keys ...string) map[string]float64 {
		m := make(map[string]float64, len(keys))
		for _, k := range keys {
			m[k] = v
		}
		return m
	}
	return &Evaluation{
		Scores: models.SubScores{
			Quality:    70,
			Demand:     60,
			Reputation: 50,
			Novelty:    80,
			Economic:   65,
		},
		Details: models.ScoreDetails{
			Quality:    uniform(70, "clarity", "data_source", "timeframe", "compliance"),
			Demand:     uniform(60, "trend_indicators", "topic_popularity", "timing"),
			Reputation: uniform(50, "loyalty", "success_history", "bond_size"),
			Novelty:    uniform(80, "first_mover", "uniqueness"),
			Economic:   uniform(65, "liquidity", "volatility", "oracle_cost"),
		},
		Reasoning: DefaultReasoning,
	}
}

// ScoringService computes, stores and ranks prediction scores
type ScoringService struct {
	repo      *repository.Repository
	evaluator Evaluator
	limiter   *rate.Limiter
	metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

// NewScoringService creates a new ScoringService. Evaluator calls are spaced
// at least callInterval apart; zero disables pacing.
func NewScoringService(
	repo *repository.Repository,
	evaluator Evaluator,
	callInterval time.Duration,
	m *metrics.SettlementMetrics,
) *ScoringService {
	limit := rate.Inf
	if callInterval > 0 {
		limit = rate.Every(callInterval)
	}
	return &ScoringService{
		repo:      repo,
		evaluator: evaluator,
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
		now:       time.Now,
	}
}

// Score evaluates one event and stores it as the event's current score
func (s *ScoringService) Score(ctx context.Context, event *models.PredictionEvent) (*models.PredictionScore, error) {
	input := s.buildInput(ctx, event)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("scoring cancelled: %w", err)
	}

	started := s.now()
	eval, err := s.evaluator.Evaluate(ctx, input)
	elapsed := s.now().Sub(started)

	fallback := false
	if err != nil || eval == nil {
		log.Printf("[Scoring] Evaluator failed for prediction %s, using defaults: %v", event.ID, err)
		eval = DefaultEvaluation()
		fallback = true
	}

	sub := eval.Scores.Clamped()
	score := &models.PredictionScore{
		ID:           uuid.New(),
		PredictionID: event.ID,
		Quality:      sub.Quality,
		Demand:       sub.Demand,
		Reputation:   sub.Reputation,
		Novelty:      sub.Novelty,
		Economic:     sub.Economic,
		TotalScore:   sub.Total(),
		Details:      eval.Details,
		Reasoning:    eval.Reasoning,
		Fallback:     fallback,
	}

	if err := s.repo.UpsertScore(ctx, score); err != nil {
		return nil, fmt.Errorf("failed to store score: %w", err)
	}

	s.metrics.RecordScore(fallback, score.TotalScore, elapsed)
	log.Printf("[Scoring] Prediction %s scored %.2f (fallback=%v)", event.ID, score.TotalScore, fallback)

	return score, nil
}

// RankAndSelect scores every event and picks the best one that has a ledger
// creator principal. Ties keep input order. Events without a creator address
// are scored and returned but never selected. Statuses are not touched.
func (s *ScoringService) RankAndSelect(
	ctx context.Context,
	events []*models.PredictionEvent,
) (*models.ScoredEvent, []*models.ScoredEvent, error) {
	scored := make([]*models.ScoredEvent, 0, len(events))

	for _, event := range events {
		score, err := s.Score(ctx, event)
		if err != nil {
			return nil, nil, err
		}
		scored = append(scored, &models.ScoredEvent{
			Event:    event,
			Score:    score,
			Eligible: event.HasCreatorAddress() && ValidLedgerAddress(*event.CreatorLedgerAddress),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score.Total() > scored[j].Score.Total()
	})

	for _, se := range scored {
		if se.Eligible {
			return se, scored, nil
		}
	}
	return nil, scored, nil
}

// GetScore returns the current score of a prediction
func (s *ScoringService) GetScore(ctx context.Context, predictionID uuid.UUID) (*models.PredictionScore, error) {
	score, err := s.repo.GetScoreByPrediction(ctx, predictionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score: %w", err)
	}
	return score, nil
}

// ListScores returns the current scores, best first
func (s *ScoringService) ListScores(ctx context.Context, limit int) ([]*models.PredictionScore, error) {
	return s.repo.ListScores(ctx, limit)
}

func (s *ScoringService) buildInput(ctx context.Context, event *models.PredictionEvent) EvaluationInput {
	input := EvaluationInput{
		GameID:    event.GameID,
		Statement: event.Statement,
		OptionA:   event.OptionA,
		OptionB:   event.OptionB,
		CreatorID: event.CreatorID,
	}

	stats, err := s.repo.GetCreatorStats(ctx, event.CreatorID, s.now())
	if err != nil {
		log.Printf("[Scoring] Warning: failed to load creator stats for user %d: %v", event.CreatorID, err)
		return input
	}

	input.CreatorActivityDays = stats.ActivityDays
	if stats.Submitted > 0 {
		input.CreatorContribution = float64(stats.Accepted) / float64(stats.Submitted)
	}
	return input
}
