package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"sports-prediction/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSubScoresTotal(t *testing.T) {
	s := models.SubScores{Quality: 80, Demand: 70, Reputation: 60, Novelty: 90, Economic: 50}
	if got := s.Total(); !almostEqual(got, 71.5) {
		t.Errorf("expected 71.5, got %v", got)
	}

	if got := DefaultEvaluation().Scores.Total(); !almostEqual(got, 64) {
		t.Errorf("expected default total 64, got %v", got)
	}
}

func TestScoreFallsBackOnEvaluatorError(t *testing.T) {
	env := setupTestEnv(t)
	env.evaluator.err = errors.New("quota exceeded")
	event := env.submit(t, "Over 2.5 goals", true)

	score, err := env.scoring.Score(context.Background(), event)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if !score.Fallback {
		t.Error("expected fallback score")
	}
	if !almostEqual(score.TotalScore, 64) {
		t.Errorf("expected 64, got %v", score.TotalScore)
	}
	if score.Reasoning != DefaultReasoning {
		t.Errorf("unexpected reasoning %q", score.Reasoning)
	}
}

func TestScoreClampsAndUpserts(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	event := env.submit(t, "Clean sheet", true)

	env.evaluator.scores["Clean sheet"] = 140
	score, err := env.scoring.Score(ctx, event)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if !almostEqual(score.TotalScore, 100) {
		t.Errorf("expected clamped total 100, got %v", score.TotalScore)
	}

	env.evaluator.scores["Clean sheet"] = 40
	rescored, err := env.scoring.Score(ctx, event)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if rescored.ID != score.ID {
		t.Errorf("rescore must keep the stored id %s, got %s", score.ID, rescored.ID)
	}

	scores, err := env.scoring.ListScores(ctx, 0)
	if err != nil {
		t.Fatalf("ListScores failed: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("expected a single current score, got %d", len(scores))
	}
	if !almostEqual(scores[0].TotalScore, 40) {
		t.Errorf("expected latest total 40, got %v", scores[0].TotalScore)
	}

	got, err := env.scoring.GetScore(ctx, event.ID)
	if err != nil {
		t.Fatalf("GetScore failed: %v", err)
	}
	if got.ID != rescored.ID || !got.CreatedAt.Equal(rescored.CreatedAt) {
		t.Errorf("returned score %s does not match stored row %s", rescored.ID, got.ID)
	}
	if !almostEqual(got.Total(), got.TotalScore) {
		t.Errorf("stored total %v does not match sub-scores %v", got.TotalScore, got.Total())
	}
}

func TestRankAndSelectSkipsEventsWithoutAddress(t *testing.T) {
	env := setupTestEnv(t)
	a := env.submit(t, "A", true)
	b := env.submit(t, "B", true)
	c := env.submit(t, "C", false)
	env.evaluator.scores = map[string]float64{"A": 72, "B": 91, "C": 91}

	winner, scored, err := env.scoring.RankAndSelect(context.Background(), []*models.PredictionEvent{c, a, b})
	if err != nil {
		t.Fatalf("RankAndSelect failed: %v", err)
	}
	if winner == nil || winner.Event.ID != b.ID {
		t.Fatalf("expected B to win, got %+v", winner)
	}
	if len(scored) != 3 {
		t.Fatalf("expected 3 scored events, got %d", len(scored))
	}
	// C ties with B and came first, but has no creator address.
	if scored[0].Event.ID != c.ID || scored[0].Eligible {
		t.Errorf("expected ineligible C ranked first, got %+v", scored[0])
	}

	for _, e := range []*models.PredictionEvent{a, b, c} {
		got, _ := env.lifecycle.Get(context.Background(), e.ID)
		if got.Status != models.EventStatusPending {
			t.Errorf("ranking must not change status, %s is %s", e.Statement, got.Status)
		}
	}
}

func TestRankAndSelectTieKeepsInputOrder(t *testing.T) {
	env := setupTestEnv(t)
	d := env.submit(t, "D", true)
	e := env.submit(t, "E", true)
	env.evaluator.scores = map[string]float64{"D": 80, "E": 80}

	winner, _, err := env.scoring.RankAndSelect(context.Background(), []*models.PredictionEvent{d, e})
	if err != nil {
		t.Fatalf("RankAndSelect failed: %v", err)
	}
	if winner == nil || winner.Event.ID != d.ID {
		t.Errorf("expected earlier event D to win the tie")
	}
}

func TestRankAndSelectNoEligible(t *testing.T) {
	env := setupTestEnv(t)
	x := env.submit(t, "X", false)
	env.evaluator.scores = map[string]float64{"X": 99}

	winner, scored, err := env.scoring.RankAndSelect(context.Background(), []*models.PredictionEvent{x})
	if err != nil {
		t.Fatalf("RankAndSelect failed: %v", err)
	}
	if winner != nil {
		t.Errorf("expected no winner, got %+v", winner)
	}
	if len(scored) != 1 {
		t.Errorf("expected the event to still be scored")
	}
}
