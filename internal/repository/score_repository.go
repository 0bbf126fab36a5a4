package repository

import (
	"context"

	"sports-prediction/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertScore stores the single current score of a prediction, replacing any
// earlier one. On return score carries the id and creation time of the
// stored row.
func (r *Repository) UpsertScore(ctx context.Context, score *models.PredictionScore) error {
	if score.ID == uuid.Nil {
		score.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "prediction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"quality", "demand", "reputation", "novelty", "economic",
				"total_score", "details", "reasoning", "fallback", "updated_at",
			}),
		}).Create(score).Error
		if err != nil {
			return err
		}

		var stored models.PredictionScore
		err = tx.Select("id", "created_at").
			Where("prediction_id = ?", score.PredictionID).
			First(&stored).Error
		if err != nil {
			return err
		}
		score.ID = stored.ID
		score.CreatedAt = stored.CreatedAt
		return nil
	})
}

// GetScoreByPrediction retrieves the current score of a prediction
func (r *Repository) GetScoreByPrediction(ctx context.Context, predictionID uuid.UUID) (*models.PredictionScore, error) {
	var score models.PredictionScore
	err := r.db.WithContext(ctx).Where("prediction_id = ?", predictionID).First(&score).Error
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// ListScores returns current scores, best first
func (r *Repository) ListScores(ctx context.Context, limit int) ([]*models.PredictionScore, error) {
	var scores []*models.PredictionScore
	q := r.db.WithContext(ctx).Order("total_score DESC").Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}
