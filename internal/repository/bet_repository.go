package repository

import (
	"context"

	"sports-prediction/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateBet records a bet and bumps the event counters in one transaction
func (r *Repository) CreateBet(ctx context.Context, bet *models.Bet) error {
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bet).Error; err != nil {
			return err
		}
		return incrementBetTotals(tx, bet.PredictionID, bet.Amount)
	})
}

// GetBet retrieves a user's bet on a prediction
func (r *Repository) GetBet(ctx context.Context, predictionID uuid.UUID, userID uint) (*models.Bet, error) {
	var bet models.Bet
	err := r.db.WithContext(ctx).
		Where("prediction_id = ? AND user_id = ?", predictionID, userID).
		First(&bet).Error
	if err != nil {
		return nil, err
	}
	return &bet, nil
}

// ListBetsByUser returns a user's bets, newest first
func (r *Repository) ListBetsByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Bet, error) {
	if limit <= 0 {
		limit = 50
	}

	var bets []*models.Bet
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&bets).Error
	if err != nil {
		return nil, err
	}
	return bets, nil
}

// ListBetsByPrediction returns every bet on a prediction, oldest first
func (r *Repository) ListBetsByPrediction(ctx context.Context, predictionID uuid.UUID) ([]*models.Bet, error) {
	var bets []*models.Bet
	err := r.db.WithContext(ctx).
		Where("prediction_id = ?", predictionID).
		Order("created_at ASC").
		Find(&bets).Error
	if err != nil {
		return nil, err
	}
	return bets, nil
}
