package repository

import (
	"context"
	"errors"
	"time"

	"sports-prediction/internal/models"

	"gorm.io/gorm"
)

// CreatorStats is the submission history the evaluator weighs for reputation
type CreatorStats struct {
	ActivityDays int
	Accepted     int64
	Submitted    int64
}

// GetCreatorStats summarises a creator's account age and accepted submissions
func (r *Repository) GetCreatorStats(ctx context.Context, creatorID uint, now time.Time) (*CreatorStats, error) {
	stats := &CreatorStats{}

	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", creatorID).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		stats.ActivityDays = int(now.Sub(user.CreatedAt).Hours() / 24)
	}

	err = r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("creator_id = ?", creatorID).
		Count(&stats.Submitted).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("creator_id = ? AND status IN ?", creatorID, []models.EventStatus{
			models.EventStatusApproved, models.EventStatusEnded, models.EventStatusCompleted,
		}).
		Count(&stats.Accepted).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}
