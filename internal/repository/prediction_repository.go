package repository

import (
	"context"
	"time"

	"sports-prediction/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreatePrediction inserts a new prediction event
func (r *Repository) CreatePrediction(ctx context.Context, event *models.PredictionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// GetPredictionByID retrieves a prediction event by ID
func (r *Repository) GetPredictionByID(ctx context.Context, id uuid.UUID) (*models.PredictionEvent, error) {
	var event models.PredictionEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListPredictionsByStatus returns events in one status, oldest submission first
func (r *Repository) ListPredictionsByStatus(
	ctx context.Context,
	status models.EventStatus,
	limit int,
) ([]*models.PredictionEvent, error) {
	var events []*models.PredictionEvent
	q := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListPredictionsByCreator returns the events a user submitted, newest first
func (r *Repository) ListPredictionsByCreator(ctx context.Context, creatorID uint) ([]*models.PredictionEvent, error) {
	var events []*models.PredictionEvent
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListExpiredApproved returns approved events whose deadline has passed
func (r *Repository) ListExpiredApproved(ctx context.Context, now time.Time, limit int) ([]*models.PredictionEvent, error) {
	var events []*models.PredictionEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.EventStatusApproved, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ListPoolIDs returns the pool ids of events whose pools are still worth mirroring
func (r *Repository) ListPoolIDs(ctx context.Context, statuses ...models.EventStatus) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("status IN ? AND pool_id IS NOT NULL", statuses).
		Pluck("pool_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TransitionStatus moves an event from one status to another in a single
// conditional update. It reports false when the event was not in `from`.
func (r *Repository) TransitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from models.EventStatus,
	to models.EventStatus,
	extra map[string]interface{},
) (bool, error) {
	return r.transitionStatus(ctx, id, from, to, extra, false)
}

// TransitionUnlinked is TransitionStatus for events that must not carry a
// ledger pool. It reports false when a pool is already linked.
func (r *Repository) TransitionUnlinked(
	ctx context.Context,
	id uuid.UUID,
	from models.EventStatus,
	to models.EventStatus,
) (bool, error) {
	return r.transitionStatus(ctx, id, from, to, nil, true)
}

func (r *Repository) transitionStatus(
	ctx context.Context,
	id uuid.UUID,
	from models.EventStatus,
	to models.EventStatus,
	extra map[string]interface{},
	unlinked bool,
) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	q := r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("id = ? AND status = ?", id, from)
	if unlinked {
		q = q.Where("pool_id IS NULL")
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetPoolLink records the ledger pool of a pending event. It only writes when
// no pool has been recorded yet, so a retried promotion never overwrites one.
func (r *Repository) SetPoolLink(ctx context.Context, id uuid.UUID, ref models.PoolRef, txRef string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("id = ? AND status = ? AND pool_id IS NULL", id, models.EventStatusPending).
		Updates(map[string]interface{}{
			"pool_id":     ref.PoolID,
			"match_ref":   ref.MatchRef,
			"pool_tx_ref": txRef,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetPendingTxRef remembers a create_pool transaction whose pool id is not yet known
func (r *Repository) SetPendingTxRef(ctx context.Context, id uuid.UUID, txRef string) error {
	return r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("id = ? AND pool_id IS NULL", id).
		Update("pool_tx_ref", txRef).Error
}

// ClearPendingTxRef forgets a create_pool transaction that failed on the ledger
func (r *Repository) ClearPendingTxRef(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PredictionEvent{}).
		Where("id = ? AND pool_id IS NULL", id).
		Update("pool_tx_ref", nil).Error
}

// incrementBetTotals bumps the denormalised bet counters inside tx
func incrementBetTotals(tx *gorm.DB, id uuid.UUID, amount uint64) error {
	return tx.Model(&models.PredictionEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_bets":   gorm.Expr("total_bets + ?", 1),
			"total_amount": gorm.Expr("total_amount + ?", amount),
		}).Error
}
