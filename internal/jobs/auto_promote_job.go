package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"sports-prediction/internal/models"
)

// Promoter ranks the pending queue and promotes the best eligible event
type Promoter interface {
	PromoteTopRanked(ctx context.Context, limit int) (*models.ScoredEvent, []*models.ScoredEvent, error)
}

// AutoPromoteJob periodically promotes the top-ranked pending prediction
type AutoPromoteJob struct {
	promoter Promoter
	limit    int
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAutoPromoteJob creates a job that considers up to limit pending events
// per run
func NewAutoPromoteJob(promoter Promoter, limit int) *AutoPromoteJob {
	return &AutoPromoteJob{
		promoter: promoter,
		limit:    limit,
		stopChan: make(chan struct{}),
	}
}

// Start runs once immediately and then every interval, until Stop is called.
// A zero interval disables the job.
func (j *AutoPromoteJob) Start(interval time.Duration) {
	if interval <= 0 {
		log.Println("[AutoPromoteJob] Disabled")
		return
	}

	go func() {
		log.Printf("[AutoPromoteJob] Starting auto-promotion (interval: %v)", interval)
		j.runOnce(interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.runOnce(interval)
			case <-j.stopChan:
				log.Println("[AutoPromoteJob] Stopping auto-promotion")
				return
			}
		}
	}()
}

// Stop stops the promotion loop
func (j *AutoPromoteJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *AutoPromoteJob) runOnce(timeout time.Duration) *models.ScoredEvent {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	winner, scored, err := j.promoter.PromoteTopRanked(ctx, j.limit)
	if err != nil {
		log.Printf("[AutoPromoteJob] Promotion error: %v", err)
		return nil
	}
	if winner == nil {
		if len(scored) > 0 {
			log.Printf("[AutoPromoteJob] No eligible prediction among %d ranked", len(scored))
		}
		return nil
	}

	log.Printf("[AutoPromoteJob] Promoted prediction %s (score %.2f)", winner.Event.ID, winner.Score.TotalScore)
	return winner
}
