package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"sports-prediction/internal/models"
)

// PoolLister returns the pool ids of events in the given states
type PoolLister interface {
	ListPoolIDs(ctx context.Context, statuses ...models.EventStatus) ([]string, error)
}

// PoolRefresher re-reads pools from the ledger into the mirror
type PoolRefresher interface {
	RefreshAll(ctx context.Context, poolIDs []string) (int, int)
}

// PoolRefreshJob keeps the odds of live pools fresh
type PoolRefreshJob struct {
	lister    PoolLister
	refresher PoolRefresher
	interval  time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewPoolRefreshJob creates a new pool refresh job
func NewPoolRefreshJob(lister PoolLister, refresher PoolRefresher, interval time.Duration) *PoolRefreshJob {
	return &PoolRefreshJob{
		lister:    lister,
		refresher: refresher,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the refresh loop. It blocks until Stop is called.
func (j *PoolRefreshJob) Start() {
	log.Printf("[PoolRefreshJob] Starting pool refresh job (interval: %v)", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.refreshLivePools()
		case <-j.stopChan:
			log.Println("[PoolRefreshJob] Stopping pool refresh job")
			return
		}
	}
}

// Stop stops the refresh loop
func (j *PoolRefreshJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// refreshLivePools refreshes pools of approved and ended events. Completed
// pools no longer move.
func (j *PoolRefreshJob) refreshLivePools() (refreshed, failed int) {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	ids, err := j.lister.ListPoolIDs(ctx, models.EventStatusApproved, models.EventStatusEnded)
	if err != nil {
		log.Printf("[PoolRefreshJob] Error listing pools: %v", err)
		return 0, 0
	}
	if len(ids) == 0 {
		return 0, 0
	}

	refreshed, failed = j.refresher.RefreshAll(ctx, ids)
	if failed > 0 {
		log.Printf("[PoolRefreshJob] Refreshed %d pools, %d failed", refreshed, failed)
	}
	return refreshed, failed
}
