package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// ExpiredCloser closes approved events whose deadline has passed
type ExpiredCloser interface {
	CloseExpired(ctx context.Context, limit int) (int, error)
}

// DeadlineCloser stops staking on predictions once their deadline passes
type DeadlineCloser struct {
	closer   ExpiredCloser
	interval time.Duration
	limit    int
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewDeadlineCloser creates a new deadline closer job
func NewDeadlineCloser(closer ExpiredCloser, interval time.Duration, limit int) *DeadlineCloser {
	return &DeadlineCloser{
		closer:   closer,
		interval: interval,
		limit:    limit,
		stopChan: make(chan struct{}),
	}
}

// Start begins the closing loop. It blocks until Stop is called.
func (dc *DeadlineCloser) Start() {
	log.Printf("[DeadlineCloser] Starting deadline closer (interval: %v)", dc.interval)

	ticker := time.NewTicker(dc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dc.closeExpired()
		case <-dc.stopChan:
			log.Println("[DeadlineCloser] Stopping deadline closer")
			return
		}
	}
}

// Stop stops the closing loop
func (dc *DeadlineCloser) Stop() {
	dc.stopOnce.Do(func() { close(dc.stopChan) })
}

func (dc *DeadlineCloser) closeExpired() int {
	ctx, cancel := context.WithTimeout(context.Background(), dc.interval)
	defer cancel()

	closed, err := dc.closer.CloseExpired(ctx, dc.limit)
	if err != nil {
		log.Printf("[DeadlineCloser] Error closing expired predictions: %v", err)
	}
	if closed > 0 {
		log.Printf("[DeadlineCloser] Closed %d expired predictions", closed)
	}
	return closed
}
