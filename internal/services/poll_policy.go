package services

import (
	"context"
	"fmt"
	"time"
)

// PollPolicy retries an operation a fixed number of times with a fixed delay
type PollPolicy struct {
	maxAttempts int
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPollPolicy creates a new poll policy
func NewPollPolicy(maxAttempts int, delay time.Duration) *PollPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PollPolicy{
		maxAttempts: maxAttempts,
		delay:       delay,
		sleep:       sleepContext,
	}
}

// MaxAttempts returns the attempt budget
func (p *PollPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Execute runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. The last error is wrapped on exhaustion.
func (p *PollPolicy) Execute(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		lastErr = err

		// Don't sleep after last attempt
		if attempt < p.maxAttempts {
			if err := p.sleep(ctx, p.delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
