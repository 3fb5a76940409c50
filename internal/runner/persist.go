package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second
)

// persist runs write until it succeeds or the configured retries are spent.
// The delay doubles after each failed attempt, up to maxRetryBackoff.
func (r *Runner) persist(ctx context.Context, what string, items int, write func(context.Context) error) error {
	retries := r.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := r.cfg.RetryBackoff
	if delay <= 0 {
		delay = defaultRetryBackoff
	}

	for attempt := 1; ; attempt++ {
		err := write(ctx)
		if err == nil {
			return nil
		}
		if attempt > retries {
			return fmt.Errorf("store %s: %w", what, err)
		}
		r.logger.Warn("store failed, retrying",
			zap.String("what", what),
			zap.Int("items", items),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
