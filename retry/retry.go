package retry

import (
	"context"
	"math/rand"
	"time"

	"shortform-pipeline/logger"
)

// Policy is the backoff applied to every outbound call: first attempt
// immediate, then exponential waits with jitter, retrying only errors
// the predicate accepts. One Policy value is shared by all call sites
// so retry behavior cannot drift between stages.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Retryable  func(error) bool
}

// Attempts is the total number of calls Do may make.
func (p Policy) Attempts() int { return p.MaxRetries + 1 }

// Do runs fn until it succeeds, fails a non-retryable way, exhausts the
// retry budget, or ctx ends. Returns the last error seen.
func (p Policy) Do(ctx context.Context, log *logger.Logger, label string, fn func(context.Context) error) error {
	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.Attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts() {
			break
		}
		wait := delay
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		wait = jitter(wait)
		if log != nil {
			log.Warn("retrying after failure",
				"call", label,
				"attempt", attempt,
				"max_attempts", p.Attempts(),
				"wait", wait.String(),
				"error", lastErr.Error(),
			)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}

// jitter spreads the wait by +/- 20%.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	low := float64(base) * 0.8
	high := float64(base) * 1.2
	return time.Duration(low + rand.Float64()*(high-low))
}
