package fetcher

import (
	"context"
	"math"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/config"
)

// Sleeper blocks for d or until ctx is done. Tests swap in a recorder.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy describes exponential backoff for retryable fetch failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// PolicyFromConfig builds the policy from fetcher settings.
func PolicyFromConfig(cfg *config.FetcherConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Multiplier: 2,
	}
}

// Backoff returns the delay before the given retry (1-based). A server
// supplied Retry-After wins when it is longer than the computed delay. prev is
// the delay used before the previous retry, zero for the first one: the result
// is always longer than prev until it reaches max(MaxDelay, retryAfter).
func (p RetryPolicy) Backoff(retry int, retryAfter, prev time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(retry-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	delay := max(time.Duration(d), retryAfter)
	if prev > 0 && delay <= prev {
		ceiling := max(p.MaxDelay, retryAfter)
		delay = time.Duration(float64(prev) * mult)
		if ceiling > 0 && delay > ceiling {
			delay = max(ceiling, prev)
		}
	}
	return delay
}
