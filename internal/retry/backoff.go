package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Config controls exponential backoff.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

func DefaultConfig() Config {
	return Config{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  4,
		Jitter:       true,
	}
}

type Backoff struct {
	cfg Config
}

func NewBackoff(cfg Config) *Backoff {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Backoff{cfg: cfg}
}

// Retry runs op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. A nil isRetryable retries every error.
func (b *Backoff) Retry(ctx context.Context, op func(ctx context.Context) error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt == b.cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// Delay returns the wait after the given attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := float64(b.cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.cfg.Multiplier
	}
	if delay > float64(b.cfg.MaxDelay) {
		delay = float64(b.cfg.MaxDelay)
	}

	if b.cfg.Jitter {
		// ±25%
		delay += (rand.Float64() - 0.5) * 0.5 * delay
		if delay < 0 {
			delay = float64(b.cfg.InitialDelay)
		}
		if delay > float64(b.cfg.MaxDelay) {
			delay = float64(b.cfg.MaxDelay)
		}
	}

	return time.Duration(delay)
}
