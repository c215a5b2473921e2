// Package retry re-runs flaky upstream calls (model invocations, news
// fetches) with exponential backoff. Every failure is retried; callers
// that hit a permanent error pay at most MaxAttempts round trips, which
// the circuit breaker in front of the model providers then accounts for.
package retry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Logger         *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	return cfg
}

// Do runs operation until it succeeds, the attempt budget is spent, or
// ctx is cancelled. The last error is returned as-is so callers can
// still unwrap it.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.Info("Upstream call recovered",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}

		if attempt >= cfg.MaxAttempts {
			return lastErr
		}

		wait := backoff(cfg, attempt)
		if cfg.Logger != nil {
			cfg.Logger.Warn("Upstream call failed, backing off",
				zap.Error(lastErr),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, operation func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = operation()
		return err
	})
	return result, err
}

// backoff grows the delay geometrically per attempt, capped at
// MaxDelay, with symmetric jitter so concurrent callers spread out.
func backoff(cfg Config, attempt int) time.Duration {
	wait := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait >= cfg.MaxDelay {
			wait = cfg.MaxDelay
			break
		}
	}

	if cfg.JitterFraction > 0 {
		spread := float64(wait) * cfg.JitterFraction
		wait += time.Duration((rand.Float64()*2 - 1) * spread)
	}

	return wait
}
