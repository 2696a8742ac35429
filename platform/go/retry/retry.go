package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted wraps the last error once every attempt has failed with a retryable error.
var ErrExhausted = errors.New("retries exhausted")

// Config holds retry strategy configuration.
type Config struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter is the +/- fraction applied to each backoff, in [0,1].
	Jitter float64
}

// DefaultConfig returns the bounded policy used for quota reservations.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        250 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.5,
	}
}

// Retryable is a function that can be retried.
type Retryable[T any] func(ctx context.Context) (T, error)

// Do runs fn until it succeeds, returns a non-retryable error, the context ends, or
// MaxAttempts is reached. retryIf decides which errors are worth another attempt.
func Do[T any](ctx context.Context, cfg Config, logger *zap.Logger, op string, retryIf func(error) bool, fn Retryable[T]) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if retryIf != nil && !retryIf(err) {
			return zero, err
		}

		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := Backoff(attempt-1, cfg)
		logger.Warn("operation failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%w: operation %q failed after %d attempts: %w", ErrExhausted, op, cfg.MaxAttempts, lastErr)
}

// Backoff returns the jittered exponential delay before attempt number attemptNum+1.
func Backoff(attemptNum int, cfg Config) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attemptNum))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		backoff *= 1 + cfg.Jitter*(2*rand.Float64()-1)
	}
	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}
