package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errConflict = errors.New("conflict")

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2, Jitter: 0.5}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := Do(context.Background(), fastConfig(3), zaptest.NewLogger(t), "reserve", nil, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errConflict
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 3, calls)
}

func TestDoExhausts(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), fastConfig(3), zaptest.NewLogger(t), "reserve", nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errConflict
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, errConflict)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0
	_, err := Do(context.Background(), fastConfig(5), nil, "reserve", func(err error) bool {
		return errors.Is(err, errConflict)
	}, func(ctx context.Context) (struct{}, error) {
		calls++
		return struct{}{}, permanent
	})
	require.ErrorIs(t, err, permanent)
	require.NotErrorIs(t, err, ErrExhausted)
	require.Equal(t, 1, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, fastConfig(3), nil, "reserve", nil, func(ctx context.Context) (int, error) {
		t.Fatal("must not run with a cancelled context")
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()

	cfg := Config{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 40 * time.Millisecond, BackoffMultiplier: 2, Jitter: 0.5}
	for attempt := 0; attempt < 6; attempt++ {
		d := Backoff(attempt, cfg)
		require.GreaterOrEqual(t, d, 5*time.Millisecond)
		require.LessOrEqual(t, d, 60*time.Millisecond)
	}

	cfg.Jitter = 0
	require.Equal(t, 40*time.Millisecond, Backoff(5, cfg))
}
