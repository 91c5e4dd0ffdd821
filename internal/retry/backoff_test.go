package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastConfig(retries int) Config {
	return Config{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(5), nil, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithBackoff_Exhausted(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), nil, "op", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, 3, calls)
}

func TestWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithBackoff(ctx, fastConfig(3), nil, "op", func(context.Context) error {
		t.Fatal("fn called after cancel")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	require.Equal(t, time.Second, Backoff(cfg, 1))
	require.Equal(t, 4*time.Second, Backoff(cfg, 3))
	require.Equal(t, 5*time.Second, Backoff(cfg, 10))

	cfg.Jitter = true
	for range 20 {
		d := Backoff(cfg, 1)
		require.GreaterOrEqual(t, d, 850*time.Millisecond)
		require.LessOrEqual(t, d, 1150*time.Millisecond)
	}
}
