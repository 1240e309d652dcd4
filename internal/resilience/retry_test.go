package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientNoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return errors.New("constraint violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	cfg := fastRetry(4)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "again" }
	var attempts []int
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("again")
		}
		return errors.New("stop")
	})
	require.EqualError(t, err, "stop")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoVal(t *testing.T) {
	var calls int
	n, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("temporary"))
		}
		return 500, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), n)

	n, err = DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int64, error) {
		return 7, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), n)
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Equal(t, 0.0, cfg.JitterFraction)
	assert.NotNil(t, cfg.ShouldRetry)
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, time.Second, computeBackoff(10, cfg))

	cfg.JitterFraction = 0.5
	for i := 0; i < 50; i++ {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryLogger(t *testing.T) {
	logger := RetryLogger("insert_batch")
	logger(1, errors.New("test error"))
}
