package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// 1 disables retries. Default: 3.
	MaxAttempts int `mapstructure:"max_attempts"`

	// InitialBackoff is the delay before the first retry. Default: 200ms.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`

	// MaxBackoff caps the delay. Default: 5s.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`

	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64 `mapstructure:"multiplier"`

	// JitterFraction adds ±fraction random jitter to each delay. Default: 0.25.
	JitterFraction float64 `mapstructure:"jitter_fraction"`

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool `mapstructure:"-"`

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error) `mapstructure:"-"`
}

// DefaultRetryConfig returns the retry policy used for store writes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do executes fn, retrying transient failures according to cfg. Context
// cancellation stops retries immediately and returns the last error.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !cfg.ShouldRetry(err) || attempt == cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(computeBackoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	return cfg
}

func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := math.Min(
		float64(cfg.InitialBackoff)*math.Pow(cfg.Multiplier, float64(attempt)),
		float64(cfg.MaxBackoff),
	)
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	return time.Duration(math.Max(delay, 0))
}

// RetryLogger returns an OnRetry callback that logs each attempt.
func RetryLogger(operation string, fields ...zap.Field) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			append([]zap.Field{
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			}, fields...)...,
		)
	}
}
