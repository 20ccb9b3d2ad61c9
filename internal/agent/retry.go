package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/ShayCichocki/devteam/internal/llm"
	"github.com/ShayCichocki/devteam/internal/telemetry"
)

// RetryPolicy bounds how often a failed agent call is repeated.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls, first one included.
	MaxAttempts int
	// InitialInterval is the wait before the second attempt. It doubles after
	// each further failure.
	InitialInterval time.Duration
	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns 3 attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
	}
}

// IsRetryable reports whether err is a transient boundary failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGenerationTimeout) ||
		errors.Is(err, ErrEmptyGeneration) ||
		errors.Is(err, llm.ErrConnection)
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	return b
}

// Retry calls fn until it succeeds, fails with a non-retryable error, the
// context ends, or the policy's attempts are used up. The last error is
// returned wrapped, so errors.Is still sees the boundary error.
func Retry[T any](ctx context.Context, p RetryPolicy, logger *zap.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			telemetry.RecordRetry(ctx, op)
			logger.Warn("retrying agent call",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if IsRetryable(err) && attempt >= maxAttempts {
			return res, fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, err)
		}
		return res, err
	}
	return res, nil
}
