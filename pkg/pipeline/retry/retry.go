// Package retry runs a fallible operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shpitdev/orthomap/pkg/pipeline/core"
)

// Policy controls how many times an operation runs and how long to wait in between.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the sleep before the second attempt; it doubles for each later attempt.
	BaseDelay time.Duration
	// MaxDelay caps the un-jittered delay. Zero means uncapped.
	MaxDelay time.Duration
	// JitterMin and JitterMax bound the uniform multiplier applied to every delay.
	JitterMin float64
	JitterMax float64

	// Retryable decides whether a failed attempt may be retried. Defaults to core.Retryable.
	Retryable func(error) bool
	// OnRetry is called before each sleep. attempt is zero-based.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a float in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	if e == nil {
		return "retries exhausted"
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithDefaults fills zero fields.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.JitterMin <= 0 && p.JitterMax <= 0 {
		p.JitterMin = 0.8
		p.JitterMax = 1.2
	}
	if p.JitterMax < p.JitterMin {
		p.JitterMax = p.JitterMin
	}
	if p.Retryable == nil {
		p.Retryable = core.Retryable
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// Delay returns the backoff after the zero-based attempt for a random draw r in [0, 1):
// BaseDelay * 2^attempt * (JitterMin + r*(JitterMax-JitterMin)).
func (p Policy) Delay(attempt int, r float64) time.Duration {
	sleep := p.BaseDelay
	for i := 0; i < attempt; i++ {
		sleep *= 2
		if p.MaxDelay > 0 && sleep >= p.MaxDelay {
			sleep = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && sleep > p.MaxDelay {
		sleep = p.MaxDelay
	}
	j := p.JitterMin + r*(p.JitterMax-p.JitterMin)
	if j <= 0 {
		return sleep
	}
	return time.Duration(float64(sleep) * j)
}

// Do runs fn until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// It never sleeps after the final attempt.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	_, err := Value(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// Value is Do for operations that produce a result. The last result is returned even on error.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.WithDefaults()

	var last T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		out, err := fn(ctx, attempt)
		last = out
		if err == nil {
			return out, nil
		}
		if !p.Retryable(err) {
			return last, err
		}
		if attempt >= p.MaxAttempts-1 {
			return last, &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		delay := p.Delay(attempt, p.Rand())
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := p.Sleep(ctx, delay); err != nil {
			return last, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
