// Package resilience wires the rate-limit, circuit-break, and bounded
// retry policy shared by every driver port (llm, imagegen, tts, publish)
// around a single call, so each driver only supplies the call itself and
// how to recognize its own content-policy errors.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Retry is the bounded exponential backoff policy: the wait before each
// retry starts at BaseDelay and doubles, capped at MaxDelay.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetry is the standard policy: 3 attempts, waiting 1s and then 2s
// between them (backoff capped at 4s).
func DefaultRetry() Retry {
	return Retry{MaxAttempts: 3, BaseDelay: 1 * time.Second, MaxDelay: 4 * time.Second}
}

func (r Retry) delay(attempt int) time.Duration {
	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

// NewBreaker returns a circuit breaker that trips after maxFailures
// consecutive failures and stays open for 30s.
func NewBreaker[T any](name string, maxFailures uint32) *gobreaker.CircuitBreaker[T] {
	if maxFailures == 0 {
		maxFailures = 5
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		Timeout: 30 * time.Second,
	})
}

// NewLimiter returns a token-bucket limiter admitting ratePerSecond
// requests per second, or nil (no limiting) if ratePerSecond <= 0.
func NewLimiter(ratePerSecond float64) *rate.Limiter {
	if ratePerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), 1)
}

// IsTerminal classifies an error as non-retryable (e.g. content policy
// refusals, malformed requests) given a driver-specific predicate.
type IsTerminal func(error) bool

// Do runs fn under limiter admission and breaker supervision, retrying
// transient failures (those for which terminal returns false) per
// retry's backoff schedule.
func Do[T any](ctx context.Context, limiter *rate.Limiter, breaker *gobreaker.CircuitBreaker[T], retry Retry, terminal IsTerminal, fn func(context.Context) (T, error)) (T, error) {
	if limiter != nil {
		var zero T
		if err := limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("resilience: rate limiter wait: %w", err)
		}
	}
	return breaker.Execute(func() (T, error) {
		return doWithRetry(ctx, retry, terminal, fn)
	})
}

func doWithRetry[T any](ctx context.Context, retry Retry, terminal IsTerminal, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if terminal != nil && terminal(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleep(ctx, retry.delay(attempt)); sleepErr != nil {
			return zero, sleepErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("resilience: unknown failure")
	}
	return zero, fmt.Errorf("resilience: failed after %d attempts: %w", attempts, lastErr)
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
