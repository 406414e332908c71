package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"dubforge/internal/drivers/resilience"
)

func TestDoRetriesTransientFailures(t *testing.T) {
	breaker := resilience.NewBreaker[string]("test", 10)
	attempts := 0
	result, err := resilience.Do(context.Background(), nil, breaker, resilience.Retry{MaxAttempts: 3}, nil, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 3, attempts)
}

func TestDoStopsImmediatelyOnTerminalError(t *testing.T) {
	breaker := resilience.NewBreaker[string]("test2", 10)
	attempts := 0
	terminal := func(err error) bool { return err.Error() == "terminal" }
	_, err := resilience.Do(context.Background(), nil, breaker, resilience.Retry{MaxAttempts: 3}, terminal, func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("terminal")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestDoExhaustsRetriesAndReturnsError(t *testing.T) {
	breaker := resilience.NewBreaker[string]("test3", 10)
	attempts := 0
	_, err := resilience.Do(context.Background(), nil, breaker, resilience.Retry{MaxAttempts: 2}, nil, func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("always fails")
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}
