package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gadroo/poll-prediction/internal/platform/retry"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   1 * time.Millisecond,
	RateLimitBackoff: 5 * time.Millisecond,
}

func alwaysRetry(error) retry.Action { return retry.Retry }
func alwaysStop(error) retry.Action  { return retry.Stop }

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, alwaysStop, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, permanent
	})

	var permErr *retry.PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedRetries(t *testing.T) {
	underlying := errors.New("transient")
	calls := 0
	_, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, underlying
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, fastPolicy.MaxAttempts, calls)
}

func TestDo_InvalidPolicy(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{}, alwaysRetry, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, nil
	})

	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestDo_BackoffDoublesUpToMax(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	var backoffs []time.Duration
	p := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     300 * time.Millisecond,
		Clock:          clock,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			mu.Lock()
			backoffs = append(backoffs, backoff)
			mu.Unlock()
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(context.Background(), p, alwaysRetry, func(context.Context) (struct{}, error) {
			return struct{}{}, errors.New("down")
		})
		done <- err
	}()

	for range p.MaxAttempts - 1 {
		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(time.Second)
	}

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Do did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	assert.Equal(t, want, backoffs)
}

func TestDo_RateLimitBackoff(t *testing.T) {
	var observedBackoff time.Duration
	p := retry.Policy{
		MaxAttempts:      2,
		InitialBackoff:   1 * time.Millisecond,
		RateLimitBackoff: 5 * time.Millisecond,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			observedBackoff = backoff
		},
	}

	classify := func(error) retry.Action { return retry.After }

	_, _ = retry.Do(context.Background(), p, classify, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("rate limited")
	})

	assert.Equal(t, 5*time.Millisecond, observedBackoff)
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   10 * time.Second,
		RateLimitBackoff: 10 * time.Second,
	}

	calls := 0
	_, err := retry.Do(ctx, p, alwaysRetry, func(context.Context) (struct{}, error) {
		calls++
		cancel()
		return struct{}{}, errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var recorded []int
	p := fastPolicy
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		recorded = append(recorded, attempt)
	}

	_, _ = retry.Do(context.Background(), p, alwaysRetry, func(context.Context) (struct{}, error) {
		return struct{}{}, errors.New("fail")
	})

	// Not called for the final, exhausting attempt.
	assert.Equal(t, []int{1, 2}, recorded)
}
