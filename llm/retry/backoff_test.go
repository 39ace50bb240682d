package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	r := NewBackoffRetryer(fastPolicy(2), zap.NewNop())
	calls := 0
	boom := errors.New("boom")
	err := r.Do(context.Background(), func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(5)
	fatal := errors.New("fatal")
	policy.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	r := NewBackoffRetryer(policy, zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_CancelledContext(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	r := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(2)
	var attempts []int
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	r := NewBackoffRetryer(policy, zap.NewNop())
	_ = r.Do(context.Background(), func() error { return errors.New("x") })

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	t.Parallel()

	r := &backoffRetryer{policy: &Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   10.0,
	}}

	d := r.calculateDelay(5)
	assert.LessOrEqual(t, d, 4*time.Millisecond)
	assert.GreaterOrEqual(t, d, time.Millisecond)
}
