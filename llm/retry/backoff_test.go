package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func retryableErr() error {
	return types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	err := retryer.Do(context.Background(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	var retried []int
	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := retryer.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return retryableErr()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(5), nil)

	calls := 0
	plain := errors.New("bad request")
	err := retryer.Do(context.Background(), func() error {
		calls++
		return plain
	})

	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), nil)

	calls := 0
	err := retryer.Do(context.Background(), func() error {
		calls++
		return retryableErr()
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = time.Second
	retryer := NewBackoffRetryer(policy, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := retryer.Do(ctx, func() error { return retryableErr() })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffRetryer_CustomPredicate(t *testing.T) {
	policy := fastPolicy(2)
	policy.ShouldRetry = func(error) bool { return true }
	retryer := NewBackoffRetryer(policy, nil)

	calls := 0
	_ = retryer.Do(context.Background(), func() error {
		calls++
		return errors.New("always")
	})
	assert.Equal(t, 3, calls)
}

func TestCalculateDelay_Capped(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
	}, nil).(*backoffRetryer)

	assert.Equal(t, 10*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 40*time.Millisecond, r.calculateDelay(5))
}

func TestDoValue(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(1), nil)

	v, err := DoValue(context.Background(), retryer, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = DoValue(context.Background(), retryer, func() (string, error) { return "partial", errors.New("fail") })
	require.Error(t, err)
	assert.Empty(t, v)
}
