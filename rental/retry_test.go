package rental

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhartlev/lending-ledger-go/ledger"
)

func Test_RetryOnConflict_Success_NoRetries(t *testing.T) {
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	err := retryOnConflict(context.Background(), fn)

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func Test_RetryOnConflict_RetriesOnConcurrencyConflict(t *testing.T) {
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return ledger.ErrConcurrencyConflict
		}
		return nil
	}

	err := retryOnConflict(context.Background(), fn, WithBaseDelay(time.Microsecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func Test_RetryOnConflict_FailsFast_OnNonRetryableErrors(t *testing.T) {
	callCount := 0
	permanentErr := errors.New("borrower does not exist")

	fn := func(_ context.Context) error {
		callCount++
		return permanentErr
	}

	err := retryOnConflict(context.Background(), fn)

	assert.ErrorIs(t, err, permanentErr)
	assert.Equal(t, 1, callCount, "non-retryable errors must not be retried")
}

func Test_RetryOnConflict_ReturnsLastConflict_WhenBudgetIsExhausted(t *testing.T) {
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return ledger.ErrConcurrencyConflict
	}

	err := retryOnConflict(context.Background(), fn, WithMaxAttempts(4), WithBaseDelay(time.Microsecond))

	assert.ErrorIs(t, err, ledger.ErrConcurrencyConflict)
	assert.Equal(t, 4, callCount)
}

func Test_RetryOnConflict_AbortsBackoffSleep_OnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		cancel()
		return ledger.ErrConcurrencyConflict
	}

	err := retryOnConflict(ctx, fn, WithBaseDelay(10*time.Second))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount, "cancellation must win over the backoff sleep")
}

func Test_RetryOnConflict_InvalidOptions(t *testing.T) {
	fn := func(_ context.Context) error { return nil }

	err := retryOnConflict(context.Background(), fn, WithMaxAttempts(0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	err = retryOnConflict(context.Background(), fn, WithBaseDelay(-1*time.Second))
	assert.ErrorIs(t, err, ErrNegativeBaseDelay)

	err = retryOnConflict(context.Background(), fn, WithJitterFactor(1.5))
	assert.ErrorIs(t, err, ErrInvalidJitterFactor)
}
