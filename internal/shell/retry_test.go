package shell

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/helper"
)

var errSerialization = errors.Join(loanledger.ErrTransactionFailed, errors.New("could not serialize access"))

func Test_RetryWithExponentialBackoff_Success_NoRetries(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return nil
	}

	err := RetryWithExponentialBackoff(ctx, fn)

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func Test_RetryWithExponentialBackoff_RetriesTransactionFailures(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		if callCount < 3 {
			return errSerialization
		}
		return nil
	}

	err := RetryWithExponentialBackoff(ctx, fn, WithBaseDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func Test_RetryWithExponentialBackoff_FailsFastOnRejections(t *testing.T) {
	for _, rejection := range []error{
		loanledger.ErrOutOfStock,
		loanledger.ErrInvalidStatusTransition,
		loanledger.ErrLoanNotFound,
		errors.Join(loanledger.ErrTransactionFailed, context.DeadlineExceeded),
		errors.Join(loanledger.ErrCommitOutcomeUnknown, errors.New("connection reset by peer")),
	} {
		callCount := 0
		fn := func(_ context.Context) error {
			callCount++
			return rejection
		}

		err := RetryWithExponentialBackoff(context.Background(), fn, WithBaseDelay(time.Millisecond))

		assert.ErrorIs(t, err, rejection)
		assert.Equal(t, 1, callCount, "%v must not be retried", rejection)
	}
}

func Test_RetryWithExponentialBackoff_ReturnsTheLastError_WhenAttemptsAreExhausted(t *testing.T) {
	metrics := helper.NewMetricsCollectorSpy(true)
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		return errSerialization
	}

	err := RetryWithExponentialBackoff(context.Background(), fn,
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
		WithJitterFactor(0),
		WithMetrics(metrics, "create_loan"),
	)

	assert.ErrorIs(t, err, loanledger.ErrTransactionFailed)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 2, metrics.CountCounterRecordsForMetric(RetriesMetric))
	assert.True(t, metrics.HasCounterRecordForMetric(RetriesMetric).
		WithOperation("create_loan").
		WithLabel("attempt_number", "2").
		WithErrorType("transaction_failed").
		Assert())
	assert.True(t, metrics.HasDurationRecordForMetric(RetryDelayMetric).WithOperation("create_loan").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(MaxRetriesReachedMetric).
		WithLabel("final_error_type", "transaction_failed").
		Assert())
}

func Test_RetryWithExponentialBackoff_StopsWhenTheContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	fn := func(_ context.Context) error {
		callCount++
		cancel()
		return errSerialization
	}

	err := RetryWithExponentialBackoff(ctx, fn, WithBaseDelay(time.Second))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

func Test_RetryWithExponentialBackoff_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	fn := func(_ context.Context) error { return nil }

	err := RetryWithExponentialBackoff(ctx, fn, WithMaxAttempts(0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	err = RetryWithExponentialBackoff(ctx, fn, WithBaseDelay(-1*time.Second))
	assert.ErrorIs(t, err, ErrNegativeBaseDelay)

	err = RetryWithExponentialBackoff(ctx, fn, WithJitterFactor(1.5))
	assert.ErrorIs(t, err, ErrInvalidJitterFactor)

	err = RetryWithExponentialBackoff(ctx, fn, WithMetrics(nil, "approve"))
	assert.ErrorIs(t, err, ErrNilMetricsCollector)

	err = RetryWithExponentialBackoff(ctx, fn, WithMetrics(helper.NewMetricsCollectorSpy(false), ""))
	assert.ErrorIs(t, err, ErrEmptyOperation)
}

func Test_Backoff_DoublesPerAttempt(t *testing.T) {
	config := &retryConfig{baseDelay: 10 * time.Millisecond, jitterFactor: 0}

	assert.Equal(t, 10*time.Millisecond, config.backoff(1))
	assert.Equal(t, 20*time.Millisecond, config.backoff(2))
	assert.Equal(t, 40*time.Millisecond, config.backoff(3))
}
