package shell_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivecare/clinstream/eventlog"
	"github.com/vivecare/clinstream/shell"
)

func Test_Retry_SucceedsOnFirstAttempt(t *testing.T) {
	attempts := 0

	err := shell.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func Test_Retry_ConcurrencyConflictIsRetried(t *testing.T) {
	attempts := 0

	err := shell.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return &eventlog.ConflictError{SubjectID: "subject-001", Expected: 1, Actual: 2}
		}
		return nil
	}, shell.WithBaseDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func Test_Retry_StorageUnavailableIsRetried(t *testing.T) {
	attempts := 0

	err := shell.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.Join(eventlog.ErrStorageUnavailable, errors.New("connection refused"))
		}
		return nil
	}, shell.WithBaseDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func Test_Retry_PermanentErrorFailsFast(t *testing.T) {
	permanentErr := errors.New("validation failed")
	attempts := 0

	err := shell.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		attempts++
		return permanentErr
	}, shell.WithBaseDelay(time.Millisecond))

	require.ErrorIs(t, err, permanentErr)
	assert.Equal(t, 1, attempts, "non-retryable errors must not be retried")
}

func Test_Retry_MaxAttemptsExhausted(t *testing.T) {
	attempts := 0
	conflictErr := &eventlog.ConflictError{SubjectID: "subject-001", Expected: 1, Actual: 2}

	err := shell.RetryWithExponentialBackoff(context.Background(), func(_ context.Context) error {
		attempts++
		return conflictErr
	}, shell.WithMaxAttempts(4), shell.WithBaseDelay(time.Millisecond))

	require.ErrorIs(t, err, eventlog.ErrConcurrencyConflict)
	assert.Equal(t, 4, attempts)
}

func Test_Retry_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := shell.RetryWithExponentialBackoff(ctx, func(_ context.Context) error {
		attempts++
		cancel()
		return &eventlog.ConflictError{SubjectID: "subject-001", Expected: 1, Actual: 2}
	}, shell.WithBaseDelay(10*time.Millisecond))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func Test_Retry_InvalidOptions(t *testing.T) {
	noop := func(_ context.Context) error { return nil }

	assert.ErrorIs(t,
		shell.RetryWithExponentialBackoff(context.Background(), noop, shell.WithMaxAttempts(0)),
		shell.ErrInvalidMaxAttempts)

	assert.ErrorIs(t,
		shell.RetryWithExponentialBackoff(context.Background(), noop, shell.WithBaseDelay(-time.Second)),
		shell.ErrNegativeBaseDelay)

	assert.ErrorIs(t,
		shell.RetryWithExponentialBackoff(context.Background(), noop, shell.WithJitterFactor(1.5)),
		shell.ErrInvalidJitterFactor)

	assert.ErrorIs(t,
		shell.RetryWithExponentialBackoff(context.Background(), noop, shell.WithMetrics(nil, "append")),
		shell.ErrNilMetricsCollector)
}
