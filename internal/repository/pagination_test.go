package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := EncodeCursor("entity-42")
	require.NotEmpty(t, cursor)

	lastKey, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, "entity-42", lastKey)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	assert.Error(t, err)

	lastKey, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Empty(t, lastKey)
}

func TestPaginationValidate(t *testing.T) {
	assert.NoError(t, Pagination{Limit: 50}.Validate())
	assert.Error(t, Pagination{Limit: -1}.Validate())
	assert.Error(t, Pagination{Limit: MaxPageSize + 1}.Validate())

	assert.Equal(t, DefaultPageSize, Pagination{}.GetEffectiveLimit())
	assert.Equal(t, 10, Pagination{Limit: 10}.GetEffectiveLimit())
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterFactor:  0,
	}

	t.Run("conflict retries until success", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			attempts++
			if attempts < 3 {
				return NewConflictError("m1")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("unavailable is not retried", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			attempts++
			return NewUnavailableError("store down", nil)
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.True(t, IsUnavailable(err))
	})

	t.Run("retries exhausted", func(t *testing.T) {
		err := RetryWithBackoff(context.Background(), cfg, func() error {
			return NewConflictError("m1")
		})
		require.Error(t, err)
		assert.True(t, IsConflict(err))
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryWithBackoff(ctx, cfg, func() error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestErrorClassification(t *testing.T) {
	notFound := NewNotFoundError("entity", "e1")
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsConflict(notFound))

	conflict := NewConflictError("m1")
	assert.True(t, IsConflict(conflict))
	assert.True(t, IsRetryableError(conflict))

	lock := NewRepositoryError(ErrCodeOptimisticLock, "pointer moved", nil)
	assert.True(t, IsConflict(lock))

	unavailable := NewUnavailableError("down", errors.New("dial timeout"))
	assert.True(t, IsUnavailable(unavailable))
	assert.False(t, IsRetryableError(unavailable))

	wrapped := RetryableError{Err: errors.New("throttled"), Retryable: true}
	assert.True(t, IsRetryableError(wrapped))
}
