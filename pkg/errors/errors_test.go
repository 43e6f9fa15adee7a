package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[DCHK1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[DCHK1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("host", "example.com").
				WithContext("port", 443),
			expected: "[DCHK1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ErrCodeConnectionFailed, tt.err.Code)
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("database connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to Snowflake")

	assert.Equal(t, baseErr, appErr.Cause)
	assert.Equal(t, ErrCodeConnectionFailed, appErr.Code)
	assert.ErrorIs(t, appErr, baseErr)
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeSQLExecution, "query failed").WithContext("check", "2.1")
	outer := Wrap(inner, ErrCodeSQLExecution, "stage 2 aborted")

	assert.Equal(t, "2.1", outer.Context["check"])
}

func TestSQLErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  ErrorCode
	}{
		{"missing object", fmt.Errorf("Object 'ACME.T' does not exist or not authorized"), ErrCodeSQLObjectNotFound},
		{"syntax", fmt.Errorf("SQL compilation error: syntax error line 1"), ErrCodeSQLSyntax},
		{"privileges", fmt.Errorf("Insufficient privileges to operate on schema"), ErrCodeSQLPermission},
		{"deadline", context.DeadlineExceeded, ErrCodeSQLTimeout},
		{"other", fmt.Errorf("boom"), ErrCodeSQLExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SQLError("query failed", "SELECT 1", tt.cause)
			assert.Equal(t, tt.code, err.Code)
			assert.True(t, IsCollaborator(err))
			assert.False(t, IsConfiguration(err))
		})
	}
}

func TestShapeError(t *testing.T) {
	err := ShapeError("3.5", "overview_weekly", "query returned no rows")

	assert.Equal(t, ErrCodeShapeContract, err.Code)
	assert.Contains(t, err.Error(), "check 3.5 on overview_weekly")
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsCollaborator(err))
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3
	retried := 0

	config := &RetryConfig{
		MaxRetries:   maxAttempts - 1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
		RetryableError: func(err error) bool {
			return true
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retried++
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, maxAttempts, attempts)
	assert.Equal(t, maxAttempts-1, retried)
}

func TestRetryExhausted(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     1,
		RetryableError: func(error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("still down")
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeResourceExhausted, GetErrorCode(err))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func(ctx context.Context) error {
		attempts++
		return New(ErrCodeAuthenticationFailed, "bad password")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeAuthenticationFailed, GetErrorCode(err))
}

func TestErrorCodes(t *testing.T) {
	err1 := New(ErrCodeConnectionFailed, "Test")
	assert.Equal(t, ErrCodeConnectionFailed, GetErrorCode(err1))

	err2 := fmt.Errorf("regular error")
	assert.Equal(t, ErrCodeInternal, GetErrorCode(err2))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeUnsupportedComparator, "bad op"))
	assert.True(t, IsConfiguration(wrapped))
}
