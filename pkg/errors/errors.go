package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "DCHK1001"
	ErrCodeConnectionTimeout    ErrorCode = "DCHK1002"
	ErrCodeAuthenticationFailed ErrorCode = "DCHK1003"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound        ErrorCode = "DCHK2001"
	ErrCodeConfigInvalid         ErrorCode = "DCHK2002"
	ErrCodeConfigMissing         ErrorCode = "DCHK2003"
	ErrCodeShapeContract         ErrorCode = "DCHK2004"
	ErrCodeUnsupportedComparator ErrorCode = "DCHK2005"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "DCHK4001"
	ErrCodeSQLPermission     ErrorCode = "DCHK4002"
	ErrCodeSQLTimeout        ErrorCode = "DCHK4003"
	ErrCodeSQLObjectNotFound ErrorCode = "DCHK4005"
	ErrCodeSQLExecution      ErrorCode = "DCHK4006"

	// Delivery errors (5xxx)
	ErrCodeNotificationFailed ErrorCode = "DCHK5001"
	ErrCodeReportWrite        ErrorCode = "DCHK5002"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "DCHK9001"
	ErrCodeTimeout            ErrorCode = "DCHK9002"
	ErrCodeResourceExhausted  ErrorCode = "DCHK9003"
	ErrCodeServiceUnavailable ErrorCode = "DCHK9004"
	ErrCodeCanceled           ErrorCode = "DCHK9005"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit its context
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check your network connection",
			"Verify the Snowflake account identifier",
			"Check firewall settings",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'dashcheck config validate' to check the whole file",
		)
}

// ShapeError reports a query whose result violates the shape a check relies
// on, e.g. a single-value query that returned no rows.
func ShapeError(checkID, entity, message string) *AppError {
	return New(ErrCodeShapeContract, fmt.Sprintf("check %s on %s: %s", checkID, entity, message)).
		WithContext("check", checkID).
		WithContext("entity", entity).
		WithSuggestions(
			"Single-value queries must return one row with the value in the first column",
			"Parent queries must start at the FROM clause",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	errStr := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(errStr, "permission") || strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "insufficient privileges"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check user permissions in Snowflake",
			"Verify the role has SELECT on the validated schemas",
		)
	case strings.Contains(errStr, "does not exist") || strings.Contains(errStr, "not found"):
		err.Code = ErrCodeSQLObjectNotFound
		_ = err.WithSuggestions(
			"Verify the object exists in the target database/schema",
			"Check for typos in table and database names",
		)
	case strings.Contains(errStr, "syntax error"):
		err.Code = ErrCodeSQLSyntax
		_ = err.WithSuggestions("Check the configured query near the error location")
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions(
			"Increase the query_timeout setting",
			"Check Snowflake warehouse size",
		)
	}

	return err
}

// ValidationError creates a validation error for a single input field
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value)
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsConfiguration reports whether err stems from invalid configuration,
// including query results that break a check's shape contract.
func IsConfiguration(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid, ErrCodeConfigMissing,
		ErrCodeShapeContract, ErrCodeUnsupportedComparator:
		return true
	}
	return false
}

// IsCollaborator reports whether err was raised by the warehouse connection
// or query execution.
func IsCollaborator(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeConnectionFailed, ErrCodeConnectionTimeout, ErrCodeAuthenticationFailed,
		ErrCodeSQLSyntax, ErrCodeSQLPermission, ErrCodeSQLTimeout,
		ErrCodeSQLObjectNotFound, ErrCodeSQLExecution, ErrCodeServiceUnavailable:
		return true
	}
	return false
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
