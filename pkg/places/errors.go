package places

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a place-data provider failure.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeBreaker   ErrorType = "breaker_open"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a structured place-data provider error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing places.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// newStatusError maps an HTTP status to a classified error.
func newStatusError(statusCode int, body string) *Error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return &Error{Type: ErrorTypeAuth, Message: "authentication failed", Retryable: false, StatusCode: statusCode}
	case statusCode == 404:
		return &Error{Type: ErrorTypeNotFound, Message: "place not found", Retryable: false, StatusCode: statusCode}
	case statusCode == 429:
		return &Error{Type: ErrorTypeRateLimit, Message: "rate limited", Retryable: true, StatusCode: statusCode}
	case statusCode >= 500:
		return &Error{Type: ErrorTypeEndpoint, Message: "provider unavailable", Retryable: true, StatusCode: statusCode}
	default:
		return &Error{
			Type:       ErrorTypeUnknown,
			Message:    fmt.Sprintf("unexpected response: %s", strings.TrimSpace(body)),
			Retryable:  false,
			StatusCode: statusCode,
		}
	}
}

// ClassifyError categorizes an error and returns a structured Error.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	// Check if already an *Error
	var placeErr *Error
	if errors.As(err, &placeErr) {
		return placeErr
	}

	lower := strings.ToLower(err.Error())

	// Connection errors (may be retryable)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		return &Error{Type: ErrorTypeEndpoint, Message: "connection failed", Retryable: true, Cause: err}
	}

	// Timeout and deadline exceeded (retryable)
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled") {
		return &Error{Type: ErrorTypeEndpoint, Message: "request timeout", Retryable: true, Cause: err}
	}

	return &Error{Type: ErrorTypeUnknown, Message: "request failed", Retryable: false, Cause: err}
}
