// Package apperr provides canonical error types for the diagnosis API.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind represents the category of an application error.
type Kind string

const (
	// KindValidation indicates a request that failed schema validation.
	KindValidation Kind = "ValidationError"

	// KindMalformed indicates a request body that could not be parsed.
	KindMalformed Kind = "MalformedRequest"

	// KindSecurity indicates input matching an attack signature.
	KindSecurity Kind = "SecurityViolation"

	// KindNotFound indicates a resource was not found.
	KindNotFound Kind = "NotFoundError"

	// KindUnauthorized indicates an authentication failure.
	KindUnauthorized Kind = "UnauthorizedError"

	// KindForbidden indicates a permission failure.
	KindForbidden Kind = "ForbiddenError"

	// KindRateLimit indicates rate limiting was triggered.
	KindRateLimit Kind = "RateLimitError"

	// KindPrediction indicates a failure in the prediction path,
	// including the recommendation collaborator.
	KindPrediction Kind = "PredictionError"

	// KindInternal indicates an internal server error (catch-all).
	KindInternal Kind = "InternalError"
)

// Error is a canonical application error carrying the failure taxonomy.
// It is constructed at the failure site and never mutated afterwards.
type Error struct {
	// Kind is the category of error
	Kind Kind `json:"error"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Field is the payload field that caused the error (if applicable)
	Field string `json:"field,omitempty"`

	// RetryAfter is the suggested retry delay in seconds for rate limits
	RetryAfter int `json:"-"`

	// StatusCode is an explicit HTTP status override
	StatusCode int `json:"-"`

	// cause is the underlying error, kept for logging only.
	cause error
}

// WithCause records the underlying error. The cause is logged at the
// boundary but never included in the client-visible message.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Detail returns the full internal description, including the cause.
func (e *Error) Detail() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Kind {
	case KindValidation, KindMalformed, KindSecurity:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindPrediction, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new application error.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// WithField attaches the offending field name to the error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// Convenience constructors for common errors

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Malformed creates a malformed-request error.
func Malformed(message string) *Error {
	return New(KindMalformed, message)
}

// Security creates a security violation error.
func Security(message string) *Error {
	return New(KindSecurity, message)
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) *Error {
	message := resource + " not found"
	if id != "" {
		message += ": " + id
	}
	return New(KindNotFound, message)
}

// Unauthorized creates an authentication error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Forbidden creates a permission error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// RateLimit creates a rate limit error carrying the retry hint.
func RateLimit(retryAfter int) *Error {
	e := New(KindRateLimit, fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter))
	e.RetryAfter = retryAfter
	return e
}

// Prediction creates a prediction error.
func Prediction(message string) *Error {
	return New(KindPrediction, message)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}
