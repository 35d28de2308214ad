// Package apperror defines the error taxonomy shared by every layer.
//
// Callers never compare error strings. They test the kind with errors.Is
// against one of the sentinels below, and read details (message, field,
// retry time) with errors.As into *AppError.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrInvalidDate is returned for dates that cannot be parsed or lie in the future.
	ErrInvalidDate = errors.New("invalid date")

	// ErrCredentialMissing means no upstream credential is stored for the user.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrCredentialInvalid means the upstream rejected the credential (HTTP 401).
	// It is never retried; the user has to re-authenticate.
	ErrCredentialInvalid = errors.New("credential invalid")

	// ErrRateLimitExceeded means the upstream quota is exhausted and the reset
	// falls outside the caller's deadline or retry budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUpstreamUnavailable means transient upstream failures outlasted the retry budget.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse means an upstream payload failed strict decoding.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

type AppError struct {
	Err     error     // sentinel kind
	Message string    // Human-readable error message
	Field   string    // Optional: field causing the error
	Cause   error     // Optional: underlying failure, kept for logs
	RetryAt time.Time // Optional: earliest time a retry can succeed
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidDate reports a date argument that was rejected.
func InvalidDate(value, reason string) *AppError {
	return &AppError{
		Err:     ErrInvalidDate,
		Message: fmt.Sprintf("invalid date %q: %s", value, reason),
		Field:   "date",
	}
}

func CredentialMissing(userID string) *AppError {
	return &AppError{
		Err:     ErrCredentialMissing,
		Message: fmt.Sprintf("no GitHub credential stored for user %s", userID),
	}
}

func CredentialInvalid(cause error) *AppError {
	return &AppError{
		Err:     ErrCredentialInvalid,
		Message: "GitHub rejected the stored credential, sign in again",
		Cause:   cause,
	}
}

// RateLimited reports an exhausted quota that resets at resetAt.
func RateLimited(resetAt time.Time, cause error) *AppError {
	return &AppError{
		Err:     ErrRateLimitExceeded,
		Message: fmt.Sprintf("GitHub rate limit exceeded, resets at %s", resetAt.UTC().Format(time.RFC3339)),
		Cause:   cause,
		RetryAt: resetAt,
	}
}

func UpstreamUnavailable(attempts int, cause error) *AppError {
	return &AppError{
		Err:     ErrUpstreamUnavailable,
		Message: fmt.Sprintf("GitHub unavailable after %d attempts", attempts),
		Cause:   cause,
	}
}

func MalformedResponse(what string, cause error) *AppError {
	msg := fmt.Sprintf("malformed GitHub response: %s", what)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &AppError{
		Err:     ErrMalformedResponse,
		Message: msg,
		Cause:   cause,
	}
}

// IsTransient reports whether err is worth retrying later without user action.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrRateLimitExceeded)
}
