// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these; only the handler layer turns them into HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("rate limited")
	ErrConnectivity = errors.New("connectivity error")
	ErrCacheDecode  = errors.New("cache decode error")
)

type AppError struct {
	Err     error  // sentinel the error matches with errors.Is
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
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

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Connectivity wraps a transport failure or an unexpected upstream status.
// It is the generic "could not reach GitHub" outcome, never a rate limit.
func Connectivity(op string, cause error) *AppError {
	msg := fmt.Sprintf("%s: upstream unavailable", op)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", op, cause)
	}
	return &AppError{
		Err:     ErrConnectivity,
		Message: msg,
	}
}

// CacheDecode reports a persisted snapshot that could not be parsed.
// Callers treat it as a cache miss; it never reaches a user.
func CacheDecode(key string, cause error) *AppError {
	return &AppError{
		Err:     ErrCacheDecode,
		Message: fmt.Sprintf("decoding cache entry %s: %v", key, cause),
	}
}

// RateLimitError is the RateLimitSignal: the remote quota is exhausted until ResetAt.
type RateLimitError struct {
	ResetAt time.Time
	Op      string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited until %s", e.Op, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ResetEpoch returns the reset time as Unix seconds, the unit the countdown works in.
func (e *RateLimitError) ResetEpoch() int64 {
	return e.ResetAt.Unix()
}

// RateLimited builds a RateLimitError for the given operation.
func RateLimited(op string, resetAt time.Time) *RateLimitError {
	return &RateLimitError{ResetAt: resetAt, Op: op}
}

// ResetFrom digs the reset time out of an error chain.
// ok is false when err does not carry a rate-limit signal.
func ResetFrom(err error) (time.Time, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.ResetAt, true
	}
	return time.Time{}, false
}
