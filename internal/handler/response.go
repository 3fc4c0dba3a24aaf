package handler

// RESPONSE HELPERS:
// Every JSON response goes through writeJSON, every failure through writeError,
// so the API has one error shape:
//
//	{"error": "rate_limited", "message": "GitHub's rate limit has been reached..."}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/brewfolio/internal/apperror"
	"github.com/sakif/brewfolio/internal/service"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
	ResetAt int64  `json:"resetAt,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to an HTTP status and error type.
// errors.Is walks the whole wrap chain, so a service error wrapped in
// "service: aggregating portfolio: %w" still matches its sentinel.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrConnectivity):
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// A rate limit also sets X-RateLimit-Reset (Unix seconds) and Retry-After so
// API clients can schedule their own retry.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)
	resp := ErrorResponse{Error: errorType}

	var appErr *apperror.AppError
	switch {
	case status == http.StatusInternalServerError:
		// Never expose internal error text to the client.
		resp.Message = "An internal error occurred"
	case status == http.StatusTooManyRequests || status == http.StatusBadGateway:
		resp.Message = service.UserMessage(err)
	case errors.As(err, &appErr):
		resp.Message = appErr.Message
	default:
		resp.Message = err.Error()
	}

	if resetAt, ok := apperror.ResetFrom(err); ok {
		resp.ResetAt = resetAt.Unix()
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		retry := int(time.Until(resetAt).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 0)))
	}

	writeJSON(w, status, resp)
}
