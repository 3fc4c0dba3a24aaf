package apperror

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorsIs(t *testing.T) {
	reset := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("readme", "octocat/hello"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("page", "page must be positive"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited("profile", reset),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "wrapped RateLimited still matches",
			err:       fmt.Errorf("service: loading: %w", RateLimited("repos", reset)),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "Connectivity wraps ErrConnectivity",
			err:       Connectivity("followers", errors.New("dial tcp: refused")),
			target:    ErrConnectivity,
			wantMatch: true,
		},
		{
			name:      "CacheDecode wraps ErrCacheDecode",
			err:       CacheDecode("github_portfolio_cache", errors.New("unexpected EOF")),
			target:    ErrCacheDecode,
			wantMatch: true,
		},
		{
			name:      "RateLimited does NOT match ErrConnectivity",
			err:       RateLimited("profile", reset),
			target:    ErrConnectivity,
			wantMatch: false,
		},
		{
			name:      "Connectivity does NOT match ErrRateLimited",
			err:       Connectivity("profile", nil),
			target:    ErrRateLimited,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("tag", "octocat/hello"),
			wantMessage: "tag not found with id octocat/hello",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("action", "unknown action"),
			wantMessage: "unknown action",
		},
		{
			name:        "Connectivity without cause",
			err:         Connectivity("profile", nil),
			wantMessage: "profile: upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestResetFrom(t *testing.T) {
	reset := time.Unix(1_700_003_600, 0)
	err := fmt.Errorf("outer: %w", RateLimited("profile", reset))

	got, ok := ResetFrom(err)
	if !ok {
		t.Fatal("ResetFrom() ok = false, want true")
	}
	if !got.Equal(reset) {
		t.Errorf("ResetFrom() = %v, want %v", got, reset)
	}

	if _, ok := ResetFrom(Connectivity("profile", nil)); ok {
		t.Error("ResetFrom() on a connectivity error should report ok = false")
	}
}

func TestResetEpoch(t *testing.T) {
	err := RateLimited("repos", time.Unix(1_700_000_123, 0))
	if got := err.ResetEpoch(); got != 1_700_000_123 {
		t.Errorf("ResetEpoch() = %d, want %d", got, 1_700_000_123)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("page", "page must be positive")

	if err.Field != "page" {
		t.Errorf("Field = %q, want %q", err.Field, "page")
	}
}
