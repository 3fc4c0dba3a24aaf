package github

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/brewfolio/internal/apperror"
)

// fallbackResetWindow is used when a rate-limited response carries no reset
// header, so callers always have a countdown target.
const fallbackResetWindow = time.Hour

// classify maps a response to nil (2xx) or one of the typed failures.
// It may consume part of the body on failure.
func (c *Client) classify(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case isRateLimited(resp, body):
		return apperror.RateLimited(op, parseRateLimitReset(resp.Header.Get("X-RateLimit-Reset"), c.now()))
	case resp.StatusCode == http.StatusNotFound:
		return apperror.NotFound(op, resp.Request.URL.Path)
	default:
		return apperror.Connectivity(op, fmt.Errorf("http %d: %s", resp.StatusCode, truncateBytes(body, 200)))
	}
}

// isRateLimited recognises GitHub's primary and secondary rate limits.
// GitHub uses 403 for both kinds, 429 for some secondary limits.
func isRateLimited(resp *http.Response, body []byte) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return bytes.Contains(bytes.ToLower(body), []byte("rate limit"))
}

// parseRateLimitReset parses the X-RateLimit-Reset unix timestamp header.
// Falls back to one hour from now if missing or invalid.
func parseRateLimitReset(v string, now time.Time) time.Time {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0)
	}
	return now.Add(fallbackResetWindow)
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
