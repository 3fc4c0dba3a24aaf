package auth

import (
	"context"
	"net/http"

	"github.com/sakif/brewfolio/internal/view"
)

// StateCookie is the name of the view-state cookie.
const StateCookie = "brewfolio_ui"

// RefreshKeyHeader carries the refresh key on API calls. Forms use the "key" field.
const RefreshKeyHeader = "X-Refresh-Key"

// contextKey is unexported so no other package can collide with our values.
type contextKey string

const stateKey contextKey = "viewState"

// LoadState is a middleware that decodes the view-state cookie into the
// request context. A missing, tampered or expired cookie yields view.Default();
// it never blocks the request.
func LoadState(codec *SessionCodec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := view.Default()
			if cookie, err := r.Cookie(StateCookie); err == nil {
				if s, err := codec.Decode(cookie.Value); err == nil {
					state = s
				}
			}
			ctx := context.WithValue(r.Context(), stateKey, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StateFromContext returns the view state loaded by LoadState, or the default.
func StateFromContext(ctx context.Context) view.State {
	if s, ok := ctx.Value(stateKey).(view.State); ok {
		return s
	}
	return view.Default()
}

// SaveState writes s to the view-state cookie.
//
// HttpOnly keeps scripts from reading it; SameSite=Lax stops other sites from
// submitting state changes on the visitor's behalf.
func SaveState(w http.ResponseWriter, r *http.Request, codec *SessionCodec, s view.State) error {
	token, err := codec.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// RefreshKey extracts the presented refresh key from a request.
func RefreshKey(r *http.Request) string {
	if k := r.Header.Get(RefreshKeyHeader); k != "" {
		return k
	}
	return r.FormValue("key")
}
