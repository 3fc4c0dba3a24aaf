// Package auth protects the two things a visitor can change: their own view
// state, kept in a signed cookie, and the manual refresh, optionally guarded by
// a shared key.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/brewfolio/internal/view"
)

const (
	issuer = "brewfolio"
	// stateLifetime is how long a visitor's view preferences survive.
	stateLifetime = 30 * 24 * time.Hour
)

// SessionCodec signs and verifies the view-state cookie as an HS256 JWT.
//
// The state is not secret (theme, page numbers, search text), but signing it
// means a forged cookie cannot smuggle arbitrary values into templates.
type SessionCodec struct {
	secret []byte
	now    func() time.Time
}

// NewSessionCodec builds a codec. An empty secret gets a random per-process
// one, so cookies simply reset on restart.
func NewSessionCodec(secret string) (*SessionCodec, error) {
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("auth: generating session secret: %w", err)
		}
		secret = hex.EncodeToString(b)
	}
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &SessionCodec{secret: []byte(secret), now: time.Now}, nil
}

type stateClaims struct {
	UI view.State `json:"ui"`
	jwt.RegisteredClaims
}

// Encode signs s.
func (c *SessionCodec) Encode(s view.State) (string, error) {
	now := c.now()
	claims := stateClaims{
		UI: s,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateLifetime)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing view state: %w", err)
	}
	return signed, nil
}

// Decode verifies a token and returns the normalized state it carries.
func (c *SessionCodec) Decode(tokenStr string) (view.State, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&stateClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return view.State{}, errors.New("auth: view state expired")
		}
		return view.State{}, fmt.Errorf("auth: invalid view state: %w", err)
	}

	claims, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid {
		return view.State{}, errors.New("auth: invalid view state claims")
	}
	return claims.UI.Normalize(), nil
}
