package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/brewfolio/internal/apperror"
)

// defaultCost is the bcrypt work factor for HashKey. Each +1 doubles the time.
const defaultCost = 12

// KeyVerifier checks the refresh key presented with a manual refresh against
// a bcrypt hash from configuration. With no hash configured every request is
// allowed.
type KeyVerifier struct {
	hash []byte
}

// NewKeyVerifier validates the configured hash up front so a typo fails at
// startup, not on the first refresh.
func NewKeyVerifier(hash string) (*KeyVerifier, error) {
	if hash == "" {
		return &KeyVerifier{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("auth: refresh key hash is not a bcrypt hash: %w", err)
	}
	return &KeyVerifier{hash: []byte(hash)}, nil
}

// Enabled reports whether a key is required.
func (v *KeyVerifier) Enabled() bool {
	return len(v.hash) > 0
}

// Verify returns nil when key matches, or when no key is required.
// A wrong or missing key is apperror.ErrForbidden.
func (v *KeyVerifier) Verify(key string) error {
	if !v.Enabled() {
		return nil
	}
	if key == "" {
		return apperror.Forbidden("refresh key required")
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperror.Forbidden("invalid refresh key")
		}
		return fmt.Errorf("auth: comparing refresh key: %w", err)
	}
	return nil
}

// HashKey produces the value for REFRESH_KEY_HASH.
func HashKey(plaintext string) (string, error) {
	return hashKeyWithCost(plaintext, defaultCost)
}

func hashKeyWithCost(plaintext string, cost int) (string, error) {
	// bcrypt only looks at the first 72 bytes; longer keys would silently
	// collide.
	if len(plaintext) > 72 {
		return "", errors.New("auth: refresh key must be 72 bytes or fewer")
	}
	if plaintext == "" {
		return "", errors.New("auth: refresh key must not be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing refresh key: %w", err)
	}
	return string(hashed), nil
}
