// Package auth implements the identity core of Workboard: opaque token and
// password hashing primitives, the token lifecycle manager (activation, invite,
// password reset, sessions) and the ownership guard applied to every resource.
// See internal/middleware/session.go for the request-time session resolution that
// uses these primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenLength is the number of random bytes in an opaque token
	TokenLength = 32
)

// GenerateToken creates a new random opaque token.
// The raw value is handed to the caller once (email body or login response);
// only HashToken(raw) is ever persisted.
func GenerateToken() (string, error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken returns the hex SHA-256 digest of a raw token. Tokens are
// high-entropy and single-use, so a fast unsalted digest is enough and keeps
// the stored value usable for an indexed exact-match lookup.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
