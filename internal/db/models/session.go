// Package models - session.go defines the Session model: one row per login, keyed by
// the SHA-256 hash of the opaque session token.
package models

import "time"

// Session represents an authenticated login on one device
type Session struct {
	ID            string
	SessionIDHash string
	IdentityID    string
	CreatedAt     time.Time
	ExpiresAt     *time.Time // NULL when sessions have no maximum age
}

// IsExpired reports whether the session has passed its maximum age at now
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
