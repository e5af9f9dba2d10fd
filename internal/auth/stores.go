package auth

import (
	"context"
	"time"

	"github.com/workboard/workboard/internal/db/models"
)

// IdentityStore is the persistence contract the lifecycle manager needs.
// Lookups return (nil, nil) when no row matches. Every Consume* method is a
// single conditional update that only succeeds while the stored hash still
// matches, so two concurrent consumers can never both win.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentityByID(ctx context.Context, id string) (*models.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	GetIdentityByResetTokenHash(ctx context.Context, tokenHash string) (*models.Identity, error)

	// SetActivationToken stores a new activation hash and marks the identity INACTIVE.
	SetActivationToken(ctx context.Context, identityID, tokenHash string, now time.Time) error
	// ConsumeActivationToken activates the identity holding tokenHash and clears the hash.
	ConsumeActivationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Identity, error)
	// ConsumeInviteToken sets the password of the identity holding tokenHash with the
	// given email, activates it and clears the hash.
	ConsumeInviteToken(ctx context.Context, tokenHash, email, passwordHash string, now time.Time) (*models.Identity, error)

	SetPasswordResetToken(ctx context.Context, identityID, tokenHash string, expiresAt, now time.Time) error
	// ConsumePasswordResetToken replaces the password when tokenHash matches and has not
	// expired at now, clearing hash and expiry. It reports whether a row was updated.
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (bool, error)
	ClearPasswordResetToken(ctx context.Context, tokenHash string) error

	UpdatePassword(ctx context.Context, identityID, passwordHash string, now time.Time) error
}

// SessionStore persists login sessions keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSessionsByHash(ctx context.Context, tokenHash string) (int64, error)
	// DeleteSessionsForIdentity removes every session of the identity except the one
	// whose hash equals exceptHash (pass "" to remove all).
	DeleteSessionsForIdentity(ctx context.Context, identityID, exceptHash string) (int64, error)
}
