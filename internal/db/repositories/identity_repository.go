// Package repositories implements the data access layer (repository pattern) for Workboard.
// Each repository type encapsulates all database queries for a domain entity.
// Lookups return (nil, nil) when no row matches.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/workboard/workboard/internal/db/models"
)

const identityColumns = `id, role, admin_id, first_name, last_name, email, position, status,
		password_hash, activation_token_hash, invite_token_hash,
		password_reset_token_hash, password_reset_expires_at, created_at, updated_at`

// IdentityRepository handles identity database operations
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	identity := &models.Identity{}
	err := row.Scan(
		&identity.ID,
		&identity.Role,
		&identity.AdminID,
		&identity.FirstName,
		&identity.LastName,
		&identity.Email,
		&identity.Position,
		&identity.Status,
		&identity.PasswordHash,
		&identity.ActivationTokenHash,
		&identity.InviteTokenHash,
		&identity.PasswordResetTokenHash,
		&identity.PasswordResetExpiresAt,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// CreateIdentity inserts a new identity. A taken email yields ErrDuplicate.
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	identity.ID = uuid.New().String()
	identity.CreatedAt = time.Now().UTC()
	identity.UpdatedAt = identity.CreatedAt

	query := `
		INSERT INTO identities (id, role, admin_id, first_name, last_name, email, position, status,
			password_hash, activation_token_hash, invite_token_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		identity.ID,
		identity.Role,
		identity.AdminID,
		identity.FirstName,
		identity.LastName,
		identity.Email,
		identity.Position,
		identity.Status,
		identity.PasswordHash,
		identity.ActivationTokenHash,
		identity.InviteTokenHash,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (r *IdentityRepository) getOne(ctx context.Context, where string, args ...any) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE ` + where
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// GetIdentityByID retrieves an identity by ID
func (r *IdentityRepository) GetIdentityByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetIdentityByEmail retrieves an identity by its normalised email
func (r *IdentityRepository) GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return r.getOne(ctx, `email = $1`, email)
}

// GetIdentityByResetTokenHash retrieves the identity holding a password reset token
func (r *IdentityRepository) GetIdentityByResetTokenHash(ctx context.Context, tokenHash string) (*models.Identity, error) {
	return r.getOne(ctx, `password_reset_token_hash = $1`, tokenHash)
}

// ListTeamMembers returns the team members owned by adminID, oldest first
func (r *IdentityRepository) ListTeamMembers(ctx context.Context, adminID string) ([]*models.Identity, error) {
	query := `SELECT ` + identityColumns + `
		FROM identities
		WHERE admin_id = $1 AND role = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, adminID, models.RoleTeamMember)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.Identity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	return members, nil
}

// SetActivationToken stores a new activation hash and marks the identity INACTIVE
func (r *IdentityRepository) SetActivationToken(ctx context.Context, identityID, tokenHash string, now time.Time) error {
	query := `
		UPDATE identities
		SET activation_token_hash = $2, status = $3, updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "set activation token", query, identityID, tokenHash, models.IdentityInactive, now)
}

// ConsumeActivationToken activates the identity holding tokenHash and clears
// the hash in the same statement. Returns (nil, nil) when no row matched.
func (r *IdentityRepository) ConsumeActivationToken(ctx context.Context, tokenHash string, now time.Time) (*models.Identity, error) {
	query := `
		UPDATE identities
		SET status = $2, activation_token_hash = NULL, updated_at = $3
		WHERE activation_token_hash = $1
		RETURNING ` + identityColumns

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, tokenHash, models.IdentityActive, now))
	if err != nil {
		return nil, fmt.Errorf("failed to consume activation token: %w", err)
	}
	return identity, nil
}

// ConsumeInviteToken sets the password of the invited identity, activates it
// and clears the invite hash. Both the hash and the email must match.
func (r *IdentityRepository) ConsumeInviteToken(ctx context.Context, tokenHash, email, passwordHash string, now time.Time) (*models.Identity, error) {
	query := `
		UPDATE identities
		SET password_hash = $3, status = $4, invite_token_hash = NULL, updated_at = $5
		WHERE invite_token_hash = $1 AND email = $2
		RETURNING ` + identityColumns

	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, tokenHash, email, passwordHash, models.IdentityActive, now))
	if err != nil {
		return nil, fmt.Errorf("failed to consume invite token: %w", err)
	}
	return identity, nil
}

// SetPasswordResetToken stores a reset hash and its expiry, replacing any pending one
func (r *IdentityRepository) SetPasswordResetToken(ctx context.Context, identityID, tokenHash string, expiresAt, now time.Time) error {
	query := `
		UPDATE identities
		SET password_reset_token_hash = $2, password_reset_expires_at = $3, updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "set password reset token", query, identityID, tokenHash, expiresAt, now)
}

// ConsumePasswordResetToken replaces the password while the token is still
// valid at now, clearing hash and expiry. Reports whether a row was updated.
func (r *IdentityRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (bool, error) {
	query := `
		UPDATE identities
		SET password_hash = $2, password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = $3
		WHERE password_reset_token_hash = $1 AND password_reset_expires_at > $3
	`

	result, err := r.db.ExecContext(ctx, query, tokenHash, passwordHash, now)
	if err != nil {
		return false, fmt.Errorf("failed to consume password reset token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume password reset token: %w", err)
	}
	return rows == 1, nil
}

// ClearPasswordResetToken removes a reset hash and its expiry
func (r *IdentityRepository) ClearPasswordResetToken(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE identities
		SET password_reset_token_hash = NULL, password_reset_expires_at = NULL
		WHERE password_reset_token_hash = $1
	`
	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to clear password reset token: %w", err)
	}
	return nil
}

// ClearExpiredPasswordResetTokens removes every reset token whose expiry is at or before now
func (r *IdentityRepository) ClearExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE identities
		SET password_reset_token_hash = NULL, password_reset_expires_at = NULL
		WHERE password_reset_token_hash IS NOT NULL AND password_reset_expires_at <= $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired reset tokens: %w", err)
	}
	return result.RowsAffected()
}

// UpdatePassword replaces the password hash of an identity and drops any
// outstanding reset token in the same statement
func (r *IdentityRepository) UpdatePassword(ctx context.Context, identityID, passwordHash string, now time.Time) error {
	query := `
		UPDATE identities
		SET password_hash = $2, password_reset_token_hash = NULL, password_reset_expires_at = NULL, updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, "update password", query, identityID, passwordHash, now)
}

// CountByRoleAndStatus returns identity counts keyed by "ROLE/STATUS"
func (r *IdentityRepository) CountByRoleAndStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT role, status, COUNT(*) FROM identities GROUP BY role, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count identities: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var role, status string
		var n int
		if err := rows.Scan(&role, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan identity count: %w", err)
		}
		counts[role+"/"+status] = n
	}
	return counts, rows.Err()
}

// execOne runs an update that must touch exactly one row
func (r *IdentityRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to %s: identity not found", op)
	}
	return nil
}
