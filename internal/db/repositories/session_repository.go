// session_repository.go implements SessionRepository: one row per login keyed by the
// SHA-256 hash of the opaque session token.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/workboard/workboard/internal/db/models"
)

// SessionRepository handles session database operations
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a session row
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New().String()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sessions (id, session_id_hash, identity_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.SessionIDHash,
		session.IdentityID,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByHash retrieves a session by token hash
func (r *SessionRepository) GetSessionByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `
		SELECT id, session_id_hash, identity_id, created_at, expires_at
		FROM sessions
		WHERE session_id_hash = $1
	`

	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.SessionIDHash,
		&session.IdentityID,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteSessionsByHash deletes every session row with the hash
func (r *SessionRepository) DeleteSessionsByHash(ctx context.Context, tokenHash string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id_hash = $1`, tokenHash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}
	return result.RowsAffected()
}

// DeleteSessionsForIdentity deletes the identity's sessions except exceptHash ("" deletes all)
func (r *SessionRepository) DeleteSessionsForIdentity(ctx context.Context, identityID, exceptHash string) (int64, error) {
	query := `DELETE FROM sessions WHERE identity_id = $1`
	args := []any{identityID}
	if exceptHash != "" {
		query += ` AND session_id_hash <> $2`
		args = append(args, exceptHash)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpiredSessions purges sessions whose expiry is at or before now
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// CountSessions returns the number of stored sessions
func (r *SessionRepository) CountSessions(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
