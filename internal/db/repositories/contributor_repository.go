// contributor_repository.go implements ContributorRepository: links between projects
// and team members with their own ACTIVE/INACTIVE status.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/workboard/workboard/internal/db/models"
)

// ContributorRepository handles project contributor database operations
type ContributorRepository struct {
	db *sqlx.DB
}

// NewContributorRepository creates a new contributor repository
func NewContributorRepository(db *sqlx.DB) *ContributorRepository {
	return &ContributorRepository{db: db}
}

// Add links a team member to a project as ACTIVE. An existing link yields ErrDuplicate.
func (r *ContributorRepository) Add(ctx context.Context, c *models.Contributor) error {
	c.JoinedAt = time.Now().UTC()
	if c.Status == "" {
		c.Status = models.ContributorActive
	}

	query := `
		INSERT INTO project_contributors (project_id, team_member_id, status, joined_at)
		VALUES (:project_id, :team_member_id, :status, :joined_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, c)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to add contributor: %w", err)
	}
	return nil
}

// Get retrieves a single contributor link
func (r *ContributorRepository) Get(ctx context.Context, projectID, teamMemberID string) (*models.Contributor, error) {
	query := `
		SELECT project_id, team_member_id, status, joined_at
		FROM project_contributors
		WHERE project_id = $1 AND team_member_id = $2
	`
	var c models.Contributor
	err := r.db.GetContext(ctx, &c, query, projectID, teamMemberID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contributor: %w", err)
	}
	return &c, nil
}

// ListByProject returns the project's contributor links, oldest first
func (r *ContributorRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Contributor, error) {
	query := `
		SELECT project_id, team_member_id, status, joined_at
		FROM project_contributors
		WHERE project_id = $1
		ORDER BY joined_at ASC
	`
	contributors := make([]*models.Contributor, 0)
	if err := r.db.SelectContext(ctx, &contributors, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list contributors: %w", err)
	}
	return contributors, nil
}

// UpdateStatus changes a link's status
func (r *ContributorRepository) UpdateStatus(ctx context.Context, projectID, teamMemberID string, status models.ContributorStatus) error {
	query := `UPDATE project_contributors SET status = $3 WHERE project_id = $1 AND team_member_id = $2`
	if _, err := r.db.ExecContext(ctx, query, projectID, teamMemberID, status); err != nil {
		return fmt.Errorf("failed to update contributor status: %w", err)
	}
	return nil
}
