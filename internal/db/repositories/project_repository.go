// project_repository.go implements ProjectRepository on sqlx. Every list query is
// scoped by the owning admin; single-row reads return the row regardless of owner
// so the caller can distinguish not-found from forbidden.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/workboard/workboard/internal/db/models"
)

const projectColumns = `id, admin_id, name, description, due_date, status, created_at, updated_at`

// ProjectRepository handles project database operations
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	project.ID = uuid.New().String()
	project.CreatedAt = time.Now().UTC()
	project.UpdatedAt = project.CreatedAt
	if project.Status == "" {
		project.Status = models.ProjectActive
	}

	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES (:id, :admin_id, :name, :description, :due_date, :status, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListByAdmin returns the admin's projects, newest first. An empty status lists all.
func (r *ProjectRepository) ListByAdmin(ctx context.Context, adminID string, status models.ProjectStatus) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE admin_id = $1`
	args := []any{adminID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	projects := make([]*models.Project, 0)
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Update applies the non-nil fields of upd. Ownership columns are never written.
func (r *ProjectRepository) Update(ctx context.Context, id string, upd models.ProjectUpdate) error {
	sets := []string{}
	args := map[string]any{"id": id, "updated_at": time.Now().UTC()}
	if upd.Name != nil {
		sets = append(sets, "name = :name")
		args["name"] = *upd.Name
	}
	if upd.Description != nil {
		sets = append(sets, "description = :description")
		args["description"] = *upd.Description
	}
	if upd.DueDate != nil {
		sets = append(sets, "due_date = :due_date")
		args["due_date"] = *upd.DueDate
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = :updated_at")

	query := `UPDATE projects SET ` + strings.Join(sets, ", ") + ` WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, args); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// UpdateStatus sets the project status
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id string, status models.ProjectStatus) error {
	query := `UPDATE projects SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	return nil
}

// Delete removes a project; stories and contributor links cascade
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}
