// story_repository.go implements StoryRepository on sqlx. Lists are scoped either by
// the owning admin or by the assigned team member.
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

const storyColumns = `id, admin_id, project_id, assignee_id, title, description, point, due_date, created_at, updated_at`

// StoryFilter narrows a story listing; empty fields are ignored
type StoryFilter struct {
	ProjectID string
}

// StoryRepository handles story database operations
type StoryRepository struct {
	db *sqlx.DB
}

// NewStoryRepository creates a new story repository
func NewStoryRepository(db *sqlx.DB) *StoryRepository {
	return &StoryRepository{db: db}
}

// Create inserts a new story
func (r *StoryRepository) Create(ctx context.Context, story *models.Story) error {
	story.ID = uuid.New().String()
	story.CreatedAt = time.Now().UTC()
	story.UpdatedAt = story.CreatedAt

	query := `
		INSERT INTO stories (` + storyColumns + `)
		VALUES (:id, :admin_id, :project_id, :assignee_id, :title, :description, :point, :due_date, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, story); err != nil {
		return fmt.Errorf("failed to create story: %w", err)
	}
	return nil
}

// GetByID retrieves a story by ID
func (r *StoryRepository) GetByID(ctx context.Context, id string) (*models.Story, error) {
	var story models.Story
	err := r.db.GetContext(ctx, &story, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return &story, nil
}

// ListByAdmin returns the stories owned by adminID
func (r *StoryRepository) ListByAdmin(ctx context.Context, adminID string, filter StoryFilter) ([]*models.Story, error) {
	return r.list(ctx, "admin_id", adminID, filter)
}

// ListByAssignee returns the stories assigned to a team member
func (r *StoryRepository) ListByAssignee(ctx context.Context, assigneeID string, filter StoryFilter) ([]*models.Story, error) {
	return r.list(ctx, "assignee_id", assigneeID, filter)
}

func (r *StoryRepository) list(ctx context.Context, column, id string, filter StoryFilter) ([]*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE ` + column + ` = $1`
	args := []any{id}
	if filter.ProjectID != "" {
		query += ` AND project_id = $2`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY created_at DESC`

	stories := make([]*models.Story, 0)
	if err := r.db.SelectContext(ctx, &stories, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// Update applies the non-nil fields of upd. admin_id is never written.
func (r *StoryRepository) Update(ctx context.Context, id string, upd models.StoryUpdate) error {
	sets := []string{}
	args := map[string]any{"id": id, "updated_at": time.Now().UTC()}
	add := func(column string, value any) {
		sets = append(sets, column+" = :"+column)
		args[column] = value
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Point != nil {
		add("point", *upd.Point)
	}
	if upd.DueDate != nil {
		add("due_date", *upd.DueDate)
	}
	if upd.ProjectID != nil {
		add("project_id", *upd.ProjectID)
	}
	if upd.AssigneeID != nil {
		add("assignee_id", *upd.AssigneeID)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = :updated_at")

	query := `UPDATE stories SET ` + strings.Join(sets, ", ") + ` WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, args); err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}
	return nil
}

// Delete removes a story
func (r *StoryRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}
