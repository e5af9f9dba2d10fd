// Package models - story.go defines the Story model: a unit of work inside a project,
// optionally assigned to a team member.
package models

import "time"

// Story represents a task within a project
type Story struct {
	ID          string     `json:"id" db:"id"`
	AdminID     string     `json:"admin_id" db:"admin_id"`
	ProjectID   string     `json:"project_id" db:"project_id"`
	AssigneeID  *string    `json:"assignee_id,omitempty" db:"assignee_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description,omitempty" db:"description"`
	Point       *int       `json:"point,omitempty" db:"point"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// OwnerID returns the owning admin
func (s *Story) OwnerID() string {
	return s.AdminID
}

// StoryUpdate holds the mutable fields of a story; nil fields are left unchanged
type StoryUpdate struct {
	Title       *string
	Description *string
	Point       *int
	DueDate     *time.Time
	ProjectID   *string
	AssigneeID  *string
}

// IsEmpty reports whether the update changes nothing
func (u StoryUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Point == nil &&
		u.DueDate == nil && u.ProjectID == nil && u.AssigneeID == nil
}
