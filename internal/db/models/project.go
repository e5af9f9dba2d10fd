// Package models - project.go defines the Project model owned by an admin, and the
// project lifecycle statuses.
package models

import "time"

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectArchived  ProjectStatus = "ARCHIVED"
	ProjectCompleted ProjectStatus = "COMPLETED"
)

// Valid reports whether s is a known project status
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectActive, ProjectArchived, ProjectCompleted:
		return true
	}
	return false
}

// Project represents a body of work owned by one admin
type Project struct {
	ID          string        `json:"id" db:"id"`
	AdminID     string        `json:"admin_id" db:"admin_id"`
	Name        string        `json:"name" db:"name"`
	Description *string       `json:"description,omitempty" db:"description"`
	DueDate     *time.Time    `json:"due_date,omitempty" db:"due_date"`
	Status      ProjectStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// OwnerID returns the owning admin
func (p *Project) OwnerID() string {
	return p.AdminID
}

// ProjectUpdate holds the mutable fields of a project; nil fields are left unchanged
type ProjectUpdate struct {
	Name        *string
	Description *string
	DueDate     *time.Time
}

// IsEmpty reports whether the update changes nothing
func (u ProjectUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.DueDate == nil
}
