// Package models - audit_log.go defines the AuditLog model for recording security-relevant
// events, capturing actor, action, affected resource, client IP, and arbitrary metadata.
package models

import "time"

// AuditLog represents an audit log entry for tracking identity actions
type AuditLog struct {
	ID           string
	IdentityID   *string                // Nullable for anonymous actions (signup, login)
	Action       string                 // "POST /api/v1/projects", "project.archived"
	ResourceType *string                // "project", "story", "contributor", "team_member", "session"
	ResourceID   *string
	Metadata     map[string]interface{} // JSONB: additional context
	IPAddress    *string
	CreatedAt    time.Time
}
