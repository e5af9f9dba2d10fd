// Package models - contributor.go defines the link between a project and a team
// member, which carries its own status independent of the member's account status.
package models

import "time"

// ContributorStatus is the state of a contributor link
type ContributorStatus string

const (
	ContributorActive   ContributorStatus = "ACTIVE"
	ContributorInactive ContributorStatus = "INACTIVE"
)

// Contributor associates a team member with a project
type Contributor struct {
	ProjectID    string            `json:"project_id" db:"project_id"`
	TeamMemberID string            `json:"team_member_id" db:"team_member_id"`
	Status       ContributorStatus `json:"status" db:"status"`
	JoinedAt     time.Time         `json:"joined_at" db:"joined_at"`
}
