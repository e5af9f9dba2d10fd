// Package models - identity.go defines the Identity model shared by admins and team
// members, including password hash, account status and the outstanding one-time
// token hashes for activation, invite acceptance and password reset.
package models

import "time"

// Role distinguishes the two identity variants
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleTeamMember Role = "TEAM_MEMBER"
)

// IdentityStatus gates login
type IdentityStatus string

const (
	IdentityInactive IdentityStatus = "INACTIVE"
	IdentityActive   IdentityStatus = "ACTIVE"
)

// Identity represents an account capable of authenticating.
// Token fields hold SHA-256 hashes; raw tokens are never stored.
type Identity struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	AdminID   *string        `json:"admin_id,omitempty"` // Owning admin for a team member
	FirstName string         `json:"first_name"`
	LastName  string         `json:"last_name"`
	Email     string         `json:"email"`
	Position  *string        `json:"position,omitempty"`
	Status    IdentityStatus `json:"status"`

	PasswordHash           *string    `json:"-"` // NULL until an invite is accepted
	ActivationTokenHash    *string    `json:"-"`
	InviteTokenHash        *string    `json:"-"`
	PasswordResetTokenHash *string    `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnerID returns the identity that owns this record for authorization checks.
// A team member is owned by the admin that invited it.
func (i *Identity) OwnerID() string {
	if i.AdminID != nil {
		return *i.AdminID
	}
	return i.ID
}

// IsActive reports whether the identity may log in
func (i *Identity) IsActive() bool {
	return i.Status == IdentityActive
}

// HasPassword reports whether credentials have been set
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

// FullName joins first and last name for greetings
func (i *Identity) FullName() string {
	switch {
	case i.FirstName == "":
		return i.LastName
	case i.LastName == "":
		return i.FirstName
	default:
		return i.FirstName + " " + i.LastName
	}
}
