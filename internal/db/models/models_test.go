package models

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Identity helpers
// ---------------------------------------------------------------------------

func strPtr(s string) *string { return &s }

func TestIdentity_OwnerID_Admin(t *testing.T) {
	i := &Identity{ID: "admin-1", Role: RoleAdmin}
	if got := i.OwnerID(); got != "admin-1" {
		t.Errorf("OwnerID() = %q, want admin-1", got)
	}
}

func TestIdentity_OwnerID_TeamMember(t *testing.T) {
	i := &Identity{ID: "member-1", Role: RoleTeamMember, AdminID: strPtr("admin-1")}
	if got := i.OwnerID(); got != "admin-1" {
		t.Errorf("OwnerID() = %q, want admin-1", got)
	}
}

func TestIdentity_HasPassword(t *testing.T) {
	tests := []struct {
		name string
		hash *string
		want bool
	}{
		{"nil hash", nil, false},
		{"empty hash", strPtr(""), false},
		{"set hash", strPtr("$2a$04$abc"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &Identity{PasswordHash: tt.hash}
			if got := i.HasPassword(); got != tt.want {
				t.Errorf("HasPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIdentity_FullName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Ada", "Lovelace", "Ada Lovelace"},
		{"Ada", "", "Ada"},
		{"", "Lovelace", "Lovelace"},
	}
	for _, tt := range tests {
		i := &Identity{FirstName: tt.first, LastName: tt.last}
		if got := i.FullName(); got != tt.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Session.IsExpired
// ---------------------------------------------------------------------------

func TestSession_IsExpired_NilExpiresAt(t *testing.T) {
	s := &Session{}
	if s.IsExpired(time.Now()) {
		t.Error("IsExpired() should be false when ExpiresAt is nil")
	}
}

func TestSession_IsExpired_Boundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: &now}
	if !s.IsExpired(now) {
		t.Error("IsExpired() should be true at the expiry instant")
	}
	if s.IsExpired(now.Add(-time.Second)) {
		t.Error("IsExpired() should be false before the expiry instant")
	}
}

// ---------------------------------------------------------------------------
// Status enums and updates
// ---------------------------------------------------------------------------

func TestProjectStatus_Valid(t *testing.T) {
	for _, s := range []ProjectStatus{ProjectActive, ProjectArchived, ProjectCompleted} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if ProjectStatus("DELETED").Valid() {
		t.Error(`"DELETED".Valid() = true, want false`)
	}
}

func TestUpdates_IsEmpty(t *testing.T) {
	if !(ProjectUpdate{}).IsEmpty() {
		t.Error("empty ProjectUpdate should report IsEmpty")
	}
	if (ProjectUpdate{Name: strPtr("x")}).IsEmpty() {
		t.Error("ProjectUpdate with Name should not report IsEmpty")
	}
	if !(StoryUpdate{}).IsEmpty() {
		t.Error("empty StoryUpdate should report IsEmpty")
	}
	if (StoryUpdate{AssigneeID: strPtr("m-1")}).IsEmpty() {
		t.Error("StoryUpdate with AssigneeID should not report IsEmpty")
	}
}
