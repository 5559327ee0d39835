package models

import "time"

// AccessType is the level of shared access a user holds on a workspace.
type AccessType string

const (
	AccessView AccessType = "view"
	AccessEdit AccessType = "edit"
)

// IsValid reports whether the access type is one of the supported values.
func (t AccessType) IsValid() bool {
	return t == AccessView || t == AccessEdit
}

// Workspace is a named container owned by one user, holding folders/forms
// and a shared-access list. The owner holds implicit full access and is
// never represented in SharedWith.
type Workspace struct {
	ID         string        `json:"id" db:"id"`
	OwnerID    string        `json:"owner_id" db:"owner_id"`
	Name       string        `json:"name" db:"name"`
	SharedWith []AccessGrant `json:"shared_with,omitempty"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}

// AccessGrant relates a user to a workspace with view or edit rights.
// At most one grant exists per (workspace, user) pair.
type AccessGrant struct {
	ID          string     `json:"id" db:"id"`
	WorkspaceID string     `json:"workspace_id" db:"workspace_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	AccessType  AccessType `json:"access_type" db:"access_type"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}
