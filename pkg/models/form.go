package models

import (
	"encoding/json"
	"time"
)

// Form is a single form document under a workspace, optionally inside a folder.
// FormData holds the form definition as raw JSON.
type Form struct {
	ID          string          `json:"id" db:"id"`
	WorkspaceID string          `json:"workspace_id" db:"workspace_id"`
	FolderID    *string         `json:"folder_id,omitempty" db:"folder_id"`
	Name        string          `json:"name" db:"name"`
	FormData    json.RawMessage `json:"form_data,omitempty" db:"form_data"`
	ViewCount   int             `json:"view_count" db:"view_count"`
	SubmitCount int             `json:"submit_count" db:"submit_count"`
	CreatedBy   string          `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// FormResponse is one public submission against a form.
type FormResponse struct {
	ID          string          `json:"id" db:"id"`
	FormID      string          `json:"form_id" db:"form_id"`
	Data        json.RawMessage `json:"data" db:"data"`
	SubmittedAt time.Time       `json:"submitted_at" db:"submitted_at"`
}
