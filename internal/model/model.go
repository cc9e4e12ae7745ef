// Package model defines domain entities used by services, repositories and the client.
package model

import "time"

// Default column titles seeded into every new project, in order.
var DefaultColumns = []string{"Todo", "In Progress", "Done"}

// DefaultColumnColor is used when a column is created without a color.
const DefaultColumnColor = "#6b7280"

// Task priority bounds.
const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User represents an account stored on the server.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	PwdHash   string    `json:"-"` // encoded argon2id hash incl. salt
	CreatedAt time.Time `json:"created_at"`
}

// Project is a board owned by a single user.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	OwnerID     int64     `json:"owner_id"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"`
}

// Column is an ordered lane inside a project.
type Column struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	Title      string    `json:"title"`
	Color      string    `json:"color"`
	OrderIndex int       `json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task is an ordered card inside a column.
type Task struct {
	ID              int64     `json:"id"`
	ColumnID        int64     `json:"column_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Priority        int       `json:"priority"`
	OrderIndex      int       `json:"order_index"`
	CreatedAt       time.Time `json:"created_at"`
	AttachmentCount int       `json:"attachment_count"` // derived, read-only
}

// Attachment is file metadata for bytes kept in the blob store under StorageKey.
type Attachment struct {
	ID         int64     `json:"id"`
	TaskID     int64     `json:"task_id"`
	FileName   string    `json:"file_name"`
	StorageKey string    `json:"-"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderEntry is one row of a batch reorder. ColumnID is only honoured for tasks.
type OrderEntry struct {
	ID         int64  `json:"id"`
	OrderIndex int    `json:"order_index"`
	ColumnID   *int64 `json:"column_id,omitempty"`
}

// ProjectPatch lists optional project fields; nil means unchanged.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether no field is set.
func (p ProjectPatch) Empty() bool { return p.Name == nil && p.Description == nil }

// ColumnPatch lists optional column fields; nil means unchanged.
type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Empty reports whether no field is set.
func (p ColumnPatch) Empty() bool { return p.Title == nil && p.Color == nil }

// TaskPatch lists optional task fields; nil means unchanged.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ColumnID    *int64  `json:"column_id,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	OrderIndex  *int    `json:"order_index,omitempty"`
}

// Empty reports whether no field is set.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.ColumnID == nil &&
		p.Priority == nil && p.OrderIndex == nil
}

// Apply returns t with the patch fields overlaid.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ColumnID != nil {
		t.ColumnID = *p.ColumnID
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.OrderIndex != nil {
		t.OrderIndex = *p.OrderIndex
	}
	return t
}
