// Package repository defines storage interfaces implemented by concrete backends.
//
// Ordered entities carry an order_index scoped to their container (owner for
// projects, project for columns, column for tasks). Listings are sorted by
// order_index, then created_at, then id. BatchSetOrder writes are atomic and
// soft-fail: an entry for a missing id changes zero rows and is not an error.
package repository

import (
	"context"

	"github.com/and161185/taskboard/internal/model"
)

// Scope ties an entity to its direct container and to the user owning the project chain.
type Scope struct {
	ParentID int64 // project for columns, column for tasks, task for attachments
	OwnerID  int64
}

// UserRepository provides access to accounts.
type UserRepository interface {
	// Create inserts a new user and fills ID/CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// ProjectRepository stores projects ordered per owner.
type ProjectRepository interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Project, error)
	GetByID(ctx context.Context, id int64) (*model.Project, error)
	// Create appends the project to its owner's list and seeds the given columns in one transaction.
	Create(ctx context.Context, p *model.Project, seed []string, color string) ([]model.Column, error)
	// Update changes the patched fields of a project owned by ownerID; returns rows changed.
	Update(ctx context.Context, id, ownerID int64, patch model.ProjectPatch) (int64, error)
	// Delete removes the project and everything below it; returns storage keys of removed attachments.
	Delete(ctx context.Context, id, ownerID int64) ([]string, error)
	// BatchSetOrder sets order_index on the owner's projects atomically; returns rows changed.
	BatchSetOrder(ctx context.Context, ownerID int64, entries []model.OrderEntry) (int64, error)
}

// ColumnRepository stores columns ordered per project.
type ColumnRepository interface {
	ListByProject(ctx context.Context, projectID int64) ([]model.Column, error)
	GetByID(ctx context.Context, id int64) (*model.Column, error)
	// Create appends the column to its project and fills ID/OrderIndex/CreatedAt.
	Create(ctx context.Context, c *model.Column) error
	Update(ctx context.Context, id int64, patch model.ColumnPatch) (int64, error)
	// Delete removes the column and its tasks; returns storage keys of removed attachments.
	Delete(ctx context.Context, id int64) ([]string, error)
	BatchSetOrder(ctx context.Context, entries []model.OrderEntry) (int64, error)
	// Scopes resolves project and owner for the given column ids; unknown ids are absent.
	Scopes(ctx context.Context, ids []int64) (map[int64]Scope, error)
}

// TaskRepository stores tasks ordered per column.
type TaskRepository interface {
	// ListByProject returns every task of the project's columns with attachment counts.
	ListByProject(ctx context.Context, projectID int64) ([]model.Task, error)
	GetByID(ctx context.Context, id int64) (*model.Task, error)
	// Create appends the task to its column and fills ID/OrderIndex/CreatedAt.
	Create(ctx context.Context, t *model.Task) error
	Update(ctx context.Context, id int64, patch model.TaskPatch) (int64, error)
	// Delete removes the task; returns storage keys of removed attachments.
	Delete(ctx context.Context, id int64) ([]string, error)
	// BatchSetOrder sets order_index and, when given, column_id atomically.
	BatchSetOrder(ctx context.Context, entries []model.OrderEntry) (int64, error)
	// Scopes resolves column and owner for the given task ids; unknown ids are absent.
	Scopes(ctx context.Context, ids []int64) (map[int64]Scope, error)
}

// AttachmentRepository stores attachment metadata.
type AttachmentRepository interface {
	ListByTask(ctx context.Context, taskID int64) ([]model.Attachment, error)
	GetByID(ctx context.Context, id int64) (*model.Attachment, error)
	Create(ctx context.Context, a *model.Attachment) error
	Delete(ctx context.Context, id int64) (int64, error)
	// Scope resolves the task and owner of an attachment.
	Scope(ctx context.Context, id int64) (Scope, error)
}
