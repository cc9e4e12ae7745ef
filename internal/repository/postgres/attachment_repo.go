package postgres

import (
	"context"

	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
)

// AttachmentRepo implements AttachmentRepository using PostgreSQL.
type AttachmentRepo struct{ db *DB }

// NewAttachmentRepo constructs an attachment repository.
func NewAttachmentRepo(db *DB) *AttachmentRepo { return &AttachmentRepo{db: db} }

const attachmentCols = `id, task_id, file_name, storage_key, file_type, file_size, created_at`

// ListByTask returns a task's attachments, oldest first.
func (r *AttachmentRepo) ListByTask(ctx context.Context, taskID int64) ([]model.Attachment, error) {
	const q = `SELECT ` + attachmentCols + ` FROM attachments WHERE task_id=$1 ORDER BY created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Attachment, 0)
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.FileName, &a.StorageKey, &a.FileType, &a.FileSize, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetByID selects an attachment by ID.
func (r *AttachmentRepo) GetByID(ctx context.Context, id int64) (*model.Attachment, error) {
	const q = `SELECT ` + attachmentCols + ` FROM attachments WHERE id=$1`
	var a model.Attachment
	err := r.db.Pool.QueryRow(ctx, q, id).
		Scan(&a.ID, &a.TaskID, &a.FileName, &a.StorageKey, &a.FileType, &a.FileSize, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// Create inserts attachment metadata.
func (r *AttachmentRepo) Create(ctx context.Context, a *model.Attachment) error {
	const q = `
INSERT INTO attachments (task_id, file_name, storage_key, file_type, file_size)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`
	return r.db.Pool.QueryRow(ctx, q, a.TaskID, a.FileName, a.StorageKey, a.FileType, a.FileSize).
		Scan(&a.ID, &a.CreatedAt)
}

// Delete removes attachment metadata; returns rows changed.
func (r *AttachmentRepo) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM attachments WHERE id=$1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Scope resolves the task and owner of an attachment.
func (r *AttachmentRepo) Scope(ctx context.Context, id int64) (repository.Scope, error) {
	const q = `
SELECT a.task_id, p.owner_id
FROM attachments a
JOIN tasks t ON t.id = a.task_id
JOIN columns c ON c.id = t.column_id
JOIN projects p ON p.id = c.project_id
WHERE a.id=$1`
	var s repository.Scope
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ParentID, &s.OwnerID); err != nil {
		return repository.Scope{}, notFound(err)
	}
	return s, nil
}
