package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
)

// TaskRepo implements TaskRepository using PostgreSQL.
type TaskRepo struct{ db *DB }

// NewTaskRepo constructs a task repository.
func NewTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

const taskSelect = `
SELECT t.id, t.column_id, t.title, t.description, t.priority, t.order_index, t.created_at,
       (SELECT COUNT(*) FROM attachments a WHERE a.task_id = t.id) AS attachment_count
FROM tasks t`

func scanTask(row pgx.Row, t *model.Task) error {
	return row.Scan(&t.ID, &t.ColumnID, &t.Title, &t.Description, &t.Priority,
		&t.OrderIndex, &t.CreatedAt, &t.AttachmentCount)
}

func (r *TaskRepo) list(ctx context.Context, q string, arg int64) ([]model.Task, error) {
	rows, err := r.db.Pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Task, 0)
	for rows.Next() {
		var t model.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByProject returns all tasks under the project's columns, grouped by column.
func (r *TaskRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Task, error) {
	const q = taskSelect + `
JOIN columns c ON c.id = t.column_id
WHERE c.project_id=$1
ORDER BY t.column_id, t.order_index, t.created_at, t.id`
	return r.list(ctx, q, projectID)
}

// GetByID selects a task by ID.
func (r *TaskRepo) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	const q = taskSelect + ` WHERE t.id=$1`
	var t model.Task
	if err := scanTask(r.db.Pool.QueryRow(ctx, q, id), &t); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Create appends a task to its column.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	const q = `
INSERT INTO tasks (column_id, title, description, priority, order_index)
VALUES ($1, $2, $3, $4, (SELECT COUNT(*) FROM tasks WHERE column_id=$1))
RETURNING id, order_index, created_at`
	return r.db.Pool.QueryRow(ctx, q, t.ColumnID, t.Title, t.Description, t.Priority).
		Scan(&t.ID, &t.OrderIndex, &t.CreatedAt)
}

// Update applies the non-nil patch fields.
func (r *TaskRepo) Update(ctx context.Context, id int64, patch model.TaskPatch) (int64, error) {
	var set setClause
	if patch.Title != nil {
		set.add("title", *patch.Title)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if patch.ColumnID != nil {
		set.add("column_id", *patch.ColumnID)
	}
	if patch.Priority != nil {
		set.add("priority", *patch.Priority)
	}
	if patch.OrderIndex != nil {
		set.add("order_index", *patch.OrderIndex)
	}
	if set.empty() {
		return 0, errs.ErrValidation
	}
	q := `UPDATE tasks SET ` + set.String() + ` WHERE id=$` + itoa(len(set.args)+1)
	tag, err := r.db.Pool.Exec(ctx, q, append(set.args, id)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a task and, by cascade, its attachment rows.
func (r *TaskRepo) Delete(ctx context.Context, id int64) (keys []string, err error) {
	const sel = `SELECT storage_key FROM attachments WHERE task_id=$1`
	const del = `DELETE FROM tasks WHERE id=$1`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sel, id)
		if err != nil {
			return err
		}
		if keys, err = collectKeys(rows); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, del, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// BatchSetOrder writes order_index, and column_id when present, for each entry in one transaction.
func (r *TaskRepo) BatchSetOrder(ctx context.Context, entries []model.OrderEntry) (changed int64, err error) {
	const upd = `UPDATE tasks SET order_index=$2 WHERE id=$1`
	const move = `UPDATE tasks SET order_index=$2, column_id=$3 WHERE id=$1`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			var tag pgconn.CommandTag
			var err error
			if e.ColumnID != nil {
				tag, err = tx.Exec(ctx, move, e.ID, e.OrderIndex, *e.ColumnID)
			} else {
				tag, err = tx.Exec(ctx, upd, e.ID, e.OrderIndex)
			}
			if err != nil {
				return err
			}
			changed += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// Scopes maps task ids to their column and owner.
func (r *TaskRepo) Scopes(ctx context.Context, ids []int64) (map[int64]repository.Scope, error) {
	const q = `
SELECT t.id, t.column_id, p.owner_id
FROM tasks t
JOIN columns c ON c.id = t.column_id
JOIN projects p ON p.id = c.project_id
WHERE t.id = ANY($1)`
	return queryScopes(ctx, r.db.Pool, q, ids)
}
