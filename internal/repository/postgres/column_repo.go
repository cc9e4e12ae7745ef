package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
)

// ColumnRepo implements ColumnRepository using PostgreSQL.
type ColumnRepo struct{ db *DB }

// NewColumnRepo constructs a column repository.
func NewColumnRepo(db *DB) *ColumnRepo { return &ColumnRepo{db: db} }

const columnCols = `id, project_id, title, color, order_index, created_at`

func scanColumn(row pgx.Row, c *model.Column) error {
	return row.Scan(&c.ID, &c.ProjectID, &c.Title, &c.Color, &c.OrderIndex, &c.CreatedAt)
}

// ListByProject returns the project's columns in display order.
func (r *ColumnRepo) ListByProject(ctx context.Context, projectID int64) ([]model.Column, error) {
	const q = `
SELECT ` + columnCols + `
FROM columns WHERE project_id=$1
ORDER BY order_index, created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Column, 0)
	for rows.Next() {
		var c model.Column
		if err := scanColumn(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID selects a column by ID.
func (r *ColumnRepo) GetByID(ctx context.Context, id int64) (*model.Column, error) {
	const q = `SELECT ` + columnCols + ` FROM columns WHERE id=$1`
	var c model.Column
	if err := scanColumn(r.db.Pool.QueryRow(ctx, q, id), &c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// Create appends a column to its project.
func (r *ColumnRepo) Create(ctx context.Context, c *model.Column) error {
	const q = `
INSERT INTO columns (project_id, title, color, order_index)
VALUES ($1, $2, $3, (SELECT COUNT(*) FROM columns WHERE project_id=$1))
RETURNING id, order_index, created_at`
	return r.db.Pool.QueryRow(ctx, q, c.ProjectID, c.Title, c.Color).
		Scan(&c.ID, &c.OrderIndex, &c.CreatedAt)
}

// Update applies the non-nil patch fields.
func (r *ColumnRepo) Update(ctx context.Context, id int64, patch model.ColumnPatch) (int64, error) {
	var set setClause
	if patch.Title != nil {
		set.add("title", *patch.Title)
	}
	if patch.Color != nil {
		set.add("color", *patch.Color)
	}
	if set.empty() {
		return 0, errs.ErrValidation
	}
	q := `UPDATE columns SET ` + set.String() + ` WHERE id=$` + itoa(len(set.args)+1)
	tag, err := r.db.Pool.Exec(ctx, q, append(set.args, id)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a column and, by cascade, its tasks and their attachments.
func (r *ColumnRepo) Delete(ctx context.Context, id int64) (keys []string, err error) {
	const sel = `
SELECT a.storage_key
FROM attachments a
JOIN tasks t ON t.id = a.task_id
WHERE t.column_id=$1`
	const del = `DELETE FROM columns WHERE id=$1`

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

// BatchSetOrder writes order_index for each entry in one transaction.
func (r *ColumnRepo) BatchSetOrder(ctx context.Context, entries []model.OrderEntry) (changed int64, err error) {
	const upd = `UPDATE columns SET order_index=$2 WHERE id=$1`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			tag, err := tx.Exec(ctx, upd, e.ID, e.OrderIndex)
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

// Scopes maps column ids to their project and owner.
func (r *ColumnRepo) Scopes(ctx context.Context, ids []int64) (map[int64]repository.Scope, error) {
	const q = `
SELECT c.id, c.project_id, p.owner_id
FROM columns c
JOIN projects p ON p.id = c.project_id
WHERE c.id = ANY($1)`
	return queryScopes(ctx, r.db.Pool, q, ids)
}

func queryScopes(ctx context.Context, pool PgxPool, q string, ids []int64) (map[int64]repository.Scope, error) {
	out := make(map[int64]repository.Scope, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var s repository.Scope
		if err := rows.Scan(&id, &s.ParentID, &s.OwnerID); err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, rows.Err()
}
