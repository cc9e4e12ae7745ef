package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
)

// ProjectRepo implements ProjectRepository using PostgreSQL.
type ProjectRepo struct{ db *DB }

// NewProjectRepo constructs a project repository.
func NewProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db} }

const projectCols = `id, name, description, owner_id, order_index, created_at`

func scanProject(row pgx.Row, p *model.Project) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OrderIndex, &p.CreatedAt)
}

// ListByOwner returns the owner's projects in display order.
func (r *ProjectRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Project, error) {
	const q = `
SELECT ` + projectCols + `
FROM projects WHERE owner_id=$1
ORDER BY order_index, created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Project, 0)
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetByID selects a project by ID.
func (r *ProjectRepo) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	const q = `SELECT ` + projectCols + ` FROM projects WHERE id=$1`
	var p model.Project
	if err := scanProject(r.db.Pool.QueryRow(ctx, q, id), &p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Create appends a project to the owner's list and seeds its columns in the same transaction.
func (r *ProjectRepo) Create(
	ctx context.Context, p *model.Project, seed []string, color string,
) (cols []model.Column, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO projects (owner_id, name, description, order_index)
VALUES ($1, $2, $3, (SELECT COUNT(*) FROM projects WHERE owner_id=$1))
RETURNING id, order_index, created_at`
	const insCol = `
INSERT INTO columns (project_id, title, color, order_index)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

	if err = tx.QueryRow(ctx, ins, p.OwnerID, p.Name, p.Description).
		Scan(&p.ID, &p.OrderIndex, &p.CreatedAt); err != nil {
		return nil, err
	}
	cols = make([]model.Column, 0, len(seed))
	for i, title := range seed {
		c := model.Column{ProjectID: p.ID, Title: title, Color: color, OrderIndex: i}
		if err = tx.QueryRow(ctx, insCol, p.ID, title, color, i).Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

// Update applies the non-nil patch fields to a project owned by ownerID.
func (r *ProjectRepo) Update(ctx context.Context, id, ownerID int64, patch model.ProjectPatch) (int64, error) {
	var set setClause
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if set.empty() {
		return 0, errs.ErrValidation
	}
	n := len(set.args)
	q := `UPDATE projects SET ` + set.String() + ` WHERE id=$` + itoa(n+1) + ` AND owner_id=$` + itoa(n+2)
	tag, err := r.db.Pool.Exec(ctx, q, append(set.args, id, ownerID)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a project owned by ownerID; columns, tasks and attachments follow by cascade.
func (r *ProjectRepo) Delete(ctx context.Context, id, ownerID int64) (keys []string, err error) {
	const sel = `
SELECT a.storage_key
FROM attachments a
JOIN tasks t ON t.id = a.task_id
JOIN columns c ON c.id = t.column_id
JOIN projects p ON p.id = c.project_id
WHERE p.id=$1 AND p.owner_id=$2`
	const del = `DELETE FROM projects WHERE id=$1 AND owner_id=$2`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sel, id, ownerID)
		if err != nil {
			return err
		}
		if keys, err = collectKeys(rows); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, del, id, ownerID)
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

// BatchSetOrder writes order_index for the owner's projects; foreign or unknown ids change nothing.
func (r *ProjectRepo) BatchSetOrder(ctx context.Context, ownerID int64, entries []model.OrderEntry) (changed int64, err error) {
	const upd = `UPDATE projects SET order_index=$2 WHERE id=$1 AND owner_id=$3`
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			tag, err := tx.Exec(ctx, upd, e.ID, e.OrderIndex, ownerID)
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
