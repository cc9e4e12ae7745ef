package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
)

func TestColumnRepo_Create_Appends(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewColumnRepo(db)

	mock.ExpectQuery(`INSERT INTO columns \(project_id, title, color, order_index\) VALUES \(\$1, \$2, \$3, \(SELECT COUNT\(\*\) FROM columns WHERE project_id=\$1\)\) RETURNING id, order_index, created_at`).
		WithArgs(int64(4), "QA", "#fff").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_index", "created_at"}).AddRow(int64(12), 3, time.Now()))

	c := &model.Column{ProjectID: 4, Title: "QA", Color: "#fff"}
	require.NoError(t, r.Create(context.Background(), c))
	require.Equal(t, int64(12), c.ID)
	require.Equal(t, 3, c.OrderIndex)
}

func TestColumnRepo_Update_TwoFields(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewColumnRepo(db)
	title, color := "Doing", "#000"

	mock.ExpectExec(`UPDATE columns SET title=\$1, color=\$2 WHERE id=\$3`).
		WithArgs("Doing", "#000", int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	n, err := r.Update(context.Background(), 7, model.ColumnPatch{Title: &title, Color: &color})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestColumnRepo_BatchSetOrder_RollbackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewColumnRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE columns SET order_index=\$2 WHERE id=\$1`).
		WithArgs(int64(1), 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE columns SET order_index=\$2 WHERE id=\$1`).
		WithArgs(int64(2), 1).
		WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	_, err := r.BatchSetOrder(context.Background(), []model.OrderEntry{{ID: 1, OrderIndex: 0}, {ID: 2, OrderIndex: 1}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnRepo_Scopes(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewColumnRepo(db)

	mock.ExpectQuery(`SELECT c.id, c.project_id, p.owner_id FROM columns c JOIN projects p ON p.id = c.project_id WHERE c.id = ANY\(\$1\)`).
		WithArgs([]int64{1, 2, 99}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "project_id", "owner_id"}).
			AddRow(int64(1), int64(5), int64(7)).
			AddRow(int64(2), int64(5), int64(7)))

	got, err := r.Scopes(context.Background(), []int64{1, 2, 99})
	require.NoError(t, err)
	require.Equal(t, map[int64]repository.Scope{1: {ParentID: 5, OwnerID: 7}, 2: {ParentID: 5, OwnerID: 7}}, got)

	empty, err := r.Scopes(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnRepo_Delete_CollectsTaskAttachmentKeys(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewColumnRepo(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT a.storage_key FROM attachments a JOIN tasks t ON t.id = a.task_id WHERE t.column_id=\$1`).
		WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"storage_key"}).AddRow("k1").AddRow("k2"))
	mock.ExpectExec(`DELETE FROM columns WHERE id=\$1`).
		WithArgs(int64(8)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	keys, err := r.Delete(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2"}, keys)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT a.storage_key FROM attachments a`).
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"storage_key"}))
	mock.ExpectExec(`DELETE FROM columns WHERE id=\$1`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()
	keys, err = r.Delete(ctx, 9)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Nil(t, keys)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT a.storage_key FROM attachments a`).
		WithArgs(int64(10)).
		WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()
	_, err = r.Delete(ctx, 10)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
