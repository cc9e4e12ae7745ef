package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
)

var taskRowCols = []string{"id", "column_id", "title", "description", "priority", "order_index", "created_at", "attachment_count"}

func TestTaskRepo_Create_AppendsAtCount(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	mock.ExpectQuery(`INSERT INTO tasks \(column_id, title, description, priority, order_index\) VALUES \(\$1, \$2, \$3, \$4, \(SELECT COUNT\(\*\) FROM tasks WHERE column_id=\$1\)\) RETURNING id, order_index, created_at`).
		WithArgs(int64(3), "Review", "", 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_index", "created_at"}).AddRow(int64(21), 1, time.Now()))

	tk := &model.Task{ColumnID: 3, Title: "Review", Priority: 3}
	require.NoError(t, r.Create(context.Background(), tk))
	require.Equal(t, 1, tk.OrderIndex)
}

func TestTaskRepo_ListByProject_WithAttachmentCounts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM tasks t JOIN columns c ON c.id = t.column_id WHERE c.project_id=\$1 ORDER BY t.column_id, t.order_index, t.created_at, t.id`).
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows(taskRowCols).
			AddRow(int64(1), int64(3), "a", "", 3, 0, now, 2).
			AddRow(int64(2), int64(3), "b", "", 5, 1, now, 0))

	ts, err := r.ListByProject(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, ts, 2)
	require.Equal(t, 2, ts[0].AttachmentCount)
	require.Equal(t, 5, ts[1].Priority)
}

func TestTaskRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	mock.ExpectQuery(`FROM tasks t WHERE t.id=\$1`).
		WithArgs(int64(8)).
		WillReturnError(pgx.ErrNoRows)
	_, err := r.GetByID(context.Background(), 8)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTaskRepo_Update_AllFieldsInFixedOrder(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	title, desc := "t", "d"
	col := int64(9)
	prio, idx := 5, 2

	mock.ExpectExec(`UPDATE tasks SET title=\$1, description=\$2, column_id=\$3, priority=\$4, order_index=\$5 WHERE id=\$6`).
		WithArgs("t", "d", int64(9), 5, 2, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	n, err := r.Update(context.Background(), 1, model.TaskPatch{
		Title: &title, Description: &desc, ColumnID: &col, Priority: &prio, OrderIndex: &idx,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestTaskRepo_BatchSetOrder_SoftFailAndColumnMove(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)
	dst := int64(2)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE tasks SET order_index=\$2, column_id=\$3 WHERE id=\$1`).
		WithArgs(int64(1), 0, int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE tasks SET order_index=\$2, column_id=\$3 WHERE id=\$1`).
		WithArgs(int64(999), 1, int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE tasks SET order_index=\$2 WHERE id=\$1`).
		WithArgs(int64(3), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := r.BatchSetOrder(context.Background(), []model.OrderEntry{
		{ID: 1, OrderIndex: 0, ColumnID: &dst},
		{ID: 999, OrderIndex: 1, ColumnID: &dst},
		{ID: 3, OrderIndex: 2},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepo_Delete_ReturnsAttachmentKeys(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTaskRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT storage_key FROM attachments WHERE task_id=\$1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"storage_key"}).AddRow("k"))
	mock.ExpectExec(`DELETE FROM tasks WHERE id=\$1`).
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	keys, err := r.Delete(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}
