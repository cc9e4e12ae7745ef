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
	"github.com/and161185/taskboard/internal/repository"
)

func TestAttachmentRepo_CreateAndList(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO attachments \(task_id, file_name, storage_key, file_type, file_size\) VALUES \(\$1, \$2, \$3, \$4, \$5\) RETURNING id, created_at`).
		WithArgs(int64(2), "a.txt", "key", "text/plain", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(40), now))
	a := &model.Attachment{TaskID: 2, FileName: "a.txt", StorageKey: "key", FileType: "text/plain", FileSize: 3}
	require.NoError(t, r.Create(ctx, a))
	require.Equal(t, int64(40), a.ID)

	mock.ExpectQuery(`SELECT id, task_id, file_name, storage_key, file_type, file_size, created_at FROM attachments WHERE task_id=\$1 ORDER BY created_at, id`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "task_id", "file_name", "storage_key", "file_type", "file_size", "created_at"}).
			AddRow(int64(40), int64(2), "a.txt", "key", "text/plain", int64(3), now))
	list, err := r.ListByTask(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []model.Attachment{*a}, list)
}

func TestAttachmentRepo_Scope(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT a.task_id, p.owner_id FROM attachments a`).
		WithArgs(int64(40)).
		WillReturnRows(pgxmock.NewRows([]string{"task_id", "owner_id"}).AddRow(int64(2), int64(7)))
	s, err := r.Scope(ctx, 40)
	require.NoError(t, err)
	require.Equal(t, repository.Scope{ParentID: 2, OwnerID: 7}, s)

	mock.ExpectQuery(`SELECT a.task_id, p.owner_id FROM attachments a`).
		WithArgs(int64(41)).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Scope(ctx, 41)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestAttachmentRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAttachmentRepo(db)

	mock.ExpectExec(`DELETE FROM attachments WHERE id=\$1`).
		WithArgs(int64(40)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	n, err := r.Delete(context.Background(), 40)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
