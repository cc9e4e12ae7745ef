package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
	"github.com/and161185/taskboard/internal/storage"
)

const defaultFileType = "application/octet-stream"

// AttachmentService stores files under tasks.
type AttachmentService interface {
	List(ctx context.Context, userID, taskID int64) ([]model.Attachment, error)
	// Upload writes the bytes first and then the metadata row.
	Upload(ctx context.Context, userID, taskID int64, fileName, fileType string, r io.Reader) (*model.Attachment, error)
	// Open returns metadata and a reader over the stored bytes; the caller closes it.
	Open(ctx context.Context, userID, id int64) (*model.Attachment, io.ReadCloser, error)
	Delete(ctx context.Context, userID, id int64) error
}

type AttachmentServiceImpl struct {
	tasks       repository.TaskRepository
	attachments repository.AttachmentRepository
	blobs       storage.BlobStore
	log         *zap.Logger
}

var _ AttachmentService = (*AttachmentServiceImpl)(nil)

// NewAttachmentService constructs AttachmentService.
func NewAttachmentService(
	tasks repository.TaskRepository, attachments repository.AttachmentRepository, blobs storage.BlobStore, log *zap.Logger,
) *AttachmentServiceImpl {
	return &AttachmentServiceImpl{tasks: tasks, attachments: attachments, blobs: blobs, log: orNop(log)}
}

func (s *AttachmentServiceImpl) List(ctx context.Context, userID, taskID int64) ([]model.Attachment, error) {
	if _, err := ownTask(ctx, s.tasks, userID, taskID); err != nil {
		return nil, err
	}
	return s.attachments.ListByTask(ctx, taskID)
}

func (s *AttachmentServiceImpl) Upload(
	ctx context.Context, userID, taskID int64, fileName, fileType string, r io.Reader,
) (*model.Attachment, error) {
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: file name required", errs.ErrValidation)
	}
	if fileType == "" {
		fileType = defaultFileType
	}
	if _, err := ownTask(ctx, s.tasks, userID, taskID); err != nil {
		return nil, err
	}

	key, size, err := s.blobs.Put(ctx, r)
	if err != nil {
		return nil, err
	}
	a := &model.Attachment{TaskID: taskID, FileName: name, StorageKey: key, FileType: fileType, FileSize: size}
	if err := s.attachments.Create(ctx, a); err != nil {
		s.log.Warn("attachment row insert failed, blob orphaned",
			zap.Int64("task_id", taskID), zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return a, nil
}

func (s *AttachmentServiceImpl) Open(ctx context.Context, userID, id int64) (*model.Attachment, io.ReadCloser, error) {
	if err := s.own(ctx, userID, id); err != nil {
		return nil, nil, err
	}
	a, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, a.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return a, rc, nil
}

func (s *AttachmentServiceImpl) Delete(ctx context.Context, userID, id int64) error {
	if err := s.own(ctx, userID, id); err != nil {
		return err
	}
	a, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.attachments.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	removeBlobs(ctx, s.blobs, s.log, []string{a.StorageKey})
	return nil
}

func (s *AttachmentServiceImpl) own(ctx context.Context, userID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: bad id", errs.ErrValidation)
	}
	sc, err := s.attachments.Scope(ctx, id)
	if err != nil {
		return err
	}
	if sc.OwnerID != userID {
		return errs.ErrForbidden
	}
	return nil
}
