package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/events"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
	"github.com/and161185/taskboard/internal/storage"
)

// TaskService manages tasks inside a user's columns.
type TaskService interface {
	// Create appends a task to in.ColumnID. Zero priority means the default.
	Create(ctx context.Context, userID int64, in model.Task) (*model.Task, error)
	// Update changes any subset of title, description, column_id, priority, order_index.
	Update(ctx context.Context, userID, id int64, patch model.TaskPatch) (*model.Task, error)
	// Delete removes the task and its attachment bytes.
	Delete(ctx context.Context, userID, id int64) error
}

type TaskServiceImpl struct {
	columns repository.ColumnRepository
	tasks   repository.TaskRepository
	blobs   storage.BlobStore
	pub     events.Publisher
	log     *zap.Logger
}

var _ TaskService = (*TaskServiceImpl)(nil)

// NewTaskService constructs TaskService.
func NewTaskService(
	columns repository.ColumnRepository, tasks repository.TaskRepository,
	blobs storage.BlobStore, pub events.Publisher, log *zap.Logger,
) *TaskServiceImpl {
	return &TaskServiceImpl{columns: columns, tasks: tasks, blobs: blobs, pub: orNopPublisher(pub), log: orNop(log)}
}

func (s *TaskServiceImpl) Create(ctx context.Context, userID int64, in model.Task) (*model.Task, error) {
	title, err := cleanTitle("title", in.Title)
	if err != nil {
		return nil, err
	}
	if in.Priority == 0 {
		in.Priority = model.DefaultPriority
	}
	if err := checkPriority(in.Priority); err != nil {
		return nil, err
	}
	col, err := ownColumn(ctx, s.columns, userID, in.ColumnID)
	if err != nil {
		return nil, err
	}
	t := &model.Task{
		ColumnID:    in.ColumnID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Priority:    in.Priority,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	publish(ctx, s.pub, s.log, events.Event{Type: events.TaskCreated, UserID: userID, ProjectID: col.ParentID, EntityID: t.ID})
	return t, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, userID, id int64, patch model.TaskPatch) (*model.Task, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrValidation)
	}
	if patch.Title != nil {
		title, err := cleanTitle("title", *patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if patch.Priority != nil {
		if err := checkPriority(*patch.Priority); err != nil {
			return nil, err
		}
	}
	if patch.OrderIndex != nil && *patch.OrderIndex < 0 {
		return nil, fmt.Errorf("%w: negative order_index", errs.ErrValidation)
	}
	if _, err := ownTask(ctx, s.tasks, userID, id); err != nil {
		return nil, err
	}
	if patch.ColumnID != nil {
		if _, err := ownColumn(ctx, s.columns, userID, *patch.ColumnID); err != nil {
			return nil, err
		}
	}
	n, err := s.tasks.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.ErrNotFound
	}
	return s.tasks.GetByID(ctx, id)
}

func (s *TaskServiceImpl) Delete(ctx context.Context, userID, id int64) error {
	if _, err := ownTask(ctx, s.tasks, userID, id); err != nil {
		return err
	}
	keys, err := s.tasks.Delete(ctx, id)
	if err != nil {
		return err
	}
	removeBlobs(ctx, s.blobs, s.log, keys)
	publish(ctx, s.pub, s.log, events.Event{Type: events.TaskDeleted, UserID: userID, EntityID: id})
	return nil
}
