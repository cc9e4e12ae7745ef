package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository"
	"github.com/and161185/taskboard/internal/storage"
)

// ColumnService manages columns inside a user's projects.
type ColumnService interface {
	// Create appends a column to the project; empty color means the default.
	Create(ctx context.Context, userID, projectID int64, title, color string) (*model.Column, error)
	Update(ctx context.Context, userID, id int64, patch model.ColumnPatch) (*model.Column, error)
	// Delete removes the column with its tasks and attachment bytes.
	Delete(ctx context.Context, userID, id int64) error
}

type ColumnServiceImpl struct {
	projects repository.ProjectRepository
	columns  repository.ColumnRepository
	blobs    storage.BlobStore
	log      *zap.Logger
}

var _ ColumnService = (*ColumnServiceImpl)(nil)

// NewColumnService constructs ColumnService.
func NewColumnService(
	projects repository.ProjectRepository, columns repository.ColumnRepository, blobs storage.BlobStore, log *zap.Logger,
) *ColumnServiceImpl {
	return &ColumnServiceImpl{projects: projects, columns: columns, blobs: blobs, log: orNop(log)}
}

func (s *ColumnServiceImpl) Create(ctx context.Context, userID, projectID int64, title, color string) (*model.Column, error) {
	title, err := cleanTitle("title", title)
	if err != nil {
		return nil, err
	}
	if color == "" {
		color = model.DefaultColumnColor
	}
	if err := checkColor(color); err != nil {
		return nil, err
	}
	if _, err := ownProject(ctx, s.projects, userID, projectID); err != nil {
		return nil, err
	}
	c := &model.Column{ProjectID: projectID, Title: title, Color: color}
	if err := s.columns.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ColumnServiceImpl) Update(ctx context.Context, userID, id int64, patch model.ColumnPatch) (*model.Column, error) {
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
	if patch.Color != nil {
		if err := checkColor(*patch.Color); err != nil {
			return nil, err
		}
	}
	if _, err := ownColumn(ctx, s.columns, userID, id); err != nil {
		return nil, err
	}
	n, err := s.columns.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.ErrNotFound
	}
	return s.columns.GetByID(ctx, id)
}

func (s *ColumnServiceImpl) Delete(ctx context.Context, userID, id int64) error {
	if _, err := ownColumn(ctx, s.columns, userID, id); err != nil {
		return err
	}
	keys, err := s.columns.Delete(ctx, id)
	if err != nil {
		return err
	}
	removeBlobs(ctx, s.blobs, s.log, keys)
	return nil
}
