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

// ProjectService manages a user's projects and reads their boards.
type ProjectService interface {
	List(ctx context.Context, userID int64) ([]model.Project, error)
	// Create appends a project and seeds the default columns.
	Create(ctx context.Context, userID int64, name string, description *string) (*model.Project, []model.Column, error)
	Update(ctx context.Context, userID, id int64, patch model.ProjectPatch) (*model.Project, error)
	// Delete removes the project with its columns, tasks and attachment bytes.
	Delete(ctx context.Context, userID, id int64) error
	Columns(ctx context.Context, userID, projectID int64) ([]model.Column, error)
	Tasks(ctx context.Context, userID, projectID int64) ([]model.Task, error)
}

type ProjectServiceImpl struct {
	projects repository.ProjectRepository
	columns  repository.ColumnRepository
	tasks    repository.TaskRepository
	blobs    storage.BlobStore
	pub      events.Publisher
	log      *zap.Logger
}

var _ ProjectService = (*ProjectServiceImpl)(nil)

// NewProjectService constructs ProjectService.
func NewProjectService(
	projects repository.ProjectRepository, columns repository.ColumnRepository, tasks repository.TaskRepository,
	blobs storage.BlobStore, pub events.Publisher, log *zap.Logger,
) *ProjectServiceImpl {
	return &ProjectServiceImpl{
		projects: projects, columns: columns, tasks: tasks,
		blobs: blobs, pub: orNopPublisher(pub), log: orNop(log),
	}
}

func (s *ProjectServiceImpl) List(ctx context.Context, userID int64) ([]model.Project, error) {
	return s.projects.ListByOwner(ctx, userID)
}

func (s *ProjectServiceImpl) Create(
	ctx context.Context, userID int64, name string, description *string,
) (*model.Project, []model.Column, error) {
	name, err := cleanTitle("name", name)
	if err != nil {
		return nil, nil, err
	}
	p := &model.Project{OwnerID: userID, Name: name, Description: trimOpt(description)}
	cols, err := s.projects.Create(ctx, p, model.DefaultColumns, model.DefaultColumnColor)
	if err != nil {
		return nil, nil, err
	}
	publish(ctx, s.pub, s.log, events.Event{Type: events.ProjectCreated, UserID: userID, ProjectID: p.ID, EntityID: p.ID})
	return p, cols, nil
}

func (s *ProjectServiceImpl) Update(ctx context.Context, userID, id int64, patch model.ProjectPatch) (*model.Project, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", errs.ErrValidation)
	}
	if patch.Name != nil {
		name, err := cleanTitle("name", *patch.Name)
		if err != nil {
			return nil, err
		}
		patch.Name = &name
	}
	patch.Description = trimOpt(patch.Description)
	if _, err := ownProject(ctx, s.projects, userID, id); err != nil {
		return nil, err
	}
	n, err := s.projects.Update(ctx, id, userID, patch)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.ErrNotFound
	}
	return s.projects.GetByID(ctx, id)
}

func (s *ProjectServiceImpl) Delete(ctx context.Context, userID, id int64) error {
	if _, err := ownProject(ctx, s.projects, userID, id); err != nil {
		return err
	}
	keys, err := s.projects.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	removeBlobs(ctx, s.blobs, s.log, keys)
	publish(ctx, s.pub, s.log, events.Event{Type: events.ProjectDeleted, UserID: userID, ProjectID: id, EntityID: id})
	return nil
}

func (s *ProjectServiceImpl) Columns(ctx context.Context, userID, projectID int64) ([]model.Column, error) {
	if _, err := ownProject(ctx, s.projects, userID, projectID); err != nil {
		return nil, err
	}
	return s.columns.ListByProject(ctx, projectID)
}

func (s *ProjectServiceImpl) Tasks(ctx context.Context, userID, projectID int64) ([]model.Task, error) {
	if _, err := ownProject(ctx, s.projects, userID, projectID); err != nil {
		return nil, err
	}
	return s.tasks.ListByProject(ctx, projectID)
}

func trimOpt(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
