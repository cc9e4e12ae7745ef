package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/events"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/ordering"
	"github.com/and161185/taskboard/internal/repository"
)

// DefaultMaxBatch caps the number of entries in one reorder request.
const DefaultMaxBatch = 1000

// ReorderService persists drag-and-drop results as batches of order_index writes.
//
// Entries are normalised to dense 0..N-1 per container in the caller's order
// before they are written. Entries naming ids that do not exist change no rows
// and do not fail the batch. Ids owned by another user reject the whole batch.
// The returned count is the number of rows actually changed.
type ReorderService interface {
	ReorderProjects(ctx context.Context, userID int64, orderedIDs []int64) (int64, error)
	ReorderColumns(ctx context.Context, userID int64, entries []model.OrderEntry) (int64, error)
	ReorderTasks(ctx context.Context, userID int64, entries []model.OrderEntry) (int64, error)
}

type ReorderServiceImpl struct {
	projects repository.ProjectRepository
	columns  repository.ColumnRepository
	tasks    repository.TaskRepository
	pub      events.Publisher
	log      *zap.Logger
	maxBatch int
}

var _ ReorderService = (*ReorderServiceImpl)(nil)

// NewReorderService constructs ReorderService with batch limits.
func NewReorderService(
	projects repository.ProjectRepository, columns repository.ColumnRepository, tasks repository.TaskRepository,
	pub events.Publisher, log *zap.Logger, maxBatch int,
) *ReorderServiceImpl {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &ReorderServiceImpl{
		projects: projects, columns: columns, tasks: tasks,
		pub: orNopPublisher(pub), log: orNop(log), maxBatch: maxBatch,
	}
}

// ReorderProjects assigns dense indices from list position. Rows of other owners are never touched.
func (s *ReorderServiceImpl) ReorderProjects(ctx context.Context, userID int64, orderedIDs []int64) (int64, error) {
	if err := s.checkIDs(len(orderedIDs), func(i int) int64 { return orderedIDs[i] }); err != nil {
		return 0, err
	}
	if len(orderedIDs) == 0 {
		return 0, nil
	}
	n, err := s.projects.BatchSetOrder(ctx, userID, ordering.EntriesFromIDs(orderedIDs))
	if err != nil {
		return 0, err
	}
	publish(ctx, s.pub, s.log, events.Event{Type: events.BoardReordered, UserID: userID, Count: int(n)})
	return n, nil
}

// ReorderColumns writes {id, order_index} per column, dense within each project.
func (s *ReorderServiceImpl) ReorderColumns(ctx context.Context, userID int64, entries []model.OrderEntry) (int64, error) {
	if err := s.checkEntries(entries); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	scopes, err := s.columns.Scopes(ctx, entryIDs(entries))
	if err != nil {
		return 0, err
	}
	if err := checkOwner(scopes, userID); err != nil {
		return 0, err
	}

	norm := ordering.Normalize(entries, func(e model.OrderEntry) int64 { return scopes[e.ID].ParentID })
	for i := range norm {
		norm[i].ColumnID = nil
	}
	n, err := s.columns.BatchSetOrder(ctx, norm)
	if err != nil {
		return 0, err
	}
	publish(ctx, s.pub, s.log, events.Event{
		Type: events.BoardReordered, UserID: userID, ProjectID: anyParent(scopes), Count: int(n),
	})
	return n, nil
}

// ReorderTasks writes {id, order_index, column_id} per task, dense within each destination column.
// Entries without column_id stay in their current column.
func (s *ReorderServiceImpl) ReorderTasks(ctx context.Context, userID int64, entries []model.OrderEntry) (int64, error) {
	if err := s.checkEntries(entries); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	taskScopes, err := s.tasks.Scopes(ctx, entryIDs(entries))
	if err != nil {
		return 0, err
	}
	if err := checkOwner(taskScopes, userID); err != nil {
		return 0, err
	}

	var dest []int64
	seen := map[int64]bool{}
	for _, e := range entries {
		if e.ColumnID != nil && !seen[*e.ColumnID] {
			seen[*e.ColumnID] = true
			dest = append(dest, *e.ColumnID)
		}
	}
	colScopes, err := s.columns.Scopes(ctx, dest)
	if err != nil {
		return 0, err
	}
	for _, id := range dest {
		if _, ok := colScopes[id]; !ok {
			return 0, fmt.Errorf("%w: unknown column %d", errs.ErrValidation, id)
		}
	}
	if err := checkOwner(colScopes, userID); err != nil {
		return 0, err
	}

	norm := ordering.Normalize(entries, func(e model.OrderEntry) int64 {
		if e.ColumnID != nil {
			return *e.ColumnID
		}
		return taskScopes[e.ID].ParentID
	})
	n, err := s.tasks.BatchSetOrder(ctx, norm)
	if err != nil {
		return 0, err
	}
	publish(ctx, s.pub, s.log, events.Event{
		Type: events.BoardReordered, UserID: userID, ProjectID: anyParent(colScopes), Count: int(n),
	})
	return n, nil
}

func (s *ReorderServiceImpl) checkEntries(entries []model.OrderEntry) error {
	if err := s.checkIDs(len(entries), func(i int) int64 { return entries[i].ID }); err != nil {
		return err
	}
	for i, e := range entries {
		if e.OrderIndex < 0 {
			return fmt.Errorf("%w: entry[%d] negative order_index", errs.ErrValidation, i)
		}
		if e.ColumnID != nil && *e.ColumnID <= 0 {
			return fmt.Errorf("%w: entry[%d] bad column_id", errs.ErrValidation, i)
		}
	}
	return nil
}

// checkIDs enforces the batch cap, positive ids and no duplicates.
func (s *ReorderServiceImpl) checkIDs(n int, idAt func(int) int64) error {
	if n > s.maxBatch {
		return fmt.Errorf("%w: batch too large (%d > %d)", errs.ErrValidation, n, s.maxBatch)
	}
	seen := make(map[int64]struct{}, n)
	for i := 0; i < n; i++ {
		id := idAt(i)
		if id <= 0 {
			return fmt.Errorf("%w: entry[%d] bad id", errs.ErrValidation, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: entry[%d] duplicate id %d", errs.ErrValidation, i, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func entryIDs(entries []model.OrderEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func checkOwner(scopes map[int64]repository.Scope, userID int64) error {
	for _, sc := range scopes {
		if sc.OwnerID != userID {
			return errs.ErrForbidden
		}
	}
	return nil
}

func anyParent(scopes map[int64]repository.Scope) int64 {
	for _, sc := range scopes {
		return sc.ParentID
	}
	return 0
}
