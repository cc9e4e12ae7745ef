// Package board is the client-side cache of one user's board: the project
// list plus the columns and tasks of the selected project. Local edits are
// applied optimistically and rolled back when the server rejects them.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/and161185/taskboard/internal/client"
	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/ordering"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("board: closed")

// API is the subset of the server API the cache uses.
type API interface {
	Projects(ctx context.Context) ([]model.Project, error)
	CreateProject(ctx context.Context, name string, description *string) (*model.Project, []model.Column, error)
	UpdateProject(ctx context.Context, id int64, patch model.ProjectPatch) (*model.Project, error)
	DeleteProject(ctx context.Context, id int64) error

	Columns(ctx context.Context, projectID int64) ([]model.Column, error)
	CreateColumn(ctx context.Context, projectID int64, title, color string) (*model.Column, error)
	UpdateColumn(ctx context.Context, id int64, patch model.ColumnPatch) (*model.Column, error)
	DeleteColumn(ctx context.Context, id int64) error

	Tasks(ctx context.Context, projectID int64) ([]model.Task, error)
	CreateTask(ctx context.Context, t model.Task) (*model.Task, error)
	UpdateTask(ctx context.Context, id int64, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, id int64) error

	UploadAttachment(ctx context.Context, taskID int64, fileName string, r io.Reader) (*model.Attachment, error)
	DeleteAttachment(ctx context.Context, id int64) error
}

var _ API = (*client.Client)(nil)

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Projects  []model.Project
	ProjectID int64 // selected project, 0 when none
	Columns   []model.Column
	Tasks     []model.Task
	Err       error // last failed call
}

// State is the cache. It is safe for concurrent use; network calls are made
// without holding the lock.
type State struct {
	api API

	mu        sync.Mutex
	gen       uint64 // bumped by Select and Close; responses from older generations are dropped
	closed    bool
	projects  []model.Project
	projectID int64
	columns   []model.Column
	tasks     []model.Task
	lastErr   error
}

// New returns an empty cache over api.
func New(api API) *State {
	return &State{api: api}
}

// Close drops all cached data. Responses still in flight are discarded.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.gen++
	s.projects, s.columns, s.tasks = nil, nil, nil
	s.projectID = 0
	s.lastErr = nil
}

// LoadProjects fetches the caller's projects.
func (s *State) LoadProjects(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen := s.gen
	s.mu.Unlock()

	ps, err := s.api.Projects(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return nil
	}
	if err != nil {
		s.lastErr = err
		return err
	}
	ordering.SortProjects(ps)
	s.projects = ps
	return nil
}

// Select switches to projectID: the previous project's columns and tasks are
// dropped at once and replaced by a fresh fetch. If another Select starts
// before this one returns, this one's result is discarded.
func (s *State) Select(ctx context.Context, projectID int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	s.projectID = projectID
	s.columns, s.tasks = nil, nil
	s.mu.Unlock()

	return s.fetchBoard(ctx, gen, projectID)
}

// ReconcileAfterReorder re-fetches the project list and the selected
// project's board. It runs after every reorder, successful or not.
func (s *State) ReconcileAfterReorder(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen, projectID := s.gen, s.projectID
	s.mu.Unlock()

	perr := s.LoadProjects(ctx)
	if projectID == 0 {
		return perr
	}
	if err := s.fetchBoard(ctx, gen, projectID); err != nil {
		return err
	}
	return perr
}

func (s *State) fetchBoard(ctx context.Context, gen uint64, projectID int64) error {
	cols, err := s.api.Columns(ctx, projectID)
	var tasks []model.Task
	if err == nil {
		tasks, err = s.api.Tasks(ctx, projectID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return nil
	}
	if err != nil {
		s.lastErr = err
		return err
	}
	ordering.SortColumns(cols)
	ordering.SortTasks(tasks)
	s.columns, s.tasks = cols, tasks
	return nil
}

// ApplyProjects replaces the cached project list.
func (s *State) ApplyProjects(full []model.Project) {
	s.mu.Lock()
	s.projects = append([]model.Project(nil), full...)
	s.mu.Unlock()
}

// ApplyColumns replaces the selected project's columns.
func (s *State) ApplyColumns(full []model.Column) {
	s.mu.Lock()
	s.columns = append([]model.Column(nil), full...)
	s.mu.Unlock()
}

// ApplyTasks replaces the selected project's tasks.
func (s *State) ApplyTasks(full []model.Task) {
	s.mu.Lock()
	s.tasks = append([]model.Task(nil), full...)
	s.mu.Unlock()
}

// mutate applies a local edit, then calls the server. On failure the edit's
// undo runs unless a Select happened meanwhile. Undo touches only the rows the
// edit changed, so Apply* calls that land during the request are kept.
func (s *State) mutate(ctx context.Context, apply func() (undo func(), err error), call func(context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	gen := s.gen
	undo, err := apply()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	err = call(ctx)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.gen == gen {
		undo()
		s.lastErr = err
	}
	return err
}

func idOfTask(t model.Task) int64       { return t.ID }
func idOfColumn(c model.Column) int64   { return c.ID }
func idOfProject(p model.Project) int64 { return p.ID }

// replaceByID overwrites the row with v's id, if it is still cached.
func replaceByID[T any](rows []T, v T, idOf func(T) int64) {
	if i := ordering.IndexOf(rows, idOf(v), idOf); i >= 0 {
		rows[i] = v
	}
}

// revertTask copies back from prev only the fields patch set.
func revertTask(cur, prev model.Task, patch model.TaskPatch) model.Task {
	if patch.Title != nil {
		cur.Title = prev.Title
	}
	if patch.Description != nil {
		cur.Description = prev.Description
	}
	if patch.ColumnID != nil {
		cur.ColumnID = prev.ColumnID
	}
	if patch.Priority != nil {
		cur.Priority = prev.Priority
	}
	if patch.OrderIndex != nil {
		cur.OrderIndex = prev.OrderIndex
	}
	return cur
}

// reinsert appends v unless a row with its id is already cached.
func reinsert[T any](rows []T, v T, idOf func(T) int64) []T {
	if ordering.IndexOf(rows, idOf(v), idOf) >= 0 {
		return rows
	}
	return append(rows, v)
}

func (s *State) taskIndexLocked(id int64) (int, error) {
	i := ordering.IndexOf(s.tasks, id, idOfTask)
	if i < 0 {
		return -1, errs.ErrNotFound
	}
	return i, nil
}

// MutateTask applies patch locally and persists it. The server's row replaces
// the local one on success.
func (s *State) MutateTask(ctx context.Context, id int64, patch model.TaskPatch) error {
	var updated *model.Task
	err := s.mutate(ctx, func() (func(), error) {
		i, err := s.taskIndexLocked(id)
		if err != nil {
			return nil, err
		}
		prev := s.tasks[i]
		s.tasks[i] = patch.Apply(prev)
		return func() {
			if j, err := s.taskIndexLocked(id); err == nil {
				s.tasks[j] = revertTask(s.tasks[j], prev, patch)
			}
		}, nil
	}, func(ctx context.Context) error {
		var err error
		updated, err = s.api.UpdateTask(ctx, id, patch)
		return err
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	replaceByID(s.tasks, *updated, idOfTask)
	return nil
}

// RenameColumn sets a column title.
func (s *State) RenameColumn(ctx context.Context, id int64, title string) error {
	return s.mutate(ctx, func() (func(), error) {
		i := ordering.IndexOf(s.columns, id, idOfColumn)
		if i < 0 {
			return nil, errs.ErrNotFound
		}
		old := s.columns[i].Title
		s.columns[i].Title = title
		return func() {
			if j := ordering.IndexOf(s.columns, id, idOfColumn); j >= 0 {
				s.columns[j].Title = old
			}
		}, nil
	}, func(ctx context.Context) error {
		_, err := s.api.UpdateColumn(ctx, id, model.ColumnPatch{Title: &title})
		return err
	})
}

// RenameProject sets a project name.
func (s *State) RenameProject(ctx context.Context, id int64, name string) error {
	return s.mutate(ctx, func() (func(), error) {
		i := ordering.IndexOf(s.projects, id, idOfProject)
		if i < 0 {
			return nil, errs.ErrNotFound
		}
		old := s.projects[i].Name
		s.projects[i].Name = name
		return func() {
			if j := ordering.IndexOf(s.projects, id, idOfProject); j >= 0 {
				s.projects[j].Name = old
			}
		}, nil
	}, func(ctx context.Context) error {
		_, err := s.api.UpdateProject(ctx, id, model.ProjectPatch{Name: &name})
		return err
	})
}

// DeleteTask removes a task.
func (s *State) DeleteTask(ctx context.Context, id int64) error {
	return s.mutate(ctx, func() (func(), error) {
		i, err := s.taskIndexLocked(id)
		if err != nil {
			return nil, err
		}
		prev := s.tasks[i]
		s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
		return func() { s.tasks = reinsert(s.tasks, prev, idOfTask) }, nil
	}, func(ctx context.Context) error {
		return s.api.DeleteTask(ctx, id)
	})
}

// DeleteColumn removes a column and its tasks.
func (s *State) DeleteColumn(ctx context.Context, id int64) error {
	return s.mutate(ctx, func() (func(), error) {
		i := ordering.IndexOf(s.columns, id, idOfColumn)
		if i < 0 {
			return nil, errs.ErrNotFound
		}
		prev := s.columns[i]
		s.columns = append(s.columns[:i:i], s.columns[i+1:]...)
		var removed []model.Task
		kept := make([]model.Task, 0, len(s.tasks))
		for _, t := range s.tasks {
			if t.ColumnID == id {
				removed = append(removed, t)
			} else {
				kept = append(kept, t)
			}
		}
		s.tasks = kept
		return func() {
			s.columns = reinsert(s.columns, prev, idOfColumn)
			for _, t := range removed {
				s.tasks = reinsert(s.tasks, t, idOfTask)
			}
		}, nil
	}, func(ctx context.Context) error {
		return s.api.DeleteColumn(ctx, id)
	})
}

// DeleteProject removes a project; deleting the selected one clears the board.
func (s *State) DeleteProject(ctx context.Context, id int64) error {
	var wasSelected bool
	err := s.mutate(ctx, func() (func(), error) {
		i := ordering.IndexOf(s.projects, id, idOfProject)
		if i < 0 {
			return nil, errs.ErrNotFound
		}
		prev := s.projects[i]
		s.projects = append(s.projects[:i:i], s.projects[i+1:]...)
		var cols []model.Column
		var tasks []model.Task
		if s.projectID == id {
			wasSelected = true
			cols, tasks = s.columns, s.tasks
			s.columns, s.tasks = nil, nil
		}
		return func() {
			s.projects = reinsert(s.projects, prev, idOfProject)
			for _, c := range cols {
				s.columns = reinsert(s.columns, c, idOfColumn)
			}
			for _, t := range tasks {
				s.tasks = reinsert(s.tasks, t, idOfTask)
			}
		}, nil
	}, func(ctx context.Context) error {
		return s.api.DeleteProject(ctx, id)
	})
	if err == nil && wasSelected {
		s.mu.Lock()
		if s.projectID == id {
			s.projectID = 0
		}
		s.mu.Unlock()
	}
	return err
}

// commit runs fn under the lock unless the cache was closed or re-selected since gen.
func (s *State) commit(gen uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.gen == gen {
		fn()
	}
}

func (s *State) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.gen, nil
}

func (s *State) fail(gen uint64, err error) error {
	s.commit(gen, func() { s.lastErr = err })
	return err
}

// CreateProject creates a project and appends it to the list.
func (s *State) CreateProject(ctx context.Context, name string, description *string) (*model.Project, error) {
	gen, err := s.begin()
	if err != nil {
		return nil, err
	}
	p, _, err := s.api.CreateProject(ctx, name, description)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	s.commit(gen, func() { s.projects = append(s.projects, *p) })
	return p, nil
}

// CreateColumn creates a column in the selected project and appends it.
func (s *State) CreateColumn(ctx context.Context, title, color string) (*model.Column, error) {
	gen, err := s.begin()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	projectID := s.projectID
	s.mu.Unlock()
	if projectID == 0 {
		return nil, fmt.Errorf("%w: no project selected", errs.ErrValidation)
	}
	c, err := s.api.CreateColumn(ctx, projectID, title, color)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	s.commit(gen, func() { s.columns = append(s.columns, *c) })
	return c, nil
}

// CreateTask creates a task at the end of t.ColumnID and appends it.
func (s *State) CreateTask(ctx context.Context, t model.Task) (*model.Task, error) {
	gen, err := s.begin()
	if err != nil {
		return nil, err
	}
	created, err := s.api.CreateTask(ctx, t)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	s.commit(gen, func() { s.tasks = append(s.tasks, *created) })
	return created, nil
}

// UploadAttachment stores r under a task and bumps its cached attachment count.
func (s *State) UploadAttachment(ctx context.Context, taskID int64, fileName string, r io.Reader) (*model.Attachment, error) {
	gen, err := s.begin()
	if err != nil {
		return nil, err
	}
	a, err := s.api.UploadAttachment(ctx, taskID, fileName, r)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	s.commit(gen, func() { s.bumpAttachmentsLocked(taskID, 1) })
	return a, nil
}

// DeleteAttachment removes an attachment and lowers the cached count (never below 0).
func (s *State) DeleteAttachment(ctx context.Context, taskID, id int64) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}
	if err := s.api.DeleteAttachment(ctx, id); err != nil {
		return s.fail(gen, err)
	}
	s.commit(gen, func() { s.bumpAttachmentsLocked(taskID, -1) })
	return nil
}

func (s *State) bumpAttachmentsLocked(taskID int64, delta int) {
	i, err := s.taskIndexLocked(taskID)
	if err != nil {
		return
	}
	n := s.tasks[i].AttachmentCount + delta
	if n < 0 {
		n = 0
	}
	s.tasks[i].AttachmentCount = n
}

// Snapshot returns a sorted copy of the cache.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Projects:  append([]model.Project(nil), s.projects...),
		ProjectID: s.projectID,
		Columns:   append([]model.Column(nil), s.columns...),
		Tasks:     append([]model.Task(nil), s.tasks...),
		Err:       s.lastErr,
	}
	ordering.SortProjects(snap.Projects)
	ordering.SortColumns(snap.Columns)
	ordering.SortTasks(snap.Tasks)
	return snap
}

// TasksIn returns the column's tasks in display order.
func (s *State) TasksIn(columnID int64) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tasksIn(s.tasks, columnID)
}

// TasksIn filters a snapshot's tasks to one column in display order.
func (snap Snapshot) TasksIn(columnID int64) []model.Task {
	return tasksIn(snap.Tasks, columnID)
}

func tasksIn(all []model.Task, columnID int64) []model.Task {
	var out []model.Task
	for _, t := range all {
		if t.ColumnID == columnID {
			out = append(out, t)
		}
	}
	ordering.SortTasks(out)
	return out
}

// Err returns the error of the last failed call, if any.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
