// Package memory is an in-process implementation of the repository interfaces.
// It mirrors the PostgreSQL semantics (append on create, cascading deletes,
// soft-fail batch writes) and backs the dev server mode and end-to-end tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/ordering"
	"github.com/and161185/taskboard/internal/repository"
)

// Store holds every table behind one mutex.
type Store struct {
	mu          sync.Mutex
	seq         int64
	now         func() time.Time
	users       map[int64]model.User
	projects    map[int64]model.Project
	columns     map[int64]model.Column
	tasks       map[int64]model.Task
	attachments map[int64]model.Attachment
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:         time.Now,
		users:       map[int64]model.User{},
		projects:    map[int64]model.Project{},
		columns:     map[int64]model.Column{},
		tasks:       map[int64]model.Task{},
		attachments: map[int64]model.Attachment{},
	}
}

// Counts reports row totals per table.
type Counts struct{ Projects, Columns, Tasks, Attachments int }

// Counts returns the current row totals.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{len(s.projects), len(s.columns), len(s.tasks), len(s.attachments)}
}

func (s *Store) Users() *Users             { return &Users{s} }
func (s *Store) Projects() *Projects       { return &Projects{s} }
func (s *Store) Columns() *Columns         { return &Columns{s} }
func (s *Store) Tasks() *Tasks             { return &Tasks{s} }
func (s *Store) Attachments() *Attachments { return &Attachments{s} }

// next returns a fresh id and a strictly increasing timestamp; callers hold mu.
func (s *Store) next() (int64, time.Time) {
	s.seq++
	return s.seq, s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

// Users implements repository.UserRepository.
type Users struct{ s *Store }

var _ repository.UserRepository = (*Users)(nil)

func (r *Users) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.Username == u.Username {
			return errs.ErrAlreadyExists
		}
	}
	u.ID, u.CreatedAt = r.s.next()
	r.s.users[u.ID] = *u
	return nil
}

func (r *Users) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

// Projects implements repository.ProjectRepository.
type Projects struct{ s *Store }

var _ repository.ProjectRepository = (*Projects)(nil)

func (r *Projects) ListByOwner(_ context.Context, ownerID int64) ([]model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Project, 0)
	for _, p := range r.s.projects {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	ordering.SortProjects(out)
	return out, nil
}

func (r *Projects) GetByID(_ context.Context, id int64) (*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (r *Projects) Create(_ context.Context, p *model.Project, seed []string, color string) ([]model.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, x := range r.s.projects {
		if x.OwnerID == p.OwnerID {
			n++
		}
	}
	p.ID, p.CreatedAt = r.s.next()
	p.OrderIndex = n
	r.s.projects[p.ID] = *p

	cols := make([]model.Column, 0, len(seed))
	for i, title := range seed {
		c := model.Column{ProjectID: p.ID, Title: title, Color: color, OrderIndex: i}
		c.ID, c.CreatedAt = r.s.next()
		r.s.columns[c.ID] = c
		cols = append(cols, c)
	}
	return cols, nil
}

func (r *Projects) Update(_ context.Context, id, ownerID int64, patch model.ProjectPatch) (int64, error) {
	if patch.Empty() {
		return 0, errs.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok || p.OwnerID != ownerID {
		return 0, nil
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		d := *patch.Description
		p.Description = &d
	}
	r.s.projects[id] = p
	return 1, nil
}

func (r *Projects) Delete(_ context.Context, id, ownerID int64) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, errs.ErrNotFound
	}
	var keys []string
	for cid, c := range r.s.columns {
		if c.ProjectID == id {
			keys = append(keys, r.s.deleteColumnLocked(cid)...)
		}
	}
	delete(r.s.projects, id)
	return keys, nil
}

func (r *Projects) BatchSetOrder(_ context.Context, ownerID int64, entries []model.OrderEntry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range entries {
		p, ok := r.s.projects[e.ID]
		if !ok || p.OwnerID != ownerID {
			continue
		}
		p.OrderIndex = e.OrderIndex
		r.s.projects[e.ID] = p
		n++
	}
	return n, nil
}

// Columns implements repository.ColumnRepository.
type Columns struct{ s *Store }

var _ repository.ColumnRepository = (*Columns)(nil)

func (r *Columns) ListByProject(_ context.Context, projectID int64) ([]model.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Column, 0)
	for _, c := range r.s.columns {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	ordering.SortColumns(out)
	return out, nil
}

func (r *Columns) GetByID(_ context.Context, id int64) (*model.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.columns[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &c, nil
}

func (r *Columns) Create(_ context.Context, c *model.Column) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[c.ProjectID]; !ok {
		return errs.ErrNotFound
	}
	n := 0
	for _, x := range r.s.columns {
		if x.ProjectID == c.ProjectID {
			n++
		}
	}
	c.ID, c.CreatedAt = r.s.next()
	c.OrderIndex = n
	r.s.columns[c.ID] = *c
	return nil
}

func (r *Columns) Update(_ context.Context, id int64, patch model.ColumnPatch) (int64, error) {
	if patch.Empty() {
		return 0, errs.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.columns[id]
	if !ok {
		return 0, nil
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	r.s.columns[id] = c
	return 1, nil
}

func (r *Columns) Delete(_ context.Context, id int64) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.columns[id]; !ok {
		return nil, errs.ErrNotFound
	}
	return r.s.deleteColumnLocked(id), nil
}

func (r *Columns) BatchSetOrder(_ context.Context, entries []model.OrderEntry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range entries {
		c, ok := r.s.columns[e.ID]
		if !ok {
			continue
		}
		c.OrderIndex = e.OrderIndex
		r.s.columns[e.ID] = c
		n++
	}
	return n, nil
}

func (r *Columns) Scopes(_ context.Context, ids []int64) (map[int64]repository.Scope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]repository.Scope, len(ids))
	for _, id := range ids {
		c, ok := r.s.columns[id]
		if !ok {
			continue
		}
		out[id] = repository.Scope{ParentID: c.ProjectID, OwnerID: r.s.projects[c.ProjectID].OwnerID}
	}
	return out, nil
}

// Tasks implements repository.TaskRepository.
type Tasks struct{ s *Store }

var _ repository.TaskRepository = (*Tasks)(nil)

func (r *Tasks) ListByProject(_ context.Context, projectID int64) ([]model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Task, 0)
	for _, t := range r.s.tasks {
		if r.s.columns[t.ColumnID].ProjectID == projectID {
			out = append(out, r.s.withCountLocked(t))
		}
	}
	ordering.SortTasks(out)
	return out, nil
}

func (r *Tasks) GetByID(_ context.Context, id int64) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	t = r.s.withCountLocked(t)
	return &t, nil
}

func (r *Tasks) Create(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.columns[t.ColumnID]; !ok {
		return errs.ErrNotFound
	}
	n := 0
	for _, x := range r.s.tasks {
		if x.ColumnID == t.ColumnID {
			n++
		}
	}
	t.ID, t.CreatedAt = r.s.next()
	t.OrderIndex = n
	t.AttachmentCount = 0
	r.s.tasks[t.ID] = *t
	return nil
}

func (r *Tasks) Update(_ context.Context, id int64, patch model.TaskPatch) (int64, error) {
	if patch.Empty() {
		return 0, errs.ErrValidation
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return 0, nil
	}
	if patch.ColumnID != nil {
		if _, ok := r.s.columns[*patch.ColumnID]; !ok {
			return 0, errs.ErrValidation
		}
	}
	r.s.tasks[id] = patch.Apply(t)
	return 1, nil
}

func (r *Tasks) Delete(_ context.Context, id int64) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return nil, errs.ErrNotFound
	}
	return r.s.deleteTaskLocked(id), nil
}

// BatchSetOrder validates every destination column before writing so the batch stays all-or-nothing.
func (r *Tasks) BatchSetOrder(_ context.Context, entries []model.OrderEntry) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range entries {
		if e.ColumnID == nil {
			continue
		}
		if _, ok := r.s.tasks[e.ID]; !ok {
			continue
		}
		if _, ok := r.s.columns[*e.ColumnID]; !ok {
			return 0, errs.ErrValidation
		}
	}
	var n int64
	for _, e := range entries {
		t, ok := r.s.tasks[e.ID]
		if !ok {
			continue
		}
		t.OrderIndex = e.OrderIndex
		if e.ColumnID != nil {
			t.ColumnID = *e.ColumnID
		}
		r.s.tasks[e.ID] = t
		n++
	}
	return n, nil
}

func (r *Tasks) Scopes(_ context.Context, ids []int64) (map[int64]repository.Scope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int64]repository.Scope, len(ids))
	for _, id := range ids {
		t, ok := r.s.tasks[id]
		if !ok {
			continue
		}
		out[id] = repository.Scope{ParentID: t.ColumnID, OwnerID: r.s.ownerOfColumnLocked(t.ColumnID)}
	}
	return out, nil
}

// Attachments implements repository.AttachmentRepository.
type Attachments struct{ s *Store }

var _ repository.AttachmentRepository = (*Attachments)(nil)

func (r *Attachments) ListByTask(_ context.Context, taskID int64) ([]model.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Attachment, 0)
	for _, a := range r.s.attachments {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	// ids grow with creation time
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Attachments) GetByID(_ context.Context, id int64) (*model.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attachments[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (r *Attachments) Create(_ context.Context, a *model.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[a.TaskID]; !ok {
		return errs.ErrNotFound
	}
	a.ID, a.CreatedAt = r.s.next()
	r.s.attachments[a.ID] = *a
	return nil
}

func (r *Attachments) Delete(_ context.Context, id int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.attachments[id]; !ok {
		return 0, nil
	}
	delete(r.s.attachments, id)
	return 1, nil
}

func (r *Attachments) Scope(_ context.Context, id int64) (repository.Scope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attachments[id]
	if !ok {
		return repository.Scope{}, errs.ErrNotFound
	}
	return repository.Scope{ParentID: a.TaskID, OwnerID: r.s.ownerOfColumnLocked(r.s.tasks[a.TaskID].ColumnID)}, nil
}

func (s *Store) ownerOfColumnLocked(columnID int64) int64 {
	return s.projects[s.columns[columnID].ProjectID].OwnerID
}

func (s *Store) withCountLocked(t model.Task) model.Task {
	t.AttachmentCount = 0
	for _, a := range s.attachments {
		if a.TaskID == t.ID {
			t.AttachmentCount++
		}
	}
	return t
}

func (s *Store) deleteColumnLocked(id int64) []string {
	var keys []string
	for tid, t := range s.tasks {
		if t.ColumnID == id {
			keys = append(keys, s.deleteTaskLocked(tid)...)
		}
	}
	delete(s.columns, id)
	return keys
}

func (s *Store) deleteTaskLocked(id int64) []string {
	var keys []string
	for aid, a := range s.attachments {
		if a.TaskID == id {
			keys = append(keys, a.StorageKey)
			delete(s.attachments, aid)
		}
	}
	delete(s.tasks, id)
	return keys
}
