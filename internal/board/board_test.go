package board

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/taskboard/internal/errs"
	"github.com/and161185/taskboard/internal/model"
)

var errDown = errors.New("server down")

// fakeAPI serves canned rows; fail names methods that return errDown.
type fakeAPI struct {
	mu       sync.Mutex
	projects []model.Project
	columns  map[int64][]model.Column
	tasks    map[int64][]model.Task
	fail     map[string]bool
	during   map[string]func() // runs inside the named call, before it returns
	gate     map[int64]chan struct{} // Tasks(projectID) blocks until closed
	seq      int64
	calls    []string
}

var _ API = (*fakeAPI)(nil)

func newFake() *fakeAPI {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeAPI{
		projects: []model.Project{{ID: 1, Name: "One", OrderIndex: 0}, {ID: 2, Name: "Two", OrderIndex: 1}},
		columns: map[int64][]model.Column{
			1: {{ID: 10, ProjectID: 1, Title: "Todo", OrderIndex: 0}, {ID: 11, ProjectID: 1, Title: "Done", OrderIndex: 1}},
			2: {{ID: 20, ProjectID: 2, Title: "Backlog", OrderIndex: 0}},
		},
		tasks: map[int64][]model.Task{
			1: {
				{ID: 100, ColumnID: 10, Title: "B", Priority: 3, OrderIndex: 1, CreatedAt: t0},
				{ID: 101, ColumnID: 10, Title: "A", Priority: 3, OrderIndex: 0, CreatedAt: t0},
				{ID: 102, ColumnID: 11, Title: "C", Priority: 2, OrderIndex: 0, CreatedAt: t0, AttachmentCount: 1},
			},
			2: {{ID: 200, ColumnID: 20, Title: "Z", Priority: 1}},
		},
		fail:   map[string]bool{},
		during: map[string]func(){},
		gate: map[int64]chan struct{}{},
		seq:  1000,
	}
}

func (f *fakeAPI) call(name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	hook, fail := f.during[name], f.fail[name]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return errDown
	}
	return nil
}

func (f *fakeAPI) Projects(context.Context) ([]model.Project, error) {
	if err := f.call("Projects"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Project(nil), f.projects...), nil
}

func (f *fakeAPI) CreateProject(_ context.Context, name string, _ *string) (*model.Project, []model.Column, error) {
	if err := f.call("CreateProject"); err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p := model.Project{ID: f.seq, Name: name, OrderIndex: len(f.projects)}
	f.projects = append(f.projects, p)
	return &p, nil, nil
}

func (f *fakeAPI) UpdateProject(_ context.Context, id int64, patch model.ProjectPatch) (*model.Project, error) {
	if err := f.call("UpdateProject"); err != nil {
		return nil, err
	}
	return &model.Project{ID: id, Name: *patch.Name}, nil
}

func (f *fakeAPI) DeleteProject(context.Context, int64) error { return f.call("DeleteProject") }

func (f *fakeAPI) Columns(_ context.Context, projectID int64) ([]model.Column, error) {
	if err := f.call("Columns"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Column(nil), f.columns[projectID]...), nil
}

func (f *fakeAPI) CreateColumn(_ context.Context, projectID int64, title, _ string) (*model.Column, error) {
	if err := f.call("CreateColumn"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &model.Column{ID: f.seq, ProjectID: projectID, Title: title, OrderIndex: len(f.columns[projectID])}, nil
}

func (f *fakeAPI) UpdateColumn(_ context.Context, id int64, patch model.ColumnPatch) (*model.Column, error) {
	if err := f.call("UpdateColumn"); err != nil {
		return nil, err
	}
	return &model.Column{ID: id, Title: *patch.Title}, nil
}

func (f *fakeAPI) DeleteColumn(context.Context, int64) error { return f.call("DeleteColumn") }

func (f *fakeAPI) Tasks(ctx context.Context, projectID int64) ([]model.Task, error) {
	f.mu.Lock()
	gate := f.gate[projectID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.call("Tasks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Task(nil), f.tasks[projectID]...), nil
}

func (f *fakeAPI) CreateTask(_ context.Context, t model.Task) (*model.Task, error) {
	if err := f.call("CreateTask"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t.ID, t.OrderIndex = f.seq, 99
	return &t, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, id int64, patch model.TaskPatch) (*model.Task, error) {
	if err := f.call("UpdateTask"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ts := range f.tasks {
		for _, t := range ts {
			if t.ID == id {
				out := patch.Apply(t)
				return &out, nil
			}
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAPI) DeleteTask(context.Context, int64) error { return f.call("DeleteTask") }

func (f *fakeAPI) UploadAttachment(_ context.Context, taskID int64, name string, r io.Reader) (*model.Attachment, error) {
	if err := f.call("UploadAttachment"); err != nil {
		return nil, err
	}
	b, _ := io.ReadAll(r)
	return &model.Attachment{ID: 1, TaskID: taskID, FileName: name, FileSize: int64(len(b))}, nil
}

func (f *fakeAPI) DeleteAttachment(context.Context, int64) error { return f.call("DeleteAttachment") }

func selected(t *testing.T, api *fakeAPI, projectID int64) *State {
	t.Helper()
	s := New(api)
	require.NoError(t, s.LoadProjects(context.Background()))
	require.NoError(t, s.Select(context.Background(), projectID))
	return s
}

func taskByID(snap Snapshot, id int64) (model.Task, bool) {
	for _, t := range snap.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

func TestSelect_ReplacesBoardWholesale(t *testing.T) {
	t.Parallel()
	s := selected(t, newFake(), 1)

	snap := s.Snapshot()
	require.Equal(t, int64(1), snap.ProjectID)
	require.Len(t, snap.Projects, 2)
	require.Len(t, snap.Columns, 2)
	require.Len(t, snap.Tasks, 3)

	var titles []string
	for _, tk := range s.TasksIn(10) {
		titles = append(titles, tk.Title)
	}
	require.Equal(t, []string{"A", "B"}, titles)

	require.NoError(t, s.Select(context.Background(), 2))
	snap = s.Snapshot()
	require.Equal(t, int64(2), snap.ProjectID)
	require.Len(t, snap.Columns, 1)
	require.Len(t, snap.Tasks, 1)
	require.Empty(t, snap.TasksIn(10))
}

func TestSelect_FailureClearsAndRecordsError(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)

	api.fail["Columns"] = true
	err := s.Select(context.Background(), 2)
	require.ErrorIs(t, err, errDown)

	snap := s.Snapshot()
	require.Equal(t, int64(2), snap.ProjectID)
	require.Empty(t, snap.Columns, "previous project's data must not linger")
	require.Empty(t, snap.Tasks)
	require.ErrorIs(t, snap.Err, errDown)
}

func TestSelect_StaleResponseIsDropped(t *testing.T) {
	t.Parallel()
	api := newFake()
	gate := make(chan struct{})
	api.gate[1] = gate
	s := New(api)

	done := make(chan error, 1)
	go func() { done <- s.Select(context.Background(), 1) }()

	// wait until the first Select is parked inside Tasks
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		for _, c := range api.calls {
			if c == "Columns" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Select(context.Background(), 2))
	close(gate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	require.Equal(t, int64(2), snap.ProjectID)
	require.Len(t, snap.Tasks, 1)
	require.Equal(t, int64(200), snap.Tasks[0].ID)
}

func TestMutateTask_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)
	api.fail["UpdateTask"] = true

	p := 5
	err := s.MutateTask(context.Background(), 100, model.TaskPatch{Priority: &p})
	require.ErrorIs(t, err, errDown)

	got, ok := taskByID(s.Snapshot(), 100)
	require.True(t, ok)
	require.Equal(t, 3, got.Priority)
	require.ErrorIs(t, s.Err(), errDown)
}

func TestMutateTask_RollbackKeepsConcurrentApply(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)
	api.fail["UpdateTask"] = true
	api.during["UpdateTask"] = func() {
		// a drag lands while the update is in flight: swap A and B
		snap := s.Snapshot()
		for i := range snap.Tasks {
			switch snap.Tasks[i].ID {
			case 100:
				snap.Tasks[i].OrderIndex = 0
			case 101:
				snap.Tasks[i].OrderIndex = 1
			}
		}
		s.ApplyTasks(snap.Tasks)
	}

	p := 5
	require.ErrorIs(t, s.MutateTask(context.Background(), 100, model.TaskPatch{Priority: &p}), errDown)

	b, _ := taskByID(s.Snapshot(), 100)
	a, _ := taskByID(s.Snapshot(), 101)
	require.Equal(t, 3, b.Priority, "patched field rolled back")
	require.Equal(t, 0, b.OrderIndex, "reorder applied meanwhile survives")
	require.Equal(t, 1, a.OrderIndex)
}

func TestRenameColumn_RollbackKeepsConcurrentApply(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)
	api.fail["UpdateColumn"] = true
	api.during["UpdateColumn"] = func() {
		cols := s.Snapshot().Columns
		cols[0].OrderIndex, cols[1].OrderIndex = 1, 0
		s.ApplyColumns(cols)
	}

	require.ErrorIs(t, s.RenameColumn(context.Background(), 10, "Later"), errDown)

	cols := s.Snapshot().Columns
	require.Equal(t, []int64{11, 10}, []int64{cols[0].ID, cols[1].ID})
	require.Equal(t, "Todo", cols[1].Title)
}

func TestDeleteTask_RollbackDoesNotDuplicate(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)
	api.fail["DeleteTask"] = true
	api.during["DeleteTask"] = func() {
		// a reconcile brings the row back before the failure is seen
		require.NoError(t, s.ReconcileAfterReorder(context.Background()))
	}

	require.ErrorIs(t, s.DeleteTask(context.Background(), 101), errDown)
	require.Len(t, s.Snapshot().Tasks, 3)
	_, ok := taskByID(s.Snapshot(), 101)
	require.True(t, ok)
}

func TestMutateTask_AppliesServerRow(t *testing.T) {
	t.Parallel()
	s := selected(t, newFake(), 1)

	title := "renamed"
	require.NoError(t, s.MutateTask(context.Background(), 102, model.TaskPatch{Title: &title}))
	got, _ := taskByID(s.Snapshot(), 102)
	require.Equal(t, "renamed", got.Title)
	require.Equal(t, 1, got.AttachmentCount)

	err := s.MutateTask(context.Background(), 999, model.TaskPatch{Title: &title})
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteColumn_RollbackRestoresTasks(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)

	api.fail["DeleteColumn"] = true
	require.Error(t, s.DeleteColumn(context.Background(), 10))
	require.Len(t, s.Snapshot().Columns, 2)
	require.Len(t, s.TasksIn(10), 2)

	api.fail["DeleteColumn"] = false
	require.NoError(t, s.DeleteColumn(context.Background(), 10))
	snap := s.Snapshot()
	require.Len(t, snap.Columns, 1)
	require.Empty(t, snap.TasksIn(10))
	require.Len(t, snap.Tasks, 1)
}

func TestRenameAndDeleteProject(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)

	api.fail["UpdateProject"] = true
	require.Error(t, s.RenameProject(context.Background(), 2, "Nope"))
	require.Equal(t, "Two", s.Snapshot().Projects[1].Name)

	require.NoError(t, s.RenameColumn(context.Background(), 11, "Shipped"))
	require.Equal(t, "Shipped", s.Snapshot().Columns[1].Title)

	require.NoError(t, s.DeleteProject(context.Background(), 1))
	snap := s.Snapshot()
	require.Equal(t, int64(0), snap.ProjectID)
	require.Len(t, snap.Projects, 1)
	require.Empty(t, snap.Columns)

	// project 2 was never selected, so its tasks are not cached
	require.ErrorIs(t, s.DeleteTask(context.Background(), 200), errs.ErrNotFound)
}

func TestCreate_AppendsReturnedRows(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)
	ctx := context.Background()

	tk, err := s.CreateTask(ctx, model.Task{ColumnID: 11, Title: "new"})
	require.NoError(t, err)
	in := s.TasksIn(11)
	require.Equal(t, tk.ID, in[len(in)-1].ID)

	col, err := s.CreateColumn(ctx, "Review", "")
	require.NoError(t, err)
	require.Equal(t, 2, col.OrderIndex)
	require.Len(t, s.Snapshot().Columns, 3)

	p, err := s.CreateProject(ctx, "Three", nil)
	require.NoError(t, err)
	require.Equal(t, p.ID, s.Snapshot().Projects[2].ID)

	api.fail["CreateTask"] = true
	_, err = s.CreateTask(ctx, model.Task{ColumnID: 11, Title: "x"})
	require.ErrorIs(t, err, errDown)
	require.Len(t, s.TasksIn(11), 2)
}

func TestAttachmentCounts_FloorAtZero(t *testing.T) {
	t.Parallel()
	s := selected(t, newFake(), 1)
	ctx := context.Background()

	_, err := s.UploadAttachment(ctx, 100, "a.txt", strings.NewReader("hi"))
	require.NoError(t, err)
	got, _ := taskByID(s.Snapshot(), 100)
	require.Equal(t, 1, got.AttachmentCount)

	require.NoError(t, s.DeleteAttachment(ctx, 100, 1))
	require.NoError(t, s.DeleteAttachment(ctx, 100, 1))
	got, _ = taskByID(s.Snapshot(), 100)
	require.Equal(t, 0, got.AttachmentCount)
}

func TestReconcileAfterReorder_RefetchesEvenAfterFailure(t *testing.T) {
	t.Parallel()
	api := newFake()
	s := selected(t, api, 1)

	// a local optimistic edit the server never saw
	tasks := s.Snapshot().Tasks
	tasks[0].ColumnID = 11
	s.ApplyTasks(tasks)

	require.NoError(t, s.ReconcileAfterReorder(context.Background()))
	require.Len(t, s.TasksIn(10), 2)
	require.Len(t, s.TasksIn(11), 1)
}

func TestClose_DropsStateAndRejectsCalls(t *testing.T) {
	t.Parallel()
	s := selected(t, newFake(), 1)
	s.Close()

	snap := s.Snapshot()
	require.Empty(t, snap.Projects)
	require.Empty(t, snap.Tasks)
	require.ErrorIs(t, s.Select(context.Background(), 1), ErrClosed)
	require.ErrorIs(t, s.LoadProjects(context.Background()), ErrClosed)
	_, err := s.CreateTask(context.Background(), model.Task{ColumnID: 10, Title: "x"})
	require.ErrorIs(t, err, ErrClosed)
}
