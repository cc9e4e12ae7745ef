// Package dnd turns drag gestures over the board into optimistic cache
// updates plus one persisted reorder batch.
package dnd

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/board"
	"github.com/and161185/taskboard/internal/model"
)

var (
	// ErrDragInProgress is returned by Start while another gesture is active.
	ErrDragInProgress = errors.New("dnd: drag in progress")
	// ErrNotDragging is returned by Move and Drop when no gesture is active.
	ErrNotDragging = errors.New("dnd: not dragging")
	// ErrUnknownKind is returned by Start for a ref without a valid kind.
	ErrUnknownKind = errors.New("dnd: unknown kind")
)

// Cache is the client cache the engine reads and optimistically writes.
type Cache interface {
	Snapshot() board.Snapshot
	ApplyProjects(full []model.Project)
	ApplyColumns(full []model.Column)
	ApplyTasks(full []model.Task)
	ReconcileAfterReorder(ctx context.Context) error
}

var _ Cache = (*board.State)(nil)

// Persister writes reorder batches to the server.
type Persister interface {
	ReorderProjects(ctx context.Context, orderedIDs []int64) (int64, error)
	ReorderColumns(ctx context.Context, entries []model.OrderEntry) (int64, error)
	ReorderTasks(ctx context.Context, entries []model.OrderEntry) (int64, error)
}

// Outcome describes what a drop did.
type Outcome struct {
	Active  DraggableRef
	Target  DraggableRef
	Applied bool // false for a no-op drop: nothing cached, nothing sent

	ProjectIDs []int64            // project drags
	Entries    []model.OrderEntry // column and task drags
	Changed    int64              // rows the server reported changed

	PersistErr   error
	ReconcileErr error
}

// Engine tracks one drag gesture at a time.
type Engine struct {
	cache Cache
	api   Persister
	log   *zap.Logger

	mu       sync.Mutex
	dragging bool
	active   DraggableRef
	start    Point
	origin   Rect // dragged element's rectangle at Start
	layout   Layout
	over     DraggableRef
	hasOver  bool
}

// NewEngine wires an engine to a cache and the server.
func NewEngine(cache Cache, api Persister, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cache: cache, api: api, log: log}
}

// Start begins dragging ref from pointer position at. The dragged rectangle
// is taken from layout; an unregistered ref drags a point.
func (e *Engine) Start(ref DraggableRef, at Point, layout Layout) error {
	if ref.Kind < KindProject || ref.Kind > KindTask {
		return ErrUnknownKind
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dragging {
		return ErrDragInProgress
	}
	r, ok := layout.Rect(ref)
	if !ok {
		r = Rect{X: at.X, Y: at.Y}
	}
	e.dragging, e.active, e.start, e.origin, e.layout = true, ref, at, r, layout
	e.over, e.hasOver = DraggableRef{}, false
	return nil
}

// Move processes one pointer frame and returns the highlighted target.
func (e *Engine) Move(p Point) (DraggableRef, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dragging {
		return DraggableRef{}, false, ErrNotDragging
	}
	e.over, e.hasOver = e.resolveLocked(p)
	return e.over, e.hasOver, nil
}

func (e *Engine) resolveLocked(p Point) (DraggableRef, bool) {
	rect := e.origin.Translate(p.X-e.start.X, p.Y-e.start.Y)
	return Resolve(e.active.Kind, rect, p, e.layout)
}

// Over returns the target highlighted by the last Move.
func (e *Engine) Over() (DraggableRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.over, e.dragging && e.hasOver
}

// Active returns the element being dragged.
func (e *Engine) Active() (DraggableRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.dragging
}

// Cancel abandons the gesture without touching the cache.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.dragging, e.hasOver = false, false
	e.mu.Unlock()
}

// Drop ends the gesture at p. A resolvable drop is applied to the cache at
// once, then persisted, then the cache is re-fetched whether or not the
// persist succeeded. Failures are reported in the Outcome, not as an error.
func (e *Engine) Drop(ctx context.Context, p Point) (Outcome, error) {
	e.mu.Lock()
	if !e.dragging {
		e.mu.Unlock()
		return Outcome{}, ErrNotDragging
	}
	active := e.active
	target, ok := e.resolveLocked(p)
	e.dragging, e.hasOver = false, false
	e.mu.Unlock()

	out := Outcome{Active: active, Target: target}
	if !ok || target == active {
		return out, nil
	}

	snap := e.cache.Snapshot()
	var persist func(context.Context) (int64, error)
	switch active.Kind {
	case KindProject:
		next, ids, ok := PlanProjectMove(snap.Projects, active.ID, target.ID)
		if !ok {
			return out, nil
		}
		e.cache.ApplyProjects(next)
		out.ProjectIDs = ids
		persist = func(ctx context.Context) (int64, error) { return e.api.ReorderProjects(ctx, ids) }
	case KindColumn:
		next, entries, ok := PlanColumnMove(snap.Columns, active.ID, target.ID)
		if !ok {
			return out, nil
		}
		e.cache.ApplyColumns(next)
		out.Entries = entries
		persist = func(ctx context.Context) (int64, error) { return e.api.ReorderColumns(ctx, entries) }
	case KindTask:
		next, entries, ok := PlanTaskMove(snap.Tasks, active.ID, target)
		if !ok {
			return out, nil
		}
		e.cache.ApplyTasks(next)
		out.Entries = entries
		persist = func(ctx context.Context) (int64, error) { return e.api.ReorderTasks(ctx, entries) }
	}
	out.Applied = true

	out.Changed, out.PersistErr = persist(ctx)
	if out.PersistErr != nil {
		e.log.Warn("reorder not persisted, reverting to server state",
			zap.Stringer("active", active), zap.Stringer("target", target), zap.Error(out.PersistErr))
	}
	if out.ReconcileErr = e.cache.ReconcileAfterReorder(ctx); out.ReconcileErr != nil {
		e.log.Warn("re-fetch after reorder failed", zap.Error(out.ReconcileErr))
	}
	return out, nil
}
