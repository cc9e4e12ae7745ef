package dnd

import (
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/ordering"
)

// PlanProjectMove splices activeID into overID's position. It returns the
// re-indexed project list and the ids in their new order. ok is false when
// either id is unknown or the positions are equal.
func PlanProjectMove(projects []model.Project, activeID, overID int64) (next []model.Project, ids []int64, ok bool) {
	cur := append([]model.Project(nil), projects...)
	ordering.SortProjects(cur)
	idOf := func(p model.Project) int64 { return p.ID }
	from, to := ordering.IndexOf(cur, activeID, idOf), ordering.IndexOf(cur, overID, idOf)
	if from < 0 || to < 0 || from == to {
		return nil, nil, false
	}
	next = ordering.Move(cur, from, to)
	ordering.Dense(next, func(p *model.Project, i int) { p.OrderIndex = i })
	ids = make([]int64, len(next))
	for i, p := range next {
		ids[i] = p.ID
	}
	return next, ids, true
}

// PlanColumnMove splices activeID into overID's position within one project.
// It returns the re-indexed columns and an entry for every column.
func PlanColumnMove(columns []model.Column, activeID, overID int64) (next []model.Column, entries []model.OrderEntry, ok bool) {
	cur := append([]model.Column(nil), columns...)
	ordering.SortColumns(cur)
	idOf := func(c model.Column) int64 { return c.ID }
	from, to := ordering.IndexOf(cur, activeID, idOf), ordering.IndexOf(cur, overID, idOf)
	if from < 0 || to < 0 || from == to {
		return nil, nil, false
	}
	if cur[from].ProjectID != cur[to].ProjectID {
		return nil, nil, false
	}
	next = ordering.Move(cur, from, to)
	ordering.Dense(next, func(c *model.Column, i int) { c.OrderIndex = i })
	entries = make([]model.OrderEntry, len(next))
	for i, c := range next {
		entries[i] = model.OrderEntry{ID: c.ID, OrderIndex: c.OrderIndex}
	}
	return next, entries, true
}

// PlanTaskMove moves activeID onto over, which is a column (append to its
// end) or a task (take that task's position in its column). next is the full
// optimistic task set: tasks outside the destination column untouched plus
// the re-indexed destination. entries cover every destination task. The
// origin column is not re-indexed.
//
// ok is false for a drop on itself, an unknown id, or a move that would
// change nothing.
func PlanTaskMove(tasks []model.Task, activeID int64, over DraggableRef) (next []model.Task, entries []model.OrderEntry, ok bool) {
	idOf := func(t model.Task) int64 { return t.ID }
	ai := ordering.IndexOf(tasks, activeID, idOf)
	if ai < 0 {
		return nil, nil, false
	}
	active := tasks[ai]

	var dest int64
	switch over.Kind {
	case KindColumn:
		dest = over.ID
	case KindTask:
		if over.ID == activeID {
			return nil, nil, false
		}
		oi := ordering.IndexOf(tasks, over.ID, idOf)
		if oi < 0 {
			return nil, nil, false
		}
		dest = tasks[oi].ColumnID
	default:
		return nil, nil, false
	}

	var existing []model.Task
	for _, t := range tasks {
		if t.ColumnID == dest {
			existing = append(existing, t)
		}
	}
	ordering.SortTasks(existing)

	pos := -1
	if over.Kind == KindTask {
		pos = ordering.IndexOf(existing, over.ID, idOf)
	}

	list := make([]model.Task, 0, len(existing)+1)
	for _, t := range existing {
		if t.ID != activeID {
			list = append(list, t)
		}
	}
	if pos < 0 {
		pos = len(list)
	}
	active.ColumnID = dest
	list = ordering.Insert(list, pos, active)
	ordering.Dense(list, func(t *model.Task, i int) { t.OrderIndex = i })

	if sameTasks(existing, list) {
		return nil, nil, false
	}

	next = make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ColumnID != dest && t.ID != activeID {
			next = append(next, t)
		}
	}
	next = append(next, list...)

	entries = make([]model.OrderEntry, len(list))
	for i, t := range list {
		col := t.ColumnID
		entries[i] = model.OrderEntry{ID: t.ID, OrderIndex: t.OrderIndex, ColumnID: &col}
	}
	return next, entries, true
}

// sameTasks reports whether b assigns every task of a the same column and index.
func sameTasks(a, b []model.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].ColumnID != b[i].ColumnID || a[i].OrderIndex != b[i].OrderIndex {
			return false
		}
	}
	return true
}
