package dnd

import (
	"context"
	"errors"

	"github.com/and161185/taskboard/internal/board"
)

// Synthetic board geometry: project tabs in a strip along the top, columns
// side by side below them, task cards stacked under each column header.
const (
	tabW, tabH     = 160, 40
	colTop         = 60
	colW, colGap   = 300, 20
	headerH        = 50
	cardH, cardGap = 60, 10
	cardInset      = 10
	footerH        = 80 // empty space below the last card
)

// BoardLayout measures every project tab, column and task of snap on a fixed grid.
func BoardLayout(snap board.Snapshot) Layout {
	var l Layout
	for i, p := range snap.Projects {
		l = append(l, Droppable{
			Ref:  DraggableRef{KindProject, p.ID},
			Rect: Rect{X: float64(i * (tabW + 10)), Y: 0, W: tabW, H: tabH},
		})
	}
	for i, c := range snap.Columns {
		x := float64(i * (colW + colGap))
		tasks := snap.TasksIn(c.ID)
		h := float64(headerH + len(tasks)*(cardH+cardGap) + footerH)
		l = append(l, Droppable{Ref: DraggableRef{KindColumn, c.ID}, Rect: Rect{X: x, Y: colTop, W: colW, H: h}})
		for k, t := range tasks {
			l = append(l, Droppable{
				Ref: DraggableRef{KindTask, t.ID},
				Rect: Rect{
					X: x + cardInset,
					Y: float64(colTop + headerH + k*(cardH+cardGap)),
					W: colW - 2*cardInset,
					H: cardH,
				},
			})
		}
	}
	return l
}

// DropPoint is where a pointer aims to drop onto ref: the middle of a card or
// tab, or the empty footer of a column.
func (l Layout) DropPoint(ref DraggableRef) (Point, bool) {
	r, ok := l.Rect(ref)
	if !ok {
		return Point{}, false
	}
	if ref.Kind == KindColumn {
		return Point{X: r.X + r.W/2, Y: r.Y + r.H - footerH/2}, true
	}
	return r.Center(), true
}

// ErrNotInLayout is returned by DragTo when either end is not measured.
var ErrNotInLayout = errors.New("dnd: element not in layout")

// DragTo replays a straight-line gesture from the middle of active to
// target over frames Move events and drops it there. Tasks aim at
// DropPoint; projects and columns aim at the target's middle.
func (e *Engine) DragTo(ctx context.Context, active, target DraggableRef, l Layout, frames int) (Outcome, error) {
	from, ok := l.Rect(active)
	if !ok {
		return Outcome{}, ErrNotInLayout
	}
	var to Point
	if active.Kind == KindTask {
		to, ok = l.DropPoint(target)
	} else {
		var r Rect
		r, ok = l.Rect(target)
		to = r.Center()
	}
	if !ok {
		return Outcome{}, ErrNotInLayout
	}

	start := from.Center()
	if err := e.Start(active, start, l); err != nil {
		return Outcome{}, err
	}
	if frames < 1 {
		frames = 1
	}
	for i := 1; i <= frames; i++ {
		f := float64(i) / float64(frames)
		if _, _, err := e.Move(Point{start.X + (to.X-start.X)*f, start.Y + (to.Y-start.Y)*f}); err != nil {
			return Outcome{}, err
		}
	}
	return e.Drop(ctx, to)
}
