package dnd

import (
	"fmt"
	"math"
	"sort"
)

// Kind tags what is being dragged or dropped on.
type Kind int

const (
	KindProject Kind = iota + 1
	KindColumn
	KindTask
)

func (k Kind) String() string {
	switch k {
	case KindProject:
		return "project"
	case KindColumn:
		return "column"
	case KindTask:
		return "task"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DraggableRef identifies a draggable or droppable board element.
type DraggableRef struct {
	Kind Kind
	ID   int64
}

func (r DraggableRef) String() string { return fmt.Sprintf("%s:%d", r.Kind, r.ID) }

// Point is a pointer position.
type Point struct{ X, Y float64 }

// Rect is an axis-aligned rectangle with its origin at the top-left corner.
type Rect struct{ X, Y, W, H float64 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Intersects reports whether r and o overlap with a positive area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Center returns the midpoint of r.
func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

// Translate returns r shifted by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect { return Rect{r.X + dx, r.Y + dy, r.W, r.H} }

func (r Rect) corners() [4]Point {
	return [4]Point{{r.X, r.Y}, {r.X + r.W, r.Y}, {r.X, r.Y + r.H}, {r.X + r.W, r.Y + r.H}}
}

// cornerDistance is the mean distance between matching corners of a and b.
func cornerDistance(a, b Rect) float64 {
	ca, cb := a.corners(), b.corners()
	var sum float64
	for i := range ca {
		sum += math.Hypot(ca[i].X-cb[i].X, ca[i].Y-cb[i].Y)
	}
	return sum / 4
}

// Droppable is one registered drop target.
type Droppable struct {
	Ref  DraggableRef
	Rect Rect
}

// Layout is the set of droppables measured for the current frame.
type Layout []Droppable

// Rect returns the registered rectangle for ref.
func (l Layout) Rect(ref DraggableRef) (Rect, bool) {
	for _, d := range l {
		if d.Ref == ref {
			return d.Rect, true
		}
	}
	return Rect{}, false
}

func (l Layout) filter(keep func(Droppable) bool) Layout {
	var out Layout
	for _, d := range l {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func ofKind(kinds ...Kind) func(Droppable) bool {
	return func(d Droppable) bool {
		for _, k := range kinds {
			if d.Ref.Kind == k {
				return true
			}
		}
		return false
	}
}

// nearestCorners picks the candidate whose corners are closest to the
// dragged rectangle's corners. Ties keep layout order.
func nearestCorners(active Rect, cands Layout) (DraggableRef, bool) {
	if len(cands) == 0 {
		return DraggableRef{}, false
	}
	sorted := append(Layout(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return cornerDistance(active, sorted[i].Rect) < cornerDistance(active, sorted[j].Rect)
	})
	return sorted[0].Ref, true
}

// Resolve maps the current drag frame to a drop target.
//
// Projects and columns only ever land on their own kind, by nearest corners.
// Tasks prefer what the pointer is over: a task card (nearest corners among
// the cards under the pointer), then a column's empty space. Without a
// pointer hit the dragged rectangle's overlaps decide, a column winning; the
// last resort is nearest corners over every task and column.
func Resolve(kind Kind, active Rect, pointer Point, l Layout) (DraggableRef, bool) {
	switch kind {
	case KindProject, KindColumn:
		return nearestCorners(active, l.filter(ofKind(kind)))
	case KindTask:
	default:
		return DraggableRef{}, false
	}

	cands := l.filter(ofKind(KindTask, KindColumn))
	hits := cands.filter(func(d Droppable) bool { return d.Rect.Contains(pointer) })
	if taskHits := hits.filter(ofKind(KindTask)); len(taskHits) > 0 {
		return nearestCorners(active, taskHits)
	}
	if colHits := hits.filter(ofKind(KindColumn)); len(colHits) > 0 {
		return nearestCorners(active, colHits)
	}

	overlaps := cands.filter(func(d Droppable) bool { return d.Rect.Intersects(active) })
	if colHits := overlaps.filter(ofKind(KindColumn)); len(colHits) > 0 {
		return nearestCorners(active, colHits)
	}
	return nearestCorners(active, cands)
}
