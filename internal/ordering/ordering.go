// Package ordering holds the pure list arithmetic behind board ordering:
// single-element moves, dense re-indexing and the canonical sort with tie breaks.
// It is shared by the server-side reorder service and the client drag engine.
package ordering

import (
	"sort"

	"github.com/and161185/taskboard/internal/model"
)

// Move returns a copy of s with the element at from removed and re-inserted at to.
// Out-of-range indexes return an unchanged copy.
func Move[T any](s []T, from, to int) []T {
	out := append([]T(nil), s...)
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) || from == to {
		return out
	}
	v := out[from]
	out = append(out[:from], out[from+1:]...)
	return Insert(out, to, v)
}

// Insert returns a copy of s with v placed at i. i is clamped to [0, len(s)].
func Insert[T any](s []T, i int, v T) []T {
	if i < 0 {
		i = 0
	}
	if i > len(s) {
		i = len(s)
	}
	out := make([]T, 0, len(s)+1)
	out = append(out, s[:i]...)
	out = append(out, v)
	return append(out, s[i:]...)
}

// Dense assigns 0..len(s)-1 in slice order through set.
func Dense[T any](s []T, set func(*T, int)) {
	for i := range s {
		set(&s[i], i)
	}
}

// IndexOf returns the position of the first element whose id matches, or -1.
func IndexOf[T any](s []T, id int64, idOf func(T) int64) int {
	for i := range s {
		if idOf(s[i]) == id {
			return i
		}
	}
	return -1
}

// SortProjects orders projects by order_index, then created_at, then id.
func SortProjects(ps []model.Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		return less(ps[i].OrderIndex, ps[j].OrderIndex, ps[i].CreatedAt.UnixNano(), ps[j].CreatedAt.UnixNano(), ps[i].ID, ps[j].ID)
	})
}

// SortColumns orders columns by order_index, then created_at, then id.
func SortColumns(cs []model.Column) {
	sort.SliceStable(cs, func(i, j int) bool {
		return less(cs[i].OrderIndex, cs[j].OrderIndex, cs[i].CreatedAt.UnixNano(), cs[j].CreatedAt.UnixNano(), cs[i].ID, cs[j].ID)
	})
}

// SortTasks orders tasks by order_index, then created_at, then id.
func SortTasks(ts []model.Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		return less(ts[i].OrderIndex, ts[j].OrderIndex, ts[i].CreatedAt.UnixNano(), ts[j].CreatedAt.UnixNano(), ts[i].ID, ts[j].ID)
	})
}

func less(oa, ob int, ca, cb int64, ia, ib int64) bool {
	if oa != ob {
		return oa < ob
	}
	if ca != cb {
		return ca < cb
	}
	return ia < ib
}

// EntriesFromIDs turns an ordered id list into dense entries (position implies index).
func EntriesFromIDs(ids []int64) []model.OrderEntry {
	out := make([]model.OrderEntry, len(ids))
	for i, id := range ids {
		out[i] = model.OrderEntry{ID: id, OrderIndex: i}
	}
	return out
}

// Normalize rewrites entries to dense 0..N-1 within each container returned by
// containerOf, keeping the caller's relative order (stable on OrderIndex, then
// input position). The input slice is not modified.
func Normalize(entries []model.OrderEntry, containerOf func(model.OrderEntry) int64) []model.OrderEntry {
	out := append([]model.OrderEntry(nil), entries...)
	groups := map[int64][]int{}
	var keys []int64
	for i, e := range out {
		k := containerOf(e)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	for _, k := range keys {
		idx := groups[k]
		sort.SliceStable(idx, func(a, b int) bool { return out[idx[a]].OrderIndex < out[idx[b]].OrderIndex })
		// idx is a permutation of positions; read all values before writing.
		vals := make([]model.OrderEntry, len(idx))
		for n, p := range idx {
			vals[n] = out[p]
			vals[n].OrderIndex = n
		}
		pos := append([]int(nil), idx...)
		sort.Ints(pos)
		for n, p := range pos {
			out[p] = vals[n]
		}
	}
	return out
}
