// Package tree turns a flat task list into an ordered, leveled forest.
package tree

import (
	"slices"

	"tasktree/internal/service"
)

// Organize returns the tasks in pre-order with Level set to the depth.
//
// Tasks whose parent is absent from the input (or is the task itself) are
// roots. Roots are ordered by CompareRoots; children keep their input order.
// The input slice is not modified.
//
// Parent cycles never reach a root. They are emitted after the regular
// forest, each entered at its first member in input order, which becomes a
// depth-0 root for whatever it reaches. Organize always terminates.
func Organize(nodes []service.Task) []service.Task {
	if len(nodes) == 0 {
		return nil
	}

	// Arena indexed by position; first occurrence of an ID wins.
	arena := make([]service.Task, 0, len(nodes))
	indexByID := make(map[int64]int, len(nodes))
	for _, n := range nodes {
		if _, dup := indexByID[n.ID]; dup {
			continue
		}
		indexByID[n.ID] = len(arena)
		arena = append(arena, n)
	}

	var roots []int
	children := make(map[int64][]int, len(arena))
	for i, n := range arena {
		if n.ParentID != nil && *n.ParentID != n.ID {
			if _, ok := indexByID[*n.ParentID]; ok {
				children[*n.ParentID] = append(children[*n.ParentID], i)
				continue
			}
		}
		roots = append(roots, i)
	}

	slices.SortStableFunc(roots, func(a, b int) int {
		return CompareRoots(arena[a], arena[b])
	})

	out := make([]service.Task, 0, len(arena))
	visited := make([]bool, len(arena))

	type frame struct {
		index int
		depth int
	}
	walk := func(root int) {
		stack := []frame{{index: root}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[f.index] {
				continue
			}
			visited[f.index] = true

			n := arena[f.index]
			n.Level = f.depth
			out = append(out, n)

			kids := children[n.ID]
			for k := len(kids) - 1; k >= 0; k-- {
				if !visited[kids[k]] {
					stack = append(stack, frame{index: kids[k], depth: f.depth + 1})
				}
			}
		}
	}

	for _, r := range roots {
		walk(r)
	}

	// Whatever is left hangs off a parent cycle. Enter each cycle at its
	// first member in input order so tails stay under their parents.
	parentOf := func(i int) int {
		n := arena[i]
		if n.ParentID == nil || *n.ParentID == n.ID {
			return -1
		}
		if p, ok := indexByID[*n.ParentID]; ok {
			return p
		}
		return -1
	}
	onCycle := func(i int) bool {
		cur := i
		for range arena {
			cur = parentOf(cur)
			if cur < 0 {
				return false
			}
			if cur == i {
				return true
			}
		}
		return false
	}
	for i := range arena {
		if !visited[i] && onCycle(i) {
			walk(i)
		}
	}
	for i := range arena {
		if !visited[i] {
			walk(i)
		}
	}

	return out
}

// Subtree returns the cascading delete closure of id: id itself followed by
// every descendant, read off an Organize result. Returns nil if id is not
// in ordered.
func Subtree(ordered []service.Task, id int64) []int64 {
	start := slices.IndexFunc(ordered, func(t service.Task) bool { return t.ID == id })
	if start < 0 {
		return nil
	}

	ids := []int64{id}
	level := ordered[start].Level
	for _, t := range ordered[start+1:] {
		if t.Level <= level {
			break
		}
		ids = append(ids, t.ID)
	}
	return ids
}

// IsDescendant reports whether candidate lies in the subtree rooted at id.
func IsDescendant(ordered []service.Task, id, candidate int64) bool {
	return slices.Contains(Subtree(ordered, id), candidate)
}
