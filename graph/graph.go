// Package graph implements the graph engine: descendants, leaves,
// direct-ancestor generation numbers, the priority-queue ancestor walk, the
// pivot (common ancestor) computation used by three-way merge, and
// rename tracking along a history path.
//
// Nothing here holds an in-memory pointer graph: every walk queries
// manifest.Index's PLINK/MLINK tables by rid and materializes lazily.
package graph

import (
	"container/heap"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

// CloseMode filters Descendants/Leaves by the "closed" tag.
type CloseMode int

const (
	CloseAny CloseMode = iota
	CloseOpen
	CloseClosed
)

// Engine answers graph queries against one manifest.Index.
type Engine struct {
	idx *manifest.Index
}

// New returns an Engine backed by idx.
func New(idx *manifest.Index) *Engine {
	return &Engine{idx: idx}
}

func (e *Engine) isClosed(rid store.Rid) bool {
	v, ok := e.idx.EffectiveTag(rid, "closed")
	return ok && v != ""
}

// Descendants performs a same-branch BFS: seed with b, and for
// each popped rid enumerate PLINK children whose effective branch equals
// the parent's (or that are the primary child), pushing each unseen one.
// It returns every visited rid, b included.
func (e *Engine) Descendants(b store.Rid) []store.Rid {
	seen := map[store.Rid]bool{b: true}
	work := []store.Rid{b}
	var out []store.Rid

	for len(work) > 0 {
		r := work[0]
		work = work[1:]
		out = append(out, r)

		branch := e.idx.BranchOf(r)
		for _, c := range e.idx.Children(r) {
			if seen[c] {
				continue
			}
			primaryParent, isPrimaryChild := e.idx.PrimaryParent(c)
			sameBranch := e.idx.BranchOf(c) == branch
			isPrimary := isPrimaryChild && primaryParent == r
			if sameBranch || isPrimary {
				seen[c] = true
				work = append(work, c)
			}
		}
	}
	return out
}

// Leaves returns every check-in reachable from b (descendants, b included)
// that has no same-branch child, filtered by closeMode.
func (e *Engine) Leaves(b store.Rid, closeMode CloseMode) []store.Rid {
	var out []store.Rid
	for _, r := range e.Descendants(b) {
		branch := e.idx.BranchOf(r)
		isLeaf := true
		for _, c := range e.idx.Children(r) {
			if e.idx.BranchOf(c) == branch {
				isLeaf = false
				break
			}
		}
		if !isLeaf {
			continue
		}
		switch closeMode {
		case CloseOpen:
			if e.isClosed(r) {
				continue
			}
		case CloseClosed:
			if !e.isClosed(r) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// DirectAncestor is one entry of the primary-parent chain, labeled with an
// ordinal generation number (0 = start, 1 = its primary parent, ...).
type DirectAncestor struct {
	Rid        store.Rid
	Generation int
}

// DirectAncestors walks PLINK.isprim backward from start.
func (e *Engine) DirectAncestors(start store.Rid) []DirectAncestor {
	var out []DirectAncestor
	cur := start
	gen := 0
	for {
		out = append(out, DirectAncestor{Rid: cur, Generation: gen})
		parent, ok := e.idx.PrimaryParent(cur)
		if !ok {
			break
		}
		cur = parent
		gen++
	}
	return out
}

// ancestorHeapItem is one entry of the ancestor priority queue, keyed on
// event mtime (most recent first).
type ancestorHeapItem struct {
	rid   store.Rid
	mtime int64 // unix nanos; most recent first
}

type ancestorHeap []ancestorHeapItem

func (h ancestorHeap) Len() int            { return len(h) }
func (h ancestorHeap) Less(i, j int) bool  { return h[i].mtime > h[j].mtime }
func (h ancestorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *ancestorHeap) Push(x interface{}) { *h = append(*h, x.(ancestorHeapItem)) }
func (h *ancestorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Ancestors returns up to n ancestors of start (start excluded), expanding
// by all parents (primary and merge), most-recent-event-mtime first.
func (e *Engine) Ancestors(start store.Rid, n int) []store.Rid {
	h := &ancestorHeap{}
	heap.Init(h)
	seen := map[store.Rid]bool{start: true}

	pushParents := func(r store.Rid) {
		for _, p := range e.idx.Plinks(r) {
			if seen[p.Pid] {
				continue
			}
			seen[p.Pid] = true
			mtime, ok := e.idx.EventMtime(p.Pid)
			if !ok {
				mtime = p.Mtime
			}
			heap.Push(h, ancestorHeapItem{rid: p.Pid, mtime: mtime.UnixNano()})
		}
	}

	pushParents(start)
	var out []store.Rid
	for h.Len() > 0 && len(out) < n {
		item := heap.Pop(h).(ancestorHeapItem)
		out = append(out, item.rid)
		pushParents(item.rid)
	}
	return out
}

// Pivot computes the deepest common ancestor of primary and every element
// of secondaries via a simultaneous reverse-BFS from every seed,
// tracking which seeds can reach each visited node; the first node
// reachable from all seeds is a candidate, and among candidates the one
// with maximum event-mtime wins (ties broken by lower rid).
//
// It returns repocore.ErrNotFound if no common ancestor exists.
func (e *Engine) Pivot(primary store.Rid, secondaries ...store.Rid) (store.Rid, error) {
	seeds := append([]store.Rid{primary}, secondaries...)
	n := len(seeds)

	reachFrom := make(map[store.Rid]uint64) // rid -> bitmask of seeds that reach it
	frontier := make([][]store.Rid, n)
	for i, s := range seeds {
		frontier[i] = []store.Rid{s}
		reachFrom[s] |= 1 << uint(i)
	}

	full := uint64(1<<uint(n)) - 1
	var candidates []store.Rid

	for {
		anyWork := false
		for i := range frontier {
			if len(frontier[i]) > 0 {
				anyWork = true
				break
			}
		}
		if !anyWork {
			break
		}

		for i := range frontier {
			var next []store.Rid
			for _, r := range frontier[i] {
				for _, p := range e.idx.Plinks(r) {
					before := reachFrom[p.Pid]
					after := before | (1 << uint(i))
					if after == before {
						continue
					}
					reachFrom[p.Pid] = after
					next = append(next, p.Pid)
					if after == full && before != full {
						candidates = append(candidates, p.Pid)
					}
				}
			}
			frontier[i] = next
		}

		if len(candidates) > 0 {
			break
		}
	}

	if len(candidates) == 0 {
		return 0, repocore.NewError("graph.Pivot", repocore.KindNotFound, errNoPivot{})
	}

	best := candidates[0]
	bestMtime, _ := e.idx.EventMtime(best)
	for _, c := range candidates[1:] {
		mt, _ := e.idx.EventMtime(c)
		if mt.After(bestMtime) || (mt.Equal(bestMtime) && c < best) {
			best, bestMtime = c, mt
		}
	}
	return best, nil
}

type errNoPivot struct{}

func (errNoPivot) Error() string { return "no common ancestor reachable from all seeds" }

// RenameEdge is one (old_fnid, new_fnid) pair discovered between p and c.
type RenameEdge struct {
	OldFnid, NewFnid int
}

// FindFilenameChanges scans MLINK rows with Pfnid != Fnid along the
// primary-parent path from c back to p, returning rename edges in
// old-to-new order (oldest rename first). Renames are transitive: if a
// path renamed twice along the walk, both edges are reported.
func (e *Engine) FindFilenameChanges(p, c store.Rid) []RenameEdge {
	var path []store.Rid
	cur := c
	for {
		path = append(path, cur)
		if cur == p {
			break
		}
		parent, ok := e.idx.PrimaryParent(cur)
		if !ok {
			break
		}
		cur = parent
	}

	var edges []RenameEdge
	for i := len(path) - 1; i >= 0; i-- {
		for _, l := range e.idx.MlinksFor(path[i]) {
			if l.Pfnid != l.Fnid {
				edges = append(edges, RenameEdge{OldFnid: l.Pfnid, NewFnid: l.Fnid})
			}
		}
	}
	return edges
}
