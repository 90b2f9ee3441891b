// Package index implements the topological/ancestry index of spec §4.3
// (C4): an in-memory structure built incrementally from commits, keyed by
// commit-id and change-id, answering ancestry and topological-order
// queries without re-walking the object store each time. The frontier
// exploration in WalkRevs/WalkGraph uses a binary heap ordered by
// generation the way the teacher's commitTopoOrderIterator explores by
// commit time (modules/zeta/object/commit_walker_topo_order.go), adapted
// from a live object-store walk to a walk over already-indexed positions.
package index

import (
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
)

// Entry is one indexed commit (spec §4.3 "entries carry CommitId, ChangeId,
// parent positions").
type Entry struct {
	CommitID        oid.CommitID
	ChangeID        oid.ChangeID
	Position        uint32
	Generation      uint32
	ParentPositions []uint32
}

// Index is the in-memory ancestry/topological structure. Positions are
// assigned in insertion order and only ever increase, so a straightforward
// backward BFS from a descendant's position can prune any frontier node
// whose position has dropped below the target: parents are always
// inserted (and thus positioned) before their children, so ancestor
// positions never exceed descendant positions.
type Index struct {
	byCommit  map[oid.CommitID]*Entry
	byChange  map[oid.ChangeID][]oid.CommitID
	entries   []*Entry // ordered by Position
	nextPos   uint32
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byCommit: make(map[oid.CommitID]*Entry),
		byChange: make(map[oid.ChangeID][]oid.CommitID),
	}
}

// Add inserts a commit. Its parents must already be indexed (callers add
// commits in topological, parents-first order, e.g. while replaying an
// operation's ancestry or loading a RepoLoader's index).
func (idx *Index) Add(c *object.Commit) error {
	if _, ok := idx.byCommit[c.ID]; ok {
		return nil // idempotent
	}
	var parentPositions []uint32
	var generation uint32
	for _, p := range c.Parents {
		pe, ok := idx.byCommit[p]
		if !ok {
			return errs.NewNotFound("commit (index parent)", p.String())
		}
		parentPositions = append(parentPositions, pe.Position)
		if pe.Generation+1 > generation {
			generation = pe.Generation + 1
		}
	}
	e := &Entry{
		CommitID:        c.ID,
		ChangeID:        c.ChangeID,
		Position:        idx.nextPos,
		Generation:      generation,
		ParentPositions: parentPositions,
	}
	idx.nextPos++
	idx.byCommit[c.ID] = e
	idx.entries = append(idx.entries, e)
	idx.byChange[c.ChangeID] = append(idx.byChange[c.ChangeID], c.ID)
	return nil
}

// Clone returns an independent copy, so a transaction can extend its own
// index without mutating the ReadonlyRepo it started from (spec §4.5
// "a mutable index (incrementally extended)").
func (idx *Index) Clone() *Index {
	c := &Index{
		byCommit: make(map[oid.CommitID]*Entry, len(idx.byCommit)),
		byChange: make(map[oid.ChangeID][]oid.CommitID, len(idx.byChange)),
		entries:  make([]*Entry, len(idx.entries)),
		nextPos:  idx.nextPos,
	}
	for i, e := range idx.entries {
		ce := *e
		ce.ParentPositions = append([]uint32(nil), e.ParentPositions...)
		c.entries[i] = &ce
		c.byCommit[ce.CommitID] = &ce
	}
	for k, v := range idx.byChange {
		c.byChange[k] = append([]oid.CommitID(nil), v...)
	}
	return c
}

// CommitIDAt returns the commit id stored at a given topological position,
// used by callers (e.g. pkg/annotate) that hold a WalkRevs parent position
// and need the actual id to fetch the commit.
func (idx *Index) CommitIDAt(pos uint32) oid.CommitID {
	return idx.entries[pos].CommitID
}

// HasID reports whether id is indexed.
func (idx *Index) HasID(id oid.CommitID) bool {
	_, ok := idx.byCommit[id]
	return ok
}

// GetPosition returns id's insertion-order position.
func (idx *Index) GetPosition(id oid.CommitID) (uint32, bool) {
	e, ok := idx.byCommit[id]
	if !ok {
		return 0, false
	}
	return e.Position, true
}

// ChangeCommits returns every commit sharing a change-id, its evolution
// history (spec §3 "multiple commits may share a change-id").
func (idx *Index) ChangeCommits(id oid.ChangeID) []oid.CommitID {
	return append([]oid.CommitID(nil), idx.byChange[id]...)
}

// Generation returns id's generation number (longest path from a root),
// used by callers (pkg/rebase) that need to batch same-generation commits
// for concurrent processing: two commits at the same generation can never
// be ancestor and descendant of each other.
func (idx *Index) Generation(id oid.CommitID) (uint32, bool) {
	e, ok := idx.byCommit[id]
	if !ok {
		return 0, false
	}
	return e.Generation, true
}

func (idx *Index) entry(id oid.CommitID) (*Entry, bool) {
	e, ok := idx.byCommit[id]
	return e, ok
}

// IsAncestor reports whether a is an ancestor of (or equal to) b.
func (idx *Index) IsAncestor(a, b oid.CommitID) bool {
	if a == b {
		return true
	}
	ae, ok := idx.entry(a)
	if !ok {
		return false
	}
	be, ok := idx.entry(b)
	if !ok {
		return false
	}
	if ae.Position > be.Position {
		return false
	}
	visited := make(map[uint32]bool)
	frontier := []uint32{be.Position}
	for len(frontier) > 0 {
		pos := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if pos == ae.Position {
			return true
		}
		if pos < ae.Position || visited[pos] {
			continue
		}
		visited[pos] = true
		for _, pp := range idx.entries[pos].ParentPositions {
			frontier = append(frontier, pp)
		}
	}
	return false
}

// Heads filters ids down to those that are not an ancestor of another
// member of the set (spec §4.3 "filter out ancestors").
func (idx *Index) Heads(ids []oid.CommitID) []oid.CommitID {
	var out []oid.CommitID
	for i, a := range ids {
		isAncestorOfOther := false
		for j, b := range ids {
			if i == j || a == b {
				continue
			}
			if idx.IsAncestor(a, b) {
				isAncestorOfOther = true
				break
			}
		}
		if !isAncestorOfOther {
			out = append(out, a)
		}
	}
	return out
}

// TopoOrder sorts ids oldest-to-newest by generation, stable tie-break by
// id (spec §4.3).
func (idx *Index) TopoOrder(ids []oid.CommitID) []oid.CommitID {
	out := append([]oid.CommitID(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		ei, oki := idx.entry(out[i])
		ej, okj := idx.entry(out[j])
		gi, gj := uint32(0), uint32(0)
		if oki {
			gi = ei.Generation
		}
		if okj {
			gj = ej.Generation
		}
		if gi != gj {
			return gi < gj
		}
		return oid.CommitIDLess(out[i], out[j])
	})
	return out
}

// IndexEntry is the public iteration record used by WalkRevs (spec §4.3).
type IndexEntry struct {
	CommitID        oid.CommitID
	ChangeID        oid.ChangeID
	ParentPositions []uint32
}

// WalkRevs returns entries reachable from include but not from exclude,
// newest generation first (spec §4.3 "walk_revs(include, exclude)").
func (idx *Index) WalkRevs(include, exclude []oid.CommitID) []IndexEntry {
	excluded := idx.ancestorPositions(exclude)
	heap := binaryheap.NewWith(func(a, b any) int {
		ea, eb := a.(*Entry), b.(*Entry)
		if ea.Generation != eb.Generation {
			return int(eb.Generation) - int(ea.Generation)
		}
		return int(eb.Position) - int(ea.Position)
	})
	seen := make(map[uint32]bool)
	for _, id := range include {
		if e, ok := idx.entry(id); ok && !excluded[e.Position] && !seen[e.Position] {
			seen[e.Position] = true
			heap.Push(e)
		}
	}
	var out []IndexEntry
	for {
		v, ok := heap.Pop()
		if !ok {
			break
		}
		e := v.(*Entry)
		out = append(out, IndexEntry{CommitID: e.CommitID, ChangeID: e.ChangeID, ParentPositions: e.ParentPositions})
		for _, pp := range e.ParentPositions {
			if excluded[pp] || seen[pp] {
				continue
			}
			seen[pp] = true
			heap.Push(idx.entries[pp])
		}
	}
	return out
}

func (idx *Index) ancestorPositions(ids []oid.CommitID) map[uint32]bool {
	result := make(map[uint32]bool)
	var stack []uint32
	for _, id := range ids {
		if e, ok := idx.entry(id); ok {
			stack = append(stack, e.Position)
		}
	}
	for len(stack) > 0 {
		pos := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if result[pos] {
			continue
		}
		result[pos] = true
		for _, pp := range idx.entries[pos].ParentPositions {
			stack = append(stack, pp)
		}
	}
	return result
}

// GraphEdgeType classifies an edge produced by WalkGraph (spec §4.3).
type GraphEdgeType uint8

const (
	EdgeDirect GraphEdgeType = iota
	EdgeIndirect
	EdgeMissing
)

// GraphEdge is one edge in a WalkGraph result.
type GraphEdge struct {
	Target oid.CommitID
	Type   GraphEdgeType
}

// WalkGraph walks backward from heads, reporting each commit (highest
// position first) together with its parent edges (spec §4.3). The walked
// set is every ancestor of heads, so each parent is itself walked and every
// edge is reported as EdgeDirect; this function produces neither
// EdgeIndirect nor EdgeMissing.
func (idx *Index) WalkGraph(heads []oid.CommitID) []struct {
	CommitID oid.CommitID
	Edges    []GraphEdge
} {
	walked := idx.ancestorPositions(heads)
	order := make([]uint32, 0, len(walked))
	for pos := range walked {
		order = append(order, pos)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] > order[j] })

	var out []struct {
		CommitID oid.CommitID
		Edges    []GraphEdge
	}
	for _, pos := range order {
		e := idx.entries[pos]
		var edges []GraphEdge
		for _, pp := range e.ParentPositions {
			parent := idx.entries[pp]
			if walked[pp] {
				edges = append(edges, GraphEdge{Target: parent.CommitID, Type: EdgeDirect})
			} else {
				edges = append(edges, GraphEdge{Target: parent.CommitID, Type: EdgeIndirect})
			}
		}
		out = append(out, struct {
			CommitID oid.CommitID
			Edges    []GraphEdge
		}{CommitID: e.CommitID, Edges: edges})
	}
	return out
}

// MergeIn folds another index's entries into this one, used when two
// concurrent operations each built their own index and need combining
// (spec §4.3 "merge_in(other_index)"). Entries are re-added in the other
// index's generation order so parents land before children regardless of
// each index's original insertion order.
func (idx *Index) MergeIn(other *Index, lookup func(oid.CommitID) (*object.Commit, error)) error {
	ordered := append([]*Entry(nil), other.entries...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Generation < ordered[j].Generation })
	for _, e := range ordered {
		if idx.HasID(e.CommitID) {
			continue
		}
		c, err := lookup(e.CommitID)
		if err != nil {
			return err
		}
		if err := idx.Add(c); err != nil {
			return err
		}
	}
	return nil
}
