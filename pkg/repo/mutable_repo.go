package repo

import (
	"github.com/hexroot-vcs/core/pkg/index"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/view"
)

// MutableRepo is spec §4.5's mutable staging area: a mutable index
// (incrementally extended, copy-on-write from the base ReadonlyRepo's), a
// dirty-cell-wrapped view (mutations that can't cheaply maintain the head
// antichain invariant just flip dirty and let View() resimplify lazily),
// and the rewritten/abandoned bookkeeping the descendant rebaser consumes.
type MutableRepo struct {
	base  *ReadonlyRepo
	index *index.Index
	view  *view.View
	dirty bool

	rewrittenCommits map[oid.CommitID][]oid.CommitID
	abandonedCommits map[oid.CommitID]bool
}

// newMutableRepo clones base's index and view so mutation never touches
// the ReadonlyRepo it started from (spec §3 "Ownership").
func newMutableRepo(base *ReadonlyRepo) *MutableRepo {
	return &MutableRepo{
		base:             base,
		index:            base.index.Clone(),
		view:             base.view.Clone(),
		rewrittenCommits: make(map[oid.CommitID][]oid.CommitID),
		abandonedCommits: make(map[oid.CommitID]bool),
	}
}

// Index returns the mutable index, already extended by any commit added
// this transaction.
func (m *MutableRepo) Index() *index.Index { return m.index }

// Base returns the read-only repo this transaction started from.
func (m *MutableRepo) Base() *ReadonlyRepo { return m.base }

// View returns the up-to-date view, enforcing invariants first: if a slow
// add-head path left the heads set non-maximal, simplify it by index
// before handing the view to a reader (spec §4.5 "view() returns an
// up-to-date view after enforcing invariants (heads simplified by
// index)").
func (m *MutableRepo) View() *view.View {
	if m.dirty {
		m.view.HeadIDs = m.index.Heads(m.view.HeadIDs)
		m.view.PublicHeadIDs = m.index.Heads(m.view.PublicHeadIDs)
		m.dirty = false
	}
	return m.view
}

// WriteCommit writes c to the object store, indexes it, and adds it as a
// head via the add-head protocol (spec §4.5). c.ID must be zero; the
// assigned id is returned on the commit.
func (m *MutableRepo) WriteCommit(c *object.Commit) (*object.Commit, error) {
	id, err := m.base.store.WriteCommit(c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	if err := m.addHeadCommit(c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCommit is the "new"-command convenience constructor (spec's
// supplemented feature, grounded on original_source's
// cli/src/commands/new.rs): builds and writes a fresh commit with a newly
// generated change-id atop the given parents.
func (m *MutableRepo) NewCommit(parents []oid.CommitID, tree oid.TreeID, author, committer object.Signature, description string) (*object.Commit, error) {
	c := object.ForNewCommit(parents, tree, author, committer).SetDescription(description).Build()
	return m.WriteCommit(c)
}

// DuplicateCommit is the "duplicate"-command convenience constructor (spec's
// supplemented feature, grounded on original_source's
// cli/src/commands/duplicate.rs): writes a new commit carrying the same
// tree/author/committer/description as predecessor but a fresh change-id,
// so it's an independent new change rather than a rewrite — predecessor is
// left untouched, never recorded as rewritten or abandoned.
func (m *MutableRepo) DuplicateCommit(predecessor *object.Commit) (*object.Commit, error) {
	c := object.ForRewriteFrom(predecessor).GenerateNewChangeID().Build()
	return m.WriteCommit(c)
}

// addHeadCommit implements the add-head protocol of spec §4.5. Fast path:
// every parent of c is already a current head, so the new head set is
// exactly {c} union (heads minus c's parents), computed without touching
// the index beyond the one Add. Slow path: some parent isn't a current
// head (c branches off older history, or this is the first commit of a
// merge whose sides were never separately published as heads), so walk
// back from c adding any not-yet-indexed ancestor in parents-first order,
// then mark the view dirty so the next View() call resimplifies the head
// set by full ancestry rather than by the cheap parent-removal rule.
func (m *MutableRepo) addHeadCommit(c *object.Commit) error {
	currentHeads := make(map[oid.CommitID]bool, len(m.view.HeadIDs))
	for _, h := range m.view.HeadIDs {
		currentHeads[h] = true
	}
	allParentsAreHeads := len(c.Parents) > 0
	for _, p := range c.Parents {
		if !currentHeads[p] {
			allParentsAreHeads = false
			break
		}
	}
	if allParentsAreHeads {
		if err := m.index.Add(c); err != nil {
			return err
		}
		newHeads := make([]oid.CommitID, 0, len(m.view.HeadIDs))
		parentSet := make(map[oid.CommitID]bool, len(c.Parents))
		for _, p := range c.Parents {
			parentSet[p] = true
		}
		for _, h := range m.view.HeadIDs {
			if !parentSet[h] {
				newHeads = append(newHeads, h)
			}
		}
		newHeads = append(newHeads, c.ID)
		m.view.HeadIDs = newHeads
		return nil
	}

	var order []*object.Commit
	visited := make(map[oid.CommitID]bool)
	var visit func(id oid.CommitID) error
	visit = func(id oid.CommitID) error {
		if visited[id] || m.index.HasID(id) {
			return nil
		}
		visited[id] = true
		cc, err := m.base.GetCommit(id)
		if err != nil {
			return err
		}
		for _, p := range cc.Parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		order = append(order, cc)
		return nil
	}
	for _, p := range c.Parents {
		if err := visit(p); err != nil {
			return err
		}
	}
	for _, cc := range order {
		if err := m.index.Add(cc); err != nil {
			return err
		}
	}
	if err := m.index.Add(c); err != nil {
		return err
	}
	m.view.HeadIDs = append(m.view.HeadIDs, c.ID)
	m.dirty = true
	return nil
}

// RegisterWrittenCommit folds a commit already written to the object store
// (c.ID already assigned) into the index and head set via the add-head
// protocol, without writing it again. pkg/rebase uses this to separate the
// expensive hashing/store-write step, which it parallelizes across
// independent commits, from the index/view mutation, which must stay
// sequential.
func (m *MutableRepo) RegisterWrittenCommit(c *object.Commit) error {
	return m.addHeadCommit(c)
}

// SetWCCommit sets workspace workspaceID's working-copy commit.
func (m *MutableRepo) SetWCCommit(workspaceID string, id oid.CommitID) {
	m.view.WCCommitIDs[workspaceID] = id
}

// RemoveWorkspace drops a workspace's working-copy pointer entirely
// (workspace forgotten).
func (m *MutableRepo) RemoveWorkspace(workspaceID string) {
	delete(m.view.WCCommitIDs, workspaceID)
}

// SetLocalBranch sets name's local target.
func (m *MutableRepo) SetLocalBranch(name string, target view.RefTarget) {
	b, ok := m.view.Branches[name]
	if !ok {
		b = &view.Branch{Remotes: make(map[string]view.RemoteRef)}
		m.view.Branches[name] = b
	}
	b.Local = target
}

// SetRemoteBranch sets name's tracked state for a given remote.
func (m *MutableRepo) SetRemoteBranch(name, remote string, target view.RefTarget, tracked bool) {
	b, ok := m.view.Branches[name]
	if !ok {
		b = &view.Branch{Remotes: make(map[string]view.RemoteRef)}
		m.view.Branches[name] = b
	}
	b.Remotes[remote] = view.RemoteRef{Target: target, Tracked: tracked}
}

// SetTag sets name's target.
func (m *MutableRepo) SetTag(name string, target view.RefTarget) {
	if target.IsAbsent() {
		delete(m.view.Tags, name)
		return
	}
	m.view.Tags[name] = target
}

// SetGitRef sets name's target.
func (m *MutableRepo) SetGitRef(name string, target view.RefTarget) {
	if target.IsAbsent() {
		delete(m.view.GitRefs, name)
		return
	}
	m.view.GitRefs[name] = target
}

// SetGitHead points the mirrored Git HEAD at id, or clears it if nil.
func (m *MutableRepo) SetGitHead(id *oid.CommitID) {
	m.view.GitHead = id
}

// RecordRewrittenCommit registers that old was rewritten into one or more
// successors, input to the descendant rebaser (spec §4.6).
func (m *MutableRepo) RecordRewrittenCommit(old oid.CommitID, successors ...oid.CommitID) {
	m.rewrittenCommits[old] = append(m.rewrittenCommits[old], successors...)
}

// RecordAbandonedCommit registers old as abandoned with no replacement.
func (m *MutableRepo) RecordAbandonedCommit(old oid.CommitID) {
	m.abandonedCommits[old] = true
}

// RewrittenCommits returns the accumulated old->successors map.
func (m *MutableRepo) RewrittenCommits() map[oid.CommitID][]oid.CommitID {
	return m.rewrittenCommits
}

// AbandonedCommits returns the accumulated abandoned-commit set.
func (m *MutableRepo) AbandonedCommits() map[oid.CommitID]bool {
	return m.abandonedCommits
}
