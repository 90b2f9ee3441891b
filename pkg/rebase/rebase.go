// Package rebase implements the descendant rebaser of spec §4.6 (C8): given
// a MutableRepo carrying rewritten/abandoned commit records accumulated
// during a transaction, propagate those changes onto every descendant so
// the view's heads always point at commits descending from the latest
// rewrite, preserving each descendant's change-id across the rewrite the
// way original_source's `lib/src/rewrite.rs` does (no teacher or pack
// example implements a DAG-rewriting rebaser; the ancestor/topo-order
// primitives it walks on are pkg/index's).
package rebase

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/index"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/repo"
	"github.com/hexroot-vcs/core/pkg/store"
	"github.com/hexroot-vcs/core/pkg/view"
)

// Rebase runs the fixpoint propagation of spec §4.6 against mrepo's
// currently staged rewritten/abandoned records, creating replacement
// commits for every affected descendant and retargeting branches, tags,
// git-refs, the mirrored git head, and workspace heads onto the final
// successors. Call once per transaction, after all direct rewrites/
// abandonments have been recorded and before Transaction.Write.
func Rebase(mrepo *repo.MutableRepo) error {
	rewritten := mrepo.RewrittenCommits()
	abandoned := mrepo.AbandonedCommits()
	if len(rewritten) == 0 && len(abandoned) == 0 {
		return nil
	}

	idx := mrepo.Index()
	objStore := mrepo.Base().Store()
	v := mrepo.View()

	frontier := computeFrontier(idx, v, rewritten, abandoned)

	for _, level := range groupByGeneration(idx, frontier) {
		if err := rebaseLevel(mrepo, objStore, idx, rewritten, abandoned, level); err != nil {
			return err
		}
	}

	resolved, err := resolveHeadSet(idx, objStore, rewritten, abandoned, v.HeadIDs)
	if err != nil {
		return err
	}
	v.HeadIDs = resolved
	resolved, err = resolveHeadSet(idx, objStore, rewritten, abandoned, v.PublicHeadIDs)
	if err != nil {
		return err
	}
	v.PublicHeadIDs = resolved

	retargetRefs(mrepo, rewritten, abandoned, objStore)
	if err := retargetWorkspaces(mrepo, rewritten, abandoned, objStore); err != nil {
		return err
	}
	return nil
}

// computeFrontier returns every commit reachable from the view's heads
// that has a rewritten-or-abandoned commit as a strict ancestor, ordered
// oldest-to-newest so a descendant is only processed once its own parents
// have already been resolved (spec §4.6 step 1).
func computeFrontier(idx *index.Index, v *view.View, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool) []oid.CommitID {
	keys := make([]oid.CommitID, 0, len(rewritten)+len(abandoned))
	for k := range rewritten {
		keys = append(keys, k)
	}
	for k := range abandoned {
		keys = append(keys, k)
	}

	heads := append(append([]oid.CommitID(nil), v.HeadIDs...), v.PublicHeadIDs...)
	for _, id := range v.WCCommitIDs {
		heads = append(heads, id)
	}
	reachable := idx.WalkRevs(heads, nil)

	var frontier []oid.CommitID
	for _, e := range reachable {
		for _, k := range keys {
			if k != e.CommitID && idx.IsAncestor(k, e.CommitID) {
				frontier = append(frontier, e.CommitID)
				break
			}
		}
	}
	return idx.TopoOrder(frontier)
}

// resolveHeadSet replaces any rewritten-or-abandoned member of a head list
// with its resolved successors, flattened and deduplicated, then re-filters
// to the antichain so a successor that's also an ancestor of another
// retained head doesn't linger. The heads field has no branch/tag-style
// named slot to retarget individually, so this plays the same role as
// retargetRefs but for the bare head set (spec §4.6 step 4 only names
// branches/tags/git-refs explicitly; heads need the equivalent treatment
// or a rewritten commit would stay reachable-only through a stale head).
func resolveHeadSet(idx *index.Index, objStore store.ObjectStore, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool, heads []oid.CommitID) ([]oid.CommitID, error) {
	var out []oid.CommitID
	seen := make(map[oid.CommitID]bool)
	for _, h := range heads {
		_, isRewritten := rewritten[h]
		if !abandoned[h] && !isRewritten {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
			continue
		}
		successors, err := resolveReplacement(objStore, rewritten, abandoned, h, make(map[oid.CommitID]bool))
		if err != nil {
			return nil, err
		}
		for _, s := range successors {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return idx.Heads(out), nil
}

// groupByGeneration splits an already topologically-sorted frontier into
// batches sharing a generation number. Two commits at the same generation
// can never be ancestor and descendant of each other (generation is the
// longest path from a root, strictly increasing along any edge), so their
// replacement parents never depend on each other and they can be prepared
// concurrently.
func groupByGeneration(idx *index.Index, frontier []oid.CommitID) [][]oid.CommitID {
	var levels [][]oid.CommitID
	var cur []oid.CommitID
	var curGen uint32
	for i, id := range frontier {
		g, _ := idx.Generation(id)
		if i > 0 && g != curGen {
			levels = append(levels, cur)
			cur = nil
		}
		curGen = g
		cur = append(cur, id)
	}
	if len(cur) > 0 {
		levels = append(levels, cur)
	}
	return levels
}

// rebasedCommit pairs an original descendant with its prepared replacement,
// already hashed and written to the object store but not yet registered in
// the index/view.
type rebasedCommit struct {
	original    oid.CommitID
	replacement *object.Commit
}

// rebaseLevel applies spec §4.6 step 2 to every commit in a single
// generation level: computing and hashing each replacement concurrently
// via errgroup (the object store write is the expensive canonicalize+hash
// step and touches no shared state, since distinct commits land at
// distinct content-addressed paths), then registering the results into the
// index/view sequentially, since the add-head protocol mutates shared
// MutableRepo state.
func rebaseLevel(mrepo *repo.MutableRepo, objStore store.ObjectStore, idx *index.Index, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool, level []oid.CommitID) error {
	results := make([]*rebasedCommit, len(level))

	var g errgroup.Group
	for i, d := range level {
		i, d := i, d
		g.Go(func() error {
			c, err := mrepo.Base().GetCommit(d)
			if err != nil {
				return err
			}
			newParents, err := computeNewParents(objStore, rewritten, abandoned, c.Parents)
			if err != nil {
				return err
			}
			newParents = simplifyParents(idx, newParents)
			if len(newParents) > 1 {
				newParents = dropRootIfMerge(objStore, newParents)
			}
			if sameParents(c.Parents, newParents) {
				return nil
			}

			replacement := object.ForRewriteFrom(c).SetParents(newParents).Build()
			id, err := objStore.WriteCommit(replacement)
			if err != nil {
				return err
			}
			replacement.ID = id
			results[i] = &rebasedCommit{original: c.ID, replacement: replacement}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		if err := mrepo.RegisterWrittenCommit(r.replacement); err != nil {
			return err
		}
		rewritten[r.original] = []oid.CommitID{r.replacement.ID}
	}
	return nil
}

// computeNewParents replaces each of a commit's parents with its resolved
// successor set, recursively splicing through abandonment/rewrite chains
// (spec §4.6 step 2a).
func computeNewParents(objStore store.ObjectStore, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool, parents []oid.CommitID) ([]oid.CommitID, error) {
	var out []oid.CommitID
	seen := make(map[oid.CommitID]bool)
	for _, p := range parents {
		repl, err := resolveReplacement(objStore, rewritten, abandoned, p, make(map[oid.CommitID]bool))
		if err != nil {
			return nil, err
		}
		for _, r := range repl {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// resolveReplacement walks an abandonment/rewrite chain starting at id
// until it bottoms out at ids that are neither abandoned nor rewritten,
// splicing in a replacement's own parents when id is abandoned (spec §4.6
// step 2a "splice in the new_parents of its replacement ... transitively")
// or its successor set when id was rewritten.
func resolveReplacement(objStore store.ObjectStore, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool, id oid.CommitID, visiting map[oid.CommitID]bool) ([]oid.CommitID, error) {
	if visiting[id] {
		return nil, errs.NewCycle(id.String())
	}
	if abandoned[id] {
		visiting[id] = true
		defer delete(visiting, id)
		c, err := objStore.GetCommit(id)
		if err != nil {
			return nil, err
		}
		var out []oid.CommitID
		seen := make(map[oid.CommitID]bool)
		for _, p := range c.Parents {
			repl, err := resolveReplacement(objStore, rewritten, abandoned, p, visiting)
			if err != nil {
				return nil, err
			}
			for _, r := range repl {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
		return out, nil
	}
	if successors, ok := rewritten[id]; ok && len(successors) > 0 {
		visiting[id] = true
		defer delete(visiting, id)
		var out []oid.CommitID
		seen := make(map[oid.CommitID]bool)
		for _, s := range successors {
			repl, err := resolveReplacement(objStore, rewritten, abandoned, s, visiting)
			if err != nil {
				return nil, err
			}
			for _, r := range repl {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
		return out, nil
	}
	return []oid.CommitID{id}, nil
}

// simplifyParents drops any parent that is an ancestor of another parent
// in the same list (spec §4.6 step 2b).
func simplifyParents(idx *index.Index, parents []oid.CommitID) []oid.CommitID {
	var out []oid.CommitID
	for i, a := range parents {
		isAncestorOfOther := false
		for j, b := range parents {
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

// dropRootIfMerge drops the synthetic root commit from a multi-parent list
// (spec §4.6 step 3: "merge commits cannot include the root").
func dropRootIfMerge(objStore store.ObjectStore, parents []oid.CommitID) []oid.CommitID {
	root := objStore.RootCommitID()
	var out []oid.CommitID
	for _, p := range parents {
		if p == root {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return parents
	}
	return out
}

func sameParents(a, b []oid.CommitID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// retargetRefs implements spec §4.6 step 4: any branch/tag/git-ref/git-head
// pointing at a rewritten or abandoned commit moves to its resolved
// successor set, producing a conflicted target when more than one
// successor remains.
func retargetRefs(mrepo *repo.MutableRepo, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool, objStore store.ObjectStore) {
	resolve := func(id oid.CommitID) (view.RefTarget, bool) {
		if !abandoned[id] {
			if _, ok := rewritten[id]; !ok {
				return view.RefTarget{}, false
			}
		}
		successors, err := resolveReplacement(objStore, rewritten, abandoned, id, make(map[oid.CommitID]bool))
		if err != nil || len(successors) == 0 {
			return view.Absent(), true
		}
		if len(successors) == 1 {
			return view.Normal(successors[0]), true
		}
		sort.Slice(successors, func(i, j int) bool { return oid.CommitIDLess(successors[i], successors[j]) })
		return view.RefTarget{Kind: view.RefConflicted, Adds: successors}, true
	}

	v := mrepo.View()
	for name, b := range v.Branches {
		if id, ok := b.Local.AsNormal(); ok {
			if t, changed := resolve(id); changed {
				mrepo.SetLocalBranch(name, t)
			}
		}
		for remote, rr := range b.Remotes {
			if id, ok := rr.Target.AsNormal(); ok {
				if t, changed := resolve(id); changed {
					mrepo.SetRemoteBranch(name, remote, t, rr.Tracked)
				}
			}
		}
	}
	for name, target := range v.Tags {
		if id, ok := target.AsNormal(); ok {
			if t, changed := resolve(id); changed {
				mrepo.SetTag(name, t)
			}
		}
	}
	for name, target := range v.GitRefs {
		if id, ok := target.AsNormal(); ok {
			if t, changed := resolve(id); changed {
				mrepo.SetGitRef(name, t)
			}
		}
	}
	if v.GitHead != nil {
		if t, changed := resolve(*v.GitHead); changed {
			if id, ok := t.AsNormal(); ok {
				mrepo.SetGitHead(&id)
			} else {
				mrepo.SetGitHead(nil)
			}
		}
	}
}

// retargetWorkspaces implements spec §4.6 step 5: a workspace pointing at
// an abandoned or rewritten commit moves to its resolved successors (for an
// abandoned commit, its nearest non-abandoned ancestors): to the single
// successor, to a merge commit from newReconciliationCommit joining every
// successor when there's more than one, or to the root commit when none
// remains.
func retargetWorkspaces(mrepo *repo.MutableRepo, rewritten map[oid.CommitID][]oid.CommitID, abandoned map[oid.CommitID]bool, objStore store.ObjectStore) error {
	v := mrepo.View()
	for workspaceID, id := range v.WCCommitIDs {
		_, isRewritten := rewritten[id]
		if !abandoned[id] && !isRewritten {
			continue
		}
		successors, err := resolveReplacement(objStore, rewritten, abandoned, id, make(map[oid.CommitID]bool))
		if err != nil {
			return err
		}
		switch len(successors) {
		case 0:
			mrepo.SetWCCommit(workspaceID, objStore.RootCommitID())
		case 1:
			mrepo.SetWCCommit(workspaceID, successors[0])
		default:
			merged, err := newReconciliationCommit(mrepo, objStore, successors)
			if err != nil {
				return err
			}
			mrepo.SetWCCommit(workspaceID, merged.ID)
		}
	}
	return nil
}

// newReconciliationCommit creates the "newly created empty child" of spec
// §4.6 step 5: a merge commit joining every successor, carrying the first
// successor's tree forward unchanged (no generic N-way tree merge exists
// in this package; the working copy is expected to re-checkout and resolve
// any real content divergence on next use, the same way jj materializes a
// placeholder merge commit here and lets the working-copy snapshot step
// reconcile it).
func newReconciliationCommit(mrepo *repo.MutableRepo, objStore store.ObjectStore, successors []oid.CommitID) (*object.Commit, error) {
	first, err := objStore.GetCommit(successors[0])
	if err != nil {
		return nil, err
	}
	c := object.ForNewCommit(successors, first.Tree, first.Author, first.Committer).
		SetDescription("workspace reconciliation").Build()
	return mrepo.WriteCommit(c)
}
