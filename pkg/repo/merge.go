package repo

import (
	"sort"

	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/view"
)

// MergeViews implements the three-way view merge of spec §4.4, applied
// whenever RepoLoader.Load finds more than one concurrent operation head
// (spec §4.2). Head-valued fields (heads, public heads) merge by the set
// rule of mergeCommitSets; when idx is non-nil, any merged head that idx
// shows is an ancestor of another merged head is then dropped; named
// single-valued fields (branches, tags, git-refs, git head) merge through
// view.MergeRefTargetsWithIndex, the same algebra a two-way ref change
// already uses. idx drives step 4's ancestor-drop simplification before a
// conflict is emitted (spec §4.4 step 4); it may be nil, in which case no
// ancestor simplification is attempted.
func MergeViews(base, left, right *view.View, idx view.AncestryIndex) *view.View {
	out := view.NewView()
	out.HeadIDs = mergeCommitSets(base.HeadIDs, left.HeadIDs, right.HeadIDs)
	if idx != nil {
		maximal := make([]oid.CommitID, 0, len(out.HeadIDs))
		for i, a := range out.HeadIDs {
			dominated := false
			for j, b := range out.HeadIDs {
				if i != j && a != b && idx.IsAncestor(a, b) {
					dominated = true
					break
				}
			}
			if !dominated {
				maximal = append(maximal, a)
			}
		}
		out.HeadIDs = maximal
	}
	out.PublicHeadIDs = mergeCommitSets(base.PublicHeadIDs, left.PublicHeadIDs, right.PublicHeadIDs)
	out.WCCommitIDs = mergeWorkspaces(base.WCCommitIDs, left.WCCommitIDs, right.WCCommitIDs)
	out.Branches = mergeBranches(base.Branches, left.Branches, right.Branches, idx)
	out.Tags = mergeRefTargetMaps(base.Tags, left.Tags, right.Tags, idx)
	out.GitRefs = mergeRefTargetMaps(base.GitRefs, left.GitRefs, right.GitRefs, idx)
	out.GitHead = mergeOptionalCommit(base.GitHead, left.GitHead, right.GitHead, idx)
	return out
}

// mergeCommitSets merges a head-like commit-id set (spec §4.4): a base
// member that both sides still carry is kept; one dropped by either side
// is dropped from the result (it was intentionally superseded there, and
// "kept elsewhere" never overrides an explicit drop); anything new either
// side added is kept. It does no ancestry-based pruning itself; MergeViews
// drops merged heads that are ancestors of other merged heads when it is
// given an index.
func mergeCommitSets(base, left, right []oid.CommitID) []oid.CommitID {
	baseSet := commitSet(base)
	leftSet := commitSet(left)
	rightSet := commitSet(right)

	result := make(map[oid.CommitID]bool)
	for id := range leftSet {
		result[id] = true
	}
	for id := range rightSet {
		result[id] = true
	}
	for id := range baseSet {
		if !leftSet[id] || !rightSet[id] {
			delete(result, id)
		}
	}
	out := make([]oid.CommitID, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return oid.CommitIDLess(out[i], out[j]) })
	return out
}

func commitSet(ids []oid.CommitID) map[oid.CommitID]bool {
	s := make(map[oid.CommitID]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// mergeWorkspaces merges per-workspace working-copy commits. WCCommitIDs
// has no conflict representation (unlike RefTarget-valued fields), so when
// both sides move the same workspace to different commits from a common
// base, left wins and right's change is dropped; this mirrors jj's
// behavior of surfacing that case as a stale-working-copy warning at a
// higher layer rather than as a stored conflict.
func mergeWorkspaces(base, left, right map[string]oid.CommitID) map[string]oid.CommitID {
	out := make(map[string]oid.CommitID)
	keys := make(map[string]bool)
	for k := range base {
		keys[k] = true
	}
	for k := range left {
		keys[k] = true
	}
	for k := range right {
		keys[k] = true
	}
	for k := range keys {
		b, bOk := base[k]
		l, lOk := left[k]
		r, rOk := right[k]
		switch {
		case lOk && rOk:
			// equal, or both sides moved it differently: left wins either way.
			out[k] = l
		case lOk && !rOk:
			if !bOk || b != l {
				out[k] = l // left moved it; right's removal loses to that change
			}
			// else: left unchanged, right deliberately removed it -> stays absent
		case rOk && !lOk:
			if !bOk || b != r {
				out[k] = r
			}
		}
	}
	return out
}

func mergeBranches(base, left, right map[string]*view.Branch, idx view.AncestryIndex) map[string]*view.Branch {
	out := make(map[string]*view.Branch)
	names := make(map[string]bool)
	for k := range base {
		names[k] = true
	}
	for k := range left {
		names[k] = true
	}
	for k := range right {
		names[k] = true
	}
	for name := range names {
		bB, bOk := base[name]
		bL, lOk := left[name]
		bR, rOk := right[name]
		var baseLocal, leftLocal, rightLocal view.RefTarget
		if bOk {
			baseLocal = bB.Local
		} else {
			baseLocal = view.Absent()
		}
		if lOk {
			leftLocal = bL.Local
		} else {
			leftLocal = view.Absent()
		}
		if rOk {
			rightLocal = bR.Local
		} else {
			rightLocal = view.Absent()
		}
		merged := view.MergeRefTargetsWithIndex(baseLocal, leftLocal, rightLocal, idx)
		if merged.IsAbsent() && len(remoteNames(bB, bL, bR)) == 0 {
			continue
		}
		nb := &view.Branch{Local: merged, Remotes: make(map[string]view.RemoteRef)}
		for _, remote := range remoteNames(bB, bL, bR) {
			var baseR, leftR, rightR view.RefTarget
			var tracked bool
			if bOk {
				if rr, ok := bB.Remotes[remote]; ok {
					baseR = rr.Target
				} else {
					baseR = view.Absent()
				}
			} else {
				baseR = view.Absent()
			}
			if lOk {
				if rr, ok := bL.Remotes[remote]; ok {
					leftR = rr.Target
					tracked = tracked || rr.Tracked
				} else {
					leftR = view.Absent()
				}
			} else {
				leftR = view.Absent()
			}
			if rOk {
				if rr, ok := bR.Remotes[remote]; ok {
					rightR = rr.Target
					tracked = tracked || rr.Tracked
				} else {
					rightR = view.Absent()
				}
			} else {
				rightR = view.Absent()
			}
			mergedR := view.MergeRefTargetsWithIndex(baseR, leftR, rightR, idx)
			if mergedR.IsAbsent() && !tracked {
				continue
			}
			nb.Remotes[remote] = view.RemoteRef{Target: mergedR, Tracked: tracked}
		}
		out[name] = nb
	}
	return out
}

func remoteNames(branches ...*view.Branch) []string {
	seen := make(map[string]bool)
	var names []string
	for _, b := range branches {
		if b == nil {
			continue
		}
		for r := range b.Remotes {
			if !seen[r] {
				seen[r] = true
				names = append(names, r)
			}
		}
	}
	sort.Strings(names)
	return names
}

func mergeRefTargetMaps(base, left, right map[string]view.RefTarget, idx view.AncestryIndex) map[string]view.RefTarget {
	out := make(map[string]view.RefTarget)
	names := make(map[string]bool)
	for k := range base {
		names[k] = true
	}
	for k := range left {
		names[k] = true
	}
	for k := range right {
		names[k] = true
	}
	for name := range names {
		b, bOk := base[name]
		l, lOk := left[name]
		r, rOk := right[name]
		if !bOk {
			b = view.Absent()
		}
		if !lOk {
			l = view.Absent()
		}
		if !rOk {
			r = view.Absent()
		}
		merged := view.MergeRefTargetsWithIndex(b, l, r, idx)
		if merged.IsAbsent() {
			continue
		}
		out[name] = merged
	}
	return out
}

func mergeOptionalCommit(base, left, right *oid.CommitID, idx view.AncestryIndex) *oid.CommitID {
	toTarget := func(p *oid.CommitID) view.RefTarget {
		if p == nil {
			return view.Absent()
		}
		return view.Normal(*p)
	}
	merged := view.MergeRefTargetsWithIndex(toTarget(base), toTarget(left), toTarget(right), idx)
	if id, ok := merged.AsNormal(); ok {
		return &id
	}
	return nil
}
