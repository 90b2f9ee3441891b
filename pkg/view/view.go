// Package view implements the view model of spec §4.4: branches
// (local/remote), tags, workspace heads, Git-ref mirrors, and the RefTarget
// merge algebra that makes concurrent mutation safe. There is no direct
// teacher equivalent (the teacher's refs package models a single mutable
// Git-style ref store, not an immutable-by-value snapshot with conflict
// algebra), so the shapes here are designed directly from spec §3/§4.4 and
// only the encoding texture (canonical sorted-key text format) is
// grounded on the teacher's object package.
package view

import (
	"sort"

	"github.com/hexroot-vcs/core/pkg/oid"
)

// RefTargetKind discriminates the three ref-target states of spec §3.
type RefTargetKind uint8

const (
	RefAbsent RefTargetKind = iota
	RefNormal
	RefConflicted
)

// RefTarget is either absent, a single commit, or a conflicted multiset of
// removes/adds commit ids (spec §3 "Ref target").
type RefTarget struct {
	Kind     RefTargetKind
	Normal   oid.CommitID   // valid when Kind == RefNormal
	Removes  []oid.CommitID // valid when Kind == RefConflicted
	Adds     []oid.CommitID // valid when Kind == RefConflicted
}

// Absent is the shared absent ref-target value.
func Absent() RefTarget { return RefTarget{Kind: RefAbsent} }

// Normal builds a single-commit ref target.
func Normal(id oid.CommitID) RefTarget { return RefTarget{Kind: RefNormal, Normal: id} }

// IsAbsent reports whether the target names no commit.
func (t RefTarget) IsAbsent() bool { return t.Kind == RefAbsent }

// IsConflicted reports whether the target is a multi-valued conflict.
func (t RefTarget) IsConflicted() bool { return t.Kind == RefConflicted }

// AsNormal returns the single commit id and true if t is a resolved,
// non-absent target.
func (t RefTarget) AsNormal() (oid.CommitID, bool) {
	if t.Kind == RefNormal {
		return t.Normal, true
	}
	return oid.CommitID{}, false
}

// addedIDs returns the commit ids this target contributes as "present"
// values, used by Merge's fast path and by callers needing every commit a
// target could currently mean.
func (t RefTarget) addedIDs() []oid.CommitID {
	switch t.Kind {
	case RefNormal:
		return []oid.CommitID{t.Normal}
	case RefConflicted:
		return append([]oid.CommitID(nil), t.Adds...)
	default:
		return nil
	}
}

func cancelPairs(removes, adds []oid.CommitID) ([]oid.CommitID, []oid.CommitID) {
	usedA := make([]bool, len(adds))
	var remainingR []oid.CommitID
	for _, r := range removes {
		cancelled := false
		for i, a := range adds {
			if !usedA[i] && a == r {
				usedA[i] = true
				cancelled = true
				break
			}
		}
		if !cancelled {
			remainingR = append(remainingR, r)
		}
	}
	var remainingA []oid.CommitID
	for i, a := range adds {
		if !usedA[i] {
			remainingA = append(remainingA, a)
		}
	}
	return remainingR, remainingA
}

// simplify reduces a conflicted target to its canonical resolved form when
// cancellation leaves zero removes and one add, or to Absent when nothing
// remains (spec §3 "a conflict resolves when removes is empty and adds has
// exactly one element").
func simplify(removes, adds []oid.CommitID) RefTarget {
	removes, adds = cancelPairs(removes, adds)
	switch {
	case len(removes) == 0 && len(adds) == 0:
		return Absent()
	case len(removes) == 0 && len(adds) == 1:
		return Normal(adds[0])
	default:
		sortCommitIDs(removes)
		sortCommitIDs(adds)
		return RefTarget{Kind: RefConflicted, Removes: removes, Adds: adds}
	}
}

func sortCommitIDs(ids []oid.CommitID) {
	sort.Slice(ids, func(i, j int) bool { return oid.CommitIDLess(ids[i], ids[j]) })
}

// canonical reduces t to its simplified form, so two conflicted targets
// that differ only by cancelled pairs or ordering compare equal.
func (t RefTarget) canonical() RefTarget {
	if t.Kind != RefConflicted {
		return t
	}
	return simplify(t.Removes, t.Adds)
}

// Equal compares two ref targets using the multiset-after-cancellation rule
// (spec §3 "equality is multiset-based after cancelling identical pairs").
func (t RefTarget) Equal(o RefTarget) bool {
	return targetsDeepEqual(t.canonical(), o.canonical())
}

func targetsDeepEqual(a, b RefTarget) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case RefAbsent:
		return true
	case RefNormal:
		return a.Normal == b.Normal
	default:
		if len(a.Removes) != len(b.Removes) || len(a.Adds) != len(b.Adds) {
			return false
		}
		for i := range a.Removes {
			if a.Removes[i] != b.Removes[i] {
				return false
			}
		}
		for i := range a.Adds {
			if a.Adds[i] != b.Adds[i] {
				return false
			}
		}
		return true
	}
}

// AncestryIndex is the ancestor-query capability spec §4.4 step 4 needs:
// "before emitting a conflict, simplify: if the index shows an 'add'
// commit is an ancestor of another 'add', drop the ancestor; analogously
// for removes". pkg/index.Index satisfies this directly, so callers that
// hold one (pkg/repo's merge callers) can pass it straight through without
// pkg/view importing pkg/index.
type AncestryIndex interface {
	IsAncestor(ancestor, descendant oid.CommitID) bool
}

// dropAncestors removes any id from ids that idx reports is an ancestor of
// another id still present in ids (spec §4.4 step 4). It never empties the
// slice entirely — if every id turned out to be some other id's ancestor
// (a cycle-free impossibility in practice, but defensive regardless) the
// original slice is returned unchanged rather than dropping a side down to
// nothing.
func dropAncestors(ids []oid.CommitID, idx AncestryIndex) []oid.CommitID {
	if idx == nil || len(ids) <= 1 {
		return ids
	}
	keep := make([]bool, len(ids))
	for i := range ids {
		keep[i] = true
	}
	for i := range ids {
		for j := range ids {
			if i == j || !keep[i] {
				continue
			}
			if idx.IsAncestor(ids[i], ids[j]) {
				keep[i] = false
				break
			}
		}
	}
	out := make([]oid.CommitID, 0, len(ids))
	for i, id := range ids {
		if keep[i] {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return ids
	}
	return out
}

// simplifyWithIndex is simplify plus spec §4.4 step 4's ancestor-drop rule,
// applied only once cancellation has already determined the result is a
// genuine conflict (never to a value cancelPairs already resolved, so the
// drop can only ever narrow a conflict's membership — including all the way
// down to Absent/Normal when dropping ancestors leaves one add and zero
// removes — never manufacture one from a value that was already resolved).
func simplifyWithIndex(removes, adds []oid.CommitID, idx AncestryIndex) RefTarget {
	removes, adds = cancelPairs(removes, adds)
	if len(removes) == 0 && len(adds) == 0 {
		return Absent()
	}
	if len(removes) == 0 && len(adds) == 1 {
		return Normal(adds[0])
	}
	if idx != nil {
		removes = dropAncestors(removes, idx)
		adds = dropAncestors(adds, idx)
		if len(removes) == 0 && len(adds) == 0 {
			return Absent()
		}
		if len(removes) == 0 && len(adds) == 1 {
			return Normal(adds[0])
		}
	}
	sortCommitIDs(removes)
	sortCommitIDs(adds)
	return RefTarget{Kind: RefConflicted, Removes: removes, Adds: adds}
}

// MergeRefTargets implements the three-way ref merge of spec §4.4: given a
// common ancestor base and two divergent sides, produce the merged target.
// The signed-multiset algorithm is: start from base's value as a "remove"
// and each side's value as an "add", cancel identical pairs, and simplify.
// A fast path handles the overwhelmingly common case (all three targets
// already equal, or exactly one side changed) without building multisets,
// mirroring the RepoLoader's merge_single_ref fast path. Equivalent to
// MergeRefTargetsWithIndex with a nil index (no ancestor-drop step).
func MergeRefTargets(base, left, right RefTarget) RefTarget {
	return MergeRefTargetsWithIndex(base, left, right, nil)
}

// MergeRefTargetsWithIndex is MergeRefTargets with spec §4.4 step 4's
// ancestor-drop simplification applied via idx before a conflict is
// emitted. idx may be nil (equivalent to MergeRefTargets).
func MergeRefTargetsWithIndex(base, left, right RefTarget, idx AncestryIndex) RefTarget {
	if left.Equal(right) {
		return left
	}
	if left.Equal(base) {
		return right
	}
	if right.Equal(base) {
		return left
	}
	removes := base.addedIDs()
	adds := append(left.addedIDs(), right.addedIDs()...)
	return simplifyWithIndex(removes, adds, idx)
}

// Branch is a named branch's local target plus its per-remote tracking
// state (spec §3 "Branch").
type Branch struct {
	Local   RefTarget
	Remotes map[string]RemoteRef
}

// RemoteRef is one remote's view of a branch (spec §3 "RemoteRef").
type RemoteRef struct {
	Target  RefTarget
	Tracked bool
}

// View is the immutable-by-value snapshot of spec §3 "View": the mapping
// from names to commits at one point in the operation log.
type View struct {
	HeadIDs       []oid.CommitID
	PublicHeadIDs []oid.CommitID
	WCCommitIDs   map[string]oid.CommitID // WorkspaceId -> CommitId
	Branches      map[string]*Branch
	Tags          map[string]RefTarget
	GitRefs       map[string]RefTarget
	GitHead       *oid.CommitID
}

// NewView returns an empty view with initialized maps, ready for
// incremental construction by a transaction.
func NewView() *View {
	return &View{
		WCCommitIDs: make(map[string]oid.CommitID),
		Branches:    make(map[string]*Branch),
		Tags:        make(map[string]RefTarget),
		GitRefs:     make(map[string]RefTarget),
	}
}

// Clone returns a deep copy, so a transaction can mutate it without
// affecting the ReadonlyRepo's view (spec §3 "Ownership": a transaction
// exclusively owns its staged view).
func (v *View) Clone() *View {
	c := NewView()
	c.HeadIDs = append(c.HeadIDs, v.HeadIDs...)
	c.PublicHeadIDs = append(c.PublicHeadIDs, v.PublicHeadIDs...)
	for k, id := range v.WCCommitIDs {
		c.WCCommitIDs[k] = id
	}
	for k, b := range v.Branches {
		nb := &Branch{Local: b.Local, Remotes: make(map[string]RemoteRef, len(b.Remotes))}
		for r, rr := range b.Remotes {
			nb.Remotes[r] = rr
		}
		c.Branches[k] = nb
	}
	for k, t := range v.Tags {
		c.Tags[k] = t
	}
	for k, t := range v.GitRefs {
		c.GitRefs[k] = t
	}
	if v.GitHead != nil {
		h := *v.GitHead
		c.GitHead = &h
	}
	return c
}
