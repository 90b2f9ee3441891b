package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/oid"
)

var (
	cA = oid.NewCommitID("aa")
	cB = oid.NewCommitID("bb")
	cC = oid.NewCommitID("cc")
)

func TestRefTargetEqualAbsent(t *testing.T) {
	require.True(t, Absent().Equal(Absent()))
	require.False(t, Absent().Equal(Normal(cA)))
}

func TestRefTargetEqualConflictedIgnoresOrder(t *testing.T) {
	t1 := RefTarget{Kind: RefConflicted, Removes: []oid.CommitID{cA}, Adds: []oid.CommitID{cB, cC}}
	t2 := RefTarget{Kind: RefConflicted, Removes: []oid.CommitID{cA}, Adds: []oid.CommitID{cC, cB}}
	require.True(t, t1.Equal(t2))
}

func TestRefTargetEqualCancelsIdenticalPairs(t *testing.T) {
	conflicted := RefTarget{Kind: RefConflicted, Removes: []oid.CommitID{cA}, Adds: []oid.CommitID{cA, cB}}
	require.True(t, conflicted.Equal(Normal(cB)))
}

func TestMergeRefTargetsNoChangeOnEitherSide(t *testing.T) {
	base := Normal(cA)
	require.True(t, MergeRefTargets(base, base, base).Equal(base))
	require.True(t, MergeRefTargets(base, Normal(cB), base).Equal(Normal(cB)))
	require.True(t, MergeRefTargets(base, base, Normal(cB)).Equal(Normal(cB)))
}

func TestMergeRefTargetsDivergentProducesConflict(t *testing.T) {
	base := Normal(cA)
	merged := MergeRefTargets(base, Normal(cB), Normal(cC))
	require.True(t, merged.IsConflicted())
	require.ElementsMatch(t, []oid.CommitID{cA}, merged.Removes)
	require.ElementsMatch(t, []oid.CommitID{cB, cC}, merged.Adds)
}

func TestMergeRefTargetsFromAbsentBase(t *testing.T) {
	merged := MergeRefTargets(Absent(), Normal(cB), Normal(cC))
	require.True(t, merged.IsConflicted())
	require.Empty(t, merged.Removes)
	require.ElementsMatch(t, []oid.CommitID{cB, cC}, merged.Adds)
}

// fakeAncestryIndex is a hand-built AncestryIndex for tests, mapping a
// descendant to the set of its ancestors.
type fakeAncestryIndex map[oid.CommitID]map[oid.CommitID]bool

func (f fakeAncestryIndex) IsAncestor(ancestor, descendant oid.CommitID) bool {
	if ancestor == descendant {
		return true
	}
	return f[descendant][ancestor]
}

func TestMergeRefTargetsWithIndexDropsDominatedAdd(t *testing.T) {
	// cB is an ancestor of cC; merging base=cA, left=cB, right=cC should
	// drop cB from the adds set (spec §4.4 step 4). The base's cA stays as
	// a remove, so the result is still a conflict: removes=[cA], adds=[cC].
	idx := fakeAncestryIndex{cC: {cB: true}}
	base := Normal(cA)
	merged := MergeRefTargetsWithIndex(base, Normal(cB), Normal(cC), idx)
	want := RefTarget{Kind: RefConflicted, Removes: []oid.CommitID{cA}, Adds: []oid.CommitID{cC}}
	require.True(t, merged.Equal(want), "expected conflict -cA +cC, got %+v", merged)
}

func TestMergeRefTargetsWithIndexNilIndexMatchesPlain(t *testing.T) {
	base := Normal(cA)
	plain := MergeRefTargets(base, Normal(cB), Normal(cC))
	withNilIdx := MergeRefTargetsWithIndex(base, Normal(cB), Normal(cC), nil)
	require.True(t, plain.Equal(withNilIdx))
}

func TestMergeRefTargetsWithIndexKeepsUnrelatedAdds(t *testing.T) {
	// No ancestry relationship between cB and cC: nothing gets dropped.
	idx := fakeAncestryIndex{}
	base := Normal(cA)
	merged := MergeRefTargetsWithIndex(base, Normal(cB), Normal(cC), idx)
	require.True(t, merged.IsConflicted())
	require.ElementsMatch(t, []oid.CommitID{cB, cC}, merged.Adds)
}

func TestViewCloneIsIndependent(t *testing.T) {
	v := NewView()
	v.Branches["main"] = &Branch{Local: Normal(cA), Remotes: map[string]RemoteRef{"origin": {Target: Normal(cA), Tracked: true}}}
	v.HeadIDs = []oid.CommitID{cA}

	c := v.Clone()
	c.Branches["main"].Local = Normal(cB)
	c.HeadIDs[0] = cC

	require.True(t, v.Branches["main"].Local.Equal(Normal(cA)))
	require.Equal(t, cA, v.HeadIDs[0])
}
