package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/store"
	"github.com/hexroot-vcs/core/pkg/view"
)

func sig(name string) object.Signature {
	return object.Signature{Name: name, Email: name + "@example.com", When: time.Unix(1700000000, 0)}
}

func newTestLoader() *RepoLoader {
	return NewRepoLoader(store.DefaultFactories())
}

func TestInitThenLoadRoundTrip(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	r, err := loader.Init(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	require.NotNil(t, r.Operation())
	require.Empty(t, r.View().HeadIDs)
	require.NoError(t, r.Close())

	r2, err := loader.Load(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer r2.Close()
	require.Equal(t, r.Operation().ID, r2.Operation().ID)
}

func TestTransactionWriteCommitAndPublish(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	r, err := loader.Init(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer r.Close()

	treeID, err := r.Store().WriteTree(object.NewTree(nil))
	require.NoError(t, err)
	c := object.ForNewCommit([]oid.CommitID{r.Store().RootCommitID()}, treeID, sig("a"), sig("a")).Build()

	txn := r.StartTransaction("first commit", "alice", "host1")
	written, err := txn.RepoMut().WriteCommit(c)
	require.NoError(t, err)
	require.False(t, written.ID.IsZero())
	require.Equal(t, []string{written.ID.String()}, headStrings(txn.RepoMut().View().HeadIDs))

	unpub, err := txn.Write()
	require.NoError(t, err)
	newRepo, err := unpub.Publish()
	require.NoError(t, err)
	defer newRepo.Close()

	require.Equal(t, []string{written.ID.String()}, headStrings(newRepo.View().HeadIDs))
	require.NotEqual(t, r.Operation().ID, newRepo.Operation().ID)

	reloaded, err := loader.Load(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer reloaded.Close()
	require.Equal(t, newRepo.Operation().ID, reloaded.Operation().ID)
}

func TestConcurrentOperationsMergeOnLoad(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	base, err := loader.Init(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer base.Close()

	treeID, err := base.Store().WriteTree(object.NewTree(nil))
	require.NoError(t, err)

	// Two independent transactions both starting from the same base
	// operation, each adding a distinct root-child commit as a head,
	// simulating two concurrent writers racing on op-heads.
	c1 := object.ForNewCommit([]oid.CommitID{base.Store().RootCommitID()}, treeID, sig("a"), sig("a")).Build()
	txn1 := base.StartTransaction("writer one", "alice", "host1")
	w1, err := txn1.RepoMut().WriteCommit(c1)
	require.NoError(t, err)
	unpub1, err := txn1.Write()
	require.NoError(t, err)
	repo1, err := unpub1.Publish()
	require.NoError(t, err)
	defer repo1.Close()

	c2 := object.ForNewCommit([]oid.CommitID{base.Store().RootCommitID()}, treeID, sig("b"), sig("b")).Build()
	txn2 := base.StartTransaction("writer two", "bob", "host2")
	w2, err := txn2.RepoMut().WriteCommit(c2)
	require.NoError(t, err)
	unpub2, err := txn2.Write()
	require.NoError(t, err)

	// Force this operation to become a second head directly (bypassing
	// Publish's remove-then-add, which would otherwise drop base's head).
	require.NoError(t, base.OpHeads().AddHead(unpub2.Operation().ID))

	merged, err := loader.Load(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer merged.Close()

	gotHeads := headStrings(merged.View().HeadIDs)
	require.ElementsMatch(t, []string{w1.ID.String(), w2.ID.String()}, gotHeads)
}

// TestConcurrentBranchMovesProduceConflictOnLoad is spec Scenario 3: two
// writers starting from the same operation both move branch "main" away
// from a shared base commit to distinct targets; a subsequent load must
// see a single merged operation whose branch is a genuine RefConflicted
// target with removes=[base] and adds=[X,Y] — not one side silently
// discarding the other's move.
func TestConcurrentBranchMovesProduceConflictOnLoad(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	init, err := loader.Init(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer init.Close()

	treeID, err := init.Store().WriteTree(object.NewTree(nil))
	require.NoError(t, err)

	// Establish branch "main" at commit A, published as its own operation
	// so both forked transactions below share it as their common ancestor.
	a := object.ForNewCommit([]oid.CommitID{init.Store().RootCommitID()}, treeID, sig("base"), sig("base")).Build()
	setupTxn := init.StartTransaction("create main", "alice", "host1")
	aCommit, err := setupTxn.RepoMut().WriteCommit(a)
	require.NoError(t, err)
	setupTxn.RepoMut().SetLocalBranch("main", view.Normal(aCommit.ID))
	unpubSetup, err := setupTxn.Write()
	require.NoError(t, err)
	repoA, err := unpubSetup.Publish()
	require.NoError(t, err)
	defer repoA.Close()

	// Writer one moves main to X.
	x := object.ForNewCommit([]oid.CommitID{aCommit.ID}, treeID, sig("p1"), sig("p1")).Build()
	txn1 := repoA.StartTransaction("move main to x", "alice", "host1")
	xCommit, err := txn1.RepoMut().WriteCommit(x)
	require.NoError(t, err)
	txn1.RepoMut().SetLocalBranch("main", view.Normal(xCommit.ID))
	unpub1, err := txn1.Write()
	require.NoError(t, err)
	repo1, err := unpub1.Publish()
	require.NoError(t, err)
	defer repo1.Close()

	// Writer two, forked from the same repoA snapshot (op1), moves main to
	// Y and becomes a second concurrent head instead of going through
	// Publish's remove-then-add (which would try to remove op1, already
	// superseded by writer one's publish above).
	y := object.ForNewCommit([]oid.CommitID{aCommit.ID}, treeID, sig("p2"), sig("p2")).Build()
	txn2 := repoA.StartTransaction("move main to y", "bob", "host2")
	yCommit, err := txn2.RepoMut().WriteCommit(y)
	require.NoError(t, err)
	txn2.RepoMut().SetLocalBranch("main", view.Normal(yCommit.ID))
	unpub2, err := txn2.Write()
	require.NoError(t, err)
	require.NoError(t, repoA.OpHeads().AddHead(unpub2.Operation().ID))

	merged, err := loader.Load(Settings{RepoPath: dir, Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer merged.Close()

	branch, ok := merged.View().Branches["main"]
	require.True(t, ok)
	require.True(t, branch.Local.IsConflicted(), "expected main to be conflicted, got %+v", branch.Local)
	require.ElementsMatch(t, []string{aCommit.ID.String()}, headStrings(branch.Local.Removes))
	require.ElementsMatch(t, []string{xCommit.ID.String(), yCommit.ID.String()}, headStrings(branch.Local.Adds))
}

func TestMergeViewsBranchConflict(t *testing.T) {
	baseV := view.NewView()
	leftV := baseV.Clone()
	rightV := baseV.Clone()

	var a, b oid.CommitID
	a[0] = 1
	b[0] = 2
	leftV.Branches["feature"] = &view.Branch{Local: view.Normal(a), Remotes: map[string]view.RemoteRef{}}
	rightV.Branches["feature"] = &view.Branch{Local: view.Normal(b), Remotes: map[string]view.RemoteRef{}}

	merged := MergeViews(baseV, leftV, rightV, nil)
	br, ok := merged.Branches["feature"]
	require.True(t, ok)
	require.True(t, br.Local.IsConflicted())
}

func TestDuplicateCommitGetsFreshChangeID(t *testing.T) {
	loader := newTestLoader()
	r, err := loader.Init(Settings{RepoPath: t.TempDir(), Backend: store.NativeBackendName})
	require.NoError(t, err)
	defer r.Close()

	treeID, err := r.Store().WriteTree(object.NewTree(nil))
	require.NoError(t, err)

	txn := r.StartTransaction("build", "alice", "host")
	orig, err := txn.RepoMut().NewCommit([]oid.CommitID{r.Store().RootCommitID()}, treeID, sig("a"), sig("a"), "original")
	require.NoError(t, err)

	dup, err := txn.RepoMut().DuplicateCommit(orig)
	require.NoError(t, err)

	require.NotEqual(t, orig.ID, dup.ID)
	require.NotEqual(t, orig.ChangeID, dup.ChangeID)
	require.Equal(t, orig.Tree, dup.Tree)
	require.Equal(t, orig.Description, dup.Description)
	require.ElementsMatch(t, []string{orig.ID.String(), dup.ID.String()}, headStrings(txn.RepoMut().View().HeadIDs))
}

func headStrings(ids []oid.CommitID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
