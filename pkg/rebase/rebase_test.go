package rebase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/repo"
	"github.com/hexroot-vcs/core/pkg/store"
	"github.com/hexroot-vcs/core/pkg/view"
)

func sig(name string) object.Signature {
	return object.Signature{Name: name, Email: name + "@example.com", When: time.Unix(1700000000, 0)}
}

func newRepoForTest(t *testing.T) *repo.ReadonlyRepo {
	t.Helper()
	loader := repo.NewRepoLoader(store.DefaultFactories())
	r, err := loader.Init(repo.Settings{RepoPath: t.TempDir(), Backend: store.NativeBackendName})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// TestRebaseRewrittenCommitPropagatesToChild builds a linear A -> B history,
// amends A into A2, and checks the rebaser produces a new B2 whose parent is
// A2, with B's branch retargeted to B2 and B's change-id preserved.
func TestRebaseRewrittenCommitPropagatesToChild(t *testing.T) {
	r := newRepoForTest(t)
	treeID, err := r.Store().WriteTree(object.NewTree(nil))
	require.NoError(t, err)

	txn := r.StartTransaction("build history", "alice", "host")
	a := object.ForNewCommit([]oid.CommitID{r.Store().RootCommitID()}, treeID, sig("a"), sig("a")).Build()
	aw, err := txn.RepoMut().WriteCommit(a)
	require.NoError(t, err)
	b := object.ForNewCommit([]oid.CommitID{aw.ID}, treeID, sig("a"), sig("a")).Build()
	bw, err := txn.RepoMut().WriteCommit(b)
	require.NoError(t, err)
	txn.RepoMut().SetLocalBranch("main", view.Normal(bw.ID))

	unpub, err := txn.Write()
	require.NoError(t, err)
	base, err := unpub.Publish()
	require.NoError(t, err)
	defer base.Close()

	amendTxn := base.StartTransaction("amend A", "alice", "host")
	a2 := object.ForRewriteFrom(aw).SetDescription("amended").Build()
	a2w, err := amendTxn.RepoMut().WriteCommit(a2)
	require.NoError(t, err)
	amendTxn.RepoMut().RecordRewrittenCommit(aw.ID, a2w.ID)

	require.NoError(t, Rebase(amendTxn.RepoMut()))

	finalView := amendTxn.RepoMut().View()
	branch, ok := finalView.Branches["main"]
	require.True(t, ok)
	newB, ok := branch.Local.AsNormal()
	require.True(t, ok)
	require.NotEqual(t, bw.ID, newB)

	newBCommit, err := amendTxn.RepoMut().Base().Store().GetCommit(newB)
	require.NoError(t, err)
	require.Equal(t, a2w.ID, newBCommit.Parents[0])
	require.Equal(t, b.ChangeID, newBCommit.ChangeID)
}

// TestRebaseAbandonedCommitSplicesParent builds A -> B -> C, abandons B, and
// checks the rebaser rewrites C to have A as its parent directly.
func TestRebaseAbandonedCommitSplicesParent(t *testing.T) {
	r := newRepoForTest(t)
	treeID, err := r.Store().WriteTree(object.NewTree(nil))
	require.NoError(t, err)

	txn := r.StartTransaction("build history", "alice", "host")
	a := object.ForNewCommit([]oid.CommitID{r.Store().RootCommitID()}, treeID, sig("a"), sig("a")).Build()
	aw, err := txn.RepoMut().WriteCommit(a)
	require.NoError(t, err)
	b := object.ForNewCommit([]oid.CommitID{aw.ID}, treeID, sig("b"), sig("b")).Build()
	bw, err := txn.RepoMut().WriteCommit(b)
	require.NoError(t, err)
	c := object.ForNewCommit([]oid.CommitID{bw.ID}, treeID, sig("c"), sig("c")).Build()
	cw, err := txn.RepoMut().WriteCommit(c)
	require.NoError(t, err)
	txn.RepoMut().SetLocalBranch("main", view.Normal(cw.ID))

	unpub, err := txn.Write()
	require.NoError(t, err)
	base, err := unpub.Publish()
	require.NoError(t, err)
	defer base.Close()

	abandonTxn := base.StartTransaction("abandon B", "alice", "host")
	abandonTxn.RepoMut().RecordAbandonedCommit(bw.ID)
	require.NoError(t, Rebase(abandonTxn.RepoMut()))

	finalView := abandonTxn.RepoMut().View()
	branch, ok := finalView.Branches["main"]
	require.True(t, ok)
	newC, ok := branch.Local.AsNormal()
	require.True(t, ok)
	require.NotEqual(t, cw.ID, newC)

	newCCommit, err := abandonTxn.RepoMut().Base().Store().GetCommit(newC)
	require.NoError(t, err)
	require.Equal(t, []oid.CommitID{aw.ID}, newCCommit.Parents)
}
