package annotate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/index"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/store"
)

func sig(name string) object.Signature {
	return object.Signature{Name: name, Email: name + "@example.com", When: time.Unix(1700000000, 0)}
}

func writeFileCommit(t *testing.T, st store.ObjectStore, idx *index.Index, parents []oid.CommitID, path, content string) oid.CommitID {
	t.Helper()
	fileID, err := st.WriteFile(strings.NewReader(content))
	require.NoError(t, err)
	tree := object.NewTree([]*object.TreeEntry{{Name: path, Kind: object.EntryFile, FileID: fileID}})
	treeID, err := st.WriteTree(tree)
	require.NoError(t, err)
	c := object.ForNewCommit(parents, treeID, sig("author"), sig("author")).SetDescription("commit").Build()
	id, err := st.WriteCommit(c)
	require.NoError(t, err)
	c.ID = id
	require.NoError(t, idx.Add(c))
	return id
}

func TestAnnotateLinearHistory(t *testing.T) {
	st, err := store.NewNative(t.TempDir())
	require.NoError(t, err)
	defer st.Close()
	idx := index.New()

	a := writeFileCommit(t, st, idx, nil, "foo.txt", "line1\nline2\nline3\n")
	b := writeFileCommit(t, st, idx, []oid.CommitID{a}, "foo.txt", "line1\nline2-changed\nline3\n")
	c := writeFileCommit(t, st, idx, []oid.CommitID{b}, "foo.txt", "line1\nline2-changed\nline3\nline4\n")

	result, err := Annotate(st, idx, c, "foo.txt")
	require.NoError(t, err)
	require.Len(t, result.Lines, 4)
	require.Equal(t, a, result.Lines[0].CommitID)
	require.Equal(t, b, result.Lines[1].CommitID)
	require.Equal(t, a, result.Lines[2].CommitID)
	require.Equal(t, c, result.Lines[3].CommitID)
	require.Equal(t, "line1", string(result.Lines[0].Bytes))
	require.Equal(t, "line2-changed", string(result.Lines[1].Bytes))
}

func TestAnnotateMissingFileErrors(t *testing.T) {
	st, err := store.NewNative(t.TempDir())
	require.NoError(t, err)
	defer st.Close()
	idx := index.New()

	a := writeFileCommit(t, st, idx, nil, "foo.txt", "line1\n")
	_, err = Annotate(st, idx, a, "missing.txt")
	require.Error(t, err)
}
