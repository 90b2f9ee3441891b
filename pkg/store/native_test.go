package store

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
)

func newTestNative(t *testing.T) ObjectStore {
	t.Helper()
	s, err := NewNative(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNativeWriteGetCommitRoundTrip(t *testing.T) {
	s := newTestNative(t)
	sig := object.Signature{Name: "a", Email: "a@x.io", When: time.Unix(1700000000, 0).UTC()}
	c := object.ForNewCommit(nil, oid.TreeID{}, sig, sig).SetDescription("hello").Build()

	id, err := s.WriteCommit(c)
	require.NoError(t, err)
	require.False(t, id.IsZero())

	got, err := s.GetCommit(id)
	require.NoError(t, err)
	require.Equal(t, c.ChangeID, got.ChangeID)
	require.Equal(t, "hello", got.Description)
}

func TestNativeWriteCommitIsIdempotent(t *testing.T) {
	s := newTestNative(t)
	sig := object.Signature{Name: "a", Email: "a@x.io", When: time.Unix(1700000000, 0).UTC()}
	c := object.ForNewCommit(nil, oid.TreeID{}, sig, sig).SetDescription("hello").Build()

	id1, err := s.WriteCommit(c)
	require.NoError(t, err)
	id2, err := s.WriteCommit(c)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestNativeGetCommitNotFound(t *testing.T) {
	s := newTestNative(t)
	_, err := s.GetCommit(oid.NewCommitID("deadbeef"))
	require.Error(t, err)
}

func TestNativeTreeRoundTrip(t *testing.T) {
	s := newTestNative(t)
	tr := object.NewTree([]*object.TreeEntry{
		{Name: "a.txt", Kind: object.EntryFile, FileID: oid.NewFileID("aa")},
	})
	id, err := s.WriteTree(tr)
	require.NoError(t, err)

	got, err := s.ReadTree(id)
	require.NoError(t, err)
	require.True(t, tr.Equal(got))
}

func TestNativeFileRoundTrip(t *testing.T) {
	s := newTestNative(t)
	content := []byte("the quick brown fox jumps over the lazy dog, repeated many times to make compression meaningful. " +
		"the quick brown fox jumps over the lazy dog, repeated many times to make compression meaningful.")
	id, err := s.WriteFile(bytes.NewReader(content))
	require.NoError(t, err)

	rc, err := s.ReadFile(id)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestNativeRootCommitID(t *testing.T) {
	s := newTestNative(t)
	require.True(t, s.RootCommitID().IsZero())
	c, err := s.GetCommit(s.RootCommitID())
	require.NoError(t, err)
	require.True(t, c.IsRoot())
}

func TestDefaultFactoriesResolvesNative(t *testing.T) {
	f := DefaultFactories()
	s, err := f.New(NativeBackendName, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, NativeBackendName, s.Name())
	require.NoError(t, s.Close())
}
