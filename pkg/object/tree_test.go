package object

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/oid"
)

func sampleEntries() []*TreeEntry {
	return []*TreeEntry{
		{Name: "main.go", Kind: EntryFile, FileID: oid.NewFileID("aa"), Executable: false},
		{Name: "run.sh", Kind: EntryFile, FileID: oid.NewFileID("bb"), Executable: true},
		{Name: "link", Kind: EntrySymlink, Target: "main.go"},
		{Name: "sub", Kind: EntryTree, TreeID: oid.NewTreeID("cc")},
		{Name: "vendor", Kind: EntryGitSubmodule, Submodule: oid.FromHex("dd")},
	}
}

func TestTreeEncodeDecodeRoundTrip(t *testing.T) {
	tr := NewTree(sampleEntries())
	var buf bytes.Buffer
	require.NoError(t, tr.Encode(&buf))

	var got Tree
	require.NoError(t, got.Decode(bytes.NewReader(buf.Bytes())))
	require.True(t, tr.Equal(&got))
}

func TestTreeEntryNamesWithSpacesSurviveRoundTrip(t *testing.T) {
	entries := []*TreeEntry{
		{Name: "file with spaces.txt", Kind: EntryFile, FileID: oid.NewFileID("aa")},
		{Name: "a link with spaces", Kind: EntrySymlink, Target: "target with spaces"},
		{Name: "a tree with spaces", Kind: EntryTree, TreeID: oid.NewTreeID("bb")},
	}
	tr := NewTree(entries)
	var buf bytes.Buffer
	require.NoError(t, tr.Encode(&buf))

	var got Tree
	require.NoError(t, got.Decode(bytes.NewReader(buf.Bytes())))
	require.True(t, tr.Equal(&got))
	for i, e := range got.Entries {
		require.Equal(t, entries[i].Name, e.Name)
	}
}

func TestTreeSortsDirectoriesGitStyle(t *testing.T) {
	entries := []*TreeEntry{
		{Name: "foo-bar", Kind: EntryFile, FileID: oid.NewFileID("aa")},
		{Name: "foo", Kind: EntryTree, TreeID: oid.NewTreeID("bb")},
	}
	tr := NewTree(entries)
	require.Equal(t, "foo-bar", tr.Entries[0].Name)
	require.Equal(t, "foo", tr.Entries[1].Name)
}

func TestTreeEntryLookup(t *testing.T) {
	tr := NewTree(sampleEntries())
	e, ok := tr.Entry("run.sh")
	require.True(t, ok)
	require.True(t, e.Executable)

	_, ok = tr.Entry("missing")
	require.False(t, ok)
}

func TestTreeMergeReplacesAndAppends(t *testing.T) {
	tr := NewTree(sampleEntries())
	replacement := &TreeEntry{Name: "main.go", Kind: EntryFile, FileID: oid.NewFileID("ee"), Executable: true}
	addition := &TreeEntry{Name: "new.go", Kind: EntryFile, FileID: oid.NewFileID("ff")}

	merged := tr.Merge(replacement, addition)
	got, ok := merged.Entry("main.go")
	require.True(t, ok)
	require.Equal(t, oid.NewFileID("ee"), got.FileID)
	require.True(t, got.Executable)

	_, ok = merged.Entry("new.go")
	require.True(t, ok)

	// original tree is untouched
	orig, ok := tr.Entry("main.go")
	require.True(t, ok)
	require.False(t, orig.Executable)
}

func TestConflictResolved(t *testing.T) {
	single := &Conflict{Adds: []ConflictTerm{{Entry: &TreeEntry{Name: "f", Kind: EntryFile, FileID: oid.NewFileID("aa")}}}}
	resolved, ok := single.Resolved()
	require.True(t, ok)
	require.Equal(t, oid.NewFileID("aa"), resolved.FileID)

	unresolved := &Conflict{
		Removes: []ConflictTerm{{Entry: &TreeEntry{Name: "f", Kind: EntryFile, FileID: oid.NewFileID("base")}}},
		Adds: []ConflictTerm{
			{Entry: &TreeEntry{Name: "f", Kind: EntryFile, FileID: oid.NewFileID("left")}},
			{Entry: &TreeEntry{Name: "f", Kind: EntryFile, FileID: oid.NewFileID("right")}},
		},
	}
	_, ok = unresolved.Resolved()
	require.False(t, ok)
}

func TestConflictEqualIgnoresTermOrder(t *testing.T) {
	termA := ConflictTerm{Entry: &TreeEntry{Name: "f", Kind: EntryFile, FileID: oid.NewFileID("aa")}}
	termB := ConflictTerm{Entry: &TreeEntry{Name: "f", Kind: EntryFile, FileID: oid.NewFileID("bb")}}

	c1 := &Conflict{Removes: []ConflictTerm{termA}, Adds: []ConflictTerm{termA, termB}}
	c2 := &Conflict{Removes: []ConflictTerm{termA}, Adds: []ConflictTerm{termB, termA}}
	require.True(t, c1.Equal(c2))

	c3 := &Conflict{Removes: []ConflictTerm{termA}, Adds: []ConflictTerm{termB, termB}}
	require.False(t, c1.Equal(c3))
}

func TestConflictEncodeDecodeRoundTrip(t *testing.T) {
	entry := &TreeEntry{
		Name: "conflicted.go",
		Kind: EntryConflict,
		Conflict: &Conflict{
			Removes: []ConflictTerm{{Entry: &TreeEntry{Name: "conflicted.go", Kind: EntryFile, FileID: oid.NewFileID("base")}}},
			Adds: []ConflictTerm{
				{Entry: &TreeEntry{Name: "conflicted.go", Kind: EntryFile, FileID: oid.NewFileID("left")}},
				{}, // absent term
			},
		},
	}
	tr := NewTree([]*TreeEntry{entry})
	var buf bytes.Buffer
	require.NoError(t, tr.Encode(&buf))

	var got Tree
	require.NoError(t, got.Decode(bytes.NewReader(buf.Bytes())))
	require.Len(t, got.Entries, 1)
	require.Equal(t, EntryConflict, got.Entries[0].Kind)
	require.True(t, entry.Conflict.Equal(got.Entries[0].Conflict))
}
