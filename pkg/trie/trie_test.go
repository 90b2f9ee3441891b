package trie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortestUniquePrefixLenDisjoint(t *testing.T) {
	tr := New()
	tr.Insert([]byte("abcdef"), 1)
	tr.Insert([]byte("ghijkl"), 2)
	require.Equal(t, 1, tr.ShortestUniquePrefixLen([]byte("abcdef")))
	require.Equal(t, 1, tr.ShortestUniquePrefixLen([]byte("ghijkl")))
}

func TestShortestUniquePrefixLenSharedPrefix(t *testing.T) {
	tr := New()
	tr.Insert([]byte("abcd"), 1)
	tr.Insert([]byte("abef"), 2)
	tr.Insert([]byte("ab"), 3)
	require.Equal(t, 3, tr.ShortestUniquePrefixLen([]byte("abcd")))
	require.Equal(t, 3, tr.ShortestUniquePrefixLen([]byte("abef")))
}

func TestShortestUniquePrefixLenKeyIsPrefixOfAnother(t *testing.T) {
	tr := New()
	tr.Insert([]byte("ab"), 1)
	tr.Insert([]byte("abcd"), 2)
	require.Equal(t, 3, tr.ShortestUniquePrefixLen([]byte("ab")))
}

func TestShortestUniquePrefixLenSingleKey(t *testing.T) {
	tr := New()
	tr.Insert([]byte("abcdef"), 1)
	require.Equal(t, 1, tr.ShortestUniquePrefixLen([]byte("abcdef")))
}

func TestGetRoundtrip(t *testing.T) {
	tr := New()
	tr.Insert([]byte("deadbeef"), "commit-a")
	tr.Insert([]byte("deadc0de"), "commit-b")

	v, ok := tr.Get([]byte("deadbeef"))
	require.True(t, ok)
	require.Equal(t, "commit-a", v)

	_, ok = tr.Get([]byte("dead"))
	require.False(t, ok)

	_, ok = tr.Get([]byte("nope"))
	require.False(t, ok)
}

func TestInsertSplitsEdgeCorrectly(t *testing.T) {
	tr := New()
	tr.Insert([]byte("123456"), "a")
	tr.Insert([]byte("123abc"), "b")
	tr.Insert([]byte("12ff00"), "c")

	va, _ := tr.Get([]byte("123456"))
	vb, _ := tr.Get([]byte("123abc"))
	vc, _ := tr.Get([]byte("12ff00"))
	require.Equal(t, "a", va)
	require.Equal(t, "b", vb)
	require.Equal(t, "c", vc)
}
