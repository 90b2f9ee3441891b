// Package trie implements the string-prefix trie of spec §4.9 (C11): a
// radix trie over byte sequences used to render commit/change ids with as
// few hex characters as unambiguously identify them. There is no direct
// teacher equivalent (modules/merkletrie is a tree-diff structure keyed on
// path segments, not a byte-radix prefix trie); the node/children shape
// follows the same byte-indexed branching idiom the teacher uses for tree
// traversal, adapted to raw bytes. The unique-prefix-length query is
// answered via a sorted key index alongside the trie rather than a trie
// walk: for any key, the key sharing the longest common prefix with it is
// always one of its two sorted neighbors, which turns the query into two
// prefix comparisons instead of a subtree census.
package trie

import "sort"

// node is one radix-trie node. edge holds the remaining byte sequence not
// yet consumed by ancestors.
type node struct {
	edge     []byte
	value    any
	hasValue bool
	children map[byte]*node
}

func newNode(edge []byte) *node {
	return &node{edge: edge, children: make(map[byte]*node)}
}

// Trie is a radix trie over byte-string keys, supporting unique-prefix
// length queries (spec §4.9).
type Trie struct {
	root    *node
	keys    [][]byte // kept sorted lazily; see sortedKeys
	dirty   bool
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{root: newNode(nil)}
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Insert associates key with value, splitting edges as needed to keep the
// trie radix-compressed.
func (t *Trie) Insert(key []byte, value any) {
	cur := t.root
	rest := key
	for {
		if len(rest) == 0 {
			if !cur.hasValue {
				t.keys = append(t.keys, append([]byte(nil), key...))
				t.dirty = true
			}
			cur.value = value
			cur.hasValue = true
			return
		}
		child, ok := cur.children[rest[0]]
		if !ok {
			leaf := newNode(append([]byte(nil), rest...))
			leaf.value = value
			leaf.hasValue = true
			cur.children[rest[0]] = leaf
			t.keys = append(t.keys, append([]byte(nil), key...))
			t.dirty = true
			return
		}
		shared := commonPrefixLen(rest, child.edge)
		if shared == len(child.edge) {
			rest = rest[shared:]
			cur = child
			continue
		}
		// Split child's edge at the divergence point.
		mid := newNode(child.edge[:shared])
		mid.children[child.edge[shared]] = child
		child.edge = child.edge[shared:]
		cur.children[rest[0]] = mid
		t.keys = append(t.keys, append([]byte(nil), key...))
		t.dirty = true
		if shared == len(rest) {
			mid.value = value
			mid.hasValue = true
			return
		}
		leaf := newNode(append([]byte(nil), rest[shared:]...))
		leaf.value = value
		leaf.hasValue = true
		mid.children[rest[shared]] = leaf
		return
	}
}

// Get returns the value inserted under key, if any.
func (t *Trie) Get(key []byte) (any, bool) {
	cur := t.root
	rest := key
	for {
		if len(rest) == 0 {
			if cur.hasValue {
				return cur.value, true
			}
			return nil, false
		}
		child, ok := cur.children[rest[0]]
		if !ok {
			return nil, false
		}
		shared := commonPrefixLen(rest, child.edge)
		if shared != len(child.edge) {
			return nil, false
		}
		rest = rest[shared:]
		cur = child
	}
}

func (t *Trie) sortedKeys() [][]byte {
	if t.dirty {
		sort.Slice(t.keys, func(i, j int) bool {
			return byteLess(t.keys[i], t.keys[j])
		})
		t.dirty = false
	}
	return t.keys
}

func byteLess(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// ShortestUniquePrefixLen returns the smallest n such that no other key in
// the trie shares the first n bytes with key; if key itself is a prefix of
// another key, returns len(key)+1 (spec §4.9, §8 "prefix-trie
// correctness"). The key sharing the longest common prefix with a given
// key is always adjacent to it in sorted order, so only the two sorted
// neighbors need checking.
func (t *Trie) ShortestUniquePrefixLen(key []byte) int {
	keys := t.sortedKeys()
	idx := sort.Search(len(keys), func(i int) bool { return !byteLess(keys[i], key) })

	maxCommon := 0
	longerNeighborExtendsKey := false
	checkNeighbor := func(other []byte) {
		if other == nil {
			return
		}
		c := commonPrefixLen(key, other)
		if c > maxCommon {
			maxCommon = c
		}
		if c == len(key) && len(other) > len(key) {
			longerNeighborExtendsKey = true
		}
	}
	// The key at idx may be key itself (an exact match, skip it) or the
	// first key greater than it; either way also check idx-1.
	if idx < len(keys) && !equalBytes(keys[idx], key) {
		checkNeighbor(keys[idx])
	}
	if idx > 0 {
		prev := keys[idx-1]
		if equalBytes(prev, key) && idx-1 > 0 {
			checkNeighbor(keys[idx-2])
		} else if !equalBytes(prev, key) {
			checkNeighbor(prev)
		}
	}
	// Also handle an exact duplicate entry one past idx (key present plus
	// a distinct longer key sharing the same run) by scanning forward
	// past any exact match.
	for idx < len(keys) && equalBytes(keys[idx], key) {
		idx++
		if idx < len(keys) {
			checkNeighbor(keys[idx])
		}
	}

	if longerNeighborExtendsKey {
		return len(key) + 1
	}
	if maxCommon+1 > len(key) {
		return len(key)
	}
	return maxCommon + 1
}

func equalBytes(a, b []byte) bool {
	return len(a) == len(b) && commonPrefixLen(a, b) == len(a)
}
