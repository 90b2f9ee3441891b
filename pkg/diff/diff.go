// Package diff implements the line/word diff and unified-hunk assembly of
// spec §4.8 (C10), consumed by pkg/annotate and by external callers (the
// CLI's diff rendering, out of this package's scope). The operation
// vocabulary (Matching/Different hunks, context trimming) follows the shape
// of the teacher's modules/diferenco package (Operation{Delete,Insert,
// Equal}, sink.go's hunk assembly), generalized from a strict two-input
// diff to the N-input form spec §4.8 describes ("Diff::by_line(inputs)"),
// needed for merge-tool style side-by-side comparisons.
package diff

import (
	"bytes"
	"sort"
)

// HunkKind discriminates a Matching run (identical content across every
// input) from a Different run (content varies per input).
type HunkKind uint8

const (
	Matching HunkKind = iota
	Different
)

// Hunk is one segment of a multi-input diff (spec §4.8). For a Matching
// hunk, Contents has exactly one element (the shared content, repeated
// once). For a Different hunk, Contents has one element per input,
// possibly empty for an input that contributed nothing in this span.
type Hunk struct {
	Kind     HunkKind
	Contents [][][]byte // Contents[inputIdx] = token slice contributed by that input
}

// pairAnchor is one position in input 0 matched against every other input.
type pairAnchor struct {
	i    int   // index into inputs[0]
	js   []int // js[k] = matched index into inputs[k+1]
}

// lcsPairs computes a longest common subsequence between a and b via
// classic O(len(a)*len(b)) dynamic programming, returning matched index
// pairs (ai, bi) in increasing order. Token equality is byte-exact.
func lcsPairs(a, b [][]byte) [][2]int {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}
	// dp[i][j] = LCS length of a[i:], b[j:]
	dp := make([][]int32, n+1)
	for i := range dp {
		dp[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if bytes.Equal(a[i], b[j]) {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	var pairs [][2]int
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case bytes.Equal(a[i], b[j]):
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}

// ByLine computes a multi-input line-level diff (spec §4.8 "Diff::by_line").
// Each element of inputs is one input's lines. Anchors are input-0 indices
// whose content is matched, via pairwise LCS against input 0, in every
// other input simultaneously; since LCS only ever matches equal tokens,
// any such anchor's content is trivially identical across all inputs by
// transitivity, so no further equality check is needed.
func ByLine(inputs [][][]byte) []Hunk {
	return byTokens(inputs)
}

// ByWord is ByLine's word-granularity counterpart (spec §4.8 "by_word"),
// used both directly and to sub-tokenize the Different spans ByLine
// produces (spec's "word-level sub-tokenization ... enriches each line").
func ByWord(inputs [][][]byte) []Hunk {
	return byTokens(inputs)
}

func byTokens(inputs [][][]byte) []Hunk {
	n := len(inputs)
	if n == 0 {
		return nil
	}
	if n == 1 {
		if len(inputs[0]) == 0 {
			return nil
		}
		return []Hunk{{Kind: Matching, Contents: [][][]byte{inputs[0]}}}
	}

	// pairs[k] = LCS pairs between inputs[0] and inputs[k+1].
	pairs := make([][][2]int, n-1)
	matchedJ := make([]map[int]int, n-1) // matchedJ[k][i0] = j in inputs[k+1]
	for k := 1; k < n; k++ {
		p := lcsPairs(inputs[0], inputs[k])
		pairs[k-1] = p
		m := make(map[int]int, len(p))
		for _, pr := range p {
			m[pr[0]] = pr[1]
		}
		matchedJ[k-1] = m
	}

	var anchorIdx []int
	for i := range inputs[0] {
		ok := true
		js := make([]int, n-1)
		for k := 0; k < n-1; k++ {
			j, found := matchedJ[k][i]
			if !found {
				ok = false
				break
			}
			js[k] = j
		}
		if ok {
			anchorIdx = append(anchorIdx, i)
			_ = js
		}
	}
	sort.Ints(anchorIdx)

	anchors := make([]pairAnchor, 0, len(anchorIdx))
	for _, i := range anchorIdx {
		js := make([]int, n-1)
		for k := 0; k < n-1; k++ {
			js[k] = matchedJ[k][i]
		}
		anchors = append(anchors, pairAnchor{i: i, js: js})
	}

	var hunks []Hunk
	prev := make([]int, n) // prev[0] tracks input0, prev[k+1] tracks inputs[k+1]
	emitDifferent := func(upToI int, upToJ []int) {
		contents := make([][][]byte, n)
		any := false
		contents[0] = inputs[0][prev[0]:upToI]
		if len(contents[0]) > 0 {
			any = true
		}
		for k := 0; k < n-1; k++ {
			contents[k+1] = inputs[k+1][prev[k+1]:upToJ[k]]
			if len(contents[k+1]) > 0 {
				any = true
			}
		}
		if any {
			hunks = append(hunks, Hunk{Kind: Different, Contents: contents})
		}
	}

	idx := 0
	for idx < len(anchors) {
		// Find a maximal contiguous run of anchors (each position exactly
		// one past the previous one in every input) to batch into a
		// single Matching hunk.
		start := idx
		end := idx
		for end+1 < len(anchors) &&
			anchors[end+1].i == anchors[end].i+1 &&
			allJsContiguous(anchors[end], anchors[end+1]) {
			end++
		}
		upToJ := make([]int, n-1)
		for k := range upToJ {
			upToJ[k] = anchors[start].js[k]
		}
		emitDifferent(anchors[start].i, upToJ)

		matched := inputs[0][anchors[start].i : anchors[end].i+1]
		hunks = append(hunks, Hunk{Kind: Matching, Contents: [][][]byte{matched}})

		prev[0] = anchors[end].i + 1
		for k := 0; k < n-1; k++ {
			prev[k+1] = anchors[end].js[k] + 1
		}
		idx = end + 1
	}

	tailJ := make([]int, n-1)
	for k := range tailJ {
		tailJ[k] = len(inputs[k+1])
	}
	emitDifferent(len(inputs[0]), tailJ)

	return hunks
}

func allJsContiguous(a, b pairAnchor) bool {
	for k := range a.js {
		if b.js[k] != a.js[k]+1 {
			return false
		}
	}
	return true
}
