package diff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lines(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestByLineIdenticalIsOneMatchingHunk(t *testing.T) {
	a := lines("one", "two", "three")
	hunks := ByLine([][][]byte{a, a})
	require.Len(t, hunks, 1)
	require.Equal(t, Matching, hunks[0].Kind)
	require.Equal(t, a, hunks[0].Contents[0])
}

func TestByLineSingleInsertion(t *testing.T) {
	left := lines("one", "two", "three")
	right := lines("one", "two", "NEW", "three")
	hunks := ByLine([][][]byte{left, right})

	require.Equal(t, Matching, hunks[0].Kind)
	require.Equal(t, Different, hunks[1].Kind)
	require.Empty(t, hunks[1].Contents[0])
	require.Equal(t, [][]byte{[]byte("NEW")}, hunks[1].Contents[1])
	require.Equal(t, Matching, hunks[2].Kind)
}

func TestByLineThreeWayCommonLineAcrossAll(t *testing.T) {
	a := lines("shared", "a-only")
	b := lines("shared", "b-only")
	c := lines("shared", "c-only")
	hunks := ByLine([][][]byte{a, b, c})

	require.Equal(t, Matching, hunks[0].Kind)
	require.Equal(t, [][]byte{[]byte("shared")}, hunks[0].Contents[0])
	require.Equal(t, Different, hunks[1].Kind)
	require.Equal(t, [][]byte{[]byte("a-only")}, hunks[1].Contents[0])
	require.Equal(t, [][]byte{[]byte("b-only")}, hunks[1].Contents[1])
	require.Equal(t, [][]byte{[]byte("c-only")}, hunks[1].Contents[2])
}

func TestUnifiedDiffHunksSplitsOnLargeGap(t *testing.T) {
	var left, right [][]byte
	for i := 0; i < 50; i++ {
		left = append(left, []byte("context"))
		right = append(right, []byte("context"))
	}
	left[5] = []byte("removed")
	right[45] = []byte("added")

	hunks := UnifiedDiffHunks(left, right, 2, nil)
	require.Len(t, hunks, 2)
}

func TestUnifiedDiffHunksMergesCloseChanges(t *testing.T) {
	var left, right [][]byte
	for i := 0; i < 10; i++ {
		left = append(left, []byte("context"))
		right = append(right, []byte("context"))
	}
	left[3] = []byte("removed")
	right[6] = []byte("added")

	hunks := UnifiedDiffHunks(left, right, 2, nil)
	require.Len(t, hunks, 1)
}

func TestWordDiffLineHighlightsChangedWord(t *testing.T) {
	removedRuns, addedRuns := WordDiffLine([]byte("the quick fox"), []byte("the slow fox"))
	var removedChanged, addedChanged []byte
	for _, r := range removedRuns {
		if r.Different {
			removedChanged = append(removedChanged, r.Token...)
		}
	}
	for _, r := range addedRuns {
		if r.Different {
			addedChanged = append(addedChanged, r.Token...)
		}
	}
	require.Equal(t, "quick", string(removedChanged))
	require.Equal(t, "slow", string(addedChanged))
}
