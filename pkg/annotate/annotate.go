// Package annotate implements the blame engine of spec §4.7 (C9):
// per-line commit attribution for a file at a starting commit, walking its
// ancestry and forwarding still-unattributed lines to whichever parent
// they came from until every line has originated somewhere. The dual
// original_line_map/local_line_map bookkeeping is carried over verbatim in
// semantics from original_source's `lib/src/annotate.rs` (see DESIGN.md);
// there is no teacher equivalent (modules/zeta/object/patch.go builds
// patches between two trees, not per-line DAG attribution), so the walk
// structure is grounded on pkg/index's WalkRevs (itself grounded on the
// teacher's commit_walker_topo_order.go) and the line matching on
// pkg/diff.ByLine.
package annotate

import (
	"bytes"
	"io"
	"strings"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/diff"
	"github.com/hexroot-vcs/core/pkg/index"
	"github.com/hexroot-vcs/core/pkg/object"
	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/store"
)

// Line is one attributed line of the starting file: which commit
// originated it, and its content (taken from the starting commit's file,
// since original_line_map indexes into that fixed numbering throughout the
// walk).
type Line struct {
	CommitID oid.CommitID
	Bytes    []byte
}

// Result is the completed per-line attribution of spec §4.7.
type Result struct {
	Lines []Line
}

// splitPath splits a slash-separated repo path into tree-walk segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func splitLines(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	lines := bytes.Split(b, []byte("\n"))
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}
	return lines
}

// loadFile walks the commit's tree along segments and returns the file's
// lines. ok is false (with a nil error) when the path does not resolve to
// a plain file at this commit — the caller treats that as "this ancestor
// doesn't have the file", not as a hard failure (spec §4.7 step 3: "For
// each non-missing parent edge").
func loadFile(objStore store.ObjectStore, commitID oid.CommitID, segments []string) ([][]byte, bool, error) {
	c, err := objStore.GetCommit(commitID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	treeID := c.Tree
	for _, seg := range segments[:len(segments)-1] {
		tree, err := objStore.ReadTree(treeID)
		if err != nil {
			if errs.IsNotFound(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		entry, ok := tree.Entry(seg)
		if !ok || entry.Kind != object.EntryTree {
			return nil, false, nil
		}
		treeID = entry.TreeID
	}
	tree, err := objStore.ReadTree(treeID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	entry, ok := tree.Entry(segments[len(segments)-1])
	if !ok || entry.Kind != object.EntryFile {
		return nil, false, nil
	}
	r, err := objStore.ReadFile(entry.FileID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	return splitLines(content), true, nil
}

// Annotate computes per-line attribution for path as of starting (spec
// §4.7). Fails with a NotFound error if starting lacks the file entirely.
func Annotate(objStore store.ObjectStore, idx *index.Index, starting oid.CommitID, path string) (*Result, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, errs.NewNotFound("file", path)
	}
	startLines, ok, err := loadFile(objStore, starting, segments)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NewNotFound("file", path)
	}
	numLines := len(startLines)

	originalLineMap := make(map[int]oid.CommitID, numLines)
	localLineMap := make(map[oid.CommitID]map[int]int)
	identity := make(map[int]int, numLines)
	for i := range startLines {
		identity[i] = i
	}
	localLineMap[starting] = identity

	// fileCache avoids re-reading a commit's file content once already
	// loaded, since the same commit can be a parent of more than one walked
	// descendant at a DAG merge point.
	fileCache := make(map[oid.CommitID][][]byte)
	cachedLoad := func(id oid.CommitID) ([][]byte, bool, error) {
		if lines, ok := fileCache[id]; ok {
			return lines, true, nil
		}
		lines, ok, err := loadFile(objStore, id, segments)
		if err != nil {
			return nil, false, err
		}
		if ok {
			fileCache[id] = lines
		}
		return lines, ok, nil
	}
	fileCache[starting] = startLines

	entries := idx.WalkRevs([]oid.CommitID{starting}, nil)
	for _, e := range entries {
		if numLines > 0 && len(originalLineMap) == numLines {
			break
		}
		cLines, ok := localLineMap[e.CommitID]
		if !ok || len(cLines) == 0 {
			continue
		}
		cContent, cOk, err := cachedLoad(e.CommitID)
		if err != nil {
			return nil, err
		}
		if cOk {
			for _, pp := range e.ParentPositions {
				if len(cLines) == 0 {
					break
				}
				parentID := idx.CommitIDAt(pp)
				pContent, pOk, err := cachedLoad(parentID)
				if err != nil {
					return nil, err
				}
				if !pOk {
					continue // missing edge: file doesn't exist on this parent
				}
				forwardMatches(cContent, pContent, cLines, localLineMap, parentID)
			}
		}
		for _, orig := range cLines {
			originalLineMap[orig] = e.CommitID
		}
		delete(localLineMap, e.CommitID)
	}

	lines := make([]Line, numLines)
	for i := 0; i < numLines; i++ {
		lines[i] = Line{CommitID: originalLineMap[i], Bytes: startLines[i]}
	}
	return &Result{Lines: lines}, nil
}

// forwardMatches diffs a commit's file content against one parent's,
// forwarding every still-unattributed matched line from cLines into that
// parent's local line map and removing it from cLines (spec §4.7 step 3).
func forwardMatches(cContent, pContent [][]byte, cLines map[int]int, localLineMap map[oid.CommitID]map[int]int, parentID oid.CommitID) {
	hunks := diff.ByLine([][][]byte{cContent, pContent})
	ci, pi := 0, 0
	for _, h := range hunks {
		switch h.Kind {
		case diff.Matching:
			n := len(h.Contents[0])
			for k := 0; k < n; k++ {
				if orig, ok := cLines[ci]; ok {
					dst := localLineMap[parentID]
					if dst == nil {
						dst = make(map[int]int)
						localLineMap[parentID] = dst
					}
					dst[pi] = orig
					delete(cLines, ci)
				}
				ci++
				pi++
			}
		case diff.Different:
			ci += len(h.Contents[0])
			pi += len(h.Contents[1])
		}
	}
}
