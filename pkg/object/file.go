package object

import (
	"io"

	"github.com/hexroot-vcs/core/pkg/oid"
)

// ValueKind discriminates the materialized path values used by diff and
// annotate (spec §4.1): absent, file, symlink, git-submodule, tree,
// conflict, or access-denied (a backend read that failed for permission
// reasons rather than a missing object).
type ValueKind uint8

const (
	ValueAbsent ValueKind = iota
	ValueFile
	ValueSymlink
	ValueGitSubmodule
	ValueTree
	ValueConflict
	ValueAccessDenied
)

func (k ValueKind) String() string {
	switch k {
	case ValueAbsent:
		return "absent"
	case ValueFile:
		return "file"
	case ValueSymlink:
		return "symlink"
	case ValueGitSubmodule:
		return "git-submodule"
	case ValueTree:
		return "tree"
	case ValueConflict:
		return "conflict"
	case ValueAccessDenied:
		return "access-denied"
	default:
		return "unknown"
	}
}

// MaterializedValue is the resolved content at a path, the common currency
// between the object store, pkg/diff and pkg/annotate (spec §4.1). Readers
// of a ValueFile are responsible for closing Reader when non-nil.
type MaterializedValue struct {
	Kind       ValueKind
	Reader     io.ReadCloser // valid when Kind == ValueFile
	FileID     oid.FileID    // valid when Kind == ValueFile
	Executable bool          // valid when Kind == ValueFile
	SymlinkID  oid.FileID    // valid when Kind == ValueSymlink
	Target     string        // valid when Kind == ValueSymlink
	Submodule  oid.ID        // valid when Kind == ValueGitSubmodule
	TreeID     oid.TreeID    // valid when Kind == ValueTree
	ConflictID oid.FileID    // valid when Kind == ValueConflict: id of the materialized conflict marker blob
	Conflict   *Conflict     // valid when Kind == ValueConflict
	DeniedErr  error         // valid when Kind == ValueAccessDenied
}

// AbsentValue is the shared absent sentinel; absent values carry no payload.
func AbsentValue() MaterializedValue { return MaterializedValue{Kind: ValueAbsent} }

// FromTreeEntry converts a tree entry (the store's static shape) into the
// materialized value diff/annotate consume, without resolving FileID
// content to a reader — callers needing bytes call a store's ReadFile and
// set Reader themselves, keeping this package store-agnostic.
func FromTreeEntry(e *TreeEntry) MaterializedValue {
	if e == nil {
		return AbsentValue()
	}
	switch e.Kind {
	case EntryFile:
		return MaterializedValue{Kind: ValueFile, FileID: e.FileID, Executable: e.Executable}
	case EntrySymlink:
		return MaterializedValue{Kind: ValueSymlink, Target: e.Target}
	case EntryGitSubmodule:
		return MaterializedValue{Kind: ValueGitSubmodule, Submodule: e.Submodule}
	case EntryTree:
		return MaterializedValue{Kind: ValueTree, TreeID: e.TreeID}
	case EntryConflict:
		return MaterializedValue{Kind: ValueConflict, Conflict: e.Conflict}
	default:
		return AbsentValue()
	}
}

// AccessDenied wraps a backend read failure that should be reported to the
// caller as part of the diff/annotate stream rather than aborting it,
// matching spec §4.1's "access-denied" materialized kind.
func AccessDenied(err error) MaterializedValue {
	return MaterializedValue{Kind: ValueAccessDenied, DeniedErr: err}
}
