// Package opheads implements the op-heads store of spec §4.2 (C3): the
// on-disk set of current operation head ids and the coarse lock that
// serializes concurrent writers. The lock-file technique
// (O_CREATE|O_EXCL, remove-on-release) mirrors the teacher's
// modules/zeta/refs/filesystem.go openNotExists/lockPackedRefs pattern,
// generalized from locking one packed-refs file to locking one op-heads
// set file.
package opheads

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hexroot-vcs/core/internal/errs"
	"github.com/hexroot-vcs/core/pkg/oid"
)

const headsFileName = "op-heads"
const lockFileName = "op-heads.lock"

// Store tracks the current operation head set on disk.
type Store struct {
	dir string
}

// Open opens (creating the heads file with no heads if absent) an op-heads
// store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.NewBackend("opheads: mkdir", err)
	}
	path := filepath.Join(dir, headsFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return nil, errs.NewBackend("opheads: init", err)
		}
	}
	return &Store{dir: dir}, nil
}

// Lock is held between GetHeads observing multiple heads and the caller's
// Finish call, guaranteeing no other writer finishes a merge in between
// (spec §4.2 "Unresolved{locked_op_heads, op_heads}").
type Lock struct {
	store *Store
	path  string
	file  *os.File
}

// Outcome is the result of GetHeads: either a single unambiguous head, or
// multiple concurrent heads with the store's lock already held so the
// caller can merge them and Finish under the same lock.
type Outcome struct {
	Heads []oid.OperationID
	Lock  *Lock // non-nil iff len(Heads) > 1
}

func (s *Store) headsPath() string { return filepath.Join(s.dir, headsFileName) }
func (s *Store) lockPath() string  { return filepath.Join(s.dir, lockFileName) }

func (s *Store) readHeads() ([]oid.OperationID, error) {
	raw, err := os.ReadFile(s.headsPath())
	if err != nil {
		return nil, err
	}
	var heads []oid.OperationID
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		heads = append(heads, oid.NewOperationID(line))
	}
	return heads, nil
}

func openLockFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
}

// GetHeads returns Single(op) when there is exactly one head. When there
// are multiple (a race occurred: concurrent writers both published against
// the same prior head set), it acquires the lock and returns it alongside
// the full head list so the caller can merge them into one new operation
// and Finish while still holding it (spec §4.2).
func (s *Store) GetHeads() (*Outcome, error) {
	heads, err := s.readHeads()
	if err != nil {
		return nil, errs.NewBackend("get_heads", err)
	}
	if len(heads) <= 1 {
		return &Outcome{Heads: heads}, nil
	}
	file, err := openLockFile(s.lockPath())
	if err != nil {
		if os.IsExist(err) {
			return nil, errs.NewConcurrentModification("op-heads lock held by another writer")
		}
		return nil, errs.NewBackend("get_heads: lock", err)
	}
	// Re-read under the lock: another writer may have just finished a
	// merge between our unlocked read and acquiring the lock.
	heads, err = s.readHeads()
	if err != nil {
		_ = releaseLock(file, s.lockPath())
		return nil, errs.NewBackend("get_heads", err)
	}
	if len(heads) <= 1 {
		_ = releaseLock(file, s.lockPath())
		return &Outcome{Heads: heads}, nil
	}
	return &Outcome{Heads: heads, Lock: &Lock{store: s, path: s.lockPath(), file: file}}, nil
}

func releaseLock(file *os.File, path string) error {
	_ = file.Close()
	return os.Remove(path)
}

// Finish atomically replaces the previous head set with {newHead},
// releasing the lock if one was held (spec §4.2 "finish(new_head_id)").
func (l *Lock) Finish(newHead oid.OperationID) error {
	defer releaseLock(l.file, l.path)
	return writeHeadsAtomic(l.store.headsPath(), []oid.OperationID{newHead})
}

// Finish is the no-lock-held variant, used when GetHeads returned a single
// head (no race) and the caller publishes its own successor.
func (s *Store) Finish(newHead oid.OperationID) error {
	return writeHeadsAtomic(s.headsPath(), []oid.OperationID{newHead})
}

func writeHeadsAtomic(path string, heads []oid.OperationID) error {
	sorted := append([]oid.OperationID(nil), heads...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	var sb strings.Builder
	for _, h := range sorted {
		sb.WriteString(h.String())
		sb.WriteByte('\n')
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-op-heads-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(sb.String()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// AddHead adds opID to the current head set without removing any other
// (used by transaction publication alongside RemoveHead when retargeting a
// single predecessor operation to a successor, spec §4.2).
func (s *Store) AddHead(opID oid.OperationID) error {
	heads, err := s.readHeads()
	if err != nil {
		return errs.NewBackend("add_head", err)
	}
	for _, h := range heads {
		if h == opID {
			return nil
		}
	}
	return writeHeadsAtomic(s.headsPath(), append(heads, opID))
}

// RemoveHead removes opID from the current head set, if present.
func (s *Store) RemoveHead(opID oid.OperationID) error {
	heads, err := s.readHeads()
	if err != nil {
		return errs.NewBackend("remove_head", err)
	}
	out := heads[:0]
	for _, h := range heads {
		if h != opID {
			out = append(out, h)
		}
	}
	return writeHeadsAtomic(s.headsPath(), out)
}
