package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hexroot-vcs/core/pkg/oid"
)

// TREE_MAGIC identifies the on-disk tree encoding.
var TREE_MAGIC = [4]byte{'W', 'T', 0x00, 0x01}

// EntryKind discriminates the kinds of value a tree path-segment can map
// to (spec §3 "Tree / File / Conflict").
type EntryKind uint8

const (
	EntryFile EntryKind = iota
	EntrySymlink
	EntryTree
	EntryGitSubmodule
	EntryConflict
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntrySymlink:
		return "symlink"
	case EntryTree:
		return "tree"
	case EntryGitSubmodule:
		return "submodule"
	case EntryConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// TreeEntry is one mapping from a path segment to a value: a file (with an
// executable bit), a symlink target, a sub-tree, a Git submodule commit id,
// or a first-class conflict.
type TreeEntry struct {
	Name       string
	Kind       EntryKind
	FileID     oid.FileID // valid when Kind == EntryFile
	Executable bool       // valid when Kind == EntryFile
	Target     string     // valid when Kind == EntrySymlink
	TreeID     oid.TreeID // valid when Kind == EntryTree
	Submodule  oid.ID     // valid when Kind == EntryGitSubmodule
	Conflict   *Conflict  // valid when Kind == EntryConflict
}

// Equal reports whether two entries name the same value (name, kind and
// content id all match).
func (e *TreeEntry) Equal(o *TreeEntry) bool {
	if (e == nil) != (o == nil) {
		return false
	}
	if e == nil {
		return true
	}
	if e.Name != o.Name || e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case EntryFile:
		return e.FileID == o.FileID && e.Executable == o.Executable
	case EntrySymlink:
		return e.Target == o.Target
	case EntryTree:
		return e.TreeID == o.TreeID
	case EntryGitSubmodule:
		return e.Submodule == o.Submodule
	case EntryConflict:
		return e.Conflict.Equal(o.Conflict)
	}
	return false
}

func (e *TreeEntry) Clone() *TreeEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Conflict != nil {
		c.Conflict = e.Conflict.Clone()
	}
	return &c
}

// ConflictTerm is one signed element of a conflict multiset: a possible
// tree-entry value for this path. A nil Entry represents "absent" as a
// term (used when a remove/add side had no entry at that path at all).
type ConflictTerm struct {
	Entry *TreeEntry
}

// Conflict is the first-class conflict value of spec §3: a balanced
// multiset of "removes" and "adds" terms of the same element type. It
// resolves when Removes is empty and Adds has exactly one element.
type Conflict struct {
	Removes []ConflictTerm
	Adds    []ConflictTerm
}

func (c *Conflict) Clone() *Conflict {
	if c == nil {
		return nil
	}
	out := &Conflict{
		Removes: make([]ConflictTerm, len(c.Removes)),
		Adds:    make([]ConflictTerm, len(c.Adds)),
	}
	for i, t := range c.Removes {
		out.Removes[i] = ConflictTerm{Entry: t.Entry.Clone()}
	}
	for i, t := range c.Adds {
		out.Adds[i] = ConflictTerm{Entry: t.Entry.Clone()}
	}
	return out
}

// Resolved reports whether the conflict has settled to a single value
// (spec §3: "resolves when removes is empty and adds has exactly one
// element").
func (c *Conflict) Resolved() (*TreeEntry, bool) {
	if c == nil || len(c.Removes) != 0 || len(c.Adds) != 1 {
		return nil, false
	}
	return c.Adds[0].Entry, true
}

func termEqual(a, b ConflictTerm) bool {
	return a.Entry.Equal(b.Entry)
}

// Equal compares two conflicts as multisets: Removes against Removes and
// Adds against Adds, ignoring term order. Identical terms that appear in
// both Removes and Adds of one conflict are not cancelled first, so
// {Removes: [a], Adds: [a, b]} and {Adds: [b]} compare unequal.
func (c *Conflict) Equal(o *Conflict) bool {
	if (c == nil) != (o == nil) {
		return false
	}
	if c == nil {
		return true
	}
	if len(c.Removes) != len(o.Removes) || len(c.Adds) != len(o.Adds) {
		return false
	}
	usedR := make([]bool, len(o.Removes))
	for _, t := range c.Removes {
		found := false
		for i, ot := range o.Removes {
			if !usedR[i] && termEqual(t, ot) {
				usedR[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	usedA := make([]bool, len(o.Adds))
	for _, t := range c.Adds {
		found := false
		for i, ot := range o.Adds {
			if !usedA[i] && termEqual(t, ot) {
				usedA[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Tree maps path segments (one level) to TreeEntry values. Sub-directories
// are represented by EntryTree entries pointing at their own Tree objects
// in the store; Tree itself only ever holds one directory level, mirroring
// the teacher's flat object/tree.go shape.
type Tree struct {
	ID      oid.TreeID
	Entries []*TreeEntry // kept in Name order
}

// entryOrderKey is the key that sorts entries the way Git sorts tree
// entries: directories are compared as if their name had a trailing "/", so
// a file "foo" sorts before "foo-bar", while a directory "foo" sorts after
// "foo-bar" ('-' < '/'). This mirrors SubtreeOrder in the teacher's
// object/tree.go.
func entryOrderKey(e *TreeEntry) string {
	if e.Kind == EntryTree {
		return e.Name + "/"
	}
	return e.Name + "\x00"
}

func (t *Tree) sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return entryOrderKey(t.Entries[i]) < entryOrderKey(t.Entries[j])
	})
}

// NewTree builds a Tree from entries, sorting them into canonical order.
func NewTree(entries []*TreeEntry) *Tree {
	t := &Tree{Entries: entries}
	t.sort()
	return t
}

// Entry looks up a direct child entry by name.
func (t *Tree) Entry(name string) (*TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Merge returns a copy of t with each entry in others either replacing an
// existing same-named entry or appended, re-sorted into canonical order.
// Mirrors Tree.Merge in the teacher's object/tree.go.
func (t *Tree) Merge(others ...*TreeEntry) *Tree {
	byName := make(map[string]*TreeEntry, len(others))
	for _, o := range others {
		byName[o.Name] = o
	}
	entries := make([]*TreeEntry, 0, len(t.Entries)+len(others))
	for _, e := range t.Entries {
		if o, ok := byName[e.Name]; ok {
			entries = append(entries, o)
			delete(byName, e.Name)
			continue
		}
		entries = append(entries, e.Clone())
	}
	for _, o := range byName {
		entries = append(entries, o)
	}
	return NewTree(entries)
}

// Equal reports whether two trees contain the same entries, in order.
func (t *Tree) Equal(o *Tree) bool {
	if (t == nil) != (o == nil) {
		return false
	}
	if t == nil {
		return true
	}
	if len(t.Entries) != len(o.Entries) {
		return false
	}
	for i := range t.Entries {
		if !t.Entries[i].Equal(o.Entries[i]) {
			return false
		}
	}
	return true
}

func (t *Tree) Canonicalize() []byte {
	var buf bytes.Buffer
	_ = t.Encode(&buf)
	return buf.Bytes()
}

// Encode writes the canonical tree encoding. Each line is:
//
//	<kind> <id-or-quoted-target> <name>\n
//
// File lines carry an extra executable-bit field ("file <id> <0|1> <name>").
// Conflict entries serialize their full removes/adds lists inline so the
// tree id captures the whole conflict state.
func (t *Tree) Encode(w io.Writer) error {
	if _, err := w.Write(TREE_MAGIC[:]); err != nil {
		return err
	}
	for _, e := range t.Entries {
		if err := encodeEntry(w, e); err != nil {
			return err
		}
	}
	return nil
}

func encodeEntry(w io.Writer, e *TreeEntry) error {
	switch e.Kind {
	case EntryFile:
		exe := "0"
		if e.Executable {
			exe = "1"
		}
		_, err := fmt.Fprintf(w, "file %s %s %s\n", e.FileID.String(), exe, e.Name)
		return err
	case EntrySymlink:
		_, err := fmt.Fprintf(w, "symlink %s %s\n", strconv.Quote(e.Target), e.Name)
		return err
	case EntryTree:
		_, err := fmt.Fprintf(w, "tree %s %s\n", e.TreeID.String(), e.Name)
		return err
	case EntryGitSubmodule:
		_, err := fmt.Fprintf(w, "submodule %s %s\n", e.Submodule.String(), e.Name)
		return err
	case EntryConflict:
		if _, err := fmt.Fprintf(w, "conflict %d %d %s\n", len(e.Conflict.Removes), len(e.Conflict.Adds), e.Name); err != nil {
			return err
		}
		for _, term := range e.Conflict.Removes {
			if err := encodeConflictTerm(w, term); err != nil {
				return err
			}
		}
		for _, term := range e.Conflict.Adds {
			if err := encodeConflictTerm(w, term); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("object: unknown entry kind %d", e.Kind)
}

func encodeConflictTerm(w io.Writer, term ConflictTerm) error {
	if term.Entry == nil {
		_, err := fmt.Fprintln(w, "absent")
		return err
	}
	var buf bytes.Buffer
	if err := encodeEntry(&buf, term.Entry); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "term %s", buf.String())
	return err
}

// Decode parses the canonical tree encoding produced by Encode.
func (t *Tree) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return err
	}
	if magic != TREE_MAGIC {
		return fmt.Errorf("object: mismatched tree magic")
	}
	t.Entries = nil
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			if err == io.EOF {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "conflict ") {
			e, removes, adds, derr := decodeConflictHeader(line)
			if derr != nil {
				return derr
			}
			c := &Conflict{}
			for i := 0; i < removes; i++ {
				term, terr := decodeConflictTerm(br)
				if terr != nil {
					return terr
				}
				c.Removes = append(c.Removes, term)
			}
			for i := 0; i < adds; i++ {
				term, terr := decodeConflictTerm(br)
				if terr != nil {
					return terr
				}
				c.Adds = append(c.Adds, term)
			}
			e.Conflict = c
			t.Entries = append(t.Entries, e)
			if err == io.EOF {
				break
			}
			continue
		}
		e, err2 := decodeEntryLine(line)
		if err2 != nil {
			return err2
		}
		t.Entries = append(t.Entries, e)
		if err == io.EOF {
			break
		}
	}
	return nil
}

func decodeConflictHeader(line string) (*TreeEntry, int, int, error) {
	fields := strings.SplitN(line, " ", 4)
	if len(fields) != 4 {
		return nil, 0, 0, fmt.Errorf("object: malformed conflict entry %q", line)
	}
	removes, err1 := strconv.Atoi(fields[1])
	adds, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return nil, 0, 0, fmt.Errorf("object: malformed conflict counts %q", line)
	}
	return &TreeEntry{Kind: EntryConflict, Name: fields[3]}, removes, adds, nil
}

// decodeEntryLine parses one non-conflict entry line. "file" lines carry an
// extra executable-bit field ("file <id> <exe> <name>"); the rest are
// "<kind> <id-or-target> <name>", with a symlink target written as a Go
// quoted string. In every case the name is whatever remains after the fixed
// fields, so it (and a symlink target) may itself contain spaces.
func decodeEntryLine(line string) (*TreeEntry, error) {
	kindEnd := strings.IndexByte(line, ' ')
	if kindEnd < 0 {
		return nil, fmt.Errorf("object: malformed tree entry line %q", line)
	}
	kind, rest := line[:kindEnd], line[kindEnd+1:]
	switch kind {
	case "file":
		fields := strings.SplitN(rest, " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("object: malformed file entry %q", line)
		}
		return &TreeEntry{
			Kind:       EntryFile,
			FileID:     oid.NewFileID(fields[0]),
			Executable: fields[1] == "1",
			Name:       fields[2],
		}, nil
	case "symlink":
		quoted, err := strconv.QuotedPrefix(rest)
		if err != nil || len(rest) <= len(quoted) || rest[len(quoted)] != ' ' {
			return nil, fmt.Errorf("object: malformed symlink entry %q", line)
		}
		target, _ := strconv.Unquote(quoted)
		return &TreeEntry{Kind: EntrySymlink, Target: target, Name: rest[len(quoted)+1:]}, nil
	case "tree":
		fields := strings.SplitN(rest, " ", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("object: malformed tree entry %q", line)
		}
		return &TreeEntry{Kind: EntryTree, TreeID: oid.NewTreeID(fields[0]), Name: fields[1]}, nil
	case "submodule":
		fields := strings.SplitN(rest, " ", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("object: malformed submodule entry %q", line)
		}
		return &TreeEntry{Kind: EntryGitSubmodule, Submodule: oid.FromHex(fields[0]), Name: fields[1]}, nil
	}
	return nil, fmt.Errorf("object: unknown tree entry kind %q", kind)
}

func decodeConflictTerm(br *bufio.Reader) (ConflictTerm, error) {
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return ConflictTerm{}, err
	}
	line = strings.TrimSuffix(line, "\n")
	if line == "absent" {
		return ConflictTerm{}, nil
	}
	if !strings.HasPrefix(line, "term ") {
		return ConflictTerm{}, fmt.Errorf("object: malformed conflict term %q", line)
	}
	entry, derr := decodeEntryLine(strings.TrimPrefix(line, "term "))
	if derr != nil {
		return ConflictTerm{}, derr
	}
	return ConflictTerm{Entry: entry}, nil
}
