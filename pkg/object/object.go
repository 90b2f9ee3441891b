// Package object implements the content-addressed object model of spec §3:
// commits, trees, files, symlinks and first-class conflicts. Objects are
// immutable once written; this package only defines their shape and
// canonical encoding, not where they live (see pkg/store for that).
//
// The encode/decode shape mirrors the teacher's modules/zeta/object package
// (commit.go, tree.go): a small magic-prefixed text format that is easy to
// hash deterministically and easy to read back line by line.
package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hexroot-vcs/core/pkg/oid"
)

// Signature identifies the author or committer of a commit: a name, an
// email and a timestamp with timezone offset, following the teacher's
// Signature shape in modules/zeta/object/commit.go.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// String renders a signature in the canonical "name <email> unix tz" form
// used by the commit encoding below.
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

// ParseSignature parses the inverse of Signature.String.
func ParseSignature(s string) (Signature, error) {
	open := strings.LastIndexByte(s, '<')
	closeIdx := strings.LastIndexByte(s, '>')
	if open == -1 || closeIdx == -1 || closeIdx < open {
		return Signature{}, fmt.Errorf("object: malformed signature %q", s)
	}
	name := strings.TrimSpace(s[:open])
	email := s[open+1 : closeIdx]
	rest := strings.TrimSpace(s[closeIdx+1:])
	fields := strings.Fields(rest)
	sig := Signature{Name: name, Email: email}
	if len(fields) < 2 {
		return sig, nil
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("object: malformed signature time %q: %w", fields[0], err)
	}
	when := time.Unix(secs, 0).In(time.UTC)
	if tz := fields[1]; len(tz) == 5 {
		sign := int64(1)
		if tz[0] == '-' {
			sign = -1
		}
		hh, err1 := strconv.ParseInt(tz[1:3], 10, 64)
		mm, err2 := strconv.ParseInt(tz[3:5], 10, 64)
		if err1 == nil && err2 == nil {
			when = when.In(time.FixedZone("", int(sign*(hh*3600+mm*60))))
		}
	}
	sig.When = when
	return sig, nil
}

// COMMIT_MAGIC identifies the on-disk commit encoding, mirroring the
// teacher's 4-byte object magics (COMMIT_MAGIC in object/commit.go).
var COMMIT_MAGIC = [4]byte{'W', 'C', 0x00, 0x01}

// Commit is the immutable commit record of spec §3. ID is assigned by the
// store on write_commit and is not part of the canonical encoding (the
// encoding IS what gets hashed to produce it).
type Commit struct {
	ID        oid.CommitID
	Parents   []oid.CommitID
	Tree      oid.TreeID
	ChangeID  oid.ChangeID
	Author    Signature
	Committer Signature
	// Description is the free-form UTF-8 commit message (spec §3).
	Description string
}

// IsRoot reports whether c is the synthetic, immutable root commit: the
// unique commit with no parents (spec §3 invariant (a) exempts only the
// root from the "≥1 parent" rule).
func (c *Commit) IsRoot() bool {
	return len(c.Parents) == 0
}

// Encode writes the canonical byte representation of the commit that gets
// hashed to produce its ID (spec §8 "hash determinism"). Field order here
// is part of the on-disk/hash contract: changing it changes every commit id
// (spec §6).
func (c *Commit) Encode(w io.Writer) error {
	if _, err := w.Write(COMMIT_MAGIC[:]); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "tree %s\n", c.Tree.String()); err != nil {
		return err
	}
	for _, p := range c.Parents {
		if _, err := fmt.Fprintf(w, "parent %s\n", p.String()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "change %s\n", c.ChangeID.String()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "author %s\ncommitter %s\n", c.Author.String(), c.Committer.String()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\n%s", c.Description); err != nil {
		return err
	}
	return nil
}

// Decode parses the canonical byte representation produced by Encode. The
// caller is responsible for setting c.ID (the decoder does not re-hash).
func (c *Commit) Decode(r io.Reader) error {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return err
	}
	if magic != COMMIT_MAGIC {
		return fmt.Errorf("object: mismatched commit magic")
	}
	var message strings.Builder
	var finishedHeaders bool
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return readErr
		}
		text := strings.TrimSuffix(line, "\n")
		if !finishedHeaders {
			if len(text) == 0 {
				finishedHeaders = true
				if readErr == io.EOF {
					break
				}
				continue
			}
			fields := strings.SplitN(text, " ", 2)
			if len(fields) == 2 {
				switch fields[0] {
				case "tree":
					c.Tree = oid.NewTreeID(fields[1])
				case "parent":
					c.Parents = append(c.Parents, oid.NewCommitID(fields[1]))
				case "change":
					c.ChangeID = oid.NewChangeID(fields[1])
				case "author":
					sig, err := ParseSignature(fields[1])
					if err != nil {
						return err
					}
					c.Author = sig
				case "committer":
					sig, err := ParseSignature(fields[1])
					if err != nil {
						return err
					}
					c.Committer = sig
				}
			}
		} else {
			_, _ = message.WriteString(line)
		}
		if readErr == io.EOF {
			break
		}
	}
	c.Description = message.String()
	return nil
}

// Canonicalize returns the bytes that would be hashed to produce c's id,
// without requiring a store.
func (c *Commit) Canonicalize() []byte {
	var buf bytes.Buffer
	_ = c.Encode(&buf)
	return buf.Bytes()
}

// Empty reports whether this commit is empty with respect to the given
// merged-parent tree id: a commit is empty iff its tree equals the merge of
// its parents' trees (spec §3 invariant (d)). The merge itself is a
// higher-level operation (it needs the tree/merge machinery); Empty just
// compares the already-computed result.
func (c *Commit) Empty(parentsMergedTree oid.TreeID) bool {
	return c.Tree == parentsMergedTree
}

// Subject returns the first line of the commit description.
func (c *Commit) Subject() string {
	if i := strings.IndexAny(c.Description, "\r\n"); i != -1 {
		return c.Description[:i]
	}
	return c.Description
}

// Less defines a stable ordering for display/iteration purposes, preferring
// committer time then author time then id, mirroring the teacher's
// Commit.Less in object/commit.go.
func (c *Commit) Less(rhs *Commit) bool {
	if !c.Committer.When.Equal(rhs.Committer.When) {
		return c.Committer.When.Before(rhs.Committer.When)
	}
	if !c.Author.When.Equal(rhs.Author.When) {
		return c.Author.When.Before(rhs.Author.When)
	}
	return oid.CommitIDLess(c.ID, rhs.ID)
}

// SortCommitsByID sorts commits by id for deterministic serialization.
func SortCommitsByID(cs []*Commit) {
	sort.Slice(cs, func(i, j int) bool { return oid.CommitIDLess(cs[i].ID, cs[j].ID) })
}
