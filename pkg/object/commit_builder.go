package object

import (
	"github.com/google/uuid"

	"github.com/hexroot-vcs/core/pkg/oid"
)

// CommitBuilder assembles a Commit prior to hashing, owning the change-id
// assignment rule of spec §6: a fresh random change-id on
// ForNewCommit, the predecessor's reused on ForRewriteFrom unless the
// caller opts into GenerateNewChangeID.
type CommitBuilder struct {
	commit Commit
}

// ForNewCommit starts a builder for a brand new logical change, assigning
// it a fresh 128-bit random change-id (spec §6 "CommitBuilder::for_new_commit").
func ForNewCommit(parents []oid.CommitID, tree oid.TreeID, author, committer Signature) *CommitBuilder {
	return &CommitBuilder{commit: Commit{
		Parents:   append([]oid.CommitID(nil), parents...),
		Tree:      tree,
		ChangeID:  newRandomChangeID(),
		Author:    author,
		Committer: committer,
	}}
}

// ForRewriteFrom starts a builder for a rewrite of predecessor (amend,
// rebase), reusing its change-id so the evolution history stays linked
// (spec §6 "for_rewrite_from"). Call GenerateNewChangeID to opt out.
func ForRewriteFrom(predecessor *Commit) *CommitBuilder {
	b := &CommitBuilder{commit: Commit{
		Parents:   append([]oid.CommitID(nil), predecessor.Parents...),
		Tree:      predecessor.Tree,
		ChangeID:  predecessor.ChangeID,
		Author:    predecessor.Author,
		Committer: predecessor.Committer,
	}}
	b.commit.Description = predecessor.Description
	return b
}

// GenerateNewChangeID severs the evolution link, assigning a fresh
// change-id instead of the predecessor's (spec §6).
func (b *CommitBuilder) GenerateNewChangeID() *CommitBuilder {
	b.commit.ChangeID = newRandomChangeID()
	return b
}

func (b *CommitBuilder) SetParents(parents []oid.CommitID) *CommitBuilder {
	b.commit.Parents = append([]oid.CommitID(nil), parents...)
	return b
}

func (b *CommitBuilder) SetTree(tree oid.TreeID) *CommitBuilder {
	b.commit.Tree = tree
	return b
}

func (b *CommitBuilder) SetAuthor(sig Signature) *CommitBuilder {
	b.commit.Author = sig
	return b
}

func (b *CommitBuilder) SetCommitter(sig Signature) *CommitBuilder {
	b.commit.Committer = sig
	return b
}

func (b *CommitBuilder) SetDescription(desc string) *CommitBuilder {
	b.commit.Description = desc
	return b
}

// Build returns the assembled commit. ID is left zero; the store assigns
// it on write_commit by hashing the canonical encoding.
func (b *CommitBuilder) Build() *Commit {
	c := b.commit
	c.Parents = append([]oid.CommitID(nil), b.commit.Parents...)
	return &c
}

// newRandomChangeID generates a fresh 128-bit random change-id. uuid.New
// is the pack's idiomatic random-id source (see DESIGN.md); only the raw
// 16 random bytes are used, zero-extended into the 32-byte id space.
func newRandomChangeID() oid.ChangeID {
	u := uuid.New()
	var id oid.ID
	copy(id[:], u[:])
	return oid.ChangeID(id)
}
