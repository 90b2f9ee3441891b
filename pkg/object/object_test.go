package object

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/oid"
)

func TestSignatureRoundTrip(t *testing.T) {
	sig := Signature{Name: "Ada Lovelace", Email: "ada@example.io", When: time.Unix(1700000000, 0).In(time.FixedZone("", -3600))}
	s := sig.String()
	got, err := ParseSignature(s)
	require.NoError(t, err)
	require.Equal(t, sig.Name, got.Name)
	require.Equal(t, sig.Email, got.Email)
	require.Equal(t, sig.When.Unix(), got.When.Unix())
}

func TestCommitEncodeDecodeRoundTrip(t *testing.T) {
	sig := Signature{Name: "Grace Hopper", Email: "grace@example.io", When: time.Unix(1690000000, 0).UTC()}
	c := &Commit{
		Parents:     []oid.CommitID{oid.NewCommitID("aa"), oid.NewCommitID("bb")},
		Tree:        oid.NewTreeID("cc"),
		ChangeID:    oid.NewChangeID("dd"),
		Author:      sig,
		Committer:   sig,
		Description: "multi-line\ndescription body",
	}
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	var got Commit
	require.NoError(t, got.Decode(bytes.NewReader(buf.Bytes())))
	require.Equal(t, c.Parents, got.Parents)
	require.Equal(t, c.Tree, got.Tree)
	require.Equal(t, c.ChangeID, got.ChangeID)
	require.Equal(t, c.Description, got.Description)
}

func TestCommitIsRoot(t *testing.T) {
	c := &Commit{}
	require.True(t, c.IsRoot())
	c.Parents = []oid.CommitID{oid.NewCommitID("aa")}
	require.False(t, c.IsRoot())
}

func TestCommitSubject(t *testing.T) {
	c := &Commit{Description: "first line\nsecond line\n"}
	require.Equal(t, "first line", c.Subject())
}

func TestCommitBuilderForNewCommitAssignsFreshChangeID(t *testing.T) {
	sig := Signature{Name: "a", Email: "a@x.io", When: time.Now()}
	c1 := ForNewCommit(nil, oid.TreeID{}, sig, sig).Build()
	c2 := ForNewCommit(nil, oid.TreeID{}, sig, sig).Build()
	require.NotEqual(t, c1.ChangeID, c2.ChangeID)
	require.False(t, c1.ChangeID.IsZero())
}

func TestCommitBuilderForRewriteFromReusesChangeID(t *testing.T) {
	sig := Signature{Name: "a", Email: "a@x.io", When: time.Now()}
	predecessor := ForNewCommit(nil, oid.TreeID{}, sig, sig).Build()
	rewritten := ForRewriteFrom(predecessor).SetDescription("amended").Build()
	require.Equal(t, predecessor.ChangeID, rewritten.ChangeID)
}

func TestCommitBuilderGenerateNewChangeID(t *testing.T) {
	sig := Signature{Name: "a", Email: "a@x.io", When: time.Now()}
	predecessor := ForNewCommit(nil, oid.TreeID{}, sig, sig).Build()
	rewritten := ForRewriteFrom(predecessor).GenerateNewChangeID().Build()
	require.NotEqual(t, predecessor.ChangeID, rewritten.ChangeID)
}
