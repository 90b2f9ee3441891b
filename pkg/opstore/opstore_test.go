package opstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexroot-vcs/core/pkg/oid"
	"github.com/hexroot-vcs/core/pkg/view"
)

func TestViewWriteReadRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	v := view.NewView()
	v.HeadIDs = []oid.CommitID{oid.NewCommitID("aa"), oid.NewCommitID("bb")}
	v.PublicHeadIDs = []oid.CommitID{oid.NewCommitID("aa")}
	v.WCCommitIDs["default"] = oid.NewCommitID("cc")
	v.Branches["main"] = &view.Branch{
		Local:   view.Normal(oid.NewCommitID("dd")),
		Remotes: map[string]view.RemoteRef{"origin": {Target: view.Normal(oid.NewCommitID("dd")), Tracked: true}},
	}
	v.Tags["v1"] = view.Normal(oid.NewCommitID("ee"))
	v.GitRefs["refs/heads/main"] = view.Normal(oid.NewCommitID("dd"))
	gh := oid.NewCommitID("dd")
	v.GitHead = &gh

	id, err := s.WriteView(v)
	require.NoError(t, err)

	got, err := s.ReadView(id)
	require.NoError(t, err)
	require.Equal(t, v.HeadIDs, got.HeadIDs)
	require.Equal(t, v.PublicHeadIDs, got.PublicHeadIDs)
	require.Equal(t, v.WCCommitIDs, got.WCCommitIDs)
	require.True(t, v.Branches["main"].Local.Equal(got.Branches["main"].Local))
	require.Equal(t, v.Branches["main"].Remotes["origin"].Tracked, got.Branches["main"].Remotes["origin"].Tracked)
	require.True(t, v.Tags["v1"].Equal(got.Tags["v1"]))
	require.NotNil(t, got.GitHead)
	require.Equal(t, *v.GitHead, *got.GitHead)
}

func TestViewWriteIsIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	v := view.NewView()
	id1, err := s.WriteView(v)
	require.NoError(t, err)
	id2, err := s.WriteView(v)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestOperationWriteReadRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	v := view.NewView()
	viewID, err := s.WriteView(v)
	require.NoError(t, err)

	op := &Operation{
		ViewID: viewID,
		Metadata: Metadata{
			StartTime:   time.Unix(1700000000, 0).UTC(),
			EndTime:     time.Unix(1700000010, 0).UTC(),
			Description: "snapshot working copy",
			Hostname:    "host1",
			Username:    "ada",
			Tags:        map[string]string{"op_type": "workspace"},
		},
	}
	id, err := s.WriteOperation(op)
	require.NoError(t, err)

	got, err := s.ReadOperation(id)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, viewID, got.ViewID)
	require.Equal(t, "snapshot working copy", got.Metadata.Description)
	require.Equal(t, "ada", got.Metadata.Username)
	require.Equal(t, "workspace", got.Metadata.Tags["op_type"])
}

func TestOperationOrderIndependentParentHashing(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	viewID, err := s.WriteView(view.NewView())
	require.NoError(t, err)

	p1, p2 := oid.NewOperationID("aa"), oid.NewOperationID("bb")
	op1 := &Operation{Parents: []oid.OperationID{p1, p2}, ViewID: viewID}
	op2 := &Operation{Parents: []oid.OperationID{p2, p1}, ViewID: viewID}

	id1, err := s.WriteOperation(op1)
	require.NoError(t, err)
	id2, err := s.WriteOperation(op2)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestReadOperationNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = s.ReadOperation(oid.NewOperationID("deadbeef"))
	require.Error(t, err)
}
