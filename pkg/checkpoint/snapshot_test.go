package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warp/pkg/frontier"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/provenance"
	"github.com/cuemby/warp/pkg/store/boltstore"
	"github.com/cuemby/warp/pkg/vvector"
)

func TestWriteThenReadLatestCheckpoint(t *testing.T) {
	s, err := boltstore.Open(t.TempDir(), "tester")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	state := graph.New()
	r := graph.NewJoinReducer()
	p := &patch.Patch{
		Schema: patch.SchemaV2, Writer: "w1", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: "a", Dot: &vvector.Dot{Writer: "w1", Counter: 1}}},
	}
	require.NoError(t, r.ApplyPatch(state, p))

	idx := provenance.NewIndex()
	idx.AddPatch("c1", p, nil, []string{"a"})

	snap := Snapshot{
		State:     state,
		Frontier:  frontier.New().WithTip("w1", "c1"),
		AppliedVV: vvector.New().Advance("w1", 1),
		Index:     idx,
	}

	sha, err := WriteCheckpoint(ctx, s, "g1", snap, nil)
	require.NoError(t, err)
	require.NotEmpty(t, sha)

	restored, restoredSHA, ok, err := ReadLatestCheckpoint(ctx, s, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sha, restoredSHA)
	require.Contains(t, restored.State.Nodes(), "a")
	require.Equal(t, "c1", restored.Frontier["w1"])
	require.Equal(t, uint64(1), restored.AppliedVV.Get("w1"))
	require.Equal(t, []string{"c1"}, restored.Index.PatchesFor("a"))
}

func TestReadLatestCheckpointAbsent(t *testing.T) {
	s, err := boltstore.Open(t.TempDir(), "tester")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, _, ok, err := ReadLatestCheckpoint(context.Background(), s, "unknown-graph")
	require.NoError(t, err)
	require.False(t, ok)
}
