package syncproto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warp/pkg/chain"
	"github.com/cuemby/warp/pkg/frontier"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/store/boltstore"
	"github.com/cuemby/warp/pkg/vvector"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := boltstore.Open(t.TempDir(), "tester")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func commitPatch(t *testing.T, ctx context.Context, s store.Store, graphName, writer string, lamport uint64, node, parent string) string {
	t.Helper()

	p := &patch.Patch{
		Schema: patch.SchemaV2, Writer: writer, Lamport: lamport, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: node, Dot: &vvector.Dot{Writer: writer, Counter: lamport}}},
	}
	blob, err := patch.Encode(p)
	require.NoError(t, err)

	patchOID, err := s.WriteBlob(ctx, blob)
	require.NoError(t, err)

	env := chain.Envelope{Graph: graphName, Writer: writer, Lamport: lamport, PatchOID: patchOID, Schema: patch.SchemaV2}
	var parents []string
	if parent != "" {
		parents = []string{parent}
	}
	sha, err := s.CommitNode(ctx, store.CommitInput{Message: env.Encode(), Parents: parents})
	require.NoError(t, err)
	return sha
}

func TestProcessSyncRequestServesMissingRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)

	req := NewRequest(frontier.Frontier{"alice": c1})
	serverFrontier := frontier.Frontier{"alice": c2}

	resp, err := ProcessSyncRequest(ctx, s, "g1", serverFrontier, req)
	require.NoError(t, err)
	require.Equal(t, "sync-response", resp.Type)
	require.Len(t, resp.Patches, 1)
	require.Equal(t, "n2", resp.Patches[0].Patch.Ops[0].Node)
	require.Equal(t, c2, resp.Patches[0].SHA)
}

func TestProcessSyncRequestServesNewWriter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")

	req := NewRequest(frontier.New())
	serverFrontier := frontier.Frontier{"alice": c1}

	resp, err := ProcessSyncRequest(ctx, s, "g1", serverFrontier, req)
	require.NoError(t, err)
	require.Len(t, resp.Patches, 1)
	require.Equal(t, "alice", resp.Patches[0].WriterID)
}

func TestProcessSyncRequestSkipsDivergingWriterServesOthers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)
	b1 := commitPatch(t, ctx, s, "g1", "bob", 1, "n3", "")

	req := NewRequest(frontier.Frontier{"alice": "0000000000000000000000000000000000000000"})
	serverFrontier := frontier.Frontier{"alice": c2, "bob": b1}

	resp, err := ProcessSyncRequest(ctx, s, "g1", serverFrontier, req)
	require.NoError(t, err)
	require.Len(t, resp.Patches, 1)
	require.Equal(t, "bob", resp.Patches[0].WriterID)
}

// two replicas with one local writer each converge to the same
// state bytes after a mutual sync round.
func TestMutualSyncConvergesToIdenticalState(t *testing.T) {
	ctx := context.Background()
	reducer := graph.NewJoinReducer()

	storeA := openTestStore(t)
	storeB := openTestStore(t)

	shaA := commitPatch(t, ctx, storeA, "g1", "alice", 1, "a", "")
	shaB := commitPatch(t, ctx, storeB, "g1", "bob", 1, "b", "")

	// Each replica folds its own writer's chain first.
	loadOwn := func(s store.Store, tip string) (*graph.State, frontier.Frontier) {
		records, err := chain.NewLoader(s).Load(ctx, "g1", tip, "")
		require.NoError(t, err)
		state := graph.New()
		fr := frontier.New()
		for _, rec := range records {
			require.NoError(t, reducer.ApplyPatch(state, rec.Patch))
			fr[rec.Patch.Writer] = rec.CommitID
		}
		return state, fr
	}
	stateA, frontierA := loadOwn(storeA, shaA)
	stateB, frontierB := loadOwn(storeB, shaB)

	respForA, err := ProcessSyncRequest(ctx, storeB, "g1", frontierB, NewRequest(frontierA))
	require.NoError(t, err)
	resultA, err := ApplySyncResponse(reducer, stateA, frontierA, respForA)
	require.NoError(t, err)

	respForB, err := ProcessSyncRequest(ctx, storeA, "g1", frontierA, NewRequest(frontierB))
	require.NoError(t, err)
	resultB, err := ApplySyncResponse(reducer, stateB, frontierB, respForB)
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"a", "b"}, resultA.State.Nodes())
	require.ElementsMatch(t, []string{"a", "b"}, resultB.State.Nodes())
	require.Equal(t, 1, resultA.AppliedCount)
	require.Equal(t, 1, resultB.AppliedCount)
	require.Equal(t, shaB, resultA.Frontier["bob"])
	require.Equal(t, shaA, resultB.Frontier["alice"])

	bytesA, err := resultA.State.ToBinary()
	require.NoError(t, err)
	bytesB, err := resultB.State.ToBinary()
	require.NoError(t, err)
	require.Equal(t, bytesA, bytesB)
}

func TestApplySyncResponseAppliesChronologicallyPerWriter(t *testing.T) {
	reducer := graph.NewJoinReducer()
	state := graph.New()

	p1 := &patch.Patch{Schema: patch.SchemaV2, Writer: "alice", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: "n1", Dot: &vvector.Dot{Writer: "alice", Counter: 1}}}}
	p2 := &patch.Patch{Schema: patch.SchemaV2, Writer: "alice", Lamport: 2, Context: vvector.VersionVector{"alice": 1},
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: "n2", Dot: &vvector.Dot{Writer: "alice", Counter: 2}}}}

	resp := Response{
		Type:     "sync-response",
		Frontier: frontier.Frontier{"alice": "sha-2"},
		Patches: []PatchEnvelope{
			{WriterID: "alice", SHA: "sha-1", Patch: p1},
			{WriterID: "alice", SHA: "sha-2", Patch: p2},
		},
	}

	result, err := ApplySyncResponse(reducer, state, frontier.New(), resp)
	require.NoError(t, err)
	require.Equal(t, 2, result.AppliedCount)
	require.Equal(t, "sha-2", result.Frontier["alice"])
	require.ElementsMatch(t, []string{"n1", "n2"}, result.State.Nodes())

	// original state untouched
	require.Empty(t, state.Nodes())
}

func TestApplySyncResponseCrossWriterOrderIrrelevant(t *testing.T) {
	reducer := graph.NewJoinReducer()
	state := graph.New()

	pa := &patch.Patch{Schema: patch.SchemaV2, Writer: "alice", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: "na", Dot: &vvector.Dot{Writer: "alice", Counter: 1}}}}
	pb := &patch.Patch{Schema: patch.SchemaV2, Writer: "bob", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: "nb", Dot: &vvector.Dot{Writer: "bob", Counter: 1}}}}

	respAB := Response{Patches: []PatchEnvelope{{WriterID: "alice", SHA: "sa", Patch: pa}, {WriterID: "bob", SHA: "sb", Patch: pb}}}
	respBA := Response{Patches: []PatchEnvelope{{WriterID: "bob", SHA: "sb", Patch: pb}, {WriterID: "alice", SHA: "sa", Patch: pa}}}

	r1, err := ApplySyncResponse(reducer, state, frontier.New(), respAB)
	require.NoError(t, err)
	r2, err := ApplySyncResponse(reducer, state, frontier.New(), respBA)
	require.NoError(t, err)

	require.ElementsMatch(t, r1.State.Nodes(), r2.State.Nodes())
}
