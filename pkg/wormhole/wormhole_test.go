package wormhole

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warp/pkg/chain"
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

var nodeNames = []string{"node-1", "node-2", "node-3", "node-4", "node-5", "node-6"}

// six single-writer patches, wormholes composed both ways.
func TestWormholeCompositionIsAssociative(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var shas []string
	parent := ""
	for i, name := range nodeNames {
		sha := commitPatch(t, ctx, s, "g1", "alice", uint64(i+1), name, parent)
		shas = append(shas, sha)
		parent = sha
	}

	svc := NewService(s)

	w1, err := svc.CreateWormhole(ctx, "g1", shas[0], shas[1])
	require.NoError(t, err)
	w2, err := svc.CreateWormhole(ctx, "g1", shas[2], shas[3])
	require.NoError(t, err)
	w3, err := svc.CreateWormhole(ctx, "g1", shas[4], shas[5])
	require.NoError(t, err)

	left, err := ComposeWormholes(ctx, w1, w2, nil)
	require.NoError(t, err)
	left, err = ComposeWormholes(ctx, left, w3, nil)
	require.NoError(t, err)

	right, err := ComposeWormholes(ctx, w2, w3, nil)
	require.NoError(t, err)
	right, err = ComposeWormholes(ctx, w1, right, nil)
	require.NoError(t, err)

	leftState, err := ReplayWormhole(left, nil)
	require.NoError(t, err)
	rightState, err := ReplayWormhole(right, nil)
	require.NoError(t, err)

	require.ElementsMatch(t, nodeNames, leftState.Nodes())
	require.ElementsMatch(t, nodeNames, rightState.Nodes())

	leftBytes, err := leftState.ToBinary()
	require.NoError(t, err)
	rightBytes, err := rightState.ToBinary()
	require.NoError(t, err)
	require.Equal(t, leftBytes, rightBytes)
}

// Replaying a wormhole and then folding the patches past its toSha
// must land on the same state as folding the whole chain.
func TestWormholeReplayPlusTailEqualsFullFold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var shas []string
	parent := ""
	for i, name := range nodeNames {
		sha := commitPatch(t, ctx, s, "g1", "alice", uint64(i+1), name, parent)
		shas = append(shas, sha)
		parent = sha
	}

	svc := NewService(s)
	w, err := svc.CreateWormhole(ctx, "g1", shas[0], shas[3])
	require.NoError(t, err)
	require.Equal(t, 4, w.PatchCount)

	compressed, err := ReplayWormhole(w, nil)
	require.NoError(t, err)

	loader := chain.NewLoader(s)
	reducer := graph.NewJoinReducer()

	tail, err := loader.Load(ctx, "g1", shas[5], shas[3])
	require.NoError(t, err)
	for _, rec := range tail {
		require.NoError(t, reducer.ApplyPatch(compressed, rec.Patch))
	}

	full, err := loader.Load(ctx, "g1", shas[5], "")
	require.NoError(t, err)
	direct := graph.New()
	for _, rec := range full {
		require.NoError(t, reducer.ApplyPatch(direct, rec.Patch))
	}

	compressedBytes, err := compressed.ToBinary()
	require.NoError(t, err)
	directBytes, err := direct.ToBinary()
	require.NoError(t, err)
	require.Equal(t, directBytes, compressedBytes)
}

func TestComposeWormholesVerifiesContiguityWhenStoreProvided(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var shas []string
	parent := ""
	for i, name := range nodeNames[:4] {
		sha := commitPatch(t, ctx, s, "g1", "alice", uint64(i+1), name, parent)
		shas = append(shas, sha)
		parent = sha
	}

	svc := NewService(s)
	w1, err := svc.CreateWormhole(ctx, "g1", shas[0], shas[1])
	require.NoError(t, err)
	w2, err := svc.CreateWormhole(ctx, "g1", shas[2], shas[3])
	require.NoError(t, err)

	_, err = ComposeWormholes(ctx, w1, w2, &ComposeOptions{Store: s})
	require.NoError(t, err)
}

func TestComposeWormholesRejectsNonContiguousRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	a2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", a1)
	b1 := commitPatch(t, ctx, s, "g1", "alice", 3, "n3", "")
	b2 := commitPatch(t, ctx, s, "g1", "alice", 4, "n4", b1)

	svc := NewService(s)
	w1, err := svc.CreateWormhole(ctx, "g1", a1, a2)
	require.NoError(t, err)
	w2, err := svc.CreateWormhole(ctx, "g1", b1, b2)
	require.NoError(t, err)

	_, err = ComposeWormholes(ctx, w1, w2, &ComposeOptions{Store: s})
	require.Error(t, err)
}

func TestCreateWormholeFailsOnUnknownEndpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")

	svc := NewService(s)
	_, err := svc.CreateWormhole(ctx, "g1", "0000000000000000000000000000000000000000", c1)
	require.Error(t, err)
}

func TestCreateWormholeFailsOnMultiWriterRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "bob", 1, "n2", c1)

	svc := NewService(s)
	_, err := svc.CreateWormhole(ctx, "g1", c1, c2)
	require.Error(t, err)
}

func TestCreateWormholeFailsOnInvalidRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)

	unrelated, err := s.CommitNode(ctx, store.CommitInput{Message: "unrelated"})
	require.NoError(t, err)

	svc := NewService(s)
	_, err = svc.CreateWormhole(ctx, "g1", unrelated, c2)
	require.Error(t, err)
}

func TestCreateWormholeFailsOnEmptyRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")

	svc := NewService(s)
	_, err := svc.CreateWormhole(ctx, "g1", c1, c1)
	require.Error(t, err)
}

func TestComposeWormholesRejectsDifferentWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	a2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", a1)
	b1 := commitPatch(t, ctx, s, "g1", "bob", 1, "n3", "")
	b2 := commitPatch(t, ctx, s, "g1", "bob", 2, "n4", b1)

	svc := NewService(s)
	wa, err := svc.CreateWormhole(ctx, "g1", a1, a2)
	require.NoError(t, err)
	wb, err := svc.CreateWormhole(ctx, "g1", b1, b2)
	require.NoError(t, err)

	_, err = ComposeWormholes(ctx, wa, wb, nil)
	require.Error(t, err)
}

func TestWormholeSerializeRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)

	svc := NewService(s)
	w, err := svc.CreateWormhole(ctx, "g1", c1, c2)
	require.NoError(t, err)

	data, err := w.Serialize()
	require.NoError(t, err)

	back, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, w.FromSHA, back.FromSHA)
	require.Equal(t, w.ToSHA, back.ToSHA)
	require.Equal(t, w.WriterID, back.WriterID)
	require.Equal(t, w.PatchCount, back.PatchCount)

	replayed, err := ReplayWormhole(back, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"n1", "n2"}, replayed.Nodes())
}

func TestDeserializeRejectsMissingFields(t *testing.T) {
	_, err := Deserialize([]byte(`{"fromSha":"a"}`))
	require.Error(t, err)
}

func TestDeserializeRejectsMalformedJSON(t *testing.T) {
	_, err := Deserialize([]byte(`not json`))
	require.Error(t, err)
}
