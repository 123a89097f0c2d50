package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

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

// commitPatch writes a patch as a blob, then a commit carrying its
// envelope as the message, linked as the child of parent.
func commitPatch(t *testing.T, ctx context.Context, s store.Store, graph, writer string, lamport uint64, node, parent string) string {
	t.Helper()

	p := &patch.Patch{
		Schema: patch.SchemaV2, Writer: writer, Lamport: lamport, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd, Node: node, Dot: &vvector.Dot{Writer: writer, Counter: lamport}}},
	}
	blob, err := patch.Encode(p)
	require.NoError(t, err)

	patchOID, err := s.WriteBlob(ctx, blob)
	require.NoError(t, err)

	env := Envelope{Graph: graph, Writer: writer, Lamport: lamport, PatchOID: patchOID, Schema: patch.SchemaV2}
	var parents []string
	if parent != "" {
		parents = []string{parent}
	}
	sha, err := s.CommitNode(ctx, store.CommitInput{Message: env.Encode(), Parents: parents})
	require.NoError(t, err)
	return sha
}

func TestLoaderWalksFullChain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)
	c3 := commitPatch(t, ctx, s, "g1", "alice", 3, "n3", c2)

	loader := NewLoader(s)
	records, err := loader.Load(ctx, "g1", c3, "")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, []string{"n1", "n2", "n3"}, []string{
		records[0].Patch.Ops[0].Node, records[1].Patch.Ops[0].Node, records[2].Patch.Ops[0].Node,
	})
}

func TestLoaderStopsAtBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)

	loader := NewLoader(s)
	records, err := loader.Load(ctx, "g1", c2, c1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "n2", records[0].Patch.Ops[0].Node)
}

func TestLoaderFailsOnGraphMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")

	loader := NewLoader(s)
	_, err := loader.Load(ctx, "other-graph", c1, "")
	require.Error(t, err)
}

func TestLoaderFailsOnDivergentBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1 := commitPatch(t, ctx, s, "g1", "alice", 1, "n1", "")
	c2 := commitPatch(t, ctx, s, "g1", "alice", 2, "n2", c1)

	loader := NewLoader(s)
	_, err := loader.Load(ctx, "g1", c2, "0000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestLoaderFailsOnNonPatchCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sha, err := s.CommitNode(ctx, store.CommitInput{Message: "not a patch envelope"})
	require.NoError(t, err)

	loader := NewLoader(s)
	_, err = loader.Load(ctx, "g1", sha, "")
	require.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := Envelope{Graph: "g1", Writer: "alice", Lamport: 42, PatchOID: "abc123", Schema: patch.SchemaV2}
	decoded, err := ParseEnvelope(env.Encode())
	require.NoError(t, err)
	require.Equal(t, env, decoded)
}
