package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/vvector"
)

func nodeAddPatch(writer string, lamport uint64, node string, counter uint64) *patch.Patch {
	return &patch.Patch{
		Schema:  patch.SchemaV2,
		Writer:  writer,
		Lamport: lamport,
		Context: vvector.New(),
		Ops: []patch.Op{
			{Type: patch.OpNodeAdd, Node: node, Dot: &vvector.Dot{Writer: writer, Counter: counter}},
		},
	}
}

func TestApplyPatchAddsNode(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 1, "alice", 1)))

	require.Contains(t, state.Nodes(), "alice")
	require.Equal(t, uint64(1), state.ObservedFrontier.Get("w1"))
}

func TestApplyPatchIsIdempotent(t *testing.T) {
	state := New()
	r := NewJoinReducer()
	p := nodeAddPatch("w1", 1, "alice", 1)

	require.NoError(t, r.ApplyPatch(state, p))
	require.NoError(t, r.ApplyPatch(state, p))

	require.Len(t, state.Nodes(), 1)
}

func TestApplyPatchRejectsOutOfOrder(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 2, "alice", 2)))
	err := r.ApplyPatch(state, nodeAddPatch("w1", 1, "bob", 1))
	require.Error(t, err)
}

func TestApplyPatchNodeTombstoneRemovesNode(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 1, "alice", 1)))
	removePatch := &patch.Patch{
		Schema:  patch.SchemaV2,
		Writer:  "w1",
		Lamport: 2,
		Context: vvector.New(),
		Ops: []patch.Op{
			{Type: patch.OpNodeTombstone, Node: "alice", ObservedDots: []vvector.Dot{{Writer: "w1", Counter: 1}}},
		},
	}
	require.NoError(t, r.ApplyPatch(state, removePatch))

	require.NotContains(t, state.Nodes(), "alice")
}

// TestNodeRemoveAndNodeTombstoneAreSynonyms documents a deliberate
// reading of an underspecified pair of op names: both retract a node
// by tombstoning its observed dots, so NodeRemove is accepted
// wherever NodeTombstone is.
func TestNodeRemoveAndNodeTombstoneAreSynonyms(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 1, "alice", 1)))
	removePatch := &patch.Patch{
		Schema:  patch.SchemaV2,
		Writer:  "w1",
		Lamport: 2,
		Context: vvector.New(),
		Ops: []patch.Op{
			{Type: patch.OpNodeRemove, Node: "alice", ObservedDots: []vvector.Dot{{Writer: "w1", Counter: 1}}},
		},
	}
	require.NoError(t, r.ApplyPatch(state, removePatch))

	require.NotContains(t, state.Nodes(), "alice")
}

func TestApplyPatchEdgeAddAndTombstone(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 1, "alice", 1)))
	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 2, "bob", 2)))

	edgePatch := &patch.Patch{
		Schema:  patch.SchemaV2,
		Writer:  "w1",
		Lamport: 3,
		Context: vvector.New(),
		Ops: []patch.Op{
			{Type: patch.OpEdgeAdd, From: "alice", To: "bob", Label: "follows",
				Dot: &vvector.Dot{Writer: "w1", Counter: 3}},
		},
	}
	require.NoError(t, r.ApplyPatch(state, edgePatch))

	edges, err := state.Edges()
	require.NoError(t, err)
	require.Contains(t, edges, [3]string{"alice", "bob", "follows"})

	tombstonePatch := &patch.Patch{
		Schema:  patch.SchemaV2,
		Writer:  "w1",
		Lamport: 4,
		Context: vvector.New(),
		Ops: []patch.Op{
			{Type: patch.OpEdgeTombstone, From: "alice", To: "bob", Label: "follows",
				ObservedDots: []vvector.Dot{{Writer: "w1", Counter: 3}}},
		},
	}
	require.NoError(t, r.ApplyPatch(state, tombstonePatch))

	edges, err = state.Edges()
	require.NoError(t, err)
	require.NotContains(t, edges, [3]string{"alice", "bob", "follows"})
}

func TestApplyPatchPropSetUsesLWW(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	require.NoError(t, r.ApplyPatch(state, nodeAddPatch("w1", 1, "alice", 1)))

	p2 := &patch.Patch{
		Schema: patch.SchemaV2, Writer: "w1", Lamport: 2, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpPropSet, Node: "alice", Key: "age", Value: int64(30)}},
	}
	require.NoError(t, r.ApplyPatch(state, p2))

	p3 := &patch.Patch{
		Schema: patch.SchemaV2, Writer: "w2", Lamport: 3, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpPropSet, Node: "alice", Key: "age", Value: int64(31)}},
	}
	require.NoError(t, r.ApplyPatch(state, p3))

	key, err := EncodePropKey("alice", "age")
	require.NoError(t, err)
	require.Equal(t, int64(31), state.Prop[key].Value)
}

func TestApplyPatchEdgePropSet(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	edgePatch := &patch.Patch{
		Schema: patch.SchemaV2, Writer: "w1", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{
			{Type: patch.OpEdgePropSet, From: "alice", To: "bob", Label: "follows", Key: "since", Value: "2020"},
		},
	}
	require.NoError(t, r.ApplyPatch(state, edgePatch))

	key, err := EncodeEdgePropKey("alice", "bob", "follows", "since")
	require.NoError(t, err)
	require.Equal(t, "2020", state.Prop[key].Value)
}

func TestApplyPatchRejectsUnknownOpType(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	badPatch := &patch.Patch{
		Schema: patch.SchemaV2, Writer: "w1", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{{Type: "not_a_real_op"}},
	}
	require.Error(t, r.ApplyPatch(state, badPatch))
}

func TestApplyPatchRejectsMissingRequiredField(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	badPatch := &patch.Patch{
		Schema: patch.SchemaV2, Writer: "w1", Lamport: 1, Context: vvector.New(),
		Ops: []patch.Op{{Type: patch.OpNodeAdd}},
	}
	require.Error(t, r.ApplyPatch(state, badPatch))
}

func TestApplyPatchRejectsUnsupportedSchema(t *testing.T) {
	state := New()
	r := NewJoinReducer()

	badPatch := &patch.Patch{Schema: 99, Writer: "w1", Lamport: 1, Context: vvector.New()}
	require.Error(t, r.ApplyPatch(state, badPatch))
}

func TestApplyPatchesConvergesRegardlessOfOrder(t *testing.T) {
	p1 := nodeAddPatch("w1", 1, "alice", 1)
	p2 := nodeAddPatch("w2", 1, "bob", 1)

	s1 := New()
	r := NewJoinReducer()
	require.NoError(t, r.ApplyPatches(s1, []*patch.Patch{p1, p2}))

	s2 := New()
	require.NoError(t, r.ApplyPatches(s2, []*patch.Patch{p2, p1}))

	merged := Merge(s1, s2)
	require.ElementsMatch(t, []string{"alice", "bob"}, merged.Nodes())
}
