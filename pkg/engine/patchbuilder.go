package engine

import (
	"context"

	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/vvector"
	"github.com/cuemby/warp/pkg/warperr"
)

// PatchBuilder accumulates ops for a single patch this engine's
// writer will author, via a `CreatePatch().AddNode(...).Commit()`
// chain. Errors raised by any staging call are deferred and returned
// by Commit, so calls can be chained.
type PatchBuilder struct {
	engine *Engine
	ops    []patch.Op
	reads  map[string]struct{}
	writes map[string]struct{}
	err    error
}

// CreatePatch returns a new, empty builder bound to e.
func (e *Engine) CreatePatch() *PatchBuilder {
	return &PatchBuilder{engine: e, reads: make(map[string]struct{}), writes: make(map[string]struct{})}
}

func (b *PatchBuilder) fail(err error) *PatchBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddNode stages a node addition with a freshly allocated dot (the
// counter is filled in at Commit time, once the patch's lamport is
// known).
func (b *PatchBuilder) AddNode(node string) *PatchBuilder {
	if b.err != nil {
		return b
	}
	b.ops = append(b.ops, patch.Op{Type: patch.OpNodeAdd, Node: node, Dot: &vvector.Dot{Writer: b.engine.WriterID}})
	b.writes[node] = struct{}{}
	return b
}

// AddEdge stages an edge addition.
func (b *PatchBuilder) AddEdge(from, to, label string) *PatchBuilder {
	if b.err != nil {
		return b
	}
	key, err := graph.EncodeEdgeKey(from, to, label)
	if err != nil {
		return b.fail(err)
	}
	b.ops = append(b.ops, patch.Op{Type: patch.OpEdgeAdd, From: from, To: to, Label: label, Dot: &vvector.Dot{Writer: b.engine.WriterID}})
	b.writes[key] = struct{}{}
	return b
}

// SetProp stages a node property assignment.
func (b *PatchBuilder) SetProp(node, key string, value any) *PatchBuilder {
	if b.err != nil {
		return b
	}
	pkey, err := graph.EncodePropKey(node, key)
	if err != nil {
		return b.fail(err)
	}
	b.ops = append(b.ops, patch.Op{Type: patch.OpPropSet, Node: node, Key: key, Value: value})
	b.writes[pkey] = struct{}{}
	b.reads[node] = struct{}{}
	return b
}

// SetEdgeProp stages an edge property assignment.
func (b *PatchBuilder) SetEdgeProp(from, to, label, key string, value any) *PatchBuilder {
	if b.err != nil {
		return b
	}
	pkey, err := graph.EncodeEdgePropKey(from, to, label, key)
	if err != nil {
		return b.fail(err)
	}
	edgeKey, err := graph.EncodeEdgeKey(from, to, label)
	if err != nil {
		return b.fail(err)
	}
	b.ops = append(b.ops, patch.Op{Type: patch.OpEdgePropSet, From: from, To: to, Label: label, Key: key, Value: value})
	b.writes[pkey] = struct{}{}
	b.reads[edgeKey] = struct{}{}
	return b
}

// RemoveEdge stages an edge removal, reading the engine's current
// cached state (materializing first if permitted) to collect the
// edge's currently observed dots.
func (b *PatchBuilder) RemoveEdge(ctx context.Context, from, to, label string) *PatchBuilder {
	if b.err != nil {
		return b
	}
	state, err := b.engine.requireState(ctx)
	if err != nil {
		return b.fail(err)
	}
	key, err := graph.EncodeEdgeKey(from, to, label)
	if err != nil {
		return b.fail(err)
	}
	b.ops = append(b.ops, patch.Op{Type: patch.OpEdgeRemove, From: from, To: to, Label: label, ObservedDots: aliveDots(state, key, false)})
	b.writes[key] = struct{}{}
	b.reads[key] = struct{}{}
	return b
}

// RemoveNode stages a node removal. If the node has incident edges,
// behavior follows the engine's OnDeleteWithData policy: "cascade"
// folds the edge removals into this same patch, "error" fails the
// build, "warn" (the default) logs and leaves the edges dangling.
func (b *PatchBuilder) RemoveNode(ctx context.Context, node string) *PatchBuilder {
	if b.err != nil {
		return b
	}
	state, err := b.engine.requireState(ctx)
	if err != nil {
		return b.fail(err)
	}

	edges, err := state.Edges()
	if err != nil {
		return b.fail(err)
	}
	var incident [][3]string
	for _, e := range edges {
		if e[0] == node || e[1] == node {
			incident = append(incident, e)
		}
	}

	if len(incident) > 0 {
		switch b.engine.onDeleteWithData {
		case "error":
			return b.fail(warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
				"node has incident edges; refusing removal under onDeleteWithData=error",
				map[string]any{"node": node, "incidentEdges": len(incident)}))
		case "cascade":
			for _, e := range incident {
				key, encErr := graph.EncodeEdgeKey(e[0], e[1], e[2])
				if encErr != nil {
					return b.fail(encErr)
				}
				b.ops = append(b.ops, patch.Op{
					Type: patch.OpEdgeRemove, From: e[0], To: e[1], Label: e[2],
					ObservedDots: aliveDots(state, key, false),
				})
				b.writes[key] = struct{}{}
				b.reads[key] = struct{}{}
			}
		default:
			log.WithComponent("engine").Warn().Str("node", node).Int("incidentEdges", len(incident)).
				Msg("removing node with incident edges; edges left dangling")
		}
	}

	b.ops = append(b.ops, patch.Op{Type: patch.OpNodeRemove, Node: node, ObservedDots: aliveDots(state, node, true)})
	b.writes[node] = struct{}{}
	b.reads[node] = struct{}{}
	return b
}

// aliveDots returns the currently-alive (non-tombstoned) value-dots
// for a node (isNode=true) or edge key in state, the set a removal op
// must cite as its observed dots.
func aliveDots(state *graph.State, key string, isNode bool) []vvector.Dot {
	sets := state.EdgeAlive
	if isNode {
		sets = state.NodeAlive
	}
	set, ok := sets[key]
	if !ok {
		return nil
	}
	var dots []vvector.Dot
	for d := range set.ValueDots {
		if _, tombstoned := set.Tombstones[d]; !tombstoned {
			dots = append(dots, d)
		}
	}
	return dots
}

// Commit encodes the staged ops as a single patch, assigns dots to
// every pending add, and appends it to this engine's writer chain.
func (b *PatchBuilder) Commit(ctx context.Context) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	reads := make([]string, 0, len(b.reads))
	for k := range b.reads {
		reads = append(reads, k)
	}
	writes := make([]string, 0, len(b.writes))
	for k := range b.writes {
		writes = append(writes, k)
	}
	return b.engine.commit(ctx, b.ops, reads, writes)
}
