package graph

import (
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/warperr"
)

// JoinReducer folds patches into a GraphState one at a time, dispatching
// on each operation's type and merging it into the state's CRDT
// primitives.
type JoinReducer struct{}

// NewJoinReducer constructs a JoinReducer. It carries no state of its
// own; every fold target is passed in explicitly.
func NewJoinReducer() *JoinReducer {
	return &JoinReducer{}
}

// ApplyPatch folds one patch into state in place, advancing
// state.ObservedFrontier. A patch whose lamport has already been
// observed for its writer is a no-op (idempotent re-application); a
// patch whose lamport is behind the frontier signals out-of-order
// delivery and is rejected rather than silently skipped.
func (r *JoinReducer) ApplyPatch(state *State, p *patch.Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}

	cur := state.ObservedFrontier.Get(p.Writer)
	switch {
	case p.Lamport == cur:
		return nil
	case p.Lamport < cur:
		return warperr.New(warperr.KindCausal, warperr.CodeOutOfOrder,
			"patch lamport is behind the observed frontier for its writer",
			map[string]any{"writer": p.Writer, "lamport": p.Lamport, "frontier": cur})
	}

	for i := range p.Ops {
		if err := r.applyOp(state, p, &p.Ops[i]); err != nil {
			return err
		}
	}

	state.ObservedFrontier = state.ObservedFrontier.Advance(p.Writer, p.Lamport)
	return nil
}

// ApplyPatches folds a sequence of patches in order, stopping at the
// first error.
func (r *JoinReducer) ApplyPatches(state *State, patches []*patch.Patch) error {
	for _, p := range patches {
		if err := r.ApplyPatch(state, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *JoinReducer) applyOp(state *State, p *patch.Patch, op *patch.Op) error {
	switch op.Type {
	case patch.OpNodeAdd:
		return r.applyNodeAdd(state, p, op)
	case patch.OpNodeRemove, patch.OpNodeTombstone:
		return r.applyNodeTombstone(state, op)
	case patch.OpEdgeAdd:
		return r.applyEdgeAdd(state, p, op)
	case patch.OpEdgeTombstone, patch.OpEdgeRemove:
		return r.applyEdgeTombstone(state, op)
	case patch.OpPropSet:
		return r.applyPropSet(state, p, op)
	case patch.OpEdgePropSet:
		return r.applyEdgePropSet(state, p, op)
	default:
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"unrecognized op type", map[string]any{"type": op.Type})
	}
}

func requireField(cond bool, opType patch.OpType, field string) error {
	if cond {
		return nil
	}
	return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
		"op is missing a required field", map[string]any{"type": opType, "field": field})
}

func (r *JoinReducer) applyNodeAdd(state *State, p *patch.Patch, op *patch.Op) error {
	if err := requireField(op.Node != "", op.Type, "node"); err != nil {
		return err
	}
	if err := requireField(op.Dot != nil, op.Type, "dot"); err != nil {
		return err
	}
	state.nodeSet(op.Node).Add(*op.Dot)
	return nil
}

// applyNodeTombstone handles both NodeRemove and NodeTombstone:
// neither carries semantics distinct from the other in this schema
// (both retract a node by marking its observed dots removed), so they
// are treated as synonyms sharing one code path.
func (r *JoinReducer) applyNodeTombstone(state *State, op *patch.Op) error {
	if err := requireField(op.Node != "", op.Type, "node"); err != nil {
		return err
	}
	if err := requireField(op.ObservedDots != nil, op.Type, "observed_dots"); err != nil {
		return err
	}
	state.nodeSet(op.Node).Remove(op.ObservedDots)
	return nil
}

func (r *JoinReducer) applyEdgeAdd(state *State, p *patch.Patch, op *patch.Op) error {
	if err := requireField(op.From != "" && op.To != "" && op.Label != "", op.Type, "from/to/label"); err != nil {
		return err
	}
	if err := requireField(op.Dot != nil, op.Type, "dot"); err != nil {
		return err
	}
	key, err := EncodeEdgeKey(op.From, op.To, op.Label)
	if err != nil {
		return err
	}
	state.edgeSet(key).Add(*op.Dot)
	return nil
}

func (r *JoinReducer) applyEdgeTombstone(state *State, op *patch.Op) error {
	if err := requireField(op.From != "" && op.To != "" && op.Label != "", op.Type, "from/to/label"); err != nil {
		return err
	}
	if err := requireField(op.ObservedDots != nil, op.Type, "observed_dots"); err != nil {
		return err
	}
	key, err := EncodeEdgeKey(op.From, op.To, op.Label)
	if err != nil {
		return err
	}
	state.edgeSet(key).Remove(op.ObservedDots)
	return nil
}

func (r *JoinReducer) applyPropSet(state *State, p *patch.Patch, op *patch.Op) error {
	if err := requireField(op.Node != "" && op.Key != "", op.Type, "node/key"); err != nil {
		return err
	}
	key, err := EncodePropKey(op.Node, op.Key)
	if err != nil {
		return err
	}
	state.propRegister(key).Set(op.Value, p.Lamport, p.Writer)
	return nil
}

func (r *JoinReducer) applyEdgePropSet(state *State, p *patch.Patch, op *patch.Op) error {
	if err := requireField(op.From != "" && op.To != "" && op.Label != "" && op.Key != "", op.Type, "from/to/label/key"); err != nil {
		return err
	}
	key, err := EncodeEdgePropKey(op.From, op.To, op.Label, op.Key)
	if err != nil {
		return err
	}
	state.propRegister(key).Set(op.Value, p.Lamport, p.Writer)
	return nil
}
