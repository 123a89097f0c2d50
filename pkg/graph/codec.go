package graph

import (
	"sort"

	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/crdtset"
	"github.com/cuemby/warp/pkg/vvector"
	"github.com/cuemby/warp/pkg/warperr"
)

// wireORSet is the on-disk form of an ORSet: dots sorted (writer,
// counter) ascending so that two equal sets always encode to the same
// bytes, matching the canonical-codec contract.
type wireORSet struct {
	ValueDots  []vvector.Dot `cbor:"value_dots"`
	Tombstones []vvector.Dot `cbor:"tombstones"`
}

// wireLWW is the on-disk form of an LWWRegister.
type wireLWW struct {
	Value    any    `cbor:"value"`
	Lamport  uint64 `cbor:"lamport"`
	WriterID string `cbor:"writer_id"`
	Set      bool   `cbor:"set"`
}

// wireState is the on-disk form of State, used by checkpoint snapshots
// whenever a full state needs to cross the codec boundary.
type wireState struct {
	NodeAlive        map[string]wireORSet `cbor:"node_alive"`
	EdgeAlive        map[string]wireORSet `cbor:"edge_alive"`
	Prop             map[string]wireLWW   `cbor:"prop"`
	ObservedFrontier vvector.VersionVector `cbor:"observed_frontier"`
}

func sortDots(dots []vvector.Dot) []vvector.Dot {
	out := append([]vvector.Dot{}, dots...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Writer != out[j].Writer {
			return out[i].Writer < out[j].Writer
		}
		return out[i].Counter < out[j].Counter
	})
	return out
}

func toWireORSet(s *crdtset.ORSet) wireORSet {
	valueDots := make([]vvector.Dot, 0, len(s.ValueDots))
	for d := range s.ValueDots {
		valueDots = append(valueDots, d)
	}
	tombstones := make([]vvector.Dot, 0, len(s.Tombstones))
	for d := range s.Tombstones {
		tombstones = append(tombstones, d)
	}
	return wireORSet{ValueDots: sortDots(valueDots), Tombstones: sortDots(tombstones)}
}

func fromWireORSet(w wireORSet) *crdtset.ORSet {
	set := crdtset.NewORSet()
	for _, d := range w.ValueDots {
		set.Add(d)
	}
	set.Remove(w.Tombstones)
	return set
}

func toWireLWW(r *crdtset.LWWRegister) wireLWW {
	if r == nil {
		return wireLWW{}
	}
	return wireLWW{Value: r.Value, Lamport: r.Lamport, WriterID: r.WriterID, Set: r.IsSet()}
}

func fromWireLWW(w wireLWW) *crdtset.LWWRegister {
	reg := &crdtset.LWWRegister{}
	if w.Set {
		reg.Set(w.Value, w.Lamport, w.WriterID)
	}
	return reg
}

// ToBinary serializes s using the module's canonical codec, the form
// stored as state.cbor inside a checkpoint tree.
func (s *State) ToBinary() ([]byte, error) {
	wire := wireState{
		NodeAlive:        make(map[string]wireORSet, len(s.NodeAlive)),
		EdgeAlive:        make(map[string]wireORSet, len(s.EdgeAlive)),
		Prop:             make(map[string]wireLWW, len(s.Prop)),
		ObservedFrontier: s.ObservedFrontier,
	}
	for k, v := range s.NodeAlive {
		wire.NodeAlive[k] = toWireORSet(v)
	}
	for k, v := range s.EdgeAlive {
		wire.EdgeAlive[k] = toWireORSet(v)
	}
	for k, v := range s.Prop {
		wire.Prop[k] = toWireLWW(v)
	}
	return codec.Marshal(wire)
}

// FromBinary decodes a State previously produced by ToBinary.
func FromBinary(data []byte) (*State, error) {
	var wire wireState
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"failed to decode graph state", nil, err)
	}

	out := New()
	for k, v := range wire.NodeAlive {
		out.NodeAlive[k] = fromWireORSet(v)
	}
	for k, v := range wire.EdgeAlive {
		out.EdgeAlive[k] = fromWireORSet(v)
	}
	for k, v := range wire.Prop {
		out.Prop[k] = fromWireLWW(v)
	}
	if wire.ObservedFrontier != nil {
		out.ObservedFrontier = wire.ObservedFrontier
	}
	return out, nil
}
