// Package provenance implements the ProvenancePayload monoid and the
// ProvenanceIndex read/write tracking used to compute causal slices.
// Payload composition replays buffered operations against a base
// state as an explicit, composable monoid rather than a plain replay
// buffer.
package provenance

import (
	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/warperr"
)

// Entry pairs a patch with the commit-id it was loaded from.
type Entry struct {
	Patch    *patch.Patch `cbor:"patch"`
	CommitID string       `cbor:"commit_id"`
}

// Payload is an immutable, ordered list of Entry values, a monoid
// under concatenation. A Payload is never mutated after
// construction; no operation modifies a payload in place.
type Payload struct {
	entries []Entry
}

// Identity returns the empty payload, the monoid identity element.
func Identity() *Payload {
	return &Payload{}
}

// NewPayload constructs a payload from entries, taking ownership of a
// defensive copy of the slice.
func NewPayload(entries []Entry) *Payload {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Payload{entries: cp}
}

// Entries returns a defensive copy of the payload's entries.
func (p *Payload) Entries() []Entry {
	cp := make([]Entry, len(p.entries))
	copy(cp, p.entries)
	return cp
}

// Len reports the number of entries.
func (p *Payload) Len() int {
	return len(p.entries)
}

// Concat returns the ordered concatenation of p and other. When either
// side is empty the other side's existing instance is returned rather
// than a fresh copy.
func (p *Payload) Concat(other *Payload) *Payload {
	if p.Len() == 0 {
		return other
	}
	if other.Len() == 0 {
		return p
	}
	out := make([]Entry, 0, p.Len()+other.Len())
	out = append(out, p.entries...)
	out = append(out, other.entries...)
	return &Payload{entries: out}
}

// Replay folds the payload's patches, in order, against a deep clone
// of initial (or a fresh empty state if initial is nil), returning the
// resulting state.
func (p *Payload) Replay(initial *graph.State) (*graph.State, error) {
	var state *graph.State
	if initial == nil {
		state = graph.New()
	} else {
		state = initial.Clone()
	}

	reducer := graph.NewJoinReducer()
	for _, e := range p.entries {
		if err := reducer.ApplyPatch(state, e.Patch); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// wireEntry is the on-disk encoding of an Entry: the patch is stored
// pre-encoded so ToBinary/FromBinary round-trip the exact bytes a
// chain loader would have produced.
type wireEntry struct {
	PatchBlob []byte `cbor:"patch_blob"`
	CommitID  string `cbor:"commit_id"`
}

// ToBinary serializes the payload using the module's canonical codec.
func (p *Payload) ToBinary() ([]byte, error) {
	wire := make([]wireEntry, 0, len(p.entries))
	for _, e := range p.entries {
		blob, err := patch.Encode(e.Patch)
		if err != nil {
			return nil, err
		}
		wire = append(wire, wireEntry{PatchBlob: blob, CommitID: e.CommitID})
	}
	return codec.Marshal(wire)
}

// FromBinary decodes a payload previously produced by ToBinary.
func FromBinary(data []byte) (*Payload, error) {
	var wire []wireEntry
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"failed to decode provenance payload", nil, err)
	}
	entries := make([]Entry, 0, len(wire))
	for _, w := range wire {
		p, err := patch.Decode(w.PatchBlob)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Patch: p, CommitID: w.CommitID})
	}
	return &Payload{entries: entries}, nil
}
