// Package patch defines the v2 patch schema: the unit of work one writer authors locally, encodes to an
// opaque blob, and appends to its chain.
package patch

import (
	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/vvector"
	"github.com/cuemby/warp/pkg/warperr"
)

// SchemaV2 is the only patch schema this engine recognizes.
const SchemaV2 = 2

// OpType enumerates the operation kinds a Patch can carry.
type OpType string

const (
	OpNodeAdd       OpType = "node_add"
	OpNodeRemove    OpType = "node_remove"
	OpNodeTombstone OpType = "node_tombstone"
	OpEdgeAdd       OpType = "edge_add"
	OpEdgeTombstone OpType = "edge_tombstone"
	OpEdgeRemove    OpType = "edge_remove"
	OpPropSet       OpType = "prop_set"
	OpEdgePropSet   OpType = "edge_prop_set"
)

// Op is one operation within a patch. Which fields are meaningful
// depends on Type; see JoinReducer.ApplyPatch for the exact semantics.
type Op struct {
	Type OpType `cbor:"type"`

	Node string `cbor:"node,omitempty"`

	From  string `cbor:"from,omitempty"`
	To    string `cbor:"to,omitempty"`
	Label string `cbor:"label,omitempty"`

	Dot          *vvector.Dot  `cbor:"dot,omitempty"`
	ObservedDots []vvector.Dot `cbor:"observed_dots,omitempty"`

	// PropSet / EdgePropSet
	Key   string `cbor:"key,omitempty"`
	Value any    `cbor:"value,omitempty"`
}

// Patch is one logical update authored by one writer.
type Patch struct {
	Schema  int                   `cbor:"schema"`
	Writer  string                `cbor:"writer"`
	Lamport uint64                `cbor:"lamport"`
	Context vvector.VersionVector `cbor:"context"`
	Ops     []Op                  `cbor:"ops"`
	Reads   []string              `cbor:"reads,omitempty"`
	Writes  []string              `cbor:"writes,omitempty"`
}

// NextLamport computes the next Lamport timestamp as 1 + the highest
// counter already observed across all writers.
func NextLamport(observed vvector.VersionVector) uint64 {
	return 1 + observed.Max()
}

// Validate checks structural requirements shared by every op before a
// patch is folded, independent of the current state. Per-op field
// presence is checked by the reducer, not here.
func (p *Patch) Validate() error {
	if p.Schema != SchemaV2 {
		return warperr.New(warperr.KindValidation, warperr.CodeSchemaUnsupported,
			"unsupported patch schema", map[string]any{"schema": p.Schema})
	}
	if p.Writer == "" {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"patch is missing a writer", nil)
	}
	return nil
}

// Encode serializes p to its opaque on-disk blob form.
func Encode(p *Patch) ([]byte, error) {
	return codec.Marshal(p)
}

// Decode parses a patch blob previously produced by Encode.
func Decode(data []byte) (*Patch, error) {
	var p Patch
	if err := codec.Unmarshal(data, &p); err != nil {
		return nil, warperr.Wrap(warperr.KindValidation, warperr.CodeNotPatch,
			"failed to decode patch blob", nil, err)
	}
	return &p, nil
}
