package provenance

import (
	"sort"

	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/warperr"
)

// record is the bookkeeping kept per tracked patch: the entity keys
// it touches (reads ∪ writes), the set cone expansion walks.
type record struct {
	commitID string
	patch    *patch.Patch
	touches  []string
}

// Index maps each entity key to the ordered set of commit-ids that
// read or wrote it. Legacy patches carrying no
// reads/writes register against no key and contribute nothing to any
// cone, which is correct rather than an error.
type Index struct {
	byKey   map[string][]string
	records map[string]*record
	order   []string
}

// NewIndex returns an empty provenance index.
func NewIndex() *Index {
	return &Index{
		byKey:   make(map[string][]string),
		records: make(map[string]*record),
	}
}

// AddPatch registers p (as loaded from commitID) against every key in
// reads ∪ writes.
func (idx *Index) AddPatch(commitID string, p *patch.Patch, reads, writes []string) {
	touched := make(map[string]struct{}, len(reads)+len(writes))
	for _, k := range reads {
		touched[k] = struct{}{}
	}
	for _, k := range writes {
		touched[k] = struct{}{}
	}

	touches := make([]string, 0, len(touched))
	for k := range touched {
		touches = append(touches, k)
	}
	sort.Strings(touches)

	idx.records[commitID] = &record{commitID: commitID, patch: p, touches: touches}
	idx.order = append(idx.order, commitID)

	for k := range touched {
		idx.byKey[k] = append(idx.byKey[k], commitID)
	}
}

// PatchesFor returns the commit-ids registered against entityKey, in
// the order they were added.
func (idx *Index) PatchesFor(entityKey string) []string {
	ids := idx.byKey[entityKey]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Cone computes the causal-cone closure for seed entity k: starting
// from k, every patch that touches a pending key is pulled in, and its
// own touched keys (reads ∪ writes) are queued for expansion, until
// the worklist is exhausted. The returned entries are ordered by
// causal order (writer, lamport) ready for replay.
func (idx *Index) Cone(k string) []Entry {
	inCone := make(map[string]struct{})
	pending := []string{k}
	seenKey := map[string]struct{}{k: {}}

	for len(pending) > 0 {
		key := pending[0]
		pending = pending[1:]

		for _, commitID := range idx.byKey[key] {
			if _, ok := inCone[commitID]; ok {
				continue
			}
			inCone[commitID] = struct{}{}
			rec := idx.records[commitID]
			for _, touched := range rec.touches {
				if _, ok := seenKey[touched]; !ok {
					seenKey[touched] = struct{}{}
					pending = append(pending, touched)
				}
			}
		}
	}

	entries := make([]Entry, 0, len(inCone))
	for commitID := range inCone {
		rec := idx.records[commitID]
		entries = append(entries, Entry{Patch: rec.patch, CommitID: commitID})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Patch, entries[j].Patch
		if a.Lamport != b.Lamport {
			return a.Lamport < b.Lamport
		}
		return a.Writer < b.Writer
	})
	return entries
}

// wireIndex is the binary encoding of an Index suitable for embedding
// in a checkpoint tree.
type wireIndex struct {
	Order   []string          `cbor:"order"`
	ByKey   map[string][]string `cbor:"by_key"`
	Patches map[string][]byte `cbor:"patches"`
	Touches map[string][]string `cbor:"touches"`
}

// ToBinary serializes idx using the module's canonical codec.
func (idx *Index) ToBinary() ([]byte, error) {
	wire := wireIndex{
		Order:   idx.order,
		ByKey:   idx.byKey,
		Patches: make(map[string][]byte, len(idx.records)),
		Touches: make(map[string][]string, len(idx.records)),
	}
	for commitID, rec := range idx.records {
		blob, err := patch.Encode(rec.patch)
		if err != nil {
			return nil, err
		}
		wire.Patches[commitID] = blob
		wire.Touches[commitID] = rec.touches
	}
	return codec.Marshal(wire)
}

// IndexFromBinary decodes an Index previously produced by ToBinary.
func IndexFromBinary(data []byte) (*Index, error) {
	var wire wireIndex
	if err := codec.Unmarshal(data, &wire); err != nil {
		return nil, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"failed to decode provenance index", nil, err)
	}

	idx := NewIndex()
	idx.order = wire.Order
	idx.byKey = wire.ByKey
	for commitID, blob := range wire.Patches {
		p, err := patch.Decode(blob)
		if err != nil {
			return nil, err
		}
		idx.records[commitID] = &record{commitID: commitID, patch: p, touches: wire.Touches[commitID]}
	}
	return idx, nil
}
