// Package crdtset implements the two CRDT primitives the graph state
// is built from: an observed-remove set (ORSet) with dots, and a
// last-writer-wins register (LWWRegister). Uses the same dot/tombstone
// discipline as a Lamport-clock sequence CRDT, adapted here to a set
// CRDT.
package crdtset

import "github.com/cuemby/warp/pkg/vvector"

// ORSet is the per-entity state of an observed-remove set: the dots
// that ever added the entity, and the dots that have since been
// observed-and-removed (tombstoned).
type ORSet struct {
	ValueDots  map[vvector.Dot]struct{}
	Tombstones map[vvector.Dot]struct{}
}

// NewORSet returns an empty ORSet.
func NewORSet() *ORSet {
	return &ORSet{
		ValueDots:  make(map[vvector.Dot]struct{}),
		Tombstones: make(map[vvector.Dot]struct{}),
	}
}

// Add records dot as having added this entity.
func (s *ORSet) Add(dot vvector.Dot) {
	s.ValueDots[dot] = struct{}{}
}

// Remove tombstones every dot in observed, marking those specific
// additions as observed-and-removed.
func (s *ORSet) Remove(observed []vvector.Dot) {
	for _, d := range observed {
		s.Tombstones[d] = struct{}{}
	}
}

// Contains reports whether the entity is alive: at least one
// value-dot has not been tombstoned.
func (s *ORSet) Contains() bool {
	for d := range s.ValueDots {
		if _, tombstoned := s.Tombstones[d]; !tombstoned {
			return true
		}
	}
	return false
}

// Merge returns a new ORSet that is the union of a and b's value-dots
// and tombstones; neither input is mutated.
func Merge(a, b *ORSet) *ORSet {
	out := NewORSet()
	for d := range a.ValueDots {
		out.ValueDots[d] = struct{}{}
	}
	for d := range b.ValueDots {
		out.ValueDots[d] = struct{}{}
	}
	for d := range a.Tombstones {
		out.Tombstones[d] = struct{}{}
	}
	for d := range b.Tombstones {
		out.Tombstones[d] = struct{}{}
	}
	return out
}

// Clone returns a deep, independent copy of s.
func (s *ORSet) Clone() *ORSet {
	out := NewORSet()
	for d := range s.ValueDots {
		out.ValueDots[d] = struct{}{}
	}
	for d := range s.Tombstones {
		out.Tombstones[d] = struct{}{}
	}
	return out
}

// AllDots returns every dot mentioned by s (value-dots and
// tombstones combined), used by invariant checks.
func (s *ORSet) AllDots() []vvector.Dot {
	seen := make(map[vvector.Dot]struct{}, len(s.ValueDots)+len(s.Tombstones))
	for d := range s.ValueDots {
		seen[d] = struct{}{}
	}
	for d := range s.Tombstones {
		seen[d] = struct{}{}
	}
	dots := make([]vvector.Dot, 0, len(seen))
	for d := range seen {
		dots = append(dots, d)
	}
	return dots
}
