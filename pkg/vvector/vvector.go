// Package vvector implements the causality primitives shared by every
// CRDT in warp: a per-writer Dot and the VersionVector that tracks the
// highest counter observed for each writer. Both types are pure and
// side-effect free.
package vvector

import "sort"

// Dot uniquely tags one CRDT assignment as (writer, counter).
type Dot struct {
	Writer  string
	Counter uint64
}

// VersionVector maps writer -> highest counter observed for that
// writer. A nil or missing entry is treated as counter 0.
type VersionVector map[string]uint64

// New returns an empty version vector.
func New() VersionVector {
	return make(VersionVector)
}

// Get returns the counter observed for writer, or 0 if unknown.
func (vv VersionVector) Get(writer string) uint64 {
	if vv == nil {
		return 0
	}
	return vv[writer]
}

// Covers reports whether vv has observed at least dot.Counter updates
// from dot.Writer: covers(vv, dot) <=> vv[dot.Writer] >= dot.Counter.
func (vv VersionVector) Covers(dot Dot) bool {
	return vv.Get(dot.Writer) >= dot.Counter
}

// Advance returns a copy of vv with writer's counter raised to at
// least counter (a no-op if vv already observed a higher value).
func (vv VersionVector) Advance(writer string, counter uint64) VersionVector {
	out := vv.Clone()
	if out[writer] < counter {
		out[writer] = counter
	}
	return out
}

// Max returns the highest counter value of any writer in vv, or 0 for
// an empty vector. Used to compute the next Lamport value:
// lamport = 1 + max(observedFrontier).
func (vv VersionVector) Max() uint64 {
	var max uint64
	for _, c := range vv {
		if c > max {
			max = c
		}
	}
	return max
}

// Clone returns a deep (independent) copy of vv.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	for w, c := range vv {
		out[w] = c
	}
	return out
}

// Merge returns the point-wise max of a and b; neither input is
// mutated.
func Merge(a, b VersionVector) VersionVector {
	out := a.Clone()
	for w, c := range b {
		if c > out[w] {
			out[w] = c
		}
	}
	return out
}

// Writers returns the vector's writer ids sorted ascending, the order
// used for deterministic serialization.
func (vv VersionVector) Writers() []string {
	writers := make([]string, 0, len(vv))
	for w := range vv {
		writers = append(writers, w)
	}
	sort.Strings(writers)
	return writers
}

// Equal reports whether a and b observe exactly the same counters for
// every writer that either side mentions.
func Equal(a, b VersionVector) bool {
	if len(a) != len(b) {
		return false
	}
	for w, c := range a {
		if b[w] != c {
			return false
		}
	}
	return true
}
