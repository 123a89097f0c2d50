// Package graph implements the CRDT-folded graph value and the JoinReducer that applies patches to
// it. GraphState is owned exclusively by the
// MaterializationEngine and handed out only as defensive copies.
package graph

import (
	"github.com/cuemby/warp/pkg/crdtset"
	"github.com/cuemby/warp/pkg/vvector"
)

// State is the materialized value of a graph at some observed
// frontier.
type State struct {
	NodeAlive        map[string]*crdtset.ORSet
	EdgeAlive        map[string]*crdtset.ORSet
	Prop             map[string]*crdtset.LWWRegister
	ObservedFrontier vvector.VersionVector
}

// New returns an empty graph state.
func New() *State {
	return &State{
		NodeAlive:        make(map[string]*crdtset.ORSet),
		EdgeAlive:        make(map[string]*crdtset.ORSet),
		Prop:             make(map[string]*crdtset.LWWRegister),
		ObservedFrontier: vvector.New(),
	}
}

// Clone returns a deep, independent copy of s, the only form in which
// the engine is allowed to hand out cached state.
func (s *State) Clone() *State {
	out := New()
	for k, v := range s.NodeAlive {
		out.NodeAlive[k] = v.Clone()
	}
	for k, v := range s.EdgeAlive {
		out.EdgeAlive[k] = v.Clone()
	}
	for k, v := range s.Prop {
		out.Prop[k] = v.Clone()
	}
	out.ObservedFrontier = s.ObservedFrontier.Clone()
	return out
}

// Nodes returns the currently alive node identifiers in no particular
// order.
func (s *State) Nodes() []string {
	var nodes []string
	for id, set := range s.NodeAlive {
		if set.Contains() {
			nodes = append(nodes, id)
		}
	}
	return nodes
}

// Edges returns the currently alive edge keys, decoded into
// (from, to, label) triples.
func (s *State) Edges() ([][3]string, error) {
	var edges [][3]string
	for key, set := range s.EdgeAlive {
		if !set.Contains() {
			continue
		}
		from, to, label, err := DecodeEdgeKey(key)
		if err != nil {
			return nil, err
		}
		edges = append(edges, [3]string{from, to, label})
	}
	return edges, nil
}

// nodeSet returns (creating if necessary) the ORSet for a node id.
func (s *State) nodeSet(id string) *crdtset.ORSet {
	set, ok := s.NodeAlive[id]
	if !ok {
		set = crdtset.NewORSet()
		s.NodeAlive[id] = set
	}
	return set
}

// edgeSet returns (creating if necessary) the ORSet for an edge key.
func (s *State) edgeSet(key string) *crdtset.ORSet {
	set, ok := s.EdgeAlive[key]
	if !ok {
		set = crdtset.NewORSet()
		s.EdgeAlive[key] = set
	}
	return set
}

// propRegister returns (creating if necessary) the LWWRegister for a
// property key.
func (s *State) propRegister(key string) *crdtset.LWWRegister {
	reg, ok := s.Prop[key]
	if !ok {
		reg = &crdtset.LWWRegister{}
		s.Prop[key] = reg
	}
	return reg
}

// Merge returns the CRDT join of a and b: union of every ORSet,
// winner of every LWWRegister, and point-wise max of the observed
// frontiers. Neither input is mutated.
func Merge(a, b *State) *State {
	out := New()
	for k, v := range a.NodeAlive {
		out.NodeAlive[k] = v.Clone()
	}
	for k, v := range b.NodeAlive {
		if existing, ok := out.NodeAlive[k]; ok {
			out.NodeAlive[k] = crdtset.Merge(existing, v)
		} else {
			out.NodeAlive[k] = v.Clone()
		}
	}
	for k, v := range a.EdgeAlive {
		out.EdgeAlive[k] = v.Clone()
	}
	for k, v := range b.EdgeAlive {
		if existing, ok := out.EdgeAlive[k]; ok {
			out.EdgeAlive[k] = crdtset.Merge(existing, v)
		} else {
			out.EdgeAlive[k] = v.Clone()
		}
	}
	for k, v := range a.Prop {
		out.Prop[k] = v.Clone()
	}
	for k, v := range b.Prop {
		if existing, ok := out.Prop[k]; ok {
			out.Prop[k] = crdtset.MergeLWW(existing, v)
		} else {
			out.Prop[k] = v.Clone()
		}
	}
	out.ObservedFrontier = vvector.Merge(a.ObservedFrontier, b.ObservedFrontier)
	return out
}
