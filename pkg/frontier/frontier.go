// Package frontier implements the Frontier entity: a
// writer-id -> commit-id map recording the chain tip each replica has
// observed for every writer, plus the pure delta computation that
// drives sync without any object-store access.
package frontier

import (
	"sort"

	"github.com/cuemby/warp/pkg/codec"
)

// Frontier maps writer-id to the commit-id of that writer's chain tip
// as observed by a replica.
type Frontier map[string]string

// New returns an empty Frontier.
func New() Frontier {
	return make(Frontier)
}

// Clone returns a deep (independent) copy of f.
func (f Frontier) Clone() Frontier {
	out := make(Frontier, len(f))
	for w, sha := range f {
		out[w] = sha
	}
	return out
}

// Writers returns f's writer ids sorted ascending.
func (f Frontier) Writers() []string {
	writers := make([]string, 0, len(f))
	for w := range f {
		writers = append(writers, w)
	}
	sort.Strings(writers)
	return writers
}

// WithTip returns a copy of f with writer's tip set to commitID.
func (f Frontier) WithTip(writer, commitID string) Frontier {
	out := f.Clone()
	out[writer] = commitID
	return out
}

// Encode serializes f to its canonical binary form.
func Encode(f Frontier) ([]byte, error) {
	return codec.Marshal(f)
}

// Decode parses a Frontier previously produced by Encode.
func Decode(data []byte) (Frontier, error) {
	var f Frontier
	if err := codec.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// Range is a (from, to] span of one writer's chain the requester is
// missing. From=="" means "from the root" — the requester has nothing
// of this writer's chain yet.
type Range struct {
	From string
	To   string
}

// Delta is the result of comparing two frontiers.
type Delta struct {
	// NeedFromRemote is, per writer, the range local should pull from
	// remote to catch up.
	NeedFromRemote map[string]Range
	// NeedFromLocal is, per writer, the range remote should pull from
	// local to catch up — useful when local is acting as the server
	// answering a sync request built from the remote's own frontier.
	NeedFromLocal map[string]Range
	// NewWritersForLocal lists writers remote has that local has never
	// seen.
	NewWritersForLocal []string
	// NewWritersForRemote lists writers local has that remote has never
	// seen.
	NewWritersForRemote []string
}

// ComputeSyncDelta compares local and remote frontiers and returns the
// ranges each side needs from the other. The protocol assumes at most
// one side is ahead for any given writer (true for single-producer
// chains); actual divergence is caught downstream when PatchChainLoader
// walks a range and fails to reach its expected boundary.
func ComputeSyncDelta(local, remote Frontier) Delta {
	d := Delta{
		NeedFromRemote: make(map[string]Range),
		NeedFromLocal:  make(map[string]Range),
	}

	writers := make(map[string]struct{}, len(local)+len(remote))
	for w := range local {
		writers[w] = struct{}{}
	}
	for w := range remote {
		writers[w] = struct{}{}
	}

	for w := range writers {
		localTip, hasLocal := local[w]
		remoteTip, hasRemote := remote[w]

		switch {
		case hasRemote && !hasLocal:
			d.NeedFromRemote[w] = Range{From: "", To: remoteTip}
			d.NewWritersForLocal = append(d.NewWritersForLocal, w)
		case hasLocal && !hasRemote:
			d.NeedFromLocal[w] = Range{From: "", To: localTip}
			d.NewWritersForRemote = append(d.NewWritersForRemote, w)
		case localTip != remoteTip:
			d.NeedFromRemote[w] = Range{From: localTip, To: remoteTip}
			d.NeedFromLocal[w] = Range{From: remoteTip, To: localTip}
		}
	}

	sort.Strings(d.NewWritersForLocal)
	sort.Strings(d.NewWritersForRemote)
	return d
}
