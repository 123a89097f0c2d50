// Package syncproto implements the frontier-based sync message shapes
// and the two sides of the protocol: processSyncRequest on
// the serving replica, applySyncResponse on the requesting one. It
// carries no transport of its own — see pkg/chain for the range
// loading and pkg/graph for the fold.
package syncproto

import (
	"context"
	"sort"

	"github.com/cuemby/warp/pkg/chain"
	"github.com/cuemby/warp/pkg/frontier"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

// Request is the wire shape of a sync-request message.
type Request struct {
	Type      string             `cbor:"type"`
	Frontier  frontier.Frontier  `cbor:"frontier"`
}

// NewRequest builds a sync-request carrying f.
func NewRequest(f frontier.Frontier) Request {
	return Request{Type: "sync-request", Frontier: f}
}

// PatchEnvelope pairs one loaded patch with the writer and commit it
// came from, the unit the response carries.
type PatchEnvelope struct {
	WriterID string      `cbor:"writerId"`
	SHA      string      `cbor:"sha"`
	Patch    *patch.Patch `cbor:"patch"`
}

// Response is the wire shape of a sync-response message.
type Response struct {
	Type     string            `cbor:"type"`
	Frontier frontier.Frontier `cbor:"frontier"`
	Patches  []PatchEnvelope   `cbor:"patches"`
}

// ProcessSyncRequest is the serving side: it loads the ranges the
// requester is missing (per serverFrontier vs. req.Frontier) and
// returns them in chronological order per writer. A writer whose range
// fails with DIVERGENCE is skipped; the remaining writers are still
// served.
func ProcessSyncRequest(ctx context.Context, s store.Store, graphName string, serverFrontier frontier.Frontier, req Request) (Response, error) {
	delta := frontier.ComputeSyncDelta(req.Frontier, serverFrontier)
	loader := chain.NewLoader(s)

	writers := make([]string, 0, len(delta.NeedFromRemote))
	for w := range delta.NeedFromRemote {
		writers = append(writers, w)
	}
	sort.Strings(writers)

	var patches []PatchEnvelope
	for _, w := range writers {
		rng := delta.NeedFromRemote[w]
		records, err := loader.Load(ctx, graphName, rng.To, rng.From)
		if err != nil {
			if warperr.Is(err, warperr.CodeDivergence) {
				metrics.SyncWritersSkippedTotal.Inc()
				continue
			}
			return Response{}, err
		}
		for _, rec := range records {
			patches = append(patches, PatchEnvelope{WriterID: w, SHA: rec.CommitID, Patch: rec.Patch})
		}
	}

	return Response{
		Type:     "sync-response",
		Frontier: serverFrontier.Clone(),
		Patches:  patches,
	}, nil
}

// Result is the outcome of applying a sync-response.
type Result struct {
	State         *graph.State
	Frontier      frontier.Frontier
	AppliedCount  int
}

// ApplySyncResponse is the applying side: it clones state and
// currentFrontier, groups resp.Patches by writer, applies each
// writer's patches in received (chronological) order through reducer,
// and advances that writer's frontier entry to the last commit
// applied. Cross-writer order is irrelevant since the reducer's joins
// commute; within a writer, order MUST be chronological, which the
// server already guarantees.
func ApplySyncResponse(reducer *graph.JoinReducer, state *graph.State, currentFrontier frontier.Frontier, resp Response) (Result, error) {
	newState := state.Clone()
	newFrontier := currentFrontier.Clone()

	byWriter := make(map[string][]PatchEnvelope)
	order := make([]string, 0)
	for _, env := range resp.Patches {
		if _, ok := byWriter[env.WriterID]; !ok {
			order = append(order, env.WriterID)
		}
		byWriter[env.WriterID] = append(byWriter[env.WriterID], env)
	}

	applied := 0
	for _, w := range order {
		for _, env := range byWriter[w] {
			if err := reducer.ApplyPatch(newState, env.Patch); err != nil {
				return Result{}, err
			}
			newFrontier[w] = env.SHA
			applied++
		}
	}

	metrics.SyncPatchesAppliedTotal.Add(float64(applied))
	return Result{State: newState, Frontier: newFrontier, AppliedCount: applied}, nil
}
