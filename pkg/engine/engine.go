// Package engine implements MaterializationEngine: the
// top-level object that loads a checkpoint, walks every writer's
// patch chain, folds the result through JoinReducer, and exposes both
// a commit API (via PatchBuilder) and cached queries over the result.
// Owns the single authoritative in-memory value and mutates it through
// one apply path, the way a single-writer FSM would, generalized here
// to a per-graph, per-writer CRDT fold with its own checkpoint and
// provenance bookkeeping.
package engine

import (
	"context"
	"sort"

	"github.com/cuemby/warp/pkg/chain"
	"github.com/cuemby/warp/pkg/checkpoint"
	"github.com/cuemby/warp/pkg/frontier"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/provenance"
	"github.com/cuemby/warp/pkg/refs"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/vvector"
	"github.com/cuemby/warp/pkg/warperr"
)

// Engine is one caller's view onto a graph: a cached fold of every
// writer's chain, plus the means to extend its own writer's chain.
// Its operations are serialized by the caller; Engine itself does no
// internal locking.
type Engine struct {
	Store    store.Store
	Graph    string
	WriterID string

	checkpointPolicy *CheckpointPolicy
	autoMaterialize  bool
	onDeleteWithData string
	maxMessageBytes  uint

	cachedState     *graph.State
	cachedFrontier  frontier.Frontier
	provenanceIndex *provenance.Index
	dirty           bool

	patchesSinceCheckpoint uint

	reducer *graph.JoinReducer
	loader  *chain.Loader
}

// Open validates options and constructs an Engine bound to s for
// (graphName, writerID). No store I/O is
// performed; the first Materialize or commit call does that.
func Open(s store.Store, graphName, writerID string, opts Options) (*Engine, error) {
	if graphName == "" || writerID == "" {
		return nil, warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"engine requires a non-empty graph name and writer id", nil)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		Store:            s,
		Graph:            graphName,
		WriterID:         writerID,
		checkpointPolicy: opts.CheckpointPolicy,
		autoMaterialize:  boolOrDefault(opts.AutoMaterialize, true),
		onDeleteWithData: opts.OnDeleteWithData,
		maxMessageBytes:  opts.MaxMessageBytes,
		dirty:            true,
		reducer:          graph.NewJoinReducer(),
		loader:           chain.NewLoader(s),
	}, nil
}

// Dirty reports whether the cached state is absent or stale.
func (e *Engine) Dirty() bool { return e.dirty || e.cachedState == nil }

// CachedState returns a defensive copy of the engine's cached state,
// or nil if none is cached.
func (e *Engine) CachedState() *graph.State {
	if e.cachedState == nil {
		return nil
	}
	return e.cachedState.Clone()
}

// CachedFrontier returns a defensive copy of the engine's cached
// frontier, or nil if none is cached.
func (e *Engine) CachedFrontier() frontier.Frontier {
	if e.cachedFrontier == nil {
		return nil
	}
	return e.cachedFrontier.Clone()
}

// Materialize loads the latest checkpoint (if any), folds every
// writer's chain up to its current tip (or to ceiling's lamport if
// non-nil) on top of it, caches the result, and attempts an
// auto-checkpoint if the configured policy is due.
func (e *Engine) Materialize(ctx context.Context, ceiling *uint64) (*graph.State, error) {
	timer := metrics.NewTimer()
	state, fr, idx, folded, err := e.fold(ctx, ceiling)
	timer.ObserveDuration(metrics.MaterializeDuration)
	if err != nil {
		metrics.MaterializeTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	e.cachedState = state
	e.cachedFrontier = fr
	e.provenanceIndex = idx
	e.dirty = false
	e.patchesSinceCheckpoint += folded
	metrics.PatchesFoldedTotal.Add(float64(folded))
	metrics.MaterializeTotal.WithLabelValues("ok").Inc()

	if e.checkpointPolicy != nil && e.patchesSinceCheckpoint >= e.checkpointPolicy.Every {
		if _, err := e.createCheckpoint(ctx); err != nil {
			metrics.CheckpointsFailedTotal.Inc()
			log.ForGraph("engine", e.Graph, e.WriterID).Warn().Err(err).
				Msg("auto-checkpoint failed; patch count preserved")
		} else {
			metrics.CheckpointsCreatedTotal.Inc()
			e.patchesSinceCheckpoint = 0
		}
	}

	return e.cachedState.Clone(), nil
}

// fold performs the read-only half of Materialize: load checkpoint,
// walk every writer's chain, fold. It never mutates e.
func (e *Engine) fold(ctx context.Context, ceiling *uint64) (*graph.State, frontier.Frontier, *provenance.Index, uint, error) {
	snap, _, hasCheckpoint, err := checkpoint.ReadLatestCheckpoint(ctx, e.Store, e.Graph)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	var state *graph.State
	var fr frontier.Frontier
	var idx *provenance.Index
	if hasCheckpoint {
		state = snap.State
		fr = snap.Frontier
		idx = snap.Index
	} else {
		state = graph.New()
		fr = frontier.New()
		idx = provenance.NewIndex()
	}

	writerRefs, err := e.Store.ListRefs(ctx, refs.WritersPrefix(e.Graph))
	if err != nil {
		return nil, nil, nil, 0, err
	}
	writers := make([]string, 0, len(writerRefs))
	for _, ref := range writerRefs {
		if w := refs.WriterIDFromRef(e.Graph, ref); w != "" {
			writers = append(writers, w)
		}
	}
	sort.Strings(writers)

	var folded uint
	for _, w := range writers {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, 0, warperr.Wrap(warperr.KindCancelled, warperr.CodeOperationAborted,
				"materialize aborted", map[string]any{"writer": w}, err)
		}

		tip, ok, err := e.Store.ReadRef(ctx, refs.WriterRef(e.Graph, w))
		if err != nil {
			return nil, nil, nil, 0, err
		}
		if !ok {
			continue
		}
		boundary := fr[w]
		if tip == boundary {
			continue
		}

		records, err := e.loader.Load(ctx, e.Graph, tip, boundary)
		if err != nil {
			return nil, nil, nil, 0, err
		}

		applied := boundary
		for _, rec := range records {
			if ceiling != nil && rec.Patch.Lamport > *ceiling {
				break
			}
			if err := e.reducer.ApplyPatch(state, rec.Patch); err != nil {
				return nil, nil, nil, 0, err
			}
			idx.AddPatch(rec.CommitID, rec.Patch, rec.Patch.Reads, rec.Patch.Writes)
			applied = rec.CommitID
			folded++
		}
		fr = fr.WithTip(w, applied)
	}

	return state, fr, idx, folded, nil
}

// createCheckpoint writes the engine's current cached state as
// graphName's new latest checkpoint, parented on the previous one if
// any.
func (e *Engine) createCheckpoint(ctx context.Context) (string, error) {
	_, prevSHA, hasPrev, err := checkpoint.ReadLatestCheckpoint(ctx, e.Store, e.Graph)
	if err != nil {
		return "", err
	}
	var parents []string
	if hasPrev {
		parents = []string{prevSHA}
	}
	snap := checkpoint.Snapshot{
		State:     e.cachedState,
		Frontier:  e.cachedFrontier,
		AppliedVV: e.cachedState.ObservedFrontier.Clone(),
		Index:     e.provenanceIndex,
	}
	return checkpoint.WriteCheckpoint(ctx, e.Store, e.Graph, snap, parents)
}

// requireState returns the cached state, materializing first if
// absent and autoMaterialize is enabled.
func (e *Engine) requireState(ctx context.Context) (*graph.State, error) {
	if e.cachedState != nil {
		return e.cachedState, nil
	}
	if !e.autoMaterialize {
		return nil, warperr.New(warperr.KindValidation, warperr.CodeNoState,
			"no cached state and autoMaterialize is disabled", map[string]any{"graph": e.Graph})
	}
	if _, err := e.Materialize(ctx, nil); err != nil {
		return nil, err
	}
	return e.cachedState, nil
}

// MaterializeSlice computes the causal-cone slice for entityKey: the
// minimal set of patches needed to reconstruct that entity's history,
// replayed against an empty state.
func (e *Engine) MaterializeSlice(ctx context.Context, entityKey string) (*graph.State, int, error) {
	if _, err := e.requireState(ctx); err != nil {
		return nil, 0, err
	}

	entries := e.provenanceIndex.Cone(entityKey)
	if len(entries) == 0 {
		return graph.New(), 0, nil
	}

	payload := provenance.NewPayload(entries)
	state, err := payload.Replay(nil)
	if err != nil {
		return nil, 0, err
	}
	return state, payload.Len(), nil
}

// authorContext returns the writer's own current tip and the local
// version-vector context a new patch should be authored against. It
// prefers the cached state's observed frontier (the most complete
// view); absent a cache it bootstraps from the writer's own last
// patch on disk, so commit() never requires a full graph materialize.
func (e *Engine) authorContext(ctx context.Context) (vvector.VersionVector, string, bool, error) {
	tip, hasTip, err := e.Store.ReadRef(ctx, refs.WriterRef(e.Graph, e.WriterID))
	if err != nil {
		return nil, "", false, err
	}

	if e.cachedState != nil {
		return e.cachedState.ObservedFrontier, tip, hasTip, nil
	}
	if !hasTip {
		return vvector.New(), tip, hasTip, nil
	}

	meta, err := e.Store.GetNodeInfo(ctx, tip)
	if err != nil {
		return nil, "", false, err
	}
	env, err := chain.ParseEnvelope(meta.Message)
	if err != nil {
		return nil, "", false, err
	}
	blob, err := e.Store.ReadBlob(ctx, env.PatchOID)
	if err != nil {
		return nil, "", false, err
	}
	lastPatch, err := patch.Decode(blob)
	if err != nil {
		return nil, "", false, err
	}
	return lastPatch.Context.Advance(lastPatch.Writer, lastPatch.Lamport), tip, hasTip, nil
}

// commit encodes ops as a new patch authored by e.WriterID, appends it
// to the writer's chain, and (on success) eagerly applies it to the
// cached state if one exists. Failure at any
// point before the ref CAS succeeds leaves cached state and dirty
// untouched.
func (e *Engine) commit(ctx context.Context, ops []patch.Op, reads, writes []string) (string, error) {
	localContext, tip, hasTip, err := e.authorContext(ctx)
	if err != nil {
		return "", err
	}
	lamport := patch.NextLamport(localContext)

	for i := range ops {
		if ops[i].Dot != nil && ops[i].Dot.Counter == 0 {
			ops[i].Dot.Counter = lamport
		}
	}

	p := &patch.Patch{
		Schema: patch.SchemaV2, Writer: e.WriterID, Lamport: lamport,
		Context: localContext.Clone(), Ops: ops, Reads: reads, Writes: writes,
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	blob, err := patch.Encode(p)
	if err != nil {
		return "", err
	}
	if e.maxMessageBytes > 0 && uint(len(blob)) > e.maxMessageBytes {
		return "", warperr.New(warperr.KindValidation, warperr.CodePayloadTooLarge,
			"encoded patch exceeds maxMessageBytes", map[string]any{"size": len(blob), "max": e.maxMessageBytes})
	}

	patchOID, err := e.Store.WriteBlob(ctx, blob)
	if err != nil {
		return "", err
	}

	var parents []string
	if hasTip {
		parents = []string{tip}
	}
	env := chain.Envelope{Graph: e.Graph, Writer: e.WriterID, Lamport: lamport, PatchOID: patchOID, Schema: patch.SchemaV2}
	sha, err := e.Store.CommitNode(ctx, store.CommitInput{Message: env.Encode(), Parents: parents})
	if err != nil {
		return "", err
	}

	if err := e.Store.CompareAndSwapRef(ctx, refs.WriterRef(e.Graph, e.WriterID), sha, tip, hasTip); err != nil {
		return "", err
	}

	if e.cachedState != nil {
		newState := e.cachedState.Clone()
		if err := e.reducer.ApplyPatch(newState, p); err != nil {
			return "", err
		}
		e.cachedState = newState
		e.cachedFrontier = e.cachedFrontier.WithTip(e.WriterID, sha)
		if e.provenanceIndex != nil {
			e.provenanceIndex.AddPatch(sha, p, reads, writes)
		}
		e.patchesSinceCheckpoint++
	} else {
		e.dirty = true
	}
	metrics.PatchesFoldedTotal.Inc()

	return sha, nil
}
