// Package fork implements ForkService: creating a new graph namespace whose
// writer ref points at a validated ancestor commit already present in
// an existing writer's chain, so the new graph starts from exactly
// that causal state without re-decoding the source graph's commits
// under a different graph name. Uses the same commit-ancestry walk as
// pkg/chain and pkg/wormhole, narrowed here to an existence check
// rather than a full patch load.
package fork

import (
	"context"
	"regexp"

	"github.com/cuemby/warp/pkg/chain"
	"github.com/cuemby/warp/pkg/checkpoint"
	"github.com/cuemby/warp/pkg/frontier"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/log"
	"github.com/cuemby/warp/pkg/provenance"
	"github.com/cuemby/warp/pkg/refs"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Service creates forks against a store.
type Service struct {
	Store store.Store
}

// NewService constructs a Service bound to s.
func NewService(s store.Store) *Service {
	return &Service{Store: s}
}

// Result describes a completed fork.
type Result struct {
	// TipSHA is the commit the new graph's writer ref now points at —
	// the validated ancestor commit itself, not a newly authored one.
	TipSHA string
}

// Fork creates targetGraph with a single writer (targetWriterID) whose
// chain tip is atCommitSHA, a commit already reachable on
// sourceWriter's chain in sourceGraph. It also bootstraps
// targetGraph's checkpoint with sourceWriter's state as folded up to
// (and including) atCommitSHA, keyed to targetWriterID in the
// checkpoint's frontier — so a later materialize of targetGraph never
// needs to walk back across the graph boundary into sourceGraph's own
// commit history.
func (svc *Service) Fork(ctx context.Context, sourceGraph, sourceWriter, atCommitSHA, targetGraph, targetWriterID string) (Result, error) {
	logger := log.WithComponent("fork")

	if sourceGraph == "" || sourceWriter == "" || atCommitSHA == "" || targetGraph == "" || targetWriterID == "" {
		return Result{}, warperr.New(warperr.KindValidation, warperr.CodeForkInvalidArgs,
			"fork requires sourceGraph, sourceWriter, atCommitSha, targetGraph and targetWriterId", nil)
	}
	if !namePattern.MatchString(targetGraph) {
		return Result{}, warperr.New(warperr.KindValidation, warperr.CodeForkNameInvalid,
			"target graph name contains invalid characters", map[string]any{"graph": targetGraph})
	}
	if !namePattern.MatchString(targetWriterID) {
		return Result{}, warperr.New(warperr.KindValidation, warperr.CodeForkWriterIDInvalid,
			"target writer id contains invalid characters", map[string]any{"writer": targetWriterID})
	}

	sourceTip, ok, err := svc.Store.ReadRef(ctx, refs.WriterRef(sourceGraph, sourceWriter))
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, warperr.New(warperr.KindNotFound, warperr.CodeForkWriterNotFound,
			"source writer has no chain in source graph",
			map[string]any{"graph": sourceGraph, "writer": sourceWriter})
	}

	exists, err := svc.Store.NodeExists(ctx, atCommitSHA)
	if err != nil {
		return Result{}, err
	}
	if !exists {
		return Result{}, warperr.New(warperr.KindNotFound, warperr.CodeForkPatchNotFound,
			"fork commit does not exist", map[string]any{"commit": atCommitSHA})
	}

	if err := svc.requireAncestor(ctx, sourceTip, atCommitSHA); err != nil {
		return Result{}, err
	}

	targetRef := refs.WriterRef(targetGraph, targetWriterID)
	if _, exists, err := svc.Store.ReadRef(ctx, targetRef); err != nil {
		return Result{}, err
	} else if exists {
		return Result{}, warperr.New(warperr.KindValidation, warperr.CodeForkAlreadyExists,
			"target writer already exists", map[string]any{"graph": targetGraph, "writer": targetWriterID})
	}

	loader := chain.NewLoader(svc.Store)
	records, err := loader.Load(ctx, sourceGraph, atCommitSHA, "")
	if err != nil {
		return Result{}, err
	}

	state := graph.New()
	reducer := graph.NewJoinReducer()
	idx := provenance.NewIndex()
	for _, rec := range records {
		if err := reducer.ApplyPatch(state, rec.Patch); err != nil {
			return Result{}, err
		}
		idx.AddPatch(rec.CommitID, rec.Patch, rec.Patch.Reads, rec.Patch.Writes)
	}

	snap := checkpoint.Snapshot{
		State:     state,
		Frontier:  frontier.New().WithTip(targetWriterID, atCommitSHA),
		AppliedVV: state.ObservedFrontier.Clone(),
		Index:     idx,
	}
	if _, err := checkpoint.WriteCheckpoint(ctx, svc.Store, targetGraph, snap, nil); err != nil {
		return Result{}, err
	}

	if err := svc.Store.CompareAndSwapRef(ctx, targetRef, atCommitSHA, "", false); err != nil {
		return Result{}, err
	}

	logger.Info().Str("source_graph", sourceGraph).Str("target_graph", targetGraph).
		Str("at_commit", atCommitSHA).Msg("forked graph")
	return Result{TipSHA: atCommitSHA}, nil
}

// requireAncestor walks tip's first-parent chain looking for target,
// failing with PATCH_NOT_IN_CHAIN if the root is reached first.
func (svc *Service) requireAncestor(ctx context.Context, tip, target string) error {
	sha := tip
	for sha != "" {
		if sha == target {
			return nil
		}
		meta, err := svc.Store.GetNodeInfo(ctx, sha)
		if err != nil {
			return err
		}
		if len(meta.Parents) == 0 {
			break
		}
		sha = meta.Parents[0]
	}
	return warperr.New(warperr.KindCausal, warperr.CodeForkPatchNotInChain,
		"fork commit is not an ancestor of the source writer's chain tip",
		map[string]any{"tip": tip, "commit": target})
}
