package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuemby/warp/pkg/codec"
	"github.com/cuemby/warp/pkg/frontier"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/provenance"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/vvector"
	"github.com/cuemby/warp/pkg/warperr"
)

// SchemaV1 is the only checkpoint tree schema this engine writes.
const SchemaV1 = 1

// Snapshot is the full materialized checkpoint the materialization
// engine folds incrementally from. Distinct from the LRU-bounded seek-cache in cache.go: a graph has
// at most one latest Snapshot, pointed to by a single named ref.
type Snapshot struct {
	State     *graph.State
	Frontier  frontier.Frontier
	AppliedVV vvector.VersionVector
	Index     *provenance.Index
}

// envelope is the JSON commit-message shape for a checkpoint commit:
// {graph, stateHash, frontierOid, indexOid, schema}. stateHash is the
// content-addressed oid of state.cbor itself, already a verifiable
// hash under a content-addressed store.
type envelope struct {
	Graph       string `json:"graph"`
	StateHash   string `json:"stateHash"`
	FrontierOID string `json:"frontierOid"`
	IndexOID    string `json:"indexOid"`
	Schema      int    `json:"schema"`
}

// HeadRef returns the ref a graph's latest checkpoint is pointed to
// by.
func HeadRef(graphName string) string {
	return fmt.Sprintf("refs/warp/%s/checkpoints/head", graphName)
}

const (
	stateEntryPath     = "state.cbor"
	frontierEntryPath  = "frontier.cbor"
	appliedVVEntryPath = "appliedVV.cbor"
	indexEntryPath     = "provenanceIndex.cbor"
)

// WriteCheckpoint encodes snap into a checkpoint tree,
// commits it with parents, and advances graphName's checkpoint head
// ref via compare-and-swap against the ref's current value.
func WriteCheckpoint(ctx context.Context, s store.Store, graphName string, snap Snapshot, parents []string) (string, error) {
	stateBytes, err := snap.State.ToBinary()
	if err != nil {
		return "", err
	}
	stateOID, err := s.WriteBlob(ctx, stateBytes)
	if err != nil {
		return "", err
	}

	frontierBytes, err := frontier.Encode(snap.Frontier)
	if err != nil {
		return "", err
	}
	frontierOID, err := s.WriteBlob(ctx, frontierBytes)
	if err != nil {
		return "", err
	}

	appliedVVBytes, err := codec.Marshal(snap.AppliedVV)
	if err != nil {
		return "", err
	}
	appliedVVOID, err := s.WriteBlob(ctx, appliedVVBytes)
	if err != nil {
		return "", err
	}

	indexBytes, err := snap.Index.ToBinary()
	if err != nil {
		return "", err
	}
	indexOID, err := s.WriteBlob(ctx, indexBytes)
	if err != nil {
		return "", err
	}

	treeOID, err := s.WriteTree(ctx, []store.TreeEntry{
		{Mode: "100644", OID: stateOID, Path: stateEntryPath},
		{Mode: "100644", OID: frontierOID, Path: frontierEntryPath},
		{Mode: "100644", OID: appliedVVOID, Path: appliedVVEntryPath},
		{Mode: "100644", OID: indexOID, Path: indexEntryPath},
	})
	if err != nil {
		return "", err
	}

	env := envelope{Graph: graphName, StateHash: stateOID, FrontierOID: frontierOID, IndexOID: indexOID, Schema: SchemaV1}
	message, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	sha, err := s.CommitNodeWithTree(ctx, store.CommitTreeInput{
		TreeOID: treeOID, Parents: parents, Message: string(message),
	})
	if err != nil {
		return "", err
	}

	ref := HeadRef(graphName)
	currentOID, currentOK, err := s.ReadRef(ctx, ref)
	if err != nil {
		return "", err
	}
	if err := s.CompareAndSwapRef(ctx, ref, sha, currentOID, currentOK); err != nil {
		return "", err
	}
	return sha, nil
}

// ReadLatestCheckpoint loads graphName's current checkpoint head, if
// any. ok is false (with a nil error) when the graph has never been
// checkpointed.
func ReadLatestCheckpoint(ctx context.Context, s store.Store, graphName string) (snap Snapshot, sha string, ok bool, err error) {
	ref := HeadRef(graphName)
	headOID, exists, err := s.ReadRef(ctx, ref)
	if err != nil || !exists {
		return Snapshot{}, "", false, err
	}

	meta, err := s.GetNodeInfo(ctx, headOID)
	if err != nil {
		return Snapshot{}, "", false, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(meta.Message), &env); err != nil {
		return Snapshot{}, "", false, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"checkpoint commit message is not a valid envelope", map[string]any{"commit": headOID}, err)
	}
	if env.Graph != graphName {
		return Snapshot{}, "", false, warperr.New(warperr.KindCausal, warperr.CodeGraphMismatch,
			"checkpoint belongs to a different graph",
			map[string]any{"commit": headOID, "expected": graphName, "actual": env.Graph})
	}

	treeOID, err := s.GetCommitTree(ctx, headOID)
	if err != nil {
		return Snapshot{}, "", false, err
	}
	files, err := s.ReadTree(ctx, treeOID)
	if err != nil {
		return Snapshot{}, "", false, err
	}

	state, err := graph.FromBinary(files[stateEntryPath])
	if err != nil {
		return Snapshot{}, "", false, err
	}
	fr, err := frontier.Decode(files[frontierEntryPath])
	if err != nil {
		return Snapshot{}, "", false, err
	}
	var appliedVV vvector.VersionVector
	if err := codec.Unmarshal(files[appliedVVEntryPath], &appliedVV); err != nil {
		return Snapshot{}, "", false, err
	}
	idx, err := provenance.IndexFromBinary(files[indexEntryPath])
	if err != nil {
		return Snapshot{}, "", false, err
	}

	return Snapshot{State: state, Frontier: fr, AppliedVV: appliedVV, Index: idx}, headOID, true, nil
}
