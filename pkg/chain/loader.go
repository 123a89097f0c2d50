// Package chain implements PatchChainLoader: walking one
// writer's first-parent commit chain backward, decoding the patch
// envelope each commit carries, and producing a chronological replay
// list. Uses go-git's commit-walking idiom, narrowed from "walk every
// commit" to "walk first-parent only, stopping at a boundary".
package chain

import (
	"context"
	"strconv"
	"strings"

	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

// Envelope is the parsed form of a commit message produced for a
// patch commit: "graph\nwriter\nlamport\npatchOid\nschema".
type Envelope struct {
	Graph   string
	Writer  string
	Lamport uint64
	PatchOID string
	Schema  int
}

const envelopeFieldCount = 5

// ParseEnvelope decodes a commit message into an Envelope. Returns
// NOT_PATCH if the message is not a patch envelope.
func ParseEnvelope(message string) (Envelope, error) {
	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	if len(lines) != envelopeFieldCount {
		return Envelope{}, warperr.New(warperr.KindCausal, warperr.CodeNotPatch,
			"commit message is not a patch envelope", map[string]any{"message": message})
	}

	lamport, err := strconv.ParseUint(lines[2], 10, 64)
	if err != nil {
		return Envelope{}, warperr.Wrap(warperr.KindCausal, warperr.CodeNotPatch,
			"patch envelope has a non-numeric lamport", map[string]any{"message": message}, err)
	}
	schema, err := strconv.Atoi(lines[4])
	if err != nil {
		return Envelope{}, warperr.Wrap(warperr.KindCausal, warperr.CodeNotPatch,
			"patch envelope has a non-numeric schema", map[string]any{"message": message}, err)
	}

	return Envelope{
		Graph:    lines[0],
		Writer:   lines[1],
		Lamport:  lamport,
		PatchOID: lines[3],
		Schema:   schema,
	}, nil
}

// Encode renders env back into the commit-message form ParseEnvelope
// accepts.
func (env Envelope) Encode() string {
	return strings.Join([]string{
		env.Graph, env.Writer,
		strconv.FormatUint(env.Lamport, 10),
		env.PatchOID,
		strconv.Itoa(env.Schema),
	}, "\n")
}

// Record pairs a decoded patch with the commit-id it was loaded from.
type Record struct {
	CommitID string
	Patch    *patch.Patch
}

// Loader walks a writer's patch chain against a store.Store.
type Loader struct {
	Store store.Store
}

// NewLoader constructs a Loader bound to s.
func NewLoader(s store.Store) *Loader {
	return &Loader{Store: s}
}

// Load walks first-parent from tipCommitID backward until reaching
// boundaryCommitID (exclusive) or the chain root, decoding every patch
// commit along the way, then reverses the collected list to
// chronological (oldest-first) order.
func (l *Loader) Load(ctx context.Context, graphName, tipCommitID, boundaryCommitID string) ([]Record, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ChainLoadDuration)

	var reversed []Record

	sha := tipCommitID
	reachedBoundary := boundaryCommitID == ""

	for sha != "" {
		if sha == boundaryCommitID && boundaryCommitID != "" {
			reachedBoundary = true
			break
		}

		meta, err := l.Store.GetNodeInfo(ctx, sha)
		if err != nil {
			return nil, err
		}

		env, err := ParseEnvelope(meta.Message)
		if err != nil {
			return nil, err
		}
		if env.Graph != graphName {
			return nil, warperr.New(warperr.KindCausal, warperr.CodeGraphMismatch,
				"patch commit belongs to a different graph",
				map[string]any{"commit": sha, "expected": graphName, "actual": env.Graph})
		}

		blob, err := l.Store.ReadBlob(ctx, env.PatchOID)
		if err != nil {
			return nil, err
		}
		p, err := patch.Decode(blob)
		if err != nil {
			return nil, err
		}

		reversed = append(reversed, Record{CommitID: sha, Patch: p})

		if len(meta.Parents) == 0 {
			break
		}
		sha = meta.Parents[0]
	}

	if !reachedBoundary {
		return nil, warperr.New(warperr.KindCausal, warperr.CodeDivergence,
			"chain does not descend from the requested boundary",
			map[string]any{"tip": tipCommitID, "boundary": boundaryCommitID})
	}

	records := make([]Record, len(reversed))
	for i, r := range reversed {
		records[len(reversed)-1-i] = r
	}
	return records, nil
}
