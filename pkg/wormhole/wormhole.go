// Package wormhole implements WormholeService: range compression over
// a single writer's patch chain that preserves exact replay, composable
// end to end. Walks the chain the same way pkg/chain does, using
// go-git's commit-walking idiom, narrowed further to single-writer
// ranges and a stricter set of wormhole-specific error codes.
package wormhole

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/cuemby/warp/pkg/chain"
	"github.com/cuemby/warp/pkg/graph"
	"github.com/cuemby/warp/pkg/metrics"
	"github.com/cuemby/warp/pkg/patch"
	"github.com/cuemby/warp/pkg/provenance"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/warperr"
)

// Wormhole is a compressed, replayable range of one writer's chain.
type Wormhole struct {
	FromSHA    string
	ToSHA      string
	WriterID   string
	Payload    *provenance.Payload
	PatchCount int
}

// Service creates and composes wormholes against a store.
type Service struct {
	Store store.Store
}

// NewService constructs a Service bound to s.
func NewService(s store.Store) *Service {
	return &Service{Store: s}
}

// CreateWormhole validates both endpoints exist, walks toSHA's
// first-parent chain backward through fromSHA collecting patches
// (both endpoints' patches are included — fromSHA is the
// oldest-included ancestor of toSHA), and returns the resulting
// Wormhole. Fails with WORMHOLE_MULTI_WRITER if the range spans more
// than one writer, WORMHOLE_INVALID_RANGE if the walk reaches a root
// before fromSHA, and WORMHOLE_EMPTY_RANGE if fromSHA == toSHA (a
// range must span at least two commits).
func (svc *Service) CreateWormhole(ctx context.Context, graphName, fromSHA, toSHA string) (*Wormhole, error) {
	for _, sha := range []string{fromSHA, toSHA} {
		exists, err := svc.Store.NodeExists(ctx, sha)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, warperr.New(warperr.KindNotFound, warperr.CodeWormholeSHANotFound,
				"wormhole endpoint commit not found", map[string]any{"sha": sha})
		}
	}
	if fromSHA == toSHA {
		return nil, warperr.New(warperr.KindValidation, warperr.CodeWormholeEmptyRange,
			"wormhole range contains no patches",
			map[string]any{"from": fromSHA, "to": toSHA})
	}

	var reversed []provenance.Entry
	writerID := ""
	reachedFrom := false

	sha := toSHA
	for sha != "" {
		meta, err := svc.Store.GetNodeInfo(ctx, sha)
		if err != nil {
			return nil, err
		}

		env, err := chain.ParseEnvelope(meta.Message)
		if err != nil {
			return nil, warperr.Wrap(warperr.KindCausal, warperr.CodeWormholeNotPatch,
				"commit in wormhole range is not a patch commit", map[string]any{"commit": sha}, err)
		}
		if env.Graph != graphName {
			return nil, warperr.New(warperr.KindCausal, warperr.CodeWormholeNotPatch,
				"commit belongs to a different graph",
				map[string]any{"commit": sha, "expected": graphName, "actual": env.Graph})
		}
		if writerID == "" {
			writerID = env.Writer
		} else if env.Writer != writerID {
			return nil, warperr.New(warperr.KindCausal, warperr.CodeWormholeMultiWriter,
				"wormhole range spans more than one writer",
				map[string]any{"commit": sha, "expected_writer": writerID, "actual_writer": env.Writer})
		}

		blob, err := svc.Store.ReadBlob(ctx, env.PatchOID)
		if err != nil {
			return nil, err
		}
		p, err := patch.Decode(blob)
		if err != nil {
			return nil, err
		}

		reversed = append(reversed, provenance.Entry{Patch: p, CommitID: sha})

		if sha == fromSHA {
			reachedFrom = true
			break
		}
		if len(meta.Parents) == 0 {
			break
		}
		sha = meta.Parents[0]
	}

	if !reachedFrom {
		return nil, warperr.New(warperr.KindCausal, warperr.CodeWormholeInvalidRange,
			"wormhole range does not descend from fromSha",
			map[string]any{"from": fromSHA, "to": toSHA})
	}

	chrono := make([]provenance.Entry, len(reversed))
	for i, e := range reversed {
		chrono[len(reversed)-1-i] = e
	}

	metrics.WormholesCreatedTotal.Inc()
	return &Wormhole{
		FromSHA:    fromSHA,
		ToSHA:      toSHA,
		WriterID:   writerID,
		Payload:    provenance.NewPayload(chrono),
		PatchCount: len(chrono),
	}, nil
}

// ComposeOptions carries the optional store used to verify b chains
// contiguously from a.
type ComposeOptions struct {
	Store store.Store
}

// ComposeWormholes joins a and b into a single wormhole spanning
// a.FromSHA..b.ToSHA. Fails with WORMHOLE_MULTI_WRITER if the two
// wormholes belong to different writers. When opts.Store is provided,
// verifies b.FromSHA's parents include a.ToSHA, failing with
// WORMHOLE_INVALID_RANGE on a contiguity gap.
func ComposeWormholes(ctx context.Context, a, b *Wormhole, opts *ComposeOptions) (*Wormhole, error) {
	if a.WriterID != b.WriterID {
		return nil, warperr.New(warperr.KindCausal, warperr.CodeWormholeMultiWriter,
			"cannot compose wormholes from different writers",
			map[string]any{"a_writer": a.WriterID, "b_writer": b.WriterID})
	}

	if opts != nil && opts.Store != nil {
		meta, err := opts.Store.GetNodeInfo(ctx, b.FromSHA)
		if err != nil {
			return nil, err
		}
		contiguous := false
		for _, parent := range meta.Parents {
			if parent == a.ToSHA {
				contiguous = true
				break
			}
		}
		if !contiguous {
			return nil, warperr.New(warperr.KindCausal, warperr.CodeWormholeInvalidRange,
				"second wormhole does not chain from the first",
				map[string]any{"a_to": a.ToSHA, "b_from": b.FromSHA})
		}
	}

	metrics.WormholesComposedTotal.Inc()
	return &Wormhole{
		FromSHA:    a.FromSHA,
		ToSHA:      b.ToSHA,
		WriterID:   a.WriterID,
		Payload:    a.Payload.Concat(b.Payload),
		PatchCount: a.PatchCount + b.PatchCount,
	}, nil
}

// ReplayWormhole replays w's payload against initial (or a fresh
// state if initial is nil).
func ReplayWormhole(w *Wormhole, initial *graph.State) (*graph.State, error) {
	return w.Payload.Replay(initial)
}

// wireWormhole is the self-describing JSON-compatible shape Serialize
// produces and Deserialize consumes. The payload itself
// still goes through the module's canonical binary codec, base64-armored
// so it can live inside a JSON string field.
type wireWormhole struct {
	FromSHA    string `json:"fromSha"`
	ToSHA      string `json:"toSha"`
	WriterID   string `json:"writerId"`
	PatchCount int    `json:"patchCount"`
	Payload    string `json:"payload"`
}

// Serialize renders w to its JSON-compatible wire form.
func (w *Wormhole) Serialize() ([]byte, error) {
	payloadBytes, err := w.Payload.ToBinary()
	if err != nil {
		return nil, err
	}
	wire := wireWormhole{
		FromSHA:    w.FromSHA,
		ToSHA:      w.ToSHA,
		WriterID:   w.WriterID,
		PatchCount: w.PatchCount,
		Payload:    base64.StdEncoding.EncodeToString(payloadBytes),
	}
	return json.Marshal(wire)
}

// Deserialize parses a wormhole previously produced by Serialize.
// Fails with WORMHOLE_INVALID_WORMHOLE_JSON if any required field is
// missing or the payload is malformed.
func Deserialize(data []byte) (*Wormhole, error) {
	var wire wireWormhole
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, warperr.Wrap(warperr.KindValidation, warperr.CodeWormholeInvalidJSON,
			"malformed wormhole json", nil, err)
	}
	if wire.FromSHA == "" || wire.ToSHA == "" || wire.WriterID == "" || wire.Payload == "" {
		return nil, warperr.New(warperr.KindValidation, warperr.CodeWormholeInvalidJSON,
			"wormhole json is missing a required field", nil)
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(wire.Payload)
	if err != nil {
		return nil, warperr.Wrap(warperr.KindValidation, warperr.CodeWormholeInvalidJSON,
			"wormhole payload is not valid base64", nil, err)
	}
	payload, err := provenance.FromBinary(payloadBytes)
	if err != nil {
		return nil, err
	}

	return &Wormhole{
		FromSHA:    wire.FromSHA,
		ToSHA:      wire.ToSHA,
		WriterID:   wire.WriterID,
		Payload:    payload,
		PatchCount: wire.PatchCount,
	}, nil
}
