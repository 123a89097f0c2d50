package engine

import "github.com/cuemby/warp/pkg/warperr"

// CheckpointPolicy governs when Materialize attempts an automatic
// checkpoint: every N patches folded since the last
// successful checkpoint.
type CheckpointPolicy struct {
	Every uint
}

// Options configures Open.
type Options struct {
	// CheckpointPolicy is nil for "never auto-checkpoint".
	CheckpointPolicy *CheckpointPolicy

	// AutoMaterialize controls whether a query made against an engine
	// with no cached state triggers an implicit materialize rather
	// than failing with E_NO_STATE. Defaults to true.
	AutoMaterialize *bool

	// OnDeleteWithData governs RemoveNode when the node has incident
	// edges: "warn" (default) logs and leaves the edges dangling,
	// "error" refuses the removal, "cascade" folds the edge removals
	// into the same patch as the node removal.
	OnDeleteWithData string

	// MaxMessageBytes bounds the encoded size of a single patch blob.
	// Zero means unbounded.
	MaxMessageBytes uint
}

func boolOrDefault(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// validate checks option shapes independent of any store access.
func (o Options) validate() error {
	if o.CheckpointPolicy != nil && o.CheckpointPolicy.Every == 0 {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"checkpointPolicy.every must be a positive integer", nil)
	}
	switch o.OnDeleteWithData {
	case "", "warn", "error", "cascade":
	default:
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"onDeleteWithData must be one of warn, error, cascade", map[string]any{"value": o.OnDeleteWithData})
	}
	return nil
}
