package main

import (
	"github.com/cuemby/warp/pkg/config"
	"github.com/cuemby/warp/pkg/store"
	"github.com/cuemby/warp/pkg/store/boltstore"
	"github.com/cuemby/warp/pkg/store/gitstore"
	"github.com/cuemby/warp/pkg/warperr"
)

// openStore wires the configured backend, choosing between the two
// object-store adapters.
func openStore(cfg config.EngineConfig) (store.Store, error) {
	switch cfg.Backend() {
	case config.BackendGit:
		return gitstore.Open(cfg.StorePath, cfg.WriterID)
	case config.BackendBolt:
		return boltstore.Open(cfg.StorePath, cfg.WriterID)
	default:
		return nil, warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"unknown store backend", map[string]any{"backend": cfg.Backend()})
	}
}
