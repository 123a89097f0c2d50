// Package config loads EngineConfig, the small YAML-backed settings
// struct cmd/warp reads before opening a MaterializationEngine. Uses
// gopkg.in/yaml.v3 directly rather than a generic pluggable config
// framework — this module's configuration surface is deliberately
// small and engine-specific.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warp/pkg/engine"
	"github.com/cuemby/warp/pkg/warperr"
)

// StoreBackend selects which store.Store adapter cmd/warp wires up.
type StoreBackend string

const (
	BackendBolt StoreBackend = "bolt"
	BackendGit  StoreBackend = "git"
)

// EngineConfig is the on-disk shape of a warp engine's settings.
type EngineConfig struct {
	Graph           string       `yaml:"graph"`
	WriterID        string       `yaml:"writerId"`
	CheckpointEvery uint         `yaml:"checkpointEvery"`
	AutoMaterialize *bool        `yaml:"autoMaterialize"`
	CacheMaxEntries int          `yaml:"cacheMaxEntries"`
	StoreBackend    StoreBackend `yaml:"storeBackend"`
	StorePath       string       `yaml:"storePath"`
}

// Load reads and parses an EngineConfig from path.
func Load(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"failed to read config file", map[string]any{"path": path}, err)
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, warperr.Wrap(warperr.KindValidation, warperr.CodeInvalidOp,
			"failed to parse config file", map[string]any{"path": path}, err)
	}
	if err := cfg.validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

func (c EngineConfig) validate() error {
	if c.Graph == "" || c.WriterID == "" {
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"config requires graph and writerId", nil)
	}
	switch c.StoreBackend {
	case "", BackendBolt, BackendGit:
	default:
		return warperr.New(warperr.KindValidation, warperr.CodeInvalidOp,
			"storeBackend must be \"bolt\" or \"git\"", map[string]any{"value": c.StoreBackend})
	}
	return nil
}

// EngineOptions translates the loaded config into engine.Options.
func (c EngineConfig) EngineOptions() engine.Options {
	var policy *engine.CheckpointPolicy
	if c.CheckpointEvery > 0 {
		policy = &engine.CheckpointPolicy{Every: c.CheckpointEvery}
	}
	return engine.Options{
		CheckpointPolicy: policy,
		AutoMaterialize:  c.AutoMaterialize,
	}
}

// Backend returns the configured store backend, defaulting to bolt.
func (c EngineConfig) Backend() StoreBackend {
	if c.StoreBackend == "" {
		return BackendBolt
	}
	return c.StoreBackend
}
