package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesAllFields(t *testing.T) {
	path := writeConfig(t, `
graph: G
writerId: alice
checkpointEvery: 50
autoMaterialize: false
cacheMaxEntries: 10
storeBackend: git
storePath: /tmp/warp-data
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "G", cfg.Graph)
	require.Equal(t, "alice", cfg.WriterID)
	require.EqualValues(t, 50, cfg.CheckpointEvery)
	require.NotNil(t, cfg.AutoMaterialize)
	require.False(t, *cfg.AutoMaterialize)
	require.Equal(t, BackendGit, cfg.Backend())

	opts := cfg.EngineOptions()
	require.NotNil(t, opts.CheckpointPolicy)
	require.EqualValues(t, 50, opts.CheckpointPolicy.Every)
}

func TestLoadDefaultsBackendToBolt(t *testing.T) {
	path := writeConfig(t, "graph: G\nwriterId: alice\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendBolt, cfg.Backend())
}

func TestLoadRejectsMissingGraph(t *testing.T) {
	path := writeConfig(t, "writerId: alice\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "graph: G\nwriterId: alice\nstoreBackend: dynamo\n")
	_, err := Load(path)
	require.Error(t, err)
}
