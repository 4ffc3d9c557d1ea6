package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Clustering.MinClusterSize)
	assert.Equal(t, 3, cfg.Clustering.MinSamples)
	assert.Equal(t, 0.55, cfg.Clustering.TauAccept)
	assert.Equal(t, 5, cfg.GHAP.CheckInFrequency)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "calm", cfg.Name)
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calm.yaml")
	content := "clustering:\n  min_cluster_size: 8\n  tau_accept: 0.6\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Clustering.MinClusterSize)
	assert.Equal(t, 0.6, cfg.Clustering.TauAccept)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calm.yaml")

	cfg := DefaultConfig()
	cfg.Clustering.MinClusterSize = 9
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Clustering.MinClusterSize)
}

func TestExpandPathsResolvesTilde(t *testing.T) {
	cfg := &Config{Paths: PathsConfig{StorageRoot: "~/calm-data"}}
	cfg.expandPaths()
	assert.NotContains(t, cfg.Paths.StorageRoot, "~")
}
