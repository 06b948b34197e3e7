package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	dir := setupHome(t)
	t.Setenv("MEMVIEW_LOG_LEVEL", "")
	t.Setenv("MEMVIEW_STAGING_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.StateBackend)
	assert.Equal(t, filepath.Join(dir, "state.yaml"), cfg.StatePath)
	assert.Equal(t, 10, cfg.DefaultK)
	assert.True(t, cfg.Strict())
	assert.Positive(t, cfg.SearchWorkers)
	assert.NotEmpty(t, cfg.StagingDir)
}

func TestLoad_FileAndOverrides(t *testing.T) {
	dir := setupHome(t)
	home := filepath.Dir(dir)
	body := "state_backend: sqlite\nstaging_dir: ~/stage\nstrict_count: false\ndefault_k: 3\nlog_level: info\nmax_index_bytes: 1048576\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	t.Setenv("MEMVIEW_LOG_LEVEL", "debug")
	t.Setenv("MEMVIEW_STAGING_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.StateBackend)
	assert.Equal(t, filepath.Join(dir, "state.db"), cfg.StatePath)
	assert.Equal(t, filepath.Join(home, "stage"), cfg.StagingDir)
	assert.False(t, cfg.Strict())
	assert.Equal(t, 3, cfg.DefaultK)
	assert.Equal(t, int64(1<<20), cfg.MaxIndexBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	dir := setupHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("state_backend: redis\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	setupHome(t)
	t.Setenv("MEMVIEW_LOG_LEVEL", "")
	t.Setenv("MEMVIEW_STAGING_DIR", "")

	cfg := DefaultConfig()
	cfg.DefaultK = 25
	require.NoError(t, Save(cfg))

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, got.DefaultK)
}
