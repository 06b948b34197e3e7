package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	dir := filepath.Join(home, ".memview")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestLoadDotEnv_NotExist(t *testing.T) {
	setupHome(t)

	m, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	dir := setupHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# comment\nA=1\nB=\"two\"\n"), 0o600))

	m, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Equal(t, "1", m["A"])
	assert.Equal(t, "two", m["B"])
}

func TestGetConfigValue_EnvOverridesDotEnv(t *testing.T) {
	dir := setupHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("K=fromdotenv\nONLY=dotenv\n"), 0o600))
	t.Setenv("K", "fromenv")

	v, err := GetConfigValue("K")
	require.NoError(t, err)
	assert.Equal(t, "fromenv", v)

	v, err = GetConfigValue("ONLY")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", v)
}

func TestEnsureDotEnvTemplate_DoesNotOverwrite(t *testing.T) {
	dir := setupHome(t)
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("MEMVIEW_EMBEDDINGS_PROVIDER=keep\n"), 0o600))

	require.NoError(t, EnsureDotEnvTemplate())
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "MEMVIEW_EMBEDDINGS_PROVIDER=keep\n", string(b))
}

func TestEnsureDotEnvTemplate_CreatesWhenMissing(t *testing.T) {
	dir := setupHome(t)

	require.NoError(t, EnsureDotEnvTemplate())
	m, err := LoadDotEnv()
	require.NoError(t, err)
	assert.Contains(t, m, "MEMVIEW_EMBEDDINGS_PROVIDER")
	assert.FileExists(t, filepath.Join(dir, ".env"))
}
