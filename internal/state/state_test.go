package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, p string) error
	Clear(ctx context.Context) error
}

func exerciseStore(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()

	v, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.Clear(ctx), "clear on empty store")

	require.NoError(t, s.Save(ctx, "/data/a.json"))
	require.NoError(t, s.Save(ctx, "/data/b.json"))
	v, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/b.json", v)

	require.NoError(t, s.Clear(ctx))
	v, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "state.yaml")))
}

func TestFileStore_InvalidYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state.yaml")
	s := NewFileStore(p)
	require.NoError(t, s.Save(context.Background(), "x"))
	require.NoError(t, os.WriteFile(p, []byte("last_bundle: [unterminated"), 0o644))
	_, err := s.Load(context.Background())
	require.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, p)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "/data/c.json"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, p)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/c.json", v)
}
