// Package state persists the last connected bundle path so a later process
// can restore the connection.
package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// fileState is the on-disk shape of state.yaml.
type fileState struct {
	LastBundle string `yaml:"last_bundle,omitempty"`
	UpdatedAt  string `yaml:"updated_at,omitempty"`
}

// FileStore keeps the last bundle path in a small YAML file. Writes are
// serialized across processes with a lock file next to it.
type FileStore struct {
	path        string
	lockTimeout time.Duration
}

// NewFileStore returns a store backed by the YAML file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lockTimeout: 5 * time.Second}
}

// Path returns the state file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the saved path, or "" when nothing is saved.
func (s *FileStore) Load(_ context.Context) (string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("cannot read state %s: %w", s.path, err)
	}
	var st fileState
	if err := yaml.Unmarshal(b, &st); err != nil {
		return "", fmt.Errorf("invalid YAML in %s: %w", s.path, err)
	}
	return st.LastBundle, nil
}

// Save records bundlePath as the last connected bundle.
func (s *FileStore) Save(ctx context.Context, bundlePath string) error {
	return s.write(ctx, fileState{
		LastBundle: bundlePath,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

// Clear forgets the saved path.
func (s *FileStore) Clear(ctx context.Context) error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.write(ctx, fileState{UpdatedAt: time.Now().UTC().Format(time.RFC3339)})
}

func (s *FileStore) write(ctx context.Context, st fileState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create state dir %s: %w", dir, err)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("cannot marshal state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write state %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cannot install state %s: %w", s.path, err)
	}
	return nil
}

// lock obtains the state lock, polling until lockTimeout.
func (s *FileStore) lock(ctx context.Context) (func(), error) {
	lockPath := s.path + ".lock"
	l := flock.New(lockPath)
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := l.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("cannot acquire state lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("state is locked by another process (lock: %s)", lockPath)
	}
	return func() { _ = l.Unlock() }, nil
}
