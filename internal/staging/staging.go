// Package staging hands binary index payloads to the index engine through
// short-lived files.
//
// Every staged file is owned by a *File and removed exactly once by Release.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrWriteFailed indicates the payload could not be written to the staging area.
	ErrWriteFailed = errors.New("staging write failed")
	// ErrVerificationFailed indicates the staged file is missing or truncated after the write.
	ErrVerificationFailed = errors.New("staging verification failed")
)

const (
	filePrefix = "stage-"
	fileSuffix = ".idx"
	lockName   = ".staging.lock"
)

// Area is a directory holding staged payloads.
type Area struct {
	dir    string
	logger *slog.Logger
	seq    atomic.Uint64
}

// Option configures an Area.
type Option func(*Area)

// WithLogger sets the logger used for cleanup diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Area) {
		if l != nil {
			a.logger = l
		}
	}
}

// New returns an Area rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Area, error) {
	if dir == "" {
		return nil, fmt.Errorf("staging dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create staging dir %s: %w", dir, err)
	}
	a := &Area{dir: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Dir returns the staging directory.
func (a *Area) Dir() string { return a.dir }

// Stage writes payload to a uniquely named file and verifies it landed intact.
// The caller must Release the returned file.
func (a *Area) Stage(ctx context.Context, payload []byte) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	name := fmt.Sprintf("%s%d-%d-%d%s", filePrefix, os.Getpid(), time.Now().UnixNano(), a.seq.Add(1), fileSuffix)
	path := filepath.Join(a.dir, name)

	if err := writeExclusive(path, payload); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}

	st, err := os.Stat(path)
	switch {
	case err != nil:
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %s: %w", ErrVerificationFailed, path, err)
	case st.Size() == 0:
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %s is empty", ErrVerificationFailed, path)
	case st.Size() != int64(len(payload)):
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrVerificationFailed, path, st.Size(), len(payload))
	}

	a.logger.Debug("payload staged", "path", path, "bytes", len(payload))
	return &File{path: path, logger: a.logger}, nil
}

func writeExclusive(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// File is a staged payload on disk.
type File struct {
	path   string
	logger *slog.Logger

	once sync.Once
	err  error
}

// Path returns the staged file path.
func (f *File) Path() string { return f.path }

// Release removes the staged file. Only the first call does any work; later
// calls return the first result.
func (f *File) Release() error {
	f.once.Do(func() {
		err := os.Remove(f.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("cannot remove staged file %s: %w", f.path, err)
			return
		}
		f.logger.Debug("staged payload released", "path", f.path)
	})
	return f.err
}

func isStagedName(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}
