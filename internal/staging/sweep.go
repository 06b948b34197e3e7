package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Orphans lists staged files older than maxAge. Files that are still owned by a
// live connect are normally seconds old, so a generous maxAge only catches
// leftovers from crashed processes.
func (a *Area) Orphans(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read staging dir %s: %w", a.dir, err)
	}
	cutoff := time.Now().Add(-maxAge)
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isStagedName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			out = append(out, filepath.Join(a.dir, e.Name()))
		}
	}
	return out, nil
}

// Sweep removes orphaned staged files older than maxAge and returns how many
// were removed. Concurrent sweeps from other processes are excluded with a
// lock file in the staging directory.
func (a *Area) Sweep(maxAge time.Duration) (int, error) {
	l := flock.New(filepath.Join(a.dir, lockName))
	locked, err := l.TryLock()
	if err != nil {
		return 0, fmt.Errorf("cannot acquire staging lock: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("another sweep is in progress (lock: %s)", l.Path())
	}
	defer func() { _ = l.Unlock() }()

	orphans, err := a.Orphans(maxAge)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range orphans {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			a.logger.Warn("cannot remove orphaned staged file", "path", p, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		a.logger.Info("staging area swept", "removed", removed)
	}
	return removed, nil
}
