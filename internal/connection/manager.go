// Package connection owns the single live connection to a vector-index bundle.
//
// A Manager moves through Disconnected, Connecting, Connected and Error. Connect
// parses a bundle, stages its index payload, opens it with the engine and keeps
// the records for result composition. At most one connection exists: every
// Connect tears the previous one down first. The staged file never outlives a
// Connect call, whatever its outcome.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/engine"
	"github.com/kamusis/memview/internal/notify"
	"github.com/kamusis/memview/internal/search"
	"github.com/kamusis/memview/internal/staging"
)

// Manager owns the connection state machine.
//
// Connect, Disconnect, Refresh, Restore and Close are serialized. Searches run
// concurrently with each other and are excluded from any operation that closes
// the engine handle.
type Manager struct {
	engine      engine.Engine
	staging     *staging.Area
	store       PathStore
	logger      *slog.Logger
	strictCount bool
	notifier    notify.Notifier

	opMu sync.Mutex

	// mu guards the fields below. Searches hold the read lock for the whole
	// engine call so teardown cannot close a handle in use.
	mu         sync.RWMutex
	state      State
	handle     engine.Handle
	records    []bundle.Record
	byID       map[string]int
	sourcePath string
	dimension  int
	count      int
	lastErr    error
}

// New returns a disconnected Manager.
func New(eng engine.Engine, area *staging.Area, opts ...Option) *Manager {
	m := &Manager{
		engine:      eng,
		staging:     area,
		store:       nopStore{},
		logger:      slog.New(slog.DiscardHandler),
		strictCount: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn to be called after every state transition.
// fn runs on the goroutine that performed the transition and may call the
// Manager's getters, but not Connect, Disconnect or Refresh.
func (m *Manager) Subscribe(fn func()) (unsubscribe func()) {
	return m.notifier.Subscribe(fn)
}

// Connect replaces any current connection with one to the bundle at path.
// On failure the Manager is left in Error with no open handle and the error
// is returned as a *StepError.
func (m *Manager) Connect(ctx context.Context, path string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.connectLocked(ctx, path)
}

func (m *Manager) connectLocked(ctx context.Context, path string) error {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	m.mu.Lock()
	old := m.resetLocked()
	m.state = Connecting
	m.mu.Unlock()
	m.closeHandle(old)
	m.notifier.Notify()

	m.logger.Info("connecting", "path", path)
	c, err := m.load(ctx, path)
	if err != nil {
		m.mu.Lock()
		m.state = Error
		m.lastErr = err
		m.mu.Unlock()

		m.logger.Error("connect failed", "path", path, "error", err)
		if cerr := m.store.Clear(ctx); cerr != nil {
			m.logger.Warn("cannot clear saved bundle path", "error", cerr)
		}
		m.notifier.Notify()
		return err
	}

	m.mu.Lock()
	m.state = Connected
	m.handle = c.handle
	m.records = c.records
	m.byID = c.byID
	m.sourcePath = path
	m.dimension = c.dimension
	m.count = c.count
	m.mu.Unlock()

	m.logger.Info("connected", "path", path, "dimension", c.dimension, "count", c.count)
	if serr := m.store.Save(ctx, path); serr != nil {
		m.logger.Warn("cannot save bundle path", "error", serr)
	}
	m.notifier.Notify()
	return nil
}

type loaded struct {
	handle    engine.Handle
	records   []bundle.Record
	byID      map[string]int
	dimension int
	count     int
}

// load runs parse, stage, open and verify. The staged file is released on
// every return path; a release failure is logged and never replaces err.
func (m *Manager) load(ctx context.Context, path string) (*loaded, error) {
	b, err := bundle.Parse(path)
	if err != nil {
		return nil, &StepError{Step: StepParse, Path: path, Err: err}
	}

	staged, err := m.staging.Stage(ctx, b.Index)
	if err != nil {
		return nil, &StepError{Step: StepStage, Path: path, Err: err}
	}
	defer func() {
		if rerr := staged.Release(); rerr != nil {
			m.logger.Warn("staging cleanup failed", "path", staged.Path(), "error", rerr)
		}
	}()

	h, err := m.openEngine(ctx, staged.Path())
	if err != nil {
		return nil, &StepError{Step: StepOpen, Path: path, Err: err}
	}

	dim, count := h.Dimension(), h.Count()
	if count != len(b.Records) {
		mismatch := fmt.Errorf("%w: index has %d rows, bundle has %d records", search.ErrRecordVectorMismatch, count, len(b.Records))
		if m.strictCount {
			m.closeHandle(h)
			return nil, &StepError{Step: StepVerify, Path: path, Err: mismatch}
		}
		m.logger.Warn("row count mismatch", "path", path, "error", mismatch)
	}

	byID := make(map[string]int, len(b.Records))
	for i, r := range b.Records {
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = i
		}
	}
	return &loaded{handle: h, records: b.Records, byID: byID, dimension: dim, count: count}, nil
}

// openEngine converts engine panics into errors so the state machine always
// leaves Connecting.
func (m *Manager) openEngine(ctx context.Context, path string) (h engine.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("%w: engine panic: %v", engine.ErrOpenFailed, r)
		}
	}()
	h, err = m.engine.Open(ctx, path)
	if err != nil {
		if !errors.Is(err, engine.ErrOpenFailed) {
			err = fmt.Errorf("%w: %w", engine.ErrOpenFailed, err)
		}
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: engine returned no handle", engine.ErrOpenFailed)
	}
	return h, nil
}

// Disconnect closes the connection and forgets the saved bundle path.
// Calling it while Disconnected changes nothing and notifies nobody.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	changed, err := m.teardown(Disconnected)
	if cerr := m.store.Clear(ctx); cerr != nil {
		m.logger.Warn("cannot clear saved bundle path", "error", cerr)
	}
	if changed {
		m.logger.Info("disconnected")
		m.notifier.Notify()
	}
	return err
}

// Close releases the engine handle like Disconnect but keeps the saved bundle
// path, so the next process can Restore it.
func (m *Manager) Close() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	changed, err := m.teardown(Disconnected)
	if changed {
		m.notifier.Notify()
	}
	return err
}

func (m *Manager) teardown(to State) (changed bool, err error) {
	m.mu.Lock()
	prev := m.state
	old := m.resetLocked()
	m.state = to
	m.mu.Unlock()

	if old != nil {
		if err = old.Close(); err != nil {
			m.logger.Warn("cannot close index", "error", err)
		}
	}
	return prev != to, err
}

// Refresh reconnects to the current bundle. When not Connected it only
// re-notifies observers.
func (m *Manager) Refresh(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	st, path := m.state, m.sourcePath
	m.mu.RUnlock()

	if st != Connected {
		m.notifier.Notify()
		return nil
	}
	return m.connectLocked(ctx, path)
}

// Restore reconnects to the saved bundle path, if any. It reports whether a
// saved path was found.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	path, err := m.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("cannot load saved bundle path: %w", err)
	}
	if path == "" {
		return false, nil
	}
	return true, m.Connect(ctx, path)
}

// resetLocked clears the connection fields and returns the handle the caller
// must close once mu is released. Caller must hold mu.
func (m *Manager) resetLocked() engine.Handle {
	h := m.handle
	m.handle = nil
	m.records = nil
	m.byID = nil
	m.sourcePath = ""
	m.dimension = 0
	m.count = 0
	m.lastErr = nil
	return h
}

func (m *Manager) closeHandle(h engine.Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		m.logger.Warn("cannot close index", "error", err)
	}
}

// Search returns the k records nearest to vector, nearest first. It returns
// nil, nil when no connection is open. Engine failures are wrapped with
// engine.ErrSearchFailed and leave the connection untouched.
func (m *Manager) Search(ctx context.Context, vector []float32, k int, opts ...SearchOption) ([]search.Result, error) {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected || m.handle == nil {
		return nil, nil
	}
	return m.searchLocked(ctx, vector, k, o, -1)
}

// SearchSimilar searches with the vector of the record id and leaves that
// record out of the results.
func (m *Manager) SearchSimilar(ctx context.Context, id string, k int, opts ...SearchOption) ([]search.Result, error) {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected || m.handle == nil {
		return nil, nil
	}
	pos, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return m.searchLocked(ctx, m.records[pos].Vector, k, o, pos)
}

// searchLocked runs the engine query and composes results. exclude, when not
// negative, is a position dropped from the output. Caller must hold mu.RLock.
func (m *Manager) searchLocked(ctx context.Context, vector []float32, k int, o searchOptions, exclude int) ([]search.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %w", engine.ErrSearchFailed, engine.ErrInvalidK)
	}
	allow := o.filter.Bitmap(m.records)
	if exclude >= 0 && allow != nil {
		allow.Remove(uint32(exclude))
	}
	if allow != nil && allow.IsEmpty() {
		return []search.Result{}, nil
	}

	want := k
	if exclude >= 0 && allow == nil {
		want++
	}
	neighbors, err := m.handle.Search(ctx, vector, want, allow)
	if err != nil {
		m.logger.Warn("search failed", "k", k, "error", err)
		return nil, fmt.Errorf("%w: %w", engine.ErrSearchFailed, err)
	}
	if exclude >= 0 {
		neighbors = slices.DeleteFunc(neighbors, func(n engine.Neighbor) bool { return int(n.Position) == exclude })
	}
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	results, err := search.Compose(neighbors, m.records)
	if err != nil {
		m.logger.Error("result composition failed", "error", err)
		return nil, err
	}
	m.logger.Debug("search completed", "k", k, "results", len(results))
	return results, nil
}

// LookupRecord returns the first record with id.
func (m *Manager) LookupRecord(id string) (bundle.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.byID[id]
	if !ok {
		return bundle.Record{}, false
	}
	return m.records[pos], true
}

// ListRecords returns the records of the current connection in index order.
func (m *Manager) ListRecords() []bundle.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.records)
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Dimension returns the vector dimension of the open index, or 0.
func (m *Manager) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Count returns the row count of the open index, or 0.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// SourcePath returns the bundle path of the current connection, or "".
func (m *Manager) SourcePath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sourcePath
}

// LastError returns the error that moved the Manager into Error, or nil.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}
