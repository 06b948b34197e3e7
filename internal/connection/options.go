package connection

import (
	"context"
	"log/slog"

	"github.com/kamusis/memview/internal/search"
)

// PathStore persists the last connected bundle path.
type PathStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, bundlePath string) error
	Clear(ctx context.Context) error
}

type nopStore struct{}

func (nopStore) Load(context.Context) (string, error) { return "", nil }
func (nopStore) Save(context.Context, string) error   { return nil }
func (nopStore) Clear(context.Context) error          { return nil }

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStore sets where the last connected path is persisted.
func WithStore(s PathStore) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithStrictCount controls whether an engine row count that differs from the
// number of records fails the connect (the default) or only logs a warning.
func WithStrictCount(strict bool) Option {
	return func(m *Manager) { m.strictCount = strict }
}

// SearchOption configures a single search.
type SearchOption func(*searchOptions)

type searchOptions struct {
	filter search.Filter
}

// WithFilter restricts candidates to records matching f.
func WithFilter(f search.Filter) SearchOption {
	return func(o *searchOptions) { o.filter = f }
}
