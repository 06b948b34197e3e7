// Package engine defines the capability the connection manager needs from a
// vector-index engine: open a staged index file, report its shape, and answer
// k-nearest-neighbor queries.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	// ErrOpenFailed indicates the engine could not open a staged index.
	ErrOpenFailed = errors.New("index open failed")
	// ErrSearchFailed indicates a k-NN query failed.
	ErrSearchFailed = errors.New("index search failed")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrClosed is returned by a Handle after Close.
	ErrClosed = errors.New("index handle is closed")
)

// ErrDimensionMismatch indicates a query vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Neighbor is one k-NN hit: the row position inside the index and its distance
// to the query. Smaller distances are closer.
type Neighbor struct {
	Position uint32
	Distance float32
}

// Engine opens staged index files.
type Engine interface {
	// Open loads the index at path. The returned Handle must not depend on the
	// file after Open returns; the caller deletes it right away.
	Open(ctx context.Context, path string) (Handle, error)
}

// Handle is an open index. Search may be called concurrently; Close must not
// overlap with any Search.
type Handle interface {
	Dimension() int
	Count() int
	// Search returns at most k neighbors of query ordered by ascending
	// distance. When allow is non-nil only positions in allow are candidates.
	Search(ctx context.Context, query []float32, k int, allow *roaring.Bitmap) ([]Neighbor, error)
	Close() error
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, path string) (Handle, error)

// Open implements Engine.
func (f Func) Open(ctx context.Context, path string) (Handle, error) { return f(ctx, path) }
