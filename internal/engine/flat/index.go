package flat

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kamusis/memview/internal/engine"
)

// rows per worker below which a scan stays on the calling goroutine
const minRowsPerWorker = 4096

// Index is an open flat index.
type Index struct {
	header  Header
	vectors []float32
	norms   []float32 // per-row L2 norms, cosine only
	unmap   func() error
	workers int
	closed  atomic.Bool
}

var _ engine.Handle = (*Index)(nil)

func newIndex(h Header, vectors []float32, unmap func() error, workers int) *Index {
	ix := &Index{header: h, vectors: vectors, unmap: unmap, workers: workers}
	if h.Metric == Cosine {
		ix.norms = make([]float32, h.Count)
		for i := range h.Count {
			ix.norms[i] = norm(ix.row(i))
		}
	}
	return ix
}

// Header returns the payload header.
func (ix *Index) Header() Header { return ix.header }

// Dimension implements engine.Handle.
func (ix *Index) Dimension() int { return ix.header.Dim }

// Count implements engine.Handle.
func (ix *Index) Count() int { return ix.header.Count }

func (ix *Index) row(i int) []float32 {
	d := ix.header.Dim
	return ix.vectors[i*d : (i+1)*d]
}

// Close releases the mapping. Further searches fail with engine.ErrClosed.
func (ix *Index) Close() error {
	if ix.closed.Swap(true) {
		return nil
	}
	ix.vectors, ix.norms = nil, nil
	if ix.unmap != nil {
		return ix.unmap()
	}
	return nil
}

// Search implements engine.Handle with an exhaustive scan. Rows are split
// across workers; each keeps its own top-k and the partial results are merged.
func (ix *Index) Search(ctx context.Context, query []float32, k int, allow *roaring.Bitmap) ([]engine.Neighbor, error) {
	if ix.closed.Load() {
		return nil, engine.ErrClosed
	}
	if k <= 0 {
		return nil, engine.ErrInvalidK
	}
	if len(query) != ix.header.Dim {
		return nil, &engine.ErrDimensionMismatch{Expected: ix.header.Dim, Actual: len(query)}
	}

	n := ix.header.Count
	if n == 0 {
		return []engine.Neighbor{}, nil
	}
	var qn float32
	if ix.header.Metric == Cosine {
		qn = norm(query)
	}

	workers := ix.workers
	if limit := n / minRowsPerWorker; workers > limit {
		workers = limit
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers

	partial := make([][]engine.Neighbor, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		start := w * chunk
		end := min(start+chunk, n)
		g.Go(func() error {
			res, err := ix.scan(gctx, query, qn, start, end, k, allow)
			partial[w] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("flat scan: %w", err)
	}

	var out []engine.Neighbor
	for _, p := range partial {
		out = append(out, p...)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (ix *Index) scan(ctx context.Context, query []float32, qn float32, start, end, k int, allow *roaring.Bitmap) ([]engine.Neighbor, error) {
	h := make(maxHeap, 0, k)
	for i := start; i < end; i++ {
		if (i-start)&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if allow != nil && !allow.Contains(uint32(i)) {
			continue
		}
		cand := engine.Neighbor{Position: uint32(i), Distance: ix.distance(query, qn, i)}
		if len(h) < k {
			heap.Push(&h, cand)
		} else if less(cand, h[0]) {
			h[0] = cand
			heap.Fix(&h, 0)
		}
	}
	return h, nil
}

func (ix *Index) distance(query []float32, qn float32, i int) float32 {
	v := ix.row(i)
	switch ix.header.Metric {
	case L2:
		return squaredL2(query, v)
	case InnerProduct:
		return 1 - dot(query, v)
	default:
		return cosineDistance(query, v, qn, ix.norms[i])
	}
}

// less orders by distance, then position, so results are deterministic.
func less(a, b engine.Neighbor) bool {
	if a.Distance == b.Distance {
		return a.Position < b.Position
	}
	return a.Distance < b.Distance
}

// maxHeap keeps the worst of the current top-k at the root.
type maxHeap []engine.Neighbor

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(engine.Neighbor)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
