package search

import (
	"fmt"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/engine"
)

// Compose maps each neighbor to records[neighbor.Position], keeping the
// engine's order. A position outside records means the bundle is corrupt and
// fails with ErrRecordVectorMismatch rather than being skipped.
func Compose(neighbors []engine.Neighbor, records []bundle.Record) ([]Result, error) {
	out := make([]Result, 0, len(neighbors))
	for _, n := range neighbors {
		pos := int(n.Position)
		if pos >= len(records) {
			return nil, fmt.Errorf("%w: position %d outside %d records", ErrRecordVectorMismatch, pos, len(records))
		}
		out = append(out, Result{Record: records[pos], Position: pos, Distance: n.Distance})
	}
	return out, nil
}
