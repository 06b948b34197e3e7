// Package search turns raw k-NN hits into record-level results and evaluates
// record filters.
package search

import (
	"errors"

	"github.com/kamusis/memview/internal/bundle"
)

// ErrRecordVectorMismatch indicates the index and the record list of a bundle
// disagree: a hit points past the records, or the row counts differ.
var ErrRecordVectorMismatch = errors.New("index rows and records do not match")

// Result is one composed search hit.
type Result struct {
	Record   bundle.Record
	Position int
	Distance float32
}
