package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kamusis/memview/internal/bundle"
)

// Filter restricts records by metadata. Zero fields are ignored.
type Filter struct {
	Role     string
	ThreadID string
	Keyword  string
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Role == "" && f.ThreadID == "" && f.Keyword == ""
}

// Match reports whether r passes the filter.
func (f Filter) Match(r bundle.Record) bool {
	return f.match(newKeywordMatcher(f.Keyword), r)
}

func (f Filter) match(kw *keywordMatcher, r bundle.Record) bool {
	if f.Role != "" && r.Metadata.Role != f.Role {
		return false
	}
	if f.ThreadID != "" && r.Metadata.ThreadID != f.ThreadID {
		return false
	}
	return kw.match(r)
}

// Bitmap returns the positions of records passing the filter, or nil when the
// filter is empty so the engine can skip the membership test entirely.
func (f Filter) Bitmap(records []bundle.Record) *roaring.Bitmap {
	if f.IsZero() {
		return nil
	}
	kw := newKeywordMatcher(f.Keyword)
	bm := roaring.New()
	for i, r := range records {
		if f.match(kw, r) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// Apply returns the records passing the filter, in order, with their positions.
func (f Filter) Apply(records []bundle.Record) ([]bundle.Record, []int) {
	var out []bundle.Record
	var pos []int
	kw := newKeywordMatcher(f.Keyword)
	for i, r := range records {
		if f.match(kw, r) {
			out = append(out, r)
			pos = append(pos, i)
		}
	}
	return out, pos
}
