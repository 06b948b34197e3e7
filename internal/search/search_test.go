package search

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/engine"
)

func records() []bundle.Record {
	return []bundle.Record{
		{ID: "r0", Metadata: bundle.Metadata{Role: "user", ThreadID: "t1", Content: "Straße nach Berlin"}},
		{ID: "r1", Metadata: bundle.Metadata{Role: "assistant", ThreadID: "t1", Content: "Hello World"}},
		{ID: "r2", Metadata: bundle.Metadata{Role: "user", ThreadID: "t2", Content: "hello again"}},
	}
}

func TestCompose_Positional(t *testing.T) {
	out, err := Compose([]engine.Neighbor{{Position: 2, Distance: 0.1}, {Position: 0, Distance: 0.4}}, records())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "r2", out[0].Record.ID)
	assert.Equal(t, 2, out[0].Position)
	assert.InDelta(t, 0.1, out[0].Distance, 1e-6)
	assert.Equal(t, "r0", out[1].Record.ID)
}

func TestCompose_OutOfRange(t *testing.T) {
	_, err := Compose([]engine.Neighbor{{Position: 3}}, records())
	require.ErrorIs(t, err, ErrRecordVectorMismatch)
}

func TestCompose_Empty(t *testing.T) {
	out, err := Compose(nil, records())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMatchKeyword(t *testing.T) {
	rs := records()
	assert.True(t, MatchKeyword(rs[1], "hello WORLD"))
	assert.False(t, MatchKeyword(rs[2], "hello world"))
	assert.True(t, MatchKeyword(rs[0], "STRASSE"), "case folding")
	assert.True(t, MatchKeyword(rs[0], "r0"))
	assert.True(t, MatchKeyword(rs[0], "  "))
}

func TestFilter(t *testing.T) {
	rs := records()

	assert.Nil(t, Filter{}.Bitmap(rs))

	bm := Filter{Role: "user"}.Bitmap(rs)
	assert.Equal(t, []uint32{0, 2}, bm.ToArray())

	bm = Filter{ThreadID: "t1", Keyword: "hello"}.Bitmap(rs)
	assert.Equal(t, []uint32{1}, bm.ToArray())

	got, pos := Filter{Role: "user", Keyword: "again"}.Apply(rs)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].ID)
	assert.Equal(t, []int{2}, pos)

	bm = Filter{Role: "system"}.Bitmap(rs)
	assert.True(t, bm.IsEmpty())
}

func TestFilter_FoldedKeywordAcrossRecords(t *testing.T) {
	var rs []bundle.Record
	for i := range 300 {
		content := "plain"
		if i%3 == 0 {
			content = "GROSSE Straße"
		}
		rs = append(rs, bundle.Record{ID: fmt.Sprintf("r%d", i), Metadata: bundle.Metadata{Content: content}})
	}
	f := Filter{Keyword: "straße grosse"}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bm := f.Bitmap(rs)
			got, pos := f.Apply(rs)
			assert.Equal(t, uint64(100), bm.GetCardinality())
			assert.Len(t, got, 100)
			for i, p := range pos {
				assert.True(t, bm.Contains(uint32(p)))
				assert.True(t, f.Match(rs[p]), got[i].ID)
			}
		}()
	}
	wg.Wait()
}
