package bundle

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBundleFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bundle.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestParse_HappyPath(t *testing.T) {
	idx := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	p := writeBundleFile(t, `{
		"index": "`+idx+`",
		"memories": [
			{"id": "a", "vector": [1, 0], "metadata": {"role": "user", "threadId": "t1", "timestamp": 1700000000000, "content": "hello", "source": "chat"}},
			{"id": "b", "embedding": [0, 1]}
		]
	}`)

	b, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, b.Index)
	require.Len(t, b.Records, 2)

	a := b.Records[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, []float32{1, 0}, a.Vector)
	assert.Equal(t, "user", a.Metadata.Role)
	assert.Equal(t, "t1", a.Metadata.ThreadID)
	assert.Equal(t, "1700000000000", a.Metadata.Timestamp)
	assert.Equal(t, "hello", a.Metadata.Content)
	assert.Equal(t, map[string]any{"source": "chat"}, a.Metadata.Extra)

	// legacy field name is normalized
	assert.Equal(t, []float32{0, 1}, b.Records[1].Vector)
	assert.True(t, b.Records[1].Metadata.IsZero())
}

func TestParse_VectorWinsOverEmbedding(t *testing.T) {
	p := writeBundleFile(t, `{"index":"AQ==","memories":[{"id":"a","vector":[1],"embedding":[2]}]}`)
	b, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, b.Records[0].Vector)
}

func TestParse_EmptyMemoriesIsValid(t *testing.T) {
	p := writeBundleFile(t, `{"index":"AQ==","memories":[]}`)
	b, err := Parse(p)
	require.NoError(t, err)
	assert.NotNil(t, b.Records)
	assert.Empty(t, b.Records)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", `{not json`, ErrMalformed},
		{"missing index", `{"memories":[]}`, ErrMissingIndexPayload},
		{"empty index", `{"index":"","memories":[]}`, ErrMissingIndexPayload},
		{"missing memories", `{"index":"AQ=="}`, ErrMalformed},
		{"bad base64", `{"index":"!!!","memories":[]}`, ErrMalformed},
		{"memories not array", `{"index":"AQ==","memories":{}}`, ErrMalformed},
		{"record without id", `{"index":"AQ==","memories":[{"vector":[1]}]}`, ErrMalformed},
		{"metadata not object", `{"index":"AQ==","memories":[{"id":"a","metadata":3}]}`, ErrMalformed},
		{"record without vector", `{"index":"AQ==","memories":[{"id":"a"}]}`, ErrMalformed},
		{"record with empty vector", `{"index":"AQ==","memories":[{"id":"a","vector":[]}]}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(writeBundleFile(t, tt.body))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_NonStringKnownMetadata(t *testing.T) {
	p := writeBundleFile(t, `{"index":"AAAA","memories":[
		{"id":"a","vector":[1,0],"metadata":{"threadId":42,"role":"user"}},
		{"id":"b","vector":[0,1],"metadata":{"content":{"text":"hi"},"role":true,"timestamp":null}}
	]}`)

	b, err := Parse(p)
	require.NoError(t, err)
	require.Len(t, b.Records, 2)

	a := b.Records[0].Metadata
	assert.Equal(t, "42", a.ThreadID)
	assert.Equal(t, "user", a.Role)
	assert.Empty(t, a.Extra)

	m := b.Records[1].Metadata
	assert.Equal(t, "true", m.Role)
	assert.Empty(t, m.Content)
	assert.Empty(t, m.Timestamp)
	assert.Equal(t, map[string]any{"content": map[string]any{"text": "hi"}}, m.Extra)
}

func TestMetadata_KeepsNumericScalars(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":1700000000000,"threadId":42,"role":"user"}`), &m))
	assert.Equal(t, "1700000000000", m.Timestamp)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":1700000000000,"threadId":42,"role":"user"}`, string(out))

	// an edited field is written as a string
	m.ThreadID = "t9"
	out, err = json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":1700000000000,"threadId":"t9","role":"user"}`, string(out))
}

func TestWrite_PreservesNumericTimestamp(t *testing.T) {
	src := writeBundleFile(t, `{"index":"AQ==","memories":[{"id":"a","vector":[1],"metadata":{"timestamp":1700000000000}}]}`)
	in, err := Parse(src)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "copy.json")
	require.NoError(t, Write(dst, in))

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	var doc struct {
		Memories []struct {
			Metadata map[string]any `json:"metadata"`
		} `json:"memories"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Memories, 1)
	assert.Equal(t, float64(1700000000000), doc.Memories[0].Metadata["timestamp"])
}

func TestParse_NotFound(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "missing", "file.json"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParse_Directory(t *testing.T) {
	_, err := Parse(t.TempDir())
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestWrite_RoundTripsThroughParse(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", "bundle.json")
	in := &Bundle{
		Index: []byte("payload"),
		Records: []Record{
			{ID: "x", Vector: []float32{0.5, 0.25}, Metadata: Metadata{Role: "assistant", Extra: map[string]any{"lang": "en"}}},
			{ID: "y", Vector: []float32{1, 1}},
		},
	}
	require.NoError(t, Write(p, in))

	out, err := Parse(p)
	require.NoError(t, err)
	assert.Equal(t, in.Index, out.Index)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "x", out.Records[0].ID)
	assert.Equal(t, "assistant", out.Records[0].Metadata.Role)
	assert.Equal(t, "en", out.Records[0].Metadata.Extra["lang"])
	assert.Equal(t, []float32{1, 1}, out.Records[1].Vector)

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWrite_RejectsEmptyIndex(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "b.json"), &Bundle{})
	require.ErrorIs(t, err, ErrMissingIndexPayload)
}
