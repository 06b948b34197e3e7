package cmd

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kamusis/memview/internal/bundle"
	"github.com/kamusis/memview/internal/connection"
	"github.com/kamusis/memview/internal/engine/flat"
)

// captureOutput redirects the print helpers to buffers for the test.
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

// setupEnv points HOME and the staging dir at temp directories.
func setupEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("MEMVIEW_STAGING_DIR", filepath.Join(home, "staging"))
	t.Setenv("MEMVIEW_LOG_LEVEL", "error")
	return home
}

const testRecords = `{"id":"a","vector":[1,0],"metadata":{"role":"user","content":"deploy the api"}}
{"id":"b","embedding":[0,1],"metadata":{"role":"assistant","content":"rollback done"}}
{"id":"c","vector":[0.9,0.1],"metadata":{"role":"assistant","threadId":"t1","content":"deploy finished"}}
`

// writeTestBundle packs testRecords into a bundle under dir.
func writeTestBundle(t *testing.T, dir string, compression flat.Compression) string {
	t.Helper()
	records, err := readRecords(strings.NewReader(testRecords))
	if err != nil {
		t.Fatalf("readRecords: %v", err)
	}
	b, err := packRecords(context.Background(), records, packOptions{metric: flat.Cosine, compression: compression})
	if err != nil {
		t.Fatalf("packRecords: %v", err)
	}
	p := filepath.Join(dir, "test.bundle.json")
	if err := bundle.Write(p, b); err != nil {
		t.Fatalf("bundle.Write: %v", err)
	}
	return p
}

func TestParseVector(t *testing.T) {
	cases := map[string][]float32{
		"1,0,0":        {1, 0, 0},
		"1 0.5 -2":     {1, 0.5, -2},
		"[0.25, 0.75]": {0.25, 0.75},
		" 3 ,4\t5 ":    {3, 4, 5},
		"1e-3,2":       {0.001, 2},
	}
	for in, want := range cases {
		got, err := parseVector(in)
		if err != nil {
			t.Fatalf("parseVector(%q): %v", in, err)
		}
		if len(got) != len(want) {
			t.Fatalf("parseVector(%q) = %v, want %v", in, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("parseVector(%q) = %v, want %v", in, got, want)
			}
		}
	}

	for _, in := range []string{"", "[]", "1,x", ","} {
		if _, err := parseVector(in); err == nil {
			t.Fatalf("parseVector(%q): expected error", in)
		}
	}
}

func TestPage(t *testing.T) {
	s := []int{0, 1, 2, 3, 4}
	if got := page(s, 1, 2); len(got) != 2 || got[0] != 1 {
		t.Fatalf("page(1,2) = %v", got)
	}
	if got := page(s, 3, 0); len(got) != 2 {
		t.Fatalf("page(3,0) = %v", got)
	}
	if got := page(s, 9, 1); got != nil {
		t.Fatalf("page past end = %v", got)
	}
}

func TestPreviewAndFormatVector(t *testing.T) {
	if got := preview("a\n  b   c", 10); got != "a b c" {
		t.Fatalf("preview = %q", got)
	}
	if got := preview("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("preview truncation = %q", got)
	}
	if got := formatVector([]float32{1, 2, 3}, 2); got != "[1.0000, 2.0000, … (1 more)]" {
		t.Fatalf("formatVector = %q", got)
	}
}

func TestReadRecords(t *testing.T) {
	records, err := readRecords(strings.NewReader(testRecords))
	if err != nil {
		t.Fatalf("readRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[1].ID != "b" || len(records[1].Vector) != 2 {
		t.Fatalf("embedding key not accepted: %+v", records[1])
	}

	if _, err := readRecords(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := readRecords(strings.NewReader(`{"vector":[1]}`)); err == nil {
		t.Fatal("expected error for record without id")
	}
}

func TestPackRecords_Errors(t *testing.T) {
	ctx := context.Background()
	opt := packOptions{metric: flat.L2}

	_, err := packRecords(ctx, []bundle.Record{{ID: "a", Vector: []float32{1, 2}}, {ID: "b", Vector: []float32{1}}}, opt)
	if err == nil || !strings.Contains(err.Error(), "dimension") {
		t.Fatalf("expected dimension error, got %v", err)
	}

	_, err = packRecords(ctx, []bundle.Record{{ID: "a"}}, opt)
	if err == nil || !strings.Contains(err.Error(), "--embed") {
		t.Fatalf("expected missing vector error, got %v", err)
	}
}

func TestPackRecords_Normalize(t *testing.T) {
	records := []bundle.Record{{ID: "a", Vector: []float32{3, 4}}}
	b, err := packRecords(context.Background(), records, packOptions{metric: flat.L2, normalize: true})
	if err != nil {
		t.Fatalf("packRecords: %v", err)
	}
	v := b.Records[0].Vector
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("vector not normalized: %v", v)
	}
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) ModelID() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, inputs ...string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), 1}
	}
	return out, nil
}

func TestEmbedMissing(t *testing.T) {
	captureOutput(t)
	records := []bundle.Record{
		{ID: "a", Vector: []float32{1, 1}},
		{ID: "b", Metadata: bundle.Metadata{Content: "four"}},
	}
	emb := &fakeEmbedder{}
	if err := embedMissing(context.Background(), records, emb); err != nil {
		t.Fatalf("embedMissing: %v", err)
	}
	if emb.calls != 1 {
		t.Fatalf("embedder called %d times, want 1", emb.calls)
	}
	if records[1].Vector[0] != 4 {
		t.Fatalf("record b not embedded: %v", records[1].Vector)
	}

	err := embedMissing(context.Background(), []bundle.Record{{ID: "x"}}, emb)
	if err == nil || !strings.Contains(err.Error(), "content") {
		t.Fatalf("expected missing content error, got %v", err)
	}
}

func TestSession_ConnectSearchRestore(t *testing.T) {
	home := setupEnv(t)
	captureOutput(t)
	ctx := context.Background()
	path := writeTestBundle(t, home, flat.CompressionZSTD)

	s, err := newSession(ctx, false)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if err := s.manager.Connect(ctx, path); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	results, err := s.manager.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 || results[0].Record.ID != "a" || results[1].Record.ID != "c" {
		t.Fatalf("unexpected results: %+v", results)
	}
	s.Close()

	// A new session restores the saved bundle.
	s, err = newSession(ctx, true)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.Close()
	if s.manager.State() != connection.Connected {
		t.Fatalf("state = %s, want Connected (last error: %v)", s.manager.State(), s.manager.LastError())
	}
	if s.manager.Count() != 3 || s.manager.Dimension() != 2 {
		t.Fatalf("count/dim = %d/%d", s.manager.Count(), s.manager.Dimension())
	}

	entries, err := os.ReadDir(filepath.Join(home, "staging"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "stage-") {
			t.Fatalf("staged file left behind: %s", e.Name())
		}
	}
}

func TestSession_RestoreMissingBundle(t *testing.T) {
	home := setupEnv(t)
	captureOutput(t)
	ctx := context.Background()
	path := writeTestBundle(t, home, flat.CompressionNone)

	s, err := newSession(ctx, false)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	if err := s.manager.Connect(ctx, path); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Close()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	s, err = newSession(ctx, true)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.Close()
	if s.manager.State() != connection.Error {
		t.Fatalf("state = %s, want Error", s.manager.State())
	}
	if !errors.Is(s.manager.LastError(), bundle.ErrNotFound) {
		t.Fatalf("last error = %v, want bundle.ErrNotFound", s.manager.LastError())
	}
	if err := requireConnected(s.manager); err == nil {
		t.Fatal("requireConnected: expected error")
	}
}

func TestShell(t *testing.T) {
	home := setupEnv(t)
	out, _ := captureOutput(t)
	ctx := context.Background()
	path := writeTestBundle(t, home, flat.CompressionLZ4)

	s, err := newSession(ctx, false)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.Close()
	sh := &shell{m: s.manager, k: 10}
	defer s.manager.Subscribe(sh.onChange)()

	input := strings.Join([]string{
		"connect " + path,
		"like a 1",
		"search 0,1 1",
		"grep deploy",
		"show c",
		"k 0",
		"disconnect",
		"quit",
		"status",
	}, "\n")
	if err := sh.run(ctx, strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Connected → " + path,
		"memview search like a",
		"memview search vector",
		"Records (2 of 2 shown)",
		"● c  role=assistant thread=t1",
		"[state] Disconnected",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("shell output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "state:     ") {
		t.Fatal("commands after quit must not run")
	}
	if s.manager.State() != connection.Disconnected {
		t.Fatalf("state = %s, want Disconnected", s.manager.State())
	}
}

func TestShell_Exec(t *testing.T) {
	captureOutput(t)
	setupEnv(t)
	s, err := newSession(context.Background(), false)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer s.Close()
	sh := &shell{m: s.manager, k: 5}

	if _, err := sh.exec(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if _, err := sh.exec(context.Background(), "k 0"); !errors.Is(err, errShellUsage) {
		t.Fatalf("k 0: got %v", err)
	}
	if _, err := sh.exec(context.Background(), "k 3"); err != nil || sh.k != 3 {
		t.Fatalf("k 3: err=%v k=%d", err, sh.k)
	}
	if _, err := sh.exec(context.Background(), "list"); err == nil {
		t.Fatal("list while disconnected: expected error")
	}
	if quit, _ := sh.exec(context.Background(), "exit"); !quit {
		t.Fatal("exit must quit")
	}
}
