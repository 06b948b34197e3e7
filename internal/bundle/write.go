package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Write encodes b and writes it to path.
//
// The file is written to a sibling temp file first and renamed into place so a
// reader never observes a partial bundle.
func Write(path string, b *Bundle) error {
	if b == nil || len(b.Index) == 0 {
		return ErrMissingIndexPayload
	}
	records := b.Records
	if records == nil {
		records = []Record{}
	}

	doc := struct {
		Index    string   `json:"index"`
		Memories []Record `json:"memories"`
	}{
		Index:    base64.StdEncoding.EncodeToString(b.Index),
		Memories: records,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot encode bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create bundle dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".bundle-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp bundle: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cannot write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cannot write bundle: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("cannot install bundle %s: %w", path, err)
	}
	return nil
}
