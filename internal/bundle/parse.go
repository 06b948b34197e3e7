package bundle

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// document is the on-disk shape. Pointers distinguish absent from empty.
type document struct {
	Index    *string          `json:"index"`
	Memories *json.RawMessage `json:"memories"`
}

// Parse reads the bundle at path and decodes its index payload and records.
//
// Parse has no side effects beyond reading path.
func Parse(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: cannot stat %s: %w", ErrUnreadable, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnreadable, path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %w", ErrUnreadable, path, err)
	}
	return Decode(b)
}

// Decode decodes a bundle document held in memory.
func Decode(b []byte) (*Bundle, error) {
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrMalformed, err)
	}

	if doc.Index == nil || strings.TrimSpace(*doc.Index) == "" {
		return nil, ErrMissingIndexPayload
	}
	if doc.Memories == nil || string(*doc.Memories) == "null" {
		return nil, fmt.Errorf("%w: missing memories array", ErrMalformed)
	}

	payload, err := decodePayload(*doc.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: index is not valid base64: %w", ErrMalformed, err)
	}
	if len(payload) == 0 {
		return nil, ErrMissingIndexPayload
	}

	var records []Record
	if err := json.Unmarshal(*doc.Memories, &records); err != nil {
		return nil, fmt.Errorf("%w: invalid memories: %w", ErrMalformed, err)
	}
	if records == nil {
		records = []Record{}
	}
	for _, r := range records {
		if len(r.Vector) == 0 {
			return nil, fmt.Errorf("%w: record %s has neither vector nor embedding", ErrMalformed, r.ID)
		}
	}

	return &Bundle{Index: payload, Records: records}, nil
}

// decodePayload accepts standard base64 with or without padding.
func decodePayload(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if out, err := base64.StdEncoding.DecodeString(s); err == nil {
		return out, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
