// Package bundle reads and writes vector-index bundles: a JSON document holding
// a base64-encoded binary index next to the ordered records it was built from.
package bundle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Bundle is a decoded bundle file.
//
// Records[i] corresponds to row i of the index payload.
type Bundle struct {
	Index   []byte
	Records []Record
}

// Record is one item of the index universe.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata,omitzero"`
}

// UnmarshalJSON accepts the vector under either "vector" or the legacy
// "embedding" key. When both are present "vector" wins.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        *string          `json:"id"`
		Vector    []float32        `json:"vector"`
		Embedding []float32        `json:"embedding"`
		Metadata  *json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == nil {
		return fmt.Errorf("record is missing id")
	}
	r.ID = *raw.ID
	r.Vector = raw.Vector
	if r.Vector == nil {
		r.Vector = raw.Embedding
	}
	r.Metadata = Metadata{}
	if raw.Metadata != nil && string(*raw.Metadata) != "null" {
		if err := json.Unmarshal(*raw.Metadata, &r.Metadata); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Metadata holds the well-known metadata fields of a record.
// Keys not listed here are preserved in Extra.
type Metadata struct {
	Role      string
	ThreadID  string
	Timestamp string
	Content   string
	Extra     map[string]any

	// scalars keeps the JSON text of known keys that were numbers or
	// booleans, so they are written back unchanged.
	scalars map[string]json.RawMessage
}

const (
	keyRole      = "role"
	keyThreadID  = "threadId"
	keyTimestamp = "timestamp"
	keyContent   = "content"
)

// IsZero reports whether m carries no fields.
func (m Metadata) IsZero() bool {
	return m.Role == "" && m.ThreadID == "" && m.Timestamp == "" && m.Content == "" && len(m.Extra) == 0
}

func (m *Metadata) field(key string) *string {
	switch key {
	case keyRole:
		return &m.Role
	case keyThreadID:
		return &m.ThreadID
	case keyTimestamp:
		return &m.Timestamp
	case keyContent:
		return &m.Content
	}
	return nil
}

// UnmarshalJSON splits the object into known fields and Extra.
// A known key holding a number or boolean keeps its JSON text; one holding
// an object or array is moved to Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metadata must be an object: %w", err)
	}
	*m = Metadata{}
	for k, v := range raw {
		if dst := m.field(k); dst != nil {
			text, scalar, ok := scalarText(v)
			if ok {
				*dst = text
				if scalar {
					if m.scalars == nil {
						m.scalars = make(map[string]json.RawMessage)
					}
					m.scalars[k] = v
				}
				continue
			}
		}
		var x any
		if err := json.Unmarshal(v, &x); err != nil {
			return fmt.Errorf("metadata.%s: %w", k, err)
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = x
	}
	return nil
}

// MarshalJSON writes known fields and Extra back into one flat object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}
	for _, k := range []string{keyRole, keyThreadID, keyTimestamp, keyContent} {
		v := *m.field(k)
		if v == "" {
			continue
		}
		if raw, ok := m.scalars[k]; ok && string(raw) == v {
			out[k] = raw
			continue
		}
		out[k] = v
	}
	return json.Marshal(out)
}

// scalarText returns the text of a JSON string, number or boolean. scalar is
// true for numbers and booleans. ok is false for objects and arrays.
func scalarText(v json.RawMessage) (text string, scalar, ok bool) {
	s := strings.TrimSpace(string(v))
	switch {
	case s == "" || s == "null":
		return "", false, true
	case s[0] == '"':
		if err := json.Unmarshal(v, &text); err != nil {
			return "", false, false
		}
		return text, false, true
	case s == "true" || s == "false":
		return s, true, true
	case s[0] == '{' || s[0] == '[':
		return "", false, false
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", false, false
	}
	return n.String(), true, true
}
