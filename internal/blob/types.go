// internal/blob/types.go
package blob

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"dgit/internal/storage"
)

// Blob is an immutable JSON payload, stored once per repository and content
// hash.
type Blob struct {
	ID           string          `json:"id"`
	RepositoryID string          `json:"repository_id"`
	ContentHash  string          `json:"content_hash"`
	Content      json.RawMessage `json:"content"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Box defines how blobs are stored and retrieved. There is deliberately no
// update or delete; blobs only disappear with their repository.
type Box interface {
	Create(repositoryID string, content json.RawMessage) (*Blob, error)

	// CreateText stores text as a JSON string without interpreting it.
	CreateText(repositoryID string, text []byte) (*Blob, error)

	FindByID(id string) (*Blob, error)
	FindByRepositoryAndHash(repositoryID, contentHash string) (*Blob, error)
	ListByRepository(repositoryID string, page storage.Page) ([]*Blob, error)
}

// Normalize turns caller supplied text into a JSON value: well-formed JSON is
// kept (compacted), anything else becomes a JSON string. A JSON string whose
// text is itself well-formed JSON is replaced by that JSON value, so
// `"{\"a\":1}"` and `{"a":1}` store the same content.
func Normalize(text []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return marshal(string(text))
	}

	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		if embedded := bytes.TrimSpace([]byte(inner)); len(embedded) > 0 && json.Valid(embedded) {
			trimmed = embedded
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StringContent wraps text as a JSON string value regardless of whether it
// parses as JSON.
func StringContent(text []byte) (json.RawMessage, error) {
	return marshal(string(text))
}

// CanonicalString is the text a blob's content hash is computed over. String
// content is used as-is. Objects are re-serialised with their top-level keys
// sorted; nested values keep their original key order. Everything else is its
// compact JSON form.
func CanonicalString(content json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return "", storage.Invalidf("content is empty")
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decoding string content: %w", err)
		}
		return s, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return "", fmt.Errorf("decoding object content: %w", err)
		}
		return canonicalObject(fields)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", fmt.Errorf("compacting content: %w", err)
		}
		return buf.String(), nil
	}
}

func canonicalObject(fields map[string]json.RawMessage) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshal(k)
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(&buf, fields[k]); err != nil {
			return "", fmt.Errorf("compacting %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Hash computes the SHA-256 content hash of content's canonical string.
func Hash(content json.RawMessage) (string, error) {
	canonical, err := CanonicalString(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Text returns the payload handed to decision evaluators: the raw string for
// string content, the JSON text otherwise.
func (b *Blob) Text() []byte {
	if len(b.Content) > 0 && b.Content[0] == '"' {
		var s string
		if err := json.Unmarshal(b.Content, &s); err == nil {
			return []byte(s)
		}
	}
	return b.Content
}

// marshal encodes v without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
