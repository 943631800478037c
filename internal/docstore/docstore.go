// Package docstore holds the ordered document records that are positionally
// aligned with the vectors of an index.
package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hyperjump/kbassist/internal/models"
)

// Store is a read-only ordered sequence of documents. Position i describes the
// document whose vector is at position i of the index.
type Store struct {
	docs []models.Document
}

// New returns a store over a copy of docs after checking that ids are non-empty and unique.
func New(docs []models.Document) (*Store, error) {
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: record %d has an empty id", models.ErrInvalidMetadata, i)
		}
		if j, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: record %d duplicates id %q of record %d", models.ErrInvalidMetadata, i, d.ID, j)
		}
		seen[d.ID] = i
	}
	return &Store{docs: append([]models.Document(nil), docs...)}, nil
}

// Len returns the number of documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// At returns the document at pos. ok is false when pos is out of range.
func (s *Store) At(pos int64) (models.Document, bool) {
	if pos < 0 || pos >= int64(len(s.docs)) {
		return models.Document{}, false
	}
	return s.docs[pos], true
}

// Documents returns a copy of all documents in order.
func (s *Store) Documents() []models.Document {
	return append([]models.Document(nil), s.docs...)
}

// Encode returns the metadata file contents for docs: a JSON array with
// 2-space indent and no HTML escaping.
func Encode(docs []models.Document) ([]byte, error) {
	if docs == nil {
		docs = []models.Document{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(docs); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes metadata file contents. Every record must be an object with
// string fields id, title and text; anything else is ErrInvalidMetadata.
func Parse(data []byte) (*Store, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidMetadata, err)
	}
	docs := make([]models.Document, len(records))
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d is not an object", models.ErrInvalidMetadata, i)
		}
		fields := [...]struct {
			name string
			dst  *string
		}{
			{"id", &docs[i].ID},
			{"title", &docs[i].Title},
			{"text", &docs[i].Text},
		}
		for _, f := range fields {
			raw, ok := rec[f.name]
			if !ok {
				return nil, fmt.Errorf("%w: record %d is missing %q", models.ErrInvalidMetadata, i, f.name)
			}
			if err := json.Unmarshal(raw, f.dst); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return nil, fmt.Errorf("%w: record %d field %q must be a string", models.ErrInvalidMetadata, i, f.name)
			}
		}
	}
	return New(docs)
}

// Load reads and validates the metadata file at path. A missing file is ErrIndexNotFound.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexNotFound, path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Write writes docs to path in the metadata file format.
func Write(path string, docs []models.Document) error {
	data, err := Encode(docs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
