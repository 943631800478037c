package vector

import (
	"fmt"

	"github.com/hyperjump/kbassist/internal/models"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat is the pure Go exact L2 index. No CGO required.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS is FAISS IndexFlatL2. Requires the FAISS C library and -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an empty index of the specified type.
// Supported types: "flat" (default), "faiss".
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		return NewFlatIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// Load reads a persisted index of the given type. A missing or unreadable file is
// reported as models.ErrIndexNotFound.
func Load(indexType string, path string) (Index, error) {
	var (
		idx Index
		err error
	)
	switch IndexType(indexType) {
	case IndexTypeFlat, "":
		idx, err = LoadFlatIndex(path)
	case IndexTypeFAISS:
		idx, err = LoadFAISSIndex(path)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexNotFound, path, err)
	}
	return idx, nil
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
