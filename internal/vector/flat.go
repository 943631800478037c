package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kbassist/pkg/utils"
)

var flatMagic = [4]byte{'K', 'B', 'V', 'F'}

const flatVersion uint32 = 1

// FlatIndex is an in-memory brute-force squared-L2 index. Distances are computed
// in float32, matching FAISS IndexFlatL2.
type FlatIndex struct {
	dimensions int
	data       []float32 // row-major, Size()*dimensions
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add appends vectors in order. Either all vectors are added or none.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, vec := range vectors {
		f.data = append(f.data, vec...)
	}
	return nil
}

// Search returns the k nearest vectors ascending by distance. Equal distances are
// ordered by position. Missing slots are padded with NoMatch.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	for i, v := range query {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("query component %d is not finite", i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	n := len(f.data) / f.dimensions
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		row := f.data[i*f.dimensions : (i+1)*f.dimensions]
		hits[i] = Hit{Distance: utils.SquaredL2(query, row), Position: int64(i)}
	}
	f.mu.RUnlock()

	// NaN distances from non-finite stored vectors sort last.
	sort.Slice(hits, func(i, j int) bool {
		di, dj := hits[i].Distance, hits[j].Distance
		if ni, nj := di != di, dj != dj; ni || nj {
			if ni && nj {
				return hits[i].Position < hits[j].Position
			}
			return nj
		}
		if di != dj {
			return di < dj
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	for len(hits) < k {
		hits = append(hits, Hit{Distance: math.MaxFloat32, Position: NoMatch})
	}
	return hits, nil
}

// Save writes the index to path. Format: magic "KBVF", version (u32), dimension (u32),
// count (u64), then count*dimension little-endian float32 values.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	header := struct {
		Magic   [4]byte
		Version uint32
		Dim     uint32
		Count   uint64
	}{flatMagic, flatVersion, uint32(f.dimensions), uint64(len(f.data) / f.dimensions)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		file.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, f.data); err != nil {
		file.Close()
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return file.Close()
}

// LoadFlatIndex reads an index written by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var header struct {
		Magic   [4]byte
		Version uint32
		Dim     uint32
		Count   uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != flatMagic {
		return nil, errors.New("not a flat index file")
	}
	if header.Version != flatVersion {
		return nil, fmt.Errorf("unsupported flat index version %d", header.Version)
	}
	if header.Dim == 0 {
		return nil, errors.New("flat index has zero dimension")
	}
	if st, err := file.Stat(); err == nil {
		want := int64(20) + int64(header.Count)*int64(header.Dim)*4
		if st.Size() != want {
			return nil, fmt.Errorf("flat index size %d, expected %d", st.Size(), want)
		}
	}
	data := make([]float32, int(header.Count)*int(header.Dim))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.New("flat index truncated")
		}
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	return &FlatIndex{dimensions: int(header.Dim), data: data}, nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data) / f.dimensions
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}
