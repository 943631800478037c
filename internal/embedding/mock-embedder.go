package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/hyperjump/kbassist/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns a name unique to the mock and its dimension.
func (e *MockEmbedder) ModelName() string {
	return fmt.Sprintf("mock/%d", e.dimensions)
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// StaticEmbedder maps exact texts to fixed vectors. Texts without an entry get the
// Fallback vector, or an error when Fallback is nil. Used to place documents and
// queries at known positions in tests.
type StaticEmbedder struct {
	Name     string
	Vectors  map[string][]float32
	Fallback []float32
}

// Embed returns a copy of the vector registered for text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.Vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	if e.Fallback != nil {
		return append([]float32(nil), e.Fallback...), nil
	}
	return nil, fmt.Errorf("static embedder: no vector for %q", text)
}

// EmbedBatch embeds each text in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the length of any registered vector.
func (e *StaticEmbedder) Dimensions() int {
	for _, v := range e.Vectors {
		return len(v)
	}
	return len(e.Fallback)
}

// ModelName returns Name, or "static" when unset.
func (e *StaticEmbedder) ModelName() string {
	if e.Name == "" {
		return "static"
	}
	return e.Name
}

// Close is a no-op.
func (e *StaticEmbedder) Close() error {
	return nil
}
