package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/hyperjump/kbassist/pkg/utils"
)

// HashingEmbedder is a deterministic bag-of-words embedder using signed feature hashing.
// Texts that share words land closer together, which is enough for small policy corpora
// when no ONNX model is installed. It needs no model files and no CGO.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder producing unit-length vectors of the given dimension.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed hashes each lowercase word of text into a bucket with a hash-derived sign.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range Words(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			emb[bucket]--
		} else {
			emb[bucket]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds each text in order.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName encodes the algorithm version and dimension, so indexes built with a
// different dimension are rejected at query time.
func (e *HashingEmbedder) ModelName() string {
	return fmt.Sprintf("hashing-v1/%d", e.dimensions)
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
