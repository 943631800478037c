// Package embedding provides text embedding via ONNX, a hashing fallback, and caching.
package embedding

import "context"

// Embedder produces fixed-dimension vector embeddings for text.
// EmbedBatch must return one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelName identifies the model and version. It is recorded alongside a built
	// index so that queries are never embedded with a different model.
	ModelName() string
	Close() error
}

// embedEach calls embed for each text in order, stopping at the first error or cancellation.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
