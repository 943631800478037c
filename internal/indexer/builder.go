// Package indexer builds and publishes index snapshots from a document source.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kbassist/internal/embedding"
	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/snapshot"
	"github.com/hyperjump/kbassist/internal/source"
	"github.com/hyperjump/kbassist/internal/storage"
	"github.com/hyperjump/kbassist/internal/vector"
	"go.uber.org/zap"
)

// Builder embeds every document of a source and publishes the result as one snapshot.
type Builder struct {
	source    source.Source
	embedder  embedding.Embedder
	dir       string
	indexType string
	storage   storage.Storage // optional; receives a build record
	logger    *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the build logger.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithStorage records each successful build in s.
func WithStorage(s storage.Storage) BuilderOption {
	return func(b *Builder) { b.storage = s }
}

// NewBuilder returns a builder that publishes to dir using the given index type.
func NewBuilder(src source.Source, embedder embedding.Embedder, dir, indexType string, opts ...BuilderOption) *Builder {
	b := &Builder{
		source:    src,
		embedder:  embedder,
		dir:       dir,
		indexType: indexType,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type skipReporter interface {
	Skipped() []source.SkippedFile
}

// Build loads the source, embeds all texts in one batch, and publishes the index and
// metadata together. The index dimension is taken from the first embedding.
func (b *Builder) Build(ctx context.Context) (*snapshot.Manifest, error) {
	start := time.Now()
	b.logger.Info("index build started",
		zap.String("source", b.source.Name()),
		zap.String("dir", b.dir),
		zap.String("model", b.embedder.ModelName()))

	docs, err := b.source.Load(ctx)
	if r, ok := b.source.(skipReporter); ok {
		if skipped := r.Skipped(); len(skipped) > 0 {
			names := make([]string, len(skipped))
			for i, s := range skipped {
				names[i] = s.Name
			}
			b.logger.Warn("files skipped during build", zap.Int("count", len(skipped)), zap.Strings("files", names))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, models.ErrEmptyCorpus
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	dim, err := checkVectors(vectors, len(docs))
	if err != nil {
		return nil, err
	}

	idx, err := vector.NewIndex(b.indexType, dim)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	defer idx.Close()
	if err := idx.Add(ctx, vectors); err != nil {
		return nil, fmt.Errorf("add vectors: %w", err)
	}

	m, err := snapshot.Publish(b.dir, idx, docs, snapshot.Manifest{
		Source:         b.source.Name(),
		EmbeddingModel: b.embedder.ModelName(),
	})
	if err != nil {
		return nil, fmt.Errorf("publish snapshot: %w", err)
	}

	if b.storage != nil {
		rec := &storage.BuildRecord{
			ID:         m.BuildID,
			CreatedAt:  m.CreatedAt,
			Source:     m.Source,
			DocCount:   m.Count,
			Dimensions: m.Dimensions,
			Model:      m.EmbeddingModel,
			IndexType:  m.IndexType,
		}
		if err := b.storage.RecordBuild(ctx, rec); err != nil {
			b.logger.Warn("failed to record build", zap.String("build_id", m.BuildID), zap.Error(err))
		}
	}

	b.logger.Info("index build finished",
		zap.String("build_id", m.BuildID),
		zap.Int("documents", m.Count),
		zap.Int("dimensions", m.Dimensions),
		zap.String("index_type", m.IndexType),
		zap.Duration("took", time.Since(start)))
	return m, nil
}

// checkVectors verifies one vector per document and a single non-zero dimension.
func checkVectors(vectors [][]float32, want int) (int, error) {
	if len(vectors) != want {
		return 0, fmt.Errorf("%w: embedder returned %d vectors for %d documents", models.ErrAlignment, len(vectors), want)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: embedder returned empty vectors", models.ErrAlignment)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has dimension %d, expected %d", models.ErrAlignment, i, len(v), dim)
		}
	}
	return dim, nil
}
