// Package retriever answers nearest-document queries against a published snapshot.
package retriever

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/kbassist/internal/embedding"
	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/snapshot"
	"github.com/hyperjump/kbassist/internal/vector"
	"go.uber.org/zap"
)

// DefaultTopK is used when neither the caller nor WithDefaultTopK sets a positive k.
const DefaultTopK = 4

// Retriever embeds queries and searches the snapshot at dir. The snapshot is loaded
// on first use or by Load, and replaced by Reload. Safe for concurrent use.
type Retriever struct {
	dir         string
	indexType   string
	embedder    embedding.Embedder
	defaultTopK int
	logger      *zap.Logger

	mu   sync.RWMutex
	snap *snapshot.Snapshot
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the retriever logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// WithDefaultTopK sets k for calls that pass a non-positive topK.
func WithDefaultTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultTopK = k
		}
	}
}

// WithIndexType sets the index type for snapshots without a manifest.
func WithIndexType(t string) Option {
	return func(r *Retriever) { r.indexType = t }
}

// New returns a retriever over the snapshot directory dir. Nothing is read until
// the first Retrieve or Load.
func New(dir string, embedder embedding.Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		dir:         dir,
		indexType:   string(vector.IndexTypeFlat),
		embedder:    embedder,
		defaultTopK: DefaultTopK,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load opens the snapshot if it is not loaded yet. Concurrent callers load it at
// most once. A failed load is not remembered, so a later call retries.
func (r *Retriever) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap != nil {
		return nil
	}
	s, err := r.open()
	if err != nil {
		return err
	}
	r.snap = s
	return nil
}

// Reload opens the snapshot again and swaps it in. The previous snapshot stays in
// service if opening fails.
func (r *Retriever) Reload() error {
	s, err := r.open()
	if err != nil {
		return err
	}
	r.install(s)
	r.logger.Info("index reloaded", snapshotFields(s)...)
	return nil
}

// install makes s the served snapshot and closes the one it replaces.
func (r *Retriever) install(s *snapshot.Snapshot) {
	r.mu.Lock()
	old := r.snap
	r.snap = s
	r.mu.Unlock()
	if old != nil && old != s {
		_ = old.Close()
	}
}

func (r *Retriever) open() (*snapshot.Snapshot, error) {
	start := time.Now()
	s, err := snapshot.Open(r.dir, r.indexType)
	if err != nil {
		return nil, err
	}
	if err := r.checkModel(s); err != nil {
		_ = s.Close()
		return nil, err
	}
	r.logger.Info("index loaded", append(snapshotFields(s), zap.Duration("took", time.Since(start)))...)
	return s, nil
}

// checkModel rejects snapshots built with a different embedder. Snapshots without a
// manifest can only be checked by dimension.
func (r *Retriever) checkModel(s *snapshot.Snapshot) error {
	if s.Manifest != nil && s.Manifest.EmbeddingModel != r.embedder.ModelName() {
		return fmt.Errorf("%w: index built with %q, embedder is %q", models.ErrModelMismatch, s.Manifest.EmbeddingModel, r.embedder.ModelName())
	}
	if d := r.embedder.Dimensions(); d != 0 && s.Index.Dimensions() != d {
		return fmt.Errorf("%w: index dimension %d, embedder dimension %d", models.ErrModelMismatch, s.Index.Dimensions(), d)
	}
	return nil
}

// acquire returns the loaded snapshot with a read lock held; call the returned func to release it.
func (r *Retriever) acquire() (*snapshot.Snapshot, func(), error) {
	for {
		r.mu.RLock()
		if r.snap != nil {
			return r.snap, r.mu.RUnlock, nil
		}
		r.mu.RUnlock()
		if err := r.Load(); err != nil {
			return nil, nil, err
		}
	}
}

// Retrieve returns up to topK documents nearest to text, nearest first, with the raw
// squared L2 distance as Score. A non-positive topK uses the default. A missing index
// is an error wrapping models.ErrIndexNotFound, never an empty result.
func (r *Retriever) Retrieve(ctx context.Context, text string, topK int) ([]models.ScoredDocument, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	snap, release, err := r.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	query, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := snap.Index.Search(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]models.ScoredDocument, 0, len(hits))
	for _, h := range hits {
		if h.Position == vector.NoMatch {
			continue
		}
		doc, ok := snap.Docs.At(h.Position)
		if !ok {
			r.logger.Warn("search hit outside document store",
				zap.Int64("position", h.Position), zap.Int("documents", snap.Docs.Len()))
			continue
		}
		results = append(results, models.ScoredDocument{Document: doc, Score: h.Distance})
	}
	r.logger.Debug("retrieval finished",
		zap.Int("top_k", topK), zap.Int("results", len(results)), zap.Duration("took", time.Since(start)))
	return results, nil
}

// Stats describes the loaded snapshot.
type Stats struct {
	Loaded     bool      `json:"loaded"`
	Dir        string    `json:"index_dir"`
	Documents  int       `json:"documents"`
	Dimensions int       `json:"dimensions"`
	IndexType  string    `json:"index_type,omitempty"`
	Model      string    `json:"embedding_model"`
	BuildID    string    `json:"build_id,omitempty"`
	BuiltAt    time.Time `json:"built_at"`
}

// Stats reports the loaded snapshot without triggering a load.
func (r *Retriever) Stats() Stats {
	st := Stats{Dir: r.dir, Model: r.embedder.ModelName()}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap == nil {
		return st
	}
	st.Loaded = true
	st.Documents = r.snap.Docs.Len()
	st.Dimensions = r.snap.Index.Dimensions()
	st.IndexType = r.snap.Index.Type()
	if m := r.snap.Manifest; m != nil {
		st.BuildID = m.BuildID
		st.BuiltAt = m.CreatedAt
	}
	return st
}

// Dir returns the snapshot directory.
func (r *Retriever) Dir() string {
	return r.dir
}

// Close releases the loaded snapshot. A later Retrieve loads it again.
func (r *Retriever) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return nil
	}
	err := r.snap.Close()
	r.snap = nil
	return err
}

func snapshotFields(s *snapshot.Snapshot) []zap.Field {
	fields := []zap.Field{
		zap.String("dir", s.Dir),
		zap.Int("documents", s.Docs.Len()),
		zap.Int("dimensions", s.Index.Dimensions()),
	}
	if s.Manifest != nil {
		fields = append(fields, zap.String("build_id", s.Manifest.BuildID))
	}
	return fields
}
