package embedding

import (
	"os"

	"go.uber.org/zap"
)

// Options selects and configures an embedder.
type Options struct {
	// Model is the identity recorded in built indexes (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	Model string
	// ModelPath is the ONNX export of Model. When empty or unloadable, the hashing embedder is used.
	ModelPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
}

// New returns the ONNX embedder when opts.ModelPath loads, otherwise a HashingEmbedder
// of opts.Dimensions. The fallback is logged because indexes built with one embedder
// cannot be queried with the other.
func New(opts Options, logger *zap.Logger) Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ModelPath != "" {
		if _, err := os.Stat(opts.ModelPath); err != nil {
			logger.Warn("embedding model file not found, using hashing embedder",
				zap.String("model_path", opts.ModelPath), zap.Error(err))
		} else {
			e, err := NewONNXEmbedder(opts.Model, opts.ModelPath, opts.Dimensions, opts.MaxTokens, opts.CacheSize)
			if err == nil {
				logger.Info("embedding model loaded",
					zap.String("model", opts.Model), zap.Int("dimensions", opts.Dimensions))
				return e
			}
			logger.Warn("ONNX embedder unavailable, using hashing embedder", zap.Error(err))
		}
	}
	h := NewHashingEmbedder(opts.Dimensions)
	logger.Info("using hashing embedder", zap.String("model", h.ModelName()))
	return h
}
