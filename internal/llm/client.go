// Package llm generates ticket resolutions with a completion API, or offline with a
// deterministic fallback when no API key is configured.
package llm

import (
	"context"
	"time"

	"github.com/hyperjump/kbassist/internal/config"
	"go.uber.org/zap"
)

// Options controls one generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client turns a prompt into raw model text. Implementations do not retry.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	// Name identifies the backend for logs and status output.
	Name() string
}

// New returns a Mistral client when cfg has an API key, otherwise the fallback client.
func New(cfg config.LLMConfig, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		logger.Warn("no LLM API key configured, using deterministic fallback responses")
		return NewFallbackClient()
	}
	return NewMistralClient(ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
}
