// Package resolver turns a support ticket into a policy-grounded resolution.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kbassist/internal/llm"
	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/prompt"
	"github.com/hyperjump/kbassist/internal/retriever"
	"github.com/hyperjump/kbassist/internal/storage"
	"go.uber.org/zap"
)

// Retriever is the read path the resolver needs.
type Retriever interface {
	Retrieve(ctx context.Context, text string, topK int) ([]models.ScoredDocument, error)
	Stats() retriever.Stats
}

// Resolver runs retrieve, prompt, generate and parse for each ticket.
type Resolver struct {
	retriever Retriever
	client    llm.Client
	opts      llm.Options
	topK      int
	storage   storage.Storage // optional audit log
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithStorage records every successful resolution in s.
func WithStorage(s storage.Storage) Option {
	return func(r *Resolver) { r.storage = s }
}

// WithTopK sets how many documents are retrieved per ticket. Non-positive values
// leave the retriever default in place.
func WithTopK(k int) Option {
	return func(r *Resolver) { r.topK = k }
}

// WithGenerateOptions sets the token budget and temperature for generation.
func WithGenerateOptions(o llm.Options) Option {
	return func(r *Resolver) { r.opts = o }
}

// New returns a resolver.
func New(ret Retriever, client llm.Client, opts ...Option) *Resolver {
	r := &Resolver{
		retriever: ret,
		client:    client,
		opts:      llm.Options{MaxTokens: 256},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve answers one ticket. It returns models.ErrNoRelevantDocuments when retrieval
// is empty, a *models.UpstreamError when generation fails and a
// *models.MalformedOutputError when the reply is not a valid resolution.
// Retrieval errors such as a missing index are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, ticket string) (*models.Resolution, error) {
	docs, err := r.retriever.Retrieve(ctx, ticket, r.topK)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, models.ErrNoRelevantDocuments
	}
	r.logger.Debug("context documents", zap.Strings("titles", models.Titles(docs)))

	raw, err := r.client.Generate(ctx, prompt.Build(docs, ticket), r.opts)
	if err != nil {
		r.logger.Error("LLM error", zap.String("client", r.client.Name()), zap.Error(err))
		var upErr *models.UpstreamError
		if !errors.As(err, &upErr) {
			err = &models.UpstreamError{Err: err}
		}
		return nil, err
	}

	res, err := prompt.ParseResolution(raw)
	if err != nil {
		r.logger.Warn("malformed LLM output", zap.String("client", r.client.Name()), zap.Error(err))
		return nil, err
	}
	if !models.IsValidAction(res.ActionRequired) {
		r.logger.Warn("unknown action_required", zap.String("action", res.ActionRequired))
	}

	if r.storage != nil {
		rec := &storage.ResolutionRecord{
			TicketText: ticket,
			BuildID:    r.retriever.Stats().BuildID,
			Resolution: *res,
		}
		if err := r.storage.RecordResolution(ctx, rec); err != nil {
			r.logger.Warn("failed to record resolution", zap.Error(err))
		}
	}
	return res, nil
}

// ResolveBatch resolves tickets in order. The first failure aborts the batch and
// is returned with the index of the failing ticket.
func (r *Resolver) ResolveBatch(ctx context.Context, tickets []string) ([]*models.Resolution, error) {
	out := make([]*models.Resolution, 0, len(tickets))
	for i, t := range tickets {
		res, err := r.Resolve(ctx, t)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		out = append(out, res)
	}
	return out, nil
}

// BatchError reports which ticket of a batch failed.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("ticket %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
