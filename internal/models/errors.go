package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCorpus is returned at build time when no valid source documents are found.
	ErrEmptyCorpus = errors.New("empty corpus: no valid source documents found")
	// ErrIndexNotFound is returned when the persisted index or metadata is missing or unreadable.
	ErrIndexNotFound = errors.New("index not found: run the build step first")
	// ErrAlignment is returned when index vectors and document metadata disagree.
	ErrAlignment = errors.New("index and metadata are not aligned")
	// ErrModelMismatch is returned when the index was built with a different embedding model.
	ErrModelMismatch = errors.New("embedding model does not match the index")
	// ErrInvalidMetadata is returned when meta.json does not match the document schema.
	ErrInvalidMetadata = errors.New("invalid document metadata")
	// ErrBuildInProgress is returned when another build holds the index lock.
	ErrBuildInProgress = errors.New("index build already in progress")
	// ErrNoRelevantDocuments is returned when retrieval produced no documents for a ticket.
	ErrNoRelevantDocuments = errors.New("no relevant policies found for this ticket")
	// ErrUpstreamGeneration is returned when the LLM call fails.
	ErrUpstreamGeneration = errors.New("upstream generation failed")
	// ErrMalformedOutput is returned when the LLM output is not the expected JSON.
	ErrMalformedOutput = errors.New("malformed LLM output")
)

// UpstreamError describes a failed LLM API call. StatusCode is zero for transport errors.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: API error (status %d): %s", ErrUpstreamGeneration, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%v: %v", ErrUpstreamGeneration, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is matches ErrUpstreamGeneration.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamGeneration
}

// MalformedOutputError carries the parse failure together with the raw model output.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("LLM output parse error: %v\nRaw output:\n%s", e.Err, e.Raw)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// Is matches ErrMalformedOutput.
func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}
