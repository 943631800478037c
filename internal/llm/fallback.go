package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/prompt"
)

// DefaultReference is cited when the prompt's first context entry has no title.
const DefaultReference = "Policy: Domain Suspension Guidelines, Section 4.2"

// FallbackClient answers without a network call. The reply is valid resolution JSON
// derived from the first context entry and is identical for identical prompts.
type FallbackClient struct{}

// NewFallbackClient returns the offline client.
func NewFallbackClient() *FallbackClient {
	return &FallbackClient{}
}

// Name returns "fallback".
func (c *FallbackClient) Name() string {
	return "fallback"
}

// Generate cites the text before the first ':' of the first context entry. Without a
// CONTEXT section or a ':' it points to the domain suspension policy.
func (c *FallbackClient) Generate(ctx context.Context, p string, opts Options) (string, error) {
	res := models.Resolution{
		Answer:         "Please update WHOIS details or contact support.",
		References:     []string{DefaultReference},
		ActionRequired: models.ActionRequestUserInfo,
	}
	if entry, ok := prompt.FirstContextEntry(p); ok {
		if title, _, found := strings.Cut(entry, ":"); found {
			title = strings.TrimSpace(title)
			res.Answer = title + " suggests: Please check the referenced policy and contact support."
			res.References = []string{title}
		} else {
			res.Answer = "Please update WHOIS or contact support."
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
