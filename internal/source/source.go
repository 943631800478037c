// Package source provides the document collections an index is built from.
package source

import (
	"context"

	"github.com/hyperjump/kbassist/internal/models"
)

// Source yields the ordered documents for one index build.
type Source interface {
	Load(ctx context.Context) ([]models.Document, error)
	// Name describes the source for logs and the build manifest.
	Name() string
}

// StaticSource serves a fixed list of documents.
type StaticSource struct {
	name string
	docs []models.Document
}

// NewStatic returns a source over a copy of docs.
func NewStatic(name string, docs []models.Document) *StaticSource {
	return &StaticSource{name: name, docs: append([]models.Document(nil), docs...)}
}

// Demo returns the built-in four-document policy corpus.
func Demo() *StaticSource {
	return NewStatic("demo", DemoDocuments)
}

// Load returns a copy of the documents. An empty list is ErrEmptyCorpus.
func (s *StaticSource) Load(ctx context.Context) ([]models.Document, error) {
	if len(s.docs) == 0 {
		return nil, models.ErrEmptyCorpus
	}
	return append([]models.Document(nil), s.docs...), nil
}

// Name returns the source name.
func (s *StaticSource) Name() string {
	return s.name
}

// DemoDocuments is the sample support-policy corpus.
var DemoDocuments = []models.Document{
	{
		ID:    "domain_suspension",
		Title: "Policy: Domain Suspension Guidelines, Section 4.2",
		Text:  "Domains may be suspended for policy violations, missing WHOIS information, or unpaid billing. To reactivate, update WHOIS details, confirm payment, or contact support via abuse@example.com.",
	},
	{
		ID:    "whois_policy",
		Title: "WHOIS Update Policy",
		Text:  "Whois must be up-to-date. Update your contact details in the account dashboard. Missing WHOIS can lead to suspension notices.",
	},
	{
		ID:    "billing_faq",
		Title: "Billing & Payment FAQ",
		Text:  "Payment failures cause interruptions. Update card details or contact billing@example.com to resolve payment holds.",
	},
	{
		ID:    "abuse_escalation",
		Title: "Abuse Escalation SOP",
		Text:  "If abuse is suspected escalate to the abuse team. Provide ticket ID, domain, and evidence when escalating.",
	},
}
