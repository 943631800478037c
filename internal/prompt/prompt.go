// Package prompt builds the completion prompt for a ticket and parses the model's reply.
package prompt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/kbassist/internal/models"
)

const (
	// ContextHeader and TicketHeader delimit the sections that Build fills in.
	ContextHeader = "CONTEXT:"
	TicketHeader  = "TICKET:"

	// EntrySeparator separates context entries.
	EntrySeparator = "\n\n"
)

const template = `SYSTEM:
You are a concise Knowledge Assistant for the support team. Follow the Model Context Protocol (MCP) exactly.

` + ContextHeader + `
%s

` + TicketHeader + `
%s

OUTPUT FORMAT:
Return only valid JSON with EXACT keys: answer, references, action_required.

Possible action_required values:
%s

RULES:
1) Use only CONTEXT for factual claims. 2) References must be titles present in CONTEXT. 3) Answer <= 2 sentences. 4) Return STRICT JSON only (no surrounding text).

Now produce the JSON.
`

// Build returns the prompt for ticket with docs as context, in the given order.
// Each context entry is "title: text".
func Build(docs []models.ScoredDocument, ticket string) string {
	entries := make([]string, len(docs))
	for i, d := range docs {
		entries[i] = d.Title + ": " + d.Text
	}
	return fmt.Sprintf(template,
		strings.Join(entries, EntrySeparator),
		ticket,
		strings.Join(models.ValidActions, ", "))
}

var (
	fenceOpen  = regexp.MustCompile("(?m)^```(?:json)?[ \t]*\r?\n?")
	fenceClose = regexp.MustCompile("(?m)\r?\n?```[ \t]*$")
)

// StripCodeFence removes a Markdown code fence (``` or ```json) around raw and trims it.
func StripCodeFence(raw string) string {
	s := fenceOpen.ReplaceAllString(strings.TrimSpace(raw), "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

var requiredKeys = []string{"answer", "references", "action_required"}

// ParseResolution decodes the model's reply into a Resolution. The reply must be a
// JSON object, optionally fenced, with a string answer, a list of string references
// and a string action_required. Any failure is a *models.MalformedOutputError that
// carries the raw reply.
func ParseResolution(raw string) (*models.Resolution, error) {
	malformed := func(err error) error {
		return &models.MalformedOutputError{Raw: raw, Err: err}
	}

	clean := StripCodeFence(raw)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		return nil, malformed(err)
	}
	var missing []string
	for _, k := range requiredKeys {
		if v, ok := fields[k]; !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, malformed(fmt.Errorf("missing keys in result: %s", strings.Join(missing, ", ")))
	}

	var res models.Resolution
	if err := json.Unmarshal(fields["answer"], &res.Answer); err != nil {
		return nil, malformed(errors.New("answer must be a string"))
	}
	if err := json.Unmarshal(fields["references"], &res.References); err != nil {
		return nil, malformed(errors.New("references must be a list of strings"))
	}
	if err := json.Unmarshal(fields["action_required"], &res.ActionRequired); err != nil {
		return nil, malformed(errors.New("action_required must be a string"))
	}
	return &res, nil
}

// FirstContextEntry returns the first context entry of a prompt produced by Build.
// ok is false when the prompt has no CONTEXT section.
func FirstContextEntry(p string) (entry string, ok bool) {
	_, rest, found := strings.Cut(p, ContextHeader)
	if !found {
		return "", false
	}
	section, _, _ := strings.Cut(rest, TicketHeader)
	section = strings.TrimSpace(section)
	entry, _, _ = strings.Cut(section, EntrySeparator)
	return entry, true
}
