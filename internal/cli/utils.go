// Package cli provides output formatting for the kbassist command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/retriever"
	"github.com/hyperjump/kbassist/internal/snapshot"
	"github.com/hyperjump/kbassist/internal/source"
	"github.com/hyperjump/kbassist/internal/storage"
	"github.com/hyperjump/kbassist/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const separator = "─────────────────────────────────────────────────────────"

// ParseOutputFormat accepts "text" or "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// Status is the shape of GET /api/v1/status, also assembled locally by the CLI.
type Status struct {
	Index          retriever.Stats      `json:"index"`
	LLM            string               `json:"llm"`
	Resolutions    *int64               `json:"resolutions,omitempty"`
	LastBuild      *storage.BuildRecord `json:"last_build,omitempty"`
	DiskUsageBytes *int64               `json:"disk_usage_bytes,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteRetrieveResults writes scored documents to w, most relevant first.
func WriteRetrieveResults(w io.Writer, query string, docs []models.ScoredDocument, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []models.ScoredDocument{}
		}
		return writeJSON(w, map[string]interface{}{"query": query, "results": docs})
	}
	fmt.Fprintf(w, "\nFound %d documents for %q\n\n", len(docs), query)
	for i, d := range docs {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "Rank: %d | Distance: %.4f\n", i+1, d.Score)
		fmt.Fprintf(w, "ID: %s\n", d.ID)
		fmt.Fprintf(w, "Title: %s\n", d.Title)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.CollapseWhitespace(d.Text), 200))
	}
	return nil
}

// WriteResolution writes a ticket resolution to w.
func WriteResolution(w io.Writer, res *models.Resolution, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "answer:           %s\n", res.Answer)
	fmt.Fprintf(w, "references:       %s\n", strings.Join(res.References, "; "))
	fmt.Fprintf(w, "action_required:  %s\n", res.ActionRequired)
	return nil
}

// WriteBuildSummary reports a published snapshot and any files the build skipped.
func WriteBuildSummary(w io.Writer, m *snapshot.Manifest, skipped []source.SkippedFile, format OutputFormat) error {
	if format == OutputJSON {
		if skipped == nil {
			skipped = []source.SkippedFile{}
		}
		return writeJSON(w, map[string]interface{}{"manifest": m, "skipped": skipped})
	}
	fmt.Fprintf(w, "Indexed %d document(s) from %s\n", m.Count, m.Source)
	fmt.Fprintf(w, "build_id:         %s\n", m.BuildID)
	fmt.Fprintf(w, "index_type:       %s\n", m.IndexType)
	fmt.Fprintf(w, "dimensions:       %d\n", m.Dimensions)
	fmt.Fprintf(w, "embedding_model:  %s\n", m.EmbeddingModel)
	for _, s := range skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", s.Name, s.Reason)
	}
	return nil
}

// WriteStatus writes index and service status to w.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	if !s.Index.Loaded {
		fmt.Fprintf(w, "index:            not loaded (%s)\n", s.Index.Dir)
	} else {
		fmt.Fprintf(w, "documents:        %d   # policy documents in the index\n", s.Index.Documents)
		fmt.Fprintf(w, "dimensions:       %d\n", s.Index.Dimensions)
		fmt.Fprintf(w, "index_type:       %s\n", s.Index.IndexType)
		fmt.Fprintf(w, "embedding_model:  %s\n", s.Index.Model)
		if s.Index.BuildID != "" {
			fmt.Fprintf(w, "build_id:         %s\n", s.Index.BuildID)
			fmt.Fprintf(w, "built_at:         %s\n", s.Index.BuiltAt.Format("2006-01-02 15:04:05 MST"))
		}
		fmt.Fprintf(w, "index_dir:        %s\n", s.Index.Dir)
	}
	fmt.Fprintf(w, "llm:              %s\n", s.LLM)
	if s.Resolutions != nil {
		fmt.Fprintf(w, "resolutions:      %d   # audited ticket resolutions\n", *s.Resolutions)
	}
	if b := s.LastBuild; b != nil {
		fmt.Fprintf(w, "last_build:       %s (%d docs from %s at %s)\n",
			b.ID, b.DocCount, b.Source, b.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes: %d   # index + audit database on disk\n", *s.DiskUsageBytes)
	}
	return nil
}
