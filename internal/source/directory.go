package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hyperjump/kbassist/internal/extract"
	"github.com/hyperjump/kbassist/internal/models"
	"go.uber.org/zap"
)

// DefaultExtensions is the allow-list used when none is configured.
var DefaultExtensions = []string{".txt", ".md", ".pdf"}

// SkippedFile is a directory entry that did not become a document.
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// DirectorySource reads one document per file from a single directory level.
// The id is the file name without its extension and the title is the file name.
type DirectorySource struct {
	dir        string
	extensions map[string]bool
	extractor  *extract.Extractor
	logger     *zap.Logger

	mu      sync.Mutex
	skipped []SkippedFile
}

// DirectoryOption configures a DirectorySource.
type DirectoryOption func(*DirectorySource)

// WithLogger sets the logger that reports skipped files.
func WithLogger(l *zap.Logger) DirectoryOption {
	return func(s *DirectorySource) { s.logger = l }
}

// WithExtensions replaces the extension allow-list. Extensions are matched case-insensitively.
func WithExtensions(exts []string) DirectoryOption {
	return func(s *DirectorySource) {
		if len(exts) == 0 {
			return
		}
		s.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			s.extensions[ext] = true
		}
	}
}

// NewDirectorySource returns a source for dir. Every allowed extension must have an extractor.
func NewDirectorySource(dir string, opts ...DirectoryOption) (*DirectorySource, error) {
	s := &DirectorySource{
		dir:       dir,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	WithExtensions(DefaultExtensions)(s)
	for _, opt := range opts {
		opt(s)
	}
	for ext := range s.extensions {
		if !extract.Supported(ext) {
			return nil, fmt.Errorf("extension %q is not supported (supported: %s)", ext, strings.Join(extract.SupportedExtensions(), ", "))
		}
	}
	return s, nil
}

// Name returns "directory:<dir>".
func (s *DirectorySource) Name() string {
	return "directory:" + s.dir
}

// Load reads every allowed file in name order. Files that are not allowed, fail to
// extract or are blank are skipped and reported through Skipped. Two files with the
// same id are an error. No documents at all is ErrEmptyCorpus.
func (s *DirectorySource) Load(ctx context.Context) ([]models.Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		docs    []models.Document
		skipped []SkippedFile
		owners  = make(map[string]string)
	)
	skip := func(name, reason string) {
		skipped = append(skipped, SkippedFile{Name: name, Reason: reason})
		s.logger.Warn("skipping file", zap.String("file", name), zap.String("reason", reason))
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() {
			skip(name, "directory")
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !s.extensions[ext] {
			skip(name, "extension not allowed")
			continue
		}
		text, err := s.extractor.Extract(filepath.Join(s.dir, name))
		if err != nil {
			skip(name, err.Error())
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			skip(name, "no text")
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, dup := owners[id]; dup {
			return nil, fmt.Errorf("%w: files %s and %s both map to id %q", models.ErrInvalidMetadata, prev, name, id)
		}
		owners[id] = name
		docs = append(docs, models.Document{ID: id, Title: name, Text: text})
	}

	s.mu.Lock()
	s.skipped = skipped
	s.mu.Unlock()

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", models.ErrEmptyCorpus, s.dir)
	}
	return docs, nil
}

// Skipped returns the files skipped by the last Load.
func (s *DirectorySource) Skipped() []SkippedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SkippedFile(nil), s.skipped...)
}
