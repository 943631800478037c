// Package snapshot persists an index and its document metadata as one unit.
//
// A snapshot directory contains index.faiss, meta.json and manifest.json. Builds
// are written to a sibling staging directory and swapped into place with renames,
// so readers never observe a half-written snapshot.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kbassist/internal/docstore"
	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/vector"
)

const (
	IndexFile    = "index.faiss"
	MetaFile     = "meta.json"
	ManifestFile = "manifest.json"

	// ManifestVersion is the current manifest format version.
	ManifestVersion = 1

	// A lock file older than this is assumed to belong to a crashed build.
	staleLockAge = 10 * time.Minute
)

// Manifest records what a snapshot contains and how it was built.
type Manifest struct {
	Version        int       `json:"version"`
	BuildID        string    `json:"build_id"`
	CreatedAt      time.Time `json:"created_at"`
	Source         string    `json:"source,omitempty"`
	IndexType      string    `json:"index_type"`
	Dimensions     int       `json:"dimensions"`
	Count          int       `json:"count"`
	EmbeddingModel string    `json:"embedding_model"`
	MetaSHA256     string    `json:"meta_sha256"`
}

// Snapshot is a loaded, verified index with its documents.
type Snapshot struct {
	Dir string
	// Manifest is nil for directories written without one.
	Manifest *Manifest
	Index    vector.Index
	Docs     *docstore.Store
}

// Close releases the index.
func (s *Snapshot) Close() error {
	if s == nil || s.Index == nil {
		return nil
	}
	return s.Index.Close()
}

// AcquireLock takes the exclusive build lock for dir. It returns ErrBuildInProgress
// while another build holds it.
func AcquireLock(dir string) (release func(), err error) {
	lockPath := filepath.Clean(dir) + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			owner := strconv.Itoa(os.Getpid()) + " " + uuid.NewString()
			_, _ = f.WriteString(owner)
			_ = f.Close()
			return func() { releaseLock(lockPath, owner) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		st, statErr := os.Stat(lockPath)
		if statErr != nil || time.Since(st.ModTime()) < staleLockAge {
			break
		}
		_ = os.Remove(lockPath)
	}
	return nil, fmt.Errorf("%w: %s", models.ErrBuildInProgress, lockPath)
}

// releaseLock removes the lock only while it still carries owner. A build that
// outlived staleLockAge may have had its lock taken over by another builder.
func releaseLock(lockPath, owner string) {
	data, err := os.ReadFile(lockPath)
	if err != nil || string(data) != owner {
		return
	}
	_ = os.Remove(lockPath)
}

// Publish writes idx and docs as a snapshot at dir, replacing any previous one.
// The returned manifest has Count, Dimensions, IndexType and MetaSHA256 filled in,
// plus BuildID and CreatedAt when m left them empty.
func Publish(dir string, idx vector.Index, docs []models.Document, m Manifest) (*Manifest, error) {
	if idx.Size() != len(docs) {
		return nil, fmt.Errorf("%w: index has %d vectors, metadata has %d documents", models.ErrAlignment, idx.Size(), len(docs))
	}
	release, err := AcquireLock(dir)
	if err != nil {
		return nil, err
	}
	defer release()

	dir = filepath.Clean(dir)
	staging := dir + ".staging-" + uuid.NewString()
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := idx.Save(filepath.Join(staging, IndexFile)); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	meta, err := docstore.Encode(docs)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(staging, MetaFile), meta, 0644); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	m.Version = ManifestVersion
	if m.BuildID == "" {
		m.BuildID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.IndexType = idx.Type()
	m.Dimensions = idx.Dimensions()
	m.Count = len(docs)
	m.MetaSHA256 = checksum(meta)
	if err := writeManifest(filepath.Join(staging, ManifestFile), &m); err != nil {
		return nil, err
	}

	if err := swap(staging, dir); err != nil {
		return nil, err
	}
	published = true
	return &m, nil
}

// swap replaces dir with staging. The old directory is renamed aside first so it
// can be restored if the second rename fails.
func swap(staging, dir string) error {
	var old string
	if _, err := os.Stat(dir); err == nil {
		old = dir + ".old-" + uuid.NewString()
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous snapshot aside: %w", err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("publish snapshot: %w", err)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

// Open loads and cross-checks the snapshot at dir. indexType is used only when
// the directory has no manifest.
func Open(dir, indexType string) (*Snapshot, error) {
	m, err := ReadManifest(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		if errors.Is(err, models.ErrIndexNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexNotFound, dir, err)
	}
	if m != nil {
		indexType = m.IndexType
	}

	metaPath := filepath.Join(dir, MetaFile)
	meta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrIndexNotFound, metaPath, err)
	}
	idx, err := vector.Load(indexType, filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}
	snap, err := verify(dir, m, idx, meta)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	return snap, nil
}

func verify(dir string, m *Manifest, idx vector.Index, meta []byte) (*Snapshot, error) {
	if m != nil {
		if sum := checksum(meta); sum != m.MetaSHA256 {
			return nil, fmt.Errorf("%w: %s checksum %s does not match manifest %s", models.ErrAlignment, MetaFile, sum, m.MetaSHA256)
		}
		if idx.Dimensions() != m.Dimensions {
			return nil, fmt.Errorf("%w: index dimension %d, manifest %d", models.ErrAlignment, idx.Dimensions(), m.Dimensions)
		}
		if idx.Size() != m.Count {
			return nil, fmt.Errorf("%w: index has %d vectors, manifest %d", models.ErrAlignment, idx.Size(), m.Count)
		}
	}
	docs, err := docstore.Parse(meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, MetaFile), err)
	}
	if docs.Len() != idx.Size() {
		return nil, fmt.Errorf("%w: index has %d vectors, metadata has %d documents", models.ErrAlignment, idx.Size(), docs.Len())
	}
	return &Snapshot{Dir: dir, Manifest: m, Index: idx, Docs: docs}, nil
}

// ReadManifest reads dir's manifest. The error wraps fs.ErrNotExist when there is none.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", models.ErrIndexNotFound, err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", m.Version, ManifestVersion)
	}
	return &m, nil
}

func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
