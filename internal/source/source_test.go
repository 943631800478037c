package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/kbassist/internal/models"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDirectorySource_Load(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"whois_policy.txt": "  Whois must be up-to-date.\n",
		"billing_faq.md":   "Payment failures cause interruptions.",
		"notes.csv":        "a,b",
		"blank.txt":        " \n\t",
	})
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0755); err != nil {
		t.Fatal(err)
	}

	src, err := NewDirectorySource(dir)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []models.Document{
		{ID: "billing_faq", Title: "billing_faq.md", Text: "Payment failures cause interruptions."},
		{ID: "whois_policy", Title: "whois_policy.txt", Text: "Whois must be up-to-date."},
	}
	if !reflect.DeepEqual(docs, want) {
		t.Errorf("docs = %+v", docs)
	}

	skipped := src.Skipped()
	names := make([]string, len(skipped))
	for i, s := range skipped {
		names[i] = s.Name
	}
	if !reflect.DeepEqual(names, []string{"archive", "blank.txt", "notes.csv"}) {
		t.Errorf("skipped = %+v", skipped)
	}
}

func TestDirectorySource_DeterministicOrder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"c.txt": "c", "a.txt": "a", "b.txt": "b"})
	src, _ := NewDirectorySource(dir)
	first, _ := src.Load(context.Background())
	second, _ := src.Load(context.Background())
	if !reflect.DeepEqual(first, second) || first[0].ID != "a" || first[2].ID != "c" {
		t.Errorf("order not stable: %+v / %+v", first, second)
	}
}

func TestDirectorySource_Empty(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"image.png": "x"})
	src, _ := NewDirectorySource(dir)
	_, err := src.Load(context.Background())
	if !errors.Is(err, models.ErrEmptyCorpus) {
		t.Errorf("expected ErrEmptyCorpus, got %v", err)
	}
}

func TestDirectorySource_MissingDir(t *testing.T) {
	src, _ := NewDirectorySource(filepath.Join(t.TempDir(), "missing"))
	if _, err := src.Load(context.Background()); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestDirectorySource_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"policy.txt": "one", "policy.md": "two"})
	src, _ := NewDirectorySource(dir)
	_, err := src.Load(context.Background())
	if !errors.Is(err, models.ErrInvalidMetadata) {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

func TestDirectorySource_Extensions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.txt": "a", "b.MD": "b"})
	src, err := NewDirectorySource(dir, WithExtensions([]string{"md"}))
	if err != nil {
		t.Fatal(err)
	}
	docs, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "b" {
		t.Errorf("docs = %+v", docs)
	}

	if _, err := NewDirectorySource(dir, WithExtensions([]string{".pptx"})); err == nil {
		t.Error("expected error for extension without extractor")
	}
}

func TestDirectorySource_BadFileSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"broken.pdf": "not a pdf", "ok.txt": "fine"})
	src, _ := NewDirectorySource(dir)
	docs, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "ok" {
		t.Errorf("docs = %+v", docs)
	}
	if s := src.Skipped(); len(s) != 1 || s[0].Name != "broken.pdf" {
		t.Errorf("skipped = %+v", s)
	}
}

func TestStaticSource(t *testing.T) {
	src := Demo()
	docs, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 4 || docs[0].ID != "domain_suspension" || src.Name() != "demo" {
		t.Errorf("demo corpus = %+v", docs)
	}
	docs[0].ID = "mutated"
	again, _ := src.Load(context.Background())
	if again[0].ID != "domain_suspension" {
		t.Error("Load must return a copy")
	}

	if _, err := NewStatic("empty", nil).Load(context.Background()); !errors.Is(err, models.ErrEmptyCorpus) {
		t.Errorf("expected ErrEmptyCorpus, got %v", err)
	}
}
