package docstore

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kbassist/internal/models"
)

var sample = []models.Document{
	{ID: "whois_policy", Title: "WHOIS Update Policy", Text: "Registrants must keep WHOIS accurate."},
	{ID: "billing_faq", Title: "Billing & Payment FAQ", Text: "Invoices are issued <monthly>."},
}

func TestWriteLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	if err := Write(path, sample); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.Documents(), sample) {
		t.Errorf("round trip mismatch: %+v", s.Documents())
	}
	if s.Len() != 2 {
		t.Errorf("Len=%d", s.Len())
	}
}

func TestEncode_Format(t *testing.T) {
	data, err := Encode(sample[1:])
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "\n  {\n    \"id\": \"billing_faq\"") {
		t.Errorf("expected 2-space indent, got:\n%s", got)
	}
	if !strings.Contains(got, "Billing & Payment FAQ") || !strings.Contains(got, "<monthly>") {
		t.Errorf("HTML characters should not be escaped:\n%s", got)
	}
}

func TestAt(t *testing.T) {
	s, _ := New(sample)
	if d, ok := s.At(1); !ok || d.ID != "billing_faq" {
		t.Errorf("At(1) = %+v, %v", d, ok)
	}
	for _, pos := range []int64{-1, 2, 100} {
		if _, ok := s.At(pos); ok {
			t.Errorf("At(%d) should be out of range", pos)
		}
	}
}

func TestDocuments_ReturnsCopy(t *testing.T) {
	s, _ := New(sample)
	docs := s.Documents()
	docs[0].Title = "changed"
	if d, _ := s.At(0); d.Title != "WHOIS Update Policy" {
		t.Error("Documents must not expose internal slice")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{`},
		{"object not array", `{"id":"a"}`},
		{"missing text", `[{"id":"a","title":"A"}]`},
		{"null title", `[{"id":"a","title":null,"text":"x"}]`},
		{"numeric id", `[{"id":1,"title":"A","text":"x"}]`},
		{"non-object record", `[1]`},
		{"null record", `[null]`},
		{"duplicate id", `[{"id":"a","title":"A","text":"x"},{"id":"a","title":"B","text":"y"}]`},
		{"empty id", `[{"id":"","title":"A","text":"x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, models.ErrInvalidMetadata) {
				t.Errorf("expected ErrInvalidMetadata, got %v", err)
			}
		})
	}
}

func TestParse_IgnoresExtraFields(t *testing.T) {
	s, err := Parse([]byte(`[{"id":"a","title":"A","text":"x","source":"legacy"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := s.At(0); d.Text != "x" {
		t.Errorf("got %+v", d)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "meta.json"))
	if !errors.Is(err, models.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestLoad_InvalidNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	_ = os.WriteFile(path, []byte(`[{"id":"a"}]`), 0644)
	_, err := Load(path)
	if !errors.Is(err, models.ErrInvalidMetadata) || !strings.Contains(err.Error(), path) {
		t.Errorf("got %v", err)
	}
}
