package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kbassist/internal/config"
	"github.com/hyperjump/kbassist/internal/models"
	"go.uber.org/zap"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after ticket are moved first",
			args:     []string{"domain suspended", "-top-k", "2"},
			expected: []string{"-top-k", "2", "domain suspended"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "domain suspended"},
			expected: []string{"-output", "json", "domain suspended"},
		},
		{
			name:     "text only returns unchanged",
			args:     []string{"domain suspended"},
			expected: []string{"domain suspended"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"card", "declined", "--top-k", "5"},
			expected: []string{"--top-k", "5", "card", "declined"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		args     []string
		expected string
	}{
		{[]string{"whois"}, "whois"},
		{[]string{"domain", "suspended"}, "domain suspended"},
		{[]string{"domain suspended"}, "domain suspended"},
		{[]string{}, ""},
		{[]string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		if got := joinArgs(tt.args); got != tt.expected {
			t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
		}
	}
}

func TestLoadConfig_prefersCwdConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9100
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 9100 {
		t.Errorf("unexpected config: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
}

func TestLoadConfig_noFileUsesDefaults(t *testing.T) {
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty", resolved)
	}
	if cfg.Retrieval.TopK <= 0 || cfg.Storage.IndexDir == "" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestInitializeComponents(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "")
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	cfg, _, err := loadConfig(filepath.Join(dir, "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}

	cfg, _, err = loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	c, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.LLM.Name() != "fallback" {
		t.Errorf("LLM = %q, want fallback without an API key", c.LLM.Name())
	}
	if c.Storage == nil || c.Resolver == nil || c.Retriever.Dir() != filepath.Join(dir, "faiss_index") {
		t.Errorf("components not wired: %+v", c)
	}
}

func TestDecodeResponse_Detail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"no relevant policies found for this ticket"}`))
	}))
	defer srv.Close()

	var res models.Resolution
	err := postJSON(srv.URL+"/resolve-ticket", models.TicketRequest{TicketText: "x"}, &res)
	if err == nil || !strings.Contains(err.Error(), "404: no relevant policies") {
		t.Errorf("got %v", err)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"index":{"loaded":true,"documents":4},"llm":"fallback"}`))
	}))
	defer srv.Close()

	var out struct {
		Index struct {
			Documents int `json:"documents"`
		} `json:"index"`
		LLM string `json:"llm"`
	}
	if err := getJSON(srv.URL, &out); err != nil {
		t.Fatal(err)
	}
	if out.Index.Documents != 4 || out.LLM != "fallback" {
		t.Errorf("decoded %+v", out)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("api key must not be written")
	}
	cfg, _, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != config.DefaultPort || cfg.Retrieval.TopK != config.DefaultTopK {
		t.Errorf("unexpected config: port=%d top_k=%d", cfg.Server.Port, cfg.Retrieval.TopK)
	}

	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected error for existing file without force")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}
