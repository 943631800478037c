package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MISTRAL_API_KEY", "MISTRAL_API_URL", "MISTRAL_MODEL", "EMBEDDING_MODEL",
		"EMBEDDING_MODEL_PATH", "EMBEDDING_DIMENSIONS", "DATA_DIR", "FAISS_DIR", "DOCS_DIR",
		"DATABASE_PATH", "INDEX_TYPE", "HOST", "TOP_K", "PORT", "KBASSIST_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
retrieval:
  top_k: 2
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Retrieval.TopK != 2 {
		t.Errorf("top_k = %d, want 2", cfg.Retrieval.TopK)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_noFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.TopK != DefaultTopK {
		t.Errorf("top_k = %d, want %d", cfg.Retrieval.TopK, DefaultTopK)
	}
	if cfg.Storage.IndexDir != filepath.Join("data", "faiss_index") {
		t.Errorf("index_dir = %s", cfg.Storage.IndexDir)
	}
	if cfg.LLM.APIKey != "" {
		t.Error("api key should be empty by default")
	}
	if cfg.Embedding.Model != DefaultEmbeddingModel {
		t.Errorf("embedding model = %s", cfg.Embedding.Model)
	}
}

func TestLoad_envOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
retrieval:
  top_k: 2
llm:
  base_url: "http://file.example"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TOP_K", "7")
	t.Setenv("MISTRAL_API_KEY", "secret")
	t.Setenv("FAISS_DIR", "/srv/index")
	t.Setenv("EMBEDDING_MODEL", "custom-model")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.TopK != 7 {
		t.Errorf("top_k = %d, want 7", cfg.Retrieval.TopK)
	}
	if cfg.LLM.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "http://file.example" {
		t.Errorf("base url = %q", cfg.LLM.BaseURL)
	}
	if cfg.Storage.IndexDir != "/srv/index" {
		t.Errorf("index dir = %q", cfg.Storage.IndexDir)
	}
	if cfg.Embedding.Model != "custom-model" {
		t.Errorf("embedding model = %q", cfg.Embedding.Model)
	}
}

func TestLoad_invalidTopK(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOP_K", "four")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "TOP_K") {
		t.Fatalf("expected TOP_K error, got %v", err)
	}
}

func TestLoad_dataDirDerivesPaths(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/var/kb")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.IndexDir != "/var/kb/faiss_index" {
		t.Errorf("index dir = %s", cfg.Storage.IndexDir)
	}
	if cfg.Storage.DocsDir != "/var/kb/docs" {
		t.Errorf("docs dir = %s", cfg.Storage.DocsDir)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  index_dir: "./data/faiss_index"
  docs_dir: "./support_docs"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantIndex := filepath.Join(dir, "data", "faiss_index")
	if cfg.Storage.IndexDir != wantIndex {
		t.Errorf("index_dir = %s, want %s", cfg.Storage.IndexDir, wantIndex)
	}
	wantDocs := filepath.Join(dir, "support_docs")
	if cfg.Storage.DocsDir != wantDocs {
		t.Errorf("docs_dir = %s, want %s", cfg.Storage.DocsDir, wantDocs)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Port != DefaultPort {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Vector.IndexType != "flat" {
		t.Errorf("default index type: got %s", cfg.Vector.IndexType)
	}
	if len(cfg.Retrieval.Extensions) != 3 || cfg.Retrieval.Extensions[2] != ".pdf" {
		t.Errorf("extensions: got %v", cfg.Retrieval.Extensions)
	}
	if cfg.LLM.TimeoutSeconds != 20 {
		t.Errorf("llm timeout: got %d", cfg.LLM.TimeoutSeconds)
	}
	if !cfg.Server.WatchIndexOrDefault() {
		t.Error("watch_index should default to true")
	}
}

func TestServerConfig_WatchIndexOrDefault(t *testing.T) {
	f := false
	s := &ServerConfig{WatchIndex: &f}
	if s.WatchIndexOrDefault() {
		t.Error("explicit false should be honored")
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{APIKey: "secret"}}
	if got := cfg.Redacted().LLM.APIKey; got != "****" {
		t.Errorf("redacted key = %q", got)
	}
	if cfg.LLM.APIKey != "secret" {
		t.Error("Redacted must not modify the receiver")
	}
}

func TestSave(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
