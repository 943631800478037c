// Package config provides configuration loading and structs for the kbassist server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// WatchIndex reloads the retriever when a new index is published.
	WatchIndex *bool `yaml:"watch_index"`
}

// WatchIndexOrDefault returns whether to hot-reload the index; defaults to true when unset.
func (s *ServerConfig) WatchIndexOrDefault() bool {
	if s.WatchIndex != nil {
		return *s.WatchIndex
	}
	return true
}

// StorageConfig holds paths for source documents, the persisted index and the audit database.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	IndexDir     string `yaml:"index_dir"`
	DocsDir      string `yaml:"docs_dir"`
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects the vector index implementation.
type VectorConfig struct {
	IndexType string `yaml:"index_type"`
}

// RetrievalConfig holds query-time and ingestion settings.
type RetrievalConfig struct {
	TopK       int      `yaml:"top_k"`
	Extensions []string `yaml:"extensions"`
}

// LLMConfig holds completion API settings. An empty APIKey selects the offline fallback.
type LLMConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Load reads the config file at path (if path is non-empty), applies environment
// overrides, expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := ""
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
		cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
		cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
		cfg.Storage.DocsDir = expandPath(cfg.Storage.DocsDir, configDir)
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Redacted returns a copy of cfg with secrets masked, for printing.
func (c *Config) Redacted() *Config {
	out := *c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "****"
	}
	return &out
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("MISTRAL_API_KEY", &cfg.LLM.APIKey)
	setString("MISTRAL_API_URL", &cfg.LLM.BaseURL)
	setString("MISTRAL_MODEL", &cfg.LLM.Model)
	setString("EMBEDDING_MODEL", &cfg.Embedding.Model)
	setString("EMBEDDING_MODEL_PATH", &cfg.Embedding.ModelPath)
	setString("DATA_DIR", &cfg.Storage.DataDir)
	setString("FAISS_DIR", &cfg.Storage.IndexDir)
	setString("DOCS_DIR", &cfg.Storage.DocsDir)
	setString("DATABASE_PATH", &cfg.Storage.DatabasePath)
	setString("INDEX_TYPE", &cfg.Vector.IndexType)
	setString("HOST", &cfg.Server.Host)

	ints := []struct {
		key string
		dst *int
	}{
		{"TOP_K", &cfg.Retrieval.TopK},
		{"PORT", &cfg.Server.Port},
		{"EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	if v, ok := os.LookupEnv("KBASSIST_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KBASSIST_DEBUG %q: %w", v, err)
		}
		cfg.Debug = b
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
