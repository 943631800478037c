// Package main is the kbassist CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kbassist/internal/cli"
	"github.com/hyperjump/kbassist/internal/config"
	"github.com/hyperjump/kbassist/internal/embedding"
	"github.com/hyperjump/kbassist/internal/indexer"
	"github.com/hyperjump/kbassist/internal/llm"
	"github.com/hyperjump/kbassist/internal/models"
	"github.com/hyperjump/kbassist/internal/resolver"
	"github.com/hyperjump/kbassist/internal/retriever"
	"github.com/hyperjump/kbassist/internal/server"
	"github.com/hyperjump/kbassist/internal/source"
	"github.com/hyperjump/kbassist/internal/storage"
	"github.com/hyperjump/kbassist/internal/vector"
	"github.com/hyperjump/kbassist/internal/watcher"
	"github.com/hyperjump/kbassist/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

// loadConfig loads config from path. With no path it uses config.yaml from the
// current directory when present, otherwise defaults plus environment overrides.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			candidate := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "build":
		runBuild()
	case "retrieve":
		runRetrieve()
	case "resolve":
		runResolve()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kbassist version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path (default: ./config.yaml when present)")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("index_dir", cfg.Storage.IndexDir),
	)
	logger.Debug("effective config", zap.Any("config", cfg.Redacted()))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// Serving starts without an index; requests fail until one is built.
	if err := components.Retriever.Load(); err != nil {
		logger.Warn("index not loaded, run 'kbassist build' first", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Server.WatchIndexOrDefault() {
		ret := components.Retriever
		w := watcher.NewWatcher(cfg.Storage.IndexDir, func() {
			if err := ret.Reload(); err != nil {
				logger.Warn("index reload failed, keeping the previous snapshot", zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start index watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(
		components.Resolver,
		components.Retriever,
		components.Storage,
		components.LLM.Name(),
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	demo := fs.Bool("demo", false, "index the built-in demo policies instead of a directory")
	docsDir := fs.String("docs", "", "directory of policy documents (default: storage.docs_dir)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var src source.Source
	var dirSrc *source.DirectorySource
	if *demo {
		src = source.Demo()
	} else {
		dir := cfg.Storage.DocsDir
		if *docsDir != "" {
			dir = *docsDir
		}
		dirSrc, err = source.NewDirectorySource(dir,
			source.WithExtensions(cfg.Retrieval.Extensions),
			source.WithLogger(logger))
		if err != nil {
			fatalf("Invalid document source: %v", err)
		}
		src = dirSrc
	}

	embedder := newEmbedder(cfg, logger)
	defer embedder.Close()

	opts := []indexer.BuilderOption{indexer.WithLogger(logger)}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Warn("audit storage unavailable, build will not be recorded", zap.Error(err))
	} else {
		defer store.Close()
		opts = append(opts, indexer.WithStorage(store))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	m, err := indexer.NewBuilder(src, embedder, cfg.Storage.IndexDir, cfg.Vector.IndexType, opts...).Build(ctx)
	if err != nil {
		fatalf("Build failed: %v", err)
	}
	var skipped []source.SkippedFile
	if dirSrc != nil {
		skipped = dirSrc.Skipped()
	}
	if err := cli.WriteBuildSummary(os.Stdout, m, skipped, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// argsReorder moves flags that appear after the positional text to the front so
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args so multi-word text works with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read the index directly)")
	topK := fs.Int("top-k", 0, "number of documents (default: retrieval.top_k)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := joinArgs(fs.Args())
	if query == "" {
		fmt.Println("Usage: kbassist retrieve [flags] <query>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	var docs []models.ScoredDocument
	if *serverURL != "" {
		var out struct {
			Results []models.ScoredDocument `json:"results"`
		}
		body := map[string]interface{}{"query": query, "top_k": *topK}
		if err := postJSON(*serverURL+"/api/v1/retrieve", body, &out); err != nil {
			fatalf("Retrieve failed: %v", err)
		}
		docs = out.Results
	} else {
		components := mustComponents(*configPath)
		defer components.Close()
		docs, err = components.Retriever.Retrieve(context.Background(), query, *topK)
		if err != nil {
			fatalf("Retrieve failed: %v", err)
		}
	}
	if err := cli.WriteRetrieveResults(os.Stdout, query, docs, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runResolve() {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "server URL (empty = resolve in-process)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	ticket := joinArgs(fs.Args())
	if ticket == "" {
		fmt.Println("Usage: kbassist resolve [flags] <ticket text>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	var res *models.Resolution
	if *serverURL != "" {
		res = &models.Resolution{}
		if err := postJSON(*serverURL+"/resolve-ticket", models.TicketRequest{TicketText: ticket}, res); err != nil {
			fatalf("Resolve failed: %v", err)
		}
	} else {
		components := mustComponents(*configPath)
		defer components.Close()
		res, err = components.Resolver.Resolve(context.Background(), ticket)
		if err != nil {
			fatalf("Resolve failed: %v", err)
		}
	}
	if err := cli.WriteResolution(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "server URL (empty = inspect local files)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fatalf("%v", err)
	}

	var status cli.Status
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fatalf("Failed to load config: %v", err)
		}
		logger, err := utils.NewCLILogger(cfg.Debug)
		if err != nil {
			fatalf("Failed to create logger: %v", err)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fatalf("Failed to initialize: %v", err)
		}
		defer components.Close()

		if err := components.Retriever.Load(); err != nil {
			logger.Debug("index not loaded", zap.Error(err))
		}
		status = cli.Status{
			Index: components.Retriever.Stats(),
			LLM:   components.LLM.Name(),
		}
		if components.Storage != nil {
			ctx := context.Background()
			if n, err := components.Storage.CountResolutions(ctx); err == nil {
				status.Resolutions = &n
			}
			if builds, err := components.Storage.ListBuilds(ctx, 1); err == nil && len(builds) > 0 {
				status.LastBuild = builds[0]
			}
		}
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.IndexDir, cfg.Storage.DatabasePath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}
	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func postJSON(url string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(b, &e) == nil && e.Detail != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Detail)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage // nil when the audit database cannot be opened
	Embedder  embedding.Embedder
	Retriever *retriever.Retriever
	LLM       llm.Client
	Resolver  *resolver.Resolver
}

func (c *Components) Close() {
	if c.Retriever != nil {
		_ = c.Retriever.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	return embedding.New(embedding.Options{
		Model:      cfg.Embedding.Model,
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
	}, logger)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Warn("audit storage unavailable, resolutions will not be recorded",
			zap.String("path", cfg.Storage.DatabasePath), zap.Error(err))
	} else {
		c.Storage = store
	}

	if vector.IndexType(cfg.Vector.IndexType) == vector.IndexTypeFAISS && !vector.IsFAISSAvailable() {
		logger.Warn("FAISS requested but not compiled in; only manifests naming flat indexes will load")
	}

	c.Embedder = newEmbedder(cfg, logger)
	c.Retriever = retriever.New(cfg.Storage.IndexDir, c.Embedder,
		retriever.WithLogger(logger),
		retriever.WithDefaultTopK(cfg.Retrieval.TopK),
		retriever.WithIndexType(cfg.Vector.IndexType))
	c.LLM = llm.New(cfg.LLM, logger)

	resOpts := []resolver.Option{
		resolver.WithLogger(logger),
		resolver.WithTopK(cfg.Retrieval.TopK),
		resolver.WithGenerateOptions(llm.Options{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature}),
	}
	if c.Storage != nil {
		resOpts = append(resOpts, resolver.WithStorage(c.Storage))
	}
	c.Resolver = resolver.New(c.Retriever, c.LLM, resOpts...)
	return c, nil
}

func mustComponents(configPath string) *Components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return components
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "config.yaml", "config file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*path, *force); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Wrote %s\n", *path)
}

// writeDefaultConfig writes a config holding only default values. Secrets come
// from the environment and are never written.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return config.Save(path, cfg)
}

func printUsage() {
	fmt.Println(`kbassist - Policy-grounded support ticket assistant

Usage:
  kbassist server [flags]              Start the HTTP server
  kbassist build [flags]               Build the policy index
  kbassist retrieve [flags] <query>    Show the policies closest to a query
  kbassist resolve [flags] <ticket>    Resolve a support ticket
  kbassist status [flags]              Show index and service status
  kbassist init [flags]                Write a config file with default values
  kbassist version                     Show version
  kbassist help                        Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml when present)

Server Flags:
  --debug            Enable debug logging

Build Flags:
  --demo             Index the built-in demo policies
  --docs string      Directory of .txt/.md/.pdf policies (default: storage.docs_dir)
  --output string    Output format: text or json (default: text)

Retrieve Flags:
  --top-k int        Number of documents (default: retrieval.top_k)
  --server string    Server URL; empty reads the index directly
  --output string    Output format: text or json (default: text)

Init Flags:
  --path string      File to write (default: config.yaml)
  --force            Overwrite an existing file

Resolve / Status Flags:
  --server string    Server URL; empty works in-process
  --output string    Output format: text or json (default: text)

Environment:
  MISTRAL_API_KEY    Enables the Mistral client; without it answers are offline fallbacks
  FAISS_DIR          Index directory (default: data/faiss_index)
  TOP_K              Default number of retrieved documents (default: 4)

Examples:
  kbassist build --demo
  kbassist build --docs ./policies
  kbassist retrieve --top-k 2 "domain suspended"
  kbassist resolve "My domain was suspended and I didn't get any notice."
  kbassist status --output json`)
}
