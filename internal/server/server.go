// Package server provides the HTTP API for kbassist.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kbassist/internal/config"
	"github.com/hyperjump/kbassist/internal/resolver"
	"github.com/hyperjump/kbassist/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the ticket resolution API.
type Server struct {
	resolver  *resolver.Resolver
	retriever resolver.Retriever
	storage   storage.Storage // optional; nil disables the audit endpoints
	llmName   string
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	res *resolver.Resolver,
	ret resolver.Retriever,
	store storage.Storage,
	llmName string,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		resolver:  res,
		retriever: ret,
		storage:   store,
		llmName:   llmName,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/resolve-ticket", s.handleResolveTicket)
	r.Post("/resolve-tickets", s.handleResolveTickets)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/retrieve", s.handleRetrieve)
		r.Get("/resolutions", s.handleListResolutions)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
