// Package server provides the HTTP API for pdfinsight.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/metrics"
	"github.com/hyperjump/pdfinsight/internal/models"
)

// Ingestor stores and indexes an uploaded PDF.
type Ingestor interface {
	IngestUpload(ctx context.Context, filename string, content []byte) (*models.Manifest, error)
}

// Asker answers a question about an indexed document.
type Asker interface {
	Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error)
}

// ManifestReader reads document manifests.
type ManifestReader interface {
	Read(docID string) (*models.Manifest, error)
	List() ([]*models.Manifest, error)
}

// SessionEvicter forgets a conversation.
type SessionEvicter interface {
	Evict(ctx context.Context, key models.SessionKey) error
}

// WatchService manages inbox directories (implemented by watcher.Inbox).
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the pdfinsight API.
type Server struct {
	cfg        *config.Config
	ingestor   Ingestor
	asker      Asker
	manifests  ManifestReader
	sessions   SessionEvicter
	logger     *zap.Logger
	metrics    *metrics.Metrics
	watch      WatchService
	configPath string
	configMu   sync.Mutex
	server     *http.Server
}

// Option configures optional server features.
type Option func(*Server)

// WithMetrics instruments every route and exposes GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatch enables the inbox directory endpoints. When configPath is set,
// directory changes are saved back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	cfg *config.Config,
	ingestor Ingestor,
	asker Asker,
	manifests ManifestReader,
	sessions SessionEvicter,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		ingestor:  ingestor,
		asker:     asker,
		manifests: manifests,
		sessions:  sessions,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	timeout := s.cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/ask", s.handleAsk)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/sessions/{docID}/{sessionID}", s.handleDeleteSession)
		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("env", s.cfg.Env))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
