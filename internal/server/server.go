// Package server provides the HTTP API for niteru.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/config"
	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/similarity"
	"github.com/hyperjump/niteru/internal/storage"
)

// Ingester commits a batch of track queries.
type Ingester interface {
	IngestBatch(ctx context.Context, queries []models.TrackQuery) (*models.IngestResult, error)
}

// DirectoryLister reports watched inbox directories.
type DirectoryLister interface {
	Directories() []string
}

// Server is the HTTP server for the niteru API.
type Server struct {
	engine   *similarity.Engine
	ingester Ingester
	store    storage.VectorStore
	tracks   keyword.TrackIndex
	watch    DirectoryLister
	config   *config.ServerConfig
	paths    []string
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithTrackIndex enables text search over the catalog.
func WithTrackIndex(idx keyword.TrackIndex) Option {
	return func(s *Server) { s.tracks = idx }
}

// WithWatch reports the watched inbox directories in /api/status.
func WithWatch(w DirectoryLister) Option {
	return func(s *Server) { s.watch = w }
}

// WithDiskPaths sets the files and directories summed for disk usage in /api/status.
func WithDiskPaths(paths ...string) Option {
	return func(s *Server) { s.paths = paths }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *similarity.Engine,
	ingester Ingester,
	store storage.VectorStore,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:   engine,
		ingester: ingester,
		store:    store,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/hello", s.handleHello)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))
		r.Post("/api/search", s.handleSearch)
		r.Post("/api/similar/vector", s.handleSimilarVector)
		r.Get("/api/tracks", s.handleListTracks)
		r.Get("/api/tracks/{id}", s.handleGetTrack)
		r.Delete("/api/tracks/{id}", s.handleDeleteTrack)
		r.Get("/api/status", s.handleStatus)
	})
	// ingestion fetches audio for every track and may outlive the request timeout
	r.Post("/api/ingest", s.handleIngest)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
