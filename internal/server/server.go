// Package server exposes the relay over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mhpenta/imagerelay"
	"github.com/mhpenta/imagerelay/comfy"
)

// DefaultProvider is used when a request names no model.
const DefaultProvider = "ollama"

// Resolver looks up description providers by identifier.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (imagerelay.Describer, error)
	Identifiers() []string
}

// Generator runs generation jobs and downloads their outputs.
type Generator interface {
	Run(ctx context.Context, prompt string) (*comfy.Job, error)
	FetchImage(ctx context.Context, ref string) ([]byte, string, error)
}

// Config wires the server's collaborators.
type Config struct {
	Providers Resolver
	Generator Generator

	// Storage publishes outputs; when nil the engine's reference is returned
	Storage imagerelay.Storage

	// OutputDir is served under /outputs when set
	OutputDir string

	CORSOrigins []string
	Logger      *slog.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	providers Resolver
	generator Generator
	storage   imagerelay.Storage
	outputDir string
	origins   []string
	logger    *slog.Logger
}

// New creates a Server from cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		providers: cfg.Providers,
		generator: cfg.Generator,
		storage:   cfg.Storage,
		outputDir: cfg.OutputDir,
		origins:   cfg.CORSOrigins,
		logger:    logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(s.logger),
		cors(s.origins),
	)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/upload", s.upload)
	r.Post("/describe", s.describe)
	r.Post("/generate", s.generate)

	if s.outputDir != "" {
		fs := http.StripPrefix("/outputs/", http.FileServer(http.Dir(s.outputDir)))
		r.Get("/outputs/*", fs.ServeHTTP)
	}

	return r
}

// NewHTTPServer wraps handler with the timeouts used in production. Write
// timeout covers the full describe plus generation flow.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      7 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
