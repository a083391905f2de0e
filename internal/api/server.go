// Package api exposes the HTTP surface: an upload form that converts
// synchronously, plus health and pipeline status endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fitconvapp/fitconv-server/internal/config"
	"github.com/fitconvapp/fitconv-server/internal/converter"
	"github.com/fitconvapp/fitconv-server/internal/pipeline"
)

// StatsProvider reports pipeline activity for the status endpoint.
type StatsProvider interface {
	Stats() pipeline.Stats
}

// Converter is the synchronous conversion capability the upload route
// needs: the per-call transform choice backs the form's checkbox.
type Converter interface {
	ConvertWith(ctx context.Context, sourcePath string, transform bool) (converter.Result, error)
}

// Server is the HTTP front end.
type Server struct {
	http  *http.Server
	inbox string
	conv  Converter
	stats StatsProvider
	log   *slog.Logger
}

// New creates the HTTP server with routes mounted.
func New(cfg *config.Config, conv Converter, stats StatsProvider, log *slog.Logger) *Server {
	s := &Server{
		inbox: cfg.Paths.Inbox,
		conv:  conv,
		stats: stats,
		log:   log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	r.Get("/", s.handleUploadForm)
	r.Post("/upload", s.handleUpload)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/health", s.handleHealthz)
	r.Get("/api/v1/status", s.handleStatus)

	s.http = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
