// Package api exposes the HTTP interface for the ingest service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/maturion/ingest/internal/config"
	"github.com/maturion/ingest/internal/dispatcher"
	"github.com/maturion/ingest/internal/heuristics"
	"github.com/maturion/ingest/internal/ingest"
	"github.com/maturion/ingest/internal/metrics"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	jobs       ingest.JobStore
	crawl      ingest.CrawlStore
	documents  ingest.DocumentStore
	feedback   ingest.FeedbackStore
	audit      ingest.AuditLog
	contextSrc *heuristics.ContextBuilder
	dispatcher *dispatcher.Dispatcher
	idGen      ingest.IDGenerator
	clock      ingest.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// Deps bundles the server's collaborators.
type Deps struct {
	Jobs       ingest.JobStore
	Crawl      ingest.CrawlStore
	Documents  ingest.DocumentStore
	Feedback   ingest.FeedbackStore
	Audit      ingest.AuditLog
	Context    *heuristics.ContextBuilder
	Dispatcher *dispatcher.Dispatcher
	IDGen      ingest.IDGenerator
	Clock      ingest.Clock
	Logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:       deps.Jobs,
		crawl:      deps.Crawl,
		documents:  deps.Documents,
		feedback:   deps.Feedback,
		audit:      deps.Audit,
		contextSrc: deps.Context,
		dispatcher: deps.Dispatcher,
		idGen:      deps.IDGen,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger.Named("api"),
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/crawl", s.submitCrawl)
		r.Get("/jobs/{job_id}", s.getJob)
		r.Get("/queue/stats", s.queueStats)
		r.Route("/documents/{document_id}", func(r chi.Router) {
			r.Post("/process", s.processDocument)
			r.Get("/", s.getDocument)
		})
		r.Post("/context", s.buildContext)
		r.Post("/feedback", s.submitFeedback)
		r.Post("/feedback/score", s.scoreFeedback)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the hard dependency; a probe read proves the
	// backing store answers. ErrNotFound counts as an answer.
	if s.jobs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := s.jobs.GetJob(ctx, "readyz-probe"); err != nil && !errors.Is(err, ingest.ErrNotFound) {
			s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
