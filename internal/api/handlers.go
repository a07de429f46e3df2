package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maturion/ingest/internal/heuristics"
	"github.com/maturion/ingest/internal/ingest"
)

type crawlRequest struct {
	OrganizationID string `json:"organization_id"`
	Domain         string `json:"domain"`
	Priority       *int   `json:"priority"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OrganizationID == "" || req.Domain == "" {
		s.writeError(w, http.StatusBadRequest, "organization_id and domain are required")
		return
	}
	priority := s.cfg.Crawler.SeedPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	jobID, err := s.enqueueCrawl(r.Context(), req.OrganizationID, req.Domain, priority)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) enqueueCrawl(ctx context.Context, organizationID, domain string, priority int) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	job := ingest.IngestJob{
		ID:             jobID,
		OrganizationID: organizationID,
		Domain:         domain,
		Status:         ingest.JobStatusQueued,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	run := ingest.RunRequest{
		JobID:          jobID,
		Kind:           ingest.RunKindCrawl,
		OrganizationID: organizationID,
		Domain:         domain,
		Priority:       priority,
		Submitted:      s.clock.Now().Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, run); err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	return jobID, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) queueStats(w http.ResponseWriter, r *http.Request) {
	organizationID := r.URL.Query().Get("organization_id")
	if organizationID == "" {
		s.writeError(w, http.StatusBadRequest, "organization_id is required")
		return
	}
	stats, err := s.crawl.QueueStats(r.Context(), organizationID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": organizationID,
		"counts":          stats,
	})
}

func (s *Server) processDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")
	doc, err := s.documents.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if doc.Status == ingest.DocumentStatusProcessing {
		s.writeError(w, http.StatusConflict, "document is already processing")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	run := ingest.RunRequest{
		Kind:           ingest.RunKindDocument,
		OrganizationID: doc.OrganizationID,
		DocumentID:     documentID,
		Submitted:      s.clock.Now().Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, run); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"document_id": documentID,
		"status":      "queued",
	})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")
	doc, err := s.documents.GetDocument(r.Context(), documentID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stages, err := s.documents.ListStages(r.Context(), documentID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"stages":   stages,
	})
}

type contextRequest struct {
	OrganizationID string `json:"organization_id"`
	Criterion      string `json:"criterion"`
	Limit          int    `json:"limit"`
}

func (s *Server) buildContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OrganizationID == "" || req.Criterion == "" {
		s.writeError(w, http.StatusBadRequest, "organization_id and criterion are required")
		return
	}
	built, err := s.contextSrc.Build(r.Context(), req.OrganizationID, req.Criterion, req.Limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, built)
}

type feedbackRequest struct {
	OrganizationID string `json:"organization_id"`
	Text           string `json:"text"`
	Accepted       bool   `json:"accepted"`
}

func (s *Server) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OrganizationID == "" || req.Text == "" {
		s.writeError(w, http.StatusBadRequest, "organization_id and text are required")
		return
	}
	fb := ingest.Feedback{
		OrganizationID: req.OrganizationID,
		Text:           req.Text,
		Accepted:       req.Accepted,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.feedback.SaveFeedback(r.Context(), fb); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type scoreRequest struct {
	OrganizationID string `json:"organization_id"`
	Candidate      string `json:"candidate"`
}

// The scorer is rebuilt per request from recent rejections, so freshly
// recorded feedback takes effect immediately.
func (s *Server) scoreFeedback(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OrganizationID == "" || req.Candidate == "" {
		s.writeError(w, http.StatusBadRequest, "organization_id and candidate are required")
		return
	}
	rejected, err := s.feedback.ListRejected(r.Context(), req.OrganizationID, 200)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var scorer ingest.Scorer = heuristics.NewNGramScorer(rejected)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"confidence": scorer.Score(req.Candidate),
	})
}
