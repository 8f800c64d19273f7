// Package api is the aggregator HTTP surface: a synchronous
// generate-and-optimize endpoint plus a fire-and-forget job variant.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/user/sqlagents/internal/jobs"
	"github.com/user/sqlagents/internal/metrics"
	"github.com/user/sqlagents/internal/types"
)

const (
	msgMissingQuery = "Missing query in request body"
	msgPipelineFail = "Failed to generate and optimize query"
	msgJobNotFound  = "Job not found"

	maxBodyBytes = 1 << 20
)

// Pipeline runs generate followed by optimize for one ask.
type Pipeline interface {
	Run(ctx context.Context, ask string) (string, error)
}

// Submitter starts a background job for an ask.
type Submitter interface {
	Submit(ctx context.Context, ask string) (types.JobID, error)
}

// Server is the aggregator's HTTP handler.
type Server struct {
	pipeline Pipeline
	jobs     Submitter
	store    types.JobStore
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewServer wires the aggregator routes. A nil m leaves /metrics unregistered.
func NewServer(pipeline Pipeline, submitter Submitter, store types.JobStore, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: pipeline,
		jobs:     submitter,
		store:    store,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /generate-and-optimize-query", s.handleGenerate)
	s.mux.HandleFunc("POST /generate-and-optimize-query/job", s.handleSubmitJob)
	s.mux.HandleFunc("GET /query-status/{jobId}", s.handleJobStatus)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryRequest is the JSON body for both generate endpoints.
type queryRequest struct {
	Query string `json:"query"`
}

// readQuery returns the ask from the request body. Unparseable bodies count
// as a missing query.
func readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return "", false
	}
	return req.Query, req.Query != ""
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ask, ok := readQuery(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgMissingQuery)
		return
	}

	optimized, err := s.pipeline.Run(r.Context(), ask)
	if err != nil {
		s.logger.Error("generate and optimize failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgPipelineFail)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"optimizedQuery": optimized})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ask, ok := readQuery(w, r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgMissingQuery)
		return
	}

	id, err := s.jobs.Submit(r.Context(), ask)
	if err != nil {
		s.logger.Error("submit job failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "job runner unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": string(id)})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := types.JobID(r.PathValue("jobId"))

	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, msgJobNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get job failed", "job_id", string(id), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
