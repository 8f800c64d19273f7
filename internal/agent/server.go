// Package agent serves an agent executor over HTTP: the JSON-RPC task
// endpoint, the agent card, health, metrics and the task journal.
package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/user/sqlagents/internal/journal"
	"github.com/user/sqlagents/internal/metrics"
)

// LegacyAgentCardPath is the pre-0.3 discovery path, still requested by older clients.
const LegacyAgentCardPath = "/.well-known/agent.json"

// Options configures a Server. Zero values disable the optional routes.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Journal *journal.Journal
}

// Server routes HTTP requests for one agent.
type Server struct {
	card    *a2a.AgentCard
	journal *journal.Journal
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer creates a Server for executor, advertised by card.
func NewServer(card *a2a.AgentCard, executor a2asrv.AgentExecutor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		card:    card,
		journal: opts.Journal,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	handler := a2asrv.NewHandler(executor, a2asrv.WithLogger(logger))
	cardHandler := a2asrv.NewStaticAgentCardHandler(card)

	s.mux.Handle("POST /{$}", a2asrv.NewJSONRPCHandler(handler))
	s.mux.Handle("GET "+a2asrv.WellKnownAgentCardPath, cardHandler)
	s.mux.Handle("GET "+LegacyAgentCardPath, cardHandler)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	if s.journal != nil {
		s.mux.HandleFunc("GET /api/tasks/{id}/events", s.handleTaskEvents)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": s.card.Name})
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := a2a.TaskID(r.PathValue("id"))

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.journal.Tail(r.Context(), taskID, limit)
	if errors.Is(err, journal.ErrInvalidTaskID) {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if err != nil {
		s.logger.Error("tail journal failed", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
