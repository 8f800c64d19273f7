package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/sqlagents/internal/jobs"
	"github.com/user/sqlagents/internal/metrics"
	"github.com/user/sqlagents/internal/types"
)

type mockPipeline struct {
	lastAsk string
	result  string
	err     error
}

func (m *mockPipeline) Run(_ context.Context, ask string) (string, error) {
	m.lastAsk = ask
	return m.result, m.err
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, string) (types.JobID, error) {
	return "", jobs.ErrNotStarted
}

func setupServer(t *testing.T, p *mockPipeline) (*Server, *jobs.Runner, *jobs.MemStore) {
	t.Helper()
	store := jobs.NewMemStore()
	runner := jobs.NewRunner(store, p, 2, nil, nil)
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)
	return NewServer(p, runner, store, nil, nil), runner, store
}

func do(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := setupServer(t, &mockPipeline{})

	w := do(srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if resp := decode(t, w); resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestGenerateAndOptimize(t *testing.T) {
	p := &mockPipeline{result: "SELECT SUM(Amount) FROM Sales"}
	srv, _, _ := setupServer(t, p)

	w := do(srv, http.MethodPost, "/generate-and-optimize-query", `{"query":"total sales"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	if resp := decode(t, w); resp["optimizedQuery"] != "SELECT SUM(Amount) FROM Sales" {
		t.Errorf("unexpected body: %v", resp)
	}
	if p.lastAsk != "total sales" {
		t.Errorf("expected ask 'total sales', got %q", p.lastAsk)
	}
}

func TestGenerateMissingQuery(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"empty string", `{"query":""}`},
		{"invalid json", `{not json`},
		{"no body", ``},
	}
	for _, path := range []string{"/generate-and-optimize-query", "/generate-and-optimize-query/job"} {
		for _, tt := range tests {
			t.Run(path+"/"+tt.name, func(t *testing.T) {
				p := &mockPipeline{result: "unused"}
				srv, _, store := setupServer(t, p)

				w := do(srv, http.MethodPost, path, tt.body)
				if w.Code != http.StatusBadRequest {
					t.Fatalf("expected status 400, got %d", w.Code)
				}
				if resp := decode(t, w); resp["error"] != "Missing query in request body" {
					t.Errorf("unexpected error body: %v", resp)
				}
				if p.lastAsk != "" {
					t.Error("pipeline should not run for a missing query")
				}
				if store.Len() != 0 {
					t.Error("no job should be created for a missing query")
				}
			})
		}
	}
}

func TestGeneratePipelineFailure(t *testing.T) {
	srv, _, _ := setupServer(t, &mockPipeline{err: errors.New("connection refused")})

	w := do(srv, http.MethodPost, "/generate-and-optimize-query", `{"query":"q"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	resp := decode(t, w)
	if resp["error"] != "Failed to generate and optimize query" {
		t.Errorf("unexpected error body: %v", resp)
	}
}

func TestJobLifecycle(t *testing.T) {
	p := &mockPipeline{result: "SELECT Id FROM Customers"}
	srv, runner, _ := setupServer(t, p)

	w := do(srv, http.MethodPost, "/generate-and-optimize-query/job", `{"query":"customer ids"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", w.Code)
	}
	jobID, _ := decode(t, w)["jobId"].(string)
	if jobID == "" {
		t.Fatal("expected a jobId")
	}
	runner.Wait()

	w = do(srv, http.MethodGet, "/query-status/"+jobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	want := `{"status":"completed","result":{"optimizedQuery":"SELECT Id FROM Customers"}}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestJobFailureRecord(t *testing.T) {
	srv, runner, _ := setupServer(t, &mockPipeline{err: errors.New("model down")})

	w := do(srv, http.MethodPost, "/generate-and-optimize-query/job", `{"query":"q"}`)
	jobID, _ := decode(t, w)["jobId"].(string)
	runner.Wait()

	w = do(srv, http.MethodGet, "/query-status/"+jobID, "")
	want := `{"status":"failed","error":"Failed to generate and optimize query"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestJobPendingRecord(t *testing.T) {
	store := jobs.NewMemStore()
	job, _ := store.Create(context.Background())
	srv := NewServer(&mockPipeline{}, failingSubmitter{}, store, nil, nil)

	w := do(srv, http.MethodGet, "/query-status/"+string(job.ID), "")
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":"pending"}` {
		t.Errorf("unexpected pending record: %s", got)
	}
}

func TestJobNotFound(t *testing.T) {
	srv, _, _ := setupServer(t, &mockPipeline{})

	w := do(srv, http.MethodGet, "/query-status/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	if resp := decode(t, w); resp["error"] != "Job not found" {
		t.Errorf("unexpected error body: %v", resp)
	}
}

func TestSubmitUnavailable(t *testing.T) {
	srv := NewServer(&mockPipeline{}, failingSubmitter{}, jobs.NewMemStore(), nil, nil)

	w := do(srv, http.MethodPost, "/generate-and-optimize-query/job", `{"query":"q"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	store := jobs.NewMemStore()
	without := NewServer(&mockPipeline{}, failingSubmitter{}, store, nil, nil)
	if w := do(without, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", w.Code)
	}

	with := NewServer(&mockPipeline{}, failingSubmitter{}, store, metrics.New(), nil)
	w := do(with, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in output")
	}
}

func TestWrongMethod(t *testing.T) {
	srv, _, _ := setupServer(t, &mockPipeline{})
	if w := do(srv, http.MethodGet, "/generate-and-optimize-query", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
