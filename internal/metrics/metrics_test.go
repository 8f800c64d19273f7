package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/sqlagents/pkg/llm"
)

type stubProvider struct {
	err error
}

func (s stubProvider) Complete(context.Context, []llm.Message, llm.Options) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: "SELECT 1"}, nil
}

func TestTaskAndJobCounters(t *testing.T) {
	m := New()
	m.TaskState("sql", "completed")
	m.TaskState("sql", "completed")
	m.TaskState("optimize", "failed")
	m.Job("pending")

	if got := testutil.ToFloat64(m.tasks.WithLabelValues("sql", "completed")); got != 2 {
		t.Errorf("expected 2 completed sql tasks, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasks.WithLabelValues("optimize", "failed")); got != 1 {
		t.Errorf("expected 1 failed optimize task, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("pending")); got != 1 {
		t.Errorf("expected 1 pending job, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TaskState("sql", "working")
	m.Job("failed")

	p := stubProvider{}
	if got := m.InstrumentProvider(p); got != llm.Provider(p) {
		t.Error("nil metrics should return the provider unchanged")
	}
}

func TestInstrumentProvider(t *testing.T) {
	m := New()

	ok := m.InstrumentProvider(stubProvider{})
	if _, err := ok.Complete(context.Background(), nil, llm.Options{}); err != nil {
		t.Fatal(err)
	}
	failing := m.InstrumentProvider(stubProvider{err: errors.New("boom")})
	if _, err := failing.Complete(context.Background(), nil, llm.Options{}); err == nil {
		t.Fatal("expected error to pass through")
	}

	if got := testutil.ToFloat64(m.modelRequests.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok request, got %v", got)
	}
	if got := testutil.ToFloat64(m.modelRequests.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 error request, got %v", got)
	}
	if got := testutil.CollectAndCount(m.modelLatency); got != 1 {
		t.Errorf("expected latency histogram to be collected, got %d", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.Job("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `sqlagents_jobs_total{status="completed"} 1`) {
		t.Errorf("expected job counter in output:\n%s", body)
	}
}
