// Package metrics exposes Prometheus counters for agent tasks, aggregator
// jobs and model calls.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/sqlagents/pkg/llm"
)

const namespace = "sqlagents"

// Metrics owns a private registry so several servers in one process, and
// tests, never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	tasks         *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	modelRequests *prometheus.CounterVec
	modelLatency  prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Task status events published, by agent and state.",
		}, []string{"agent", "state"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Aggregator jobs, by status reached.",
		}, []string{"status"}),
		modelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Model completion calls, by outcome.",
		}, []string{"outcome"}),
		modelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_seconds",
			Help:      "Model completion latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	m.registry.MustRegister(
		m.tasks, m.jobs, m.modelRequests, m.modelLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskState counts one status event for agent.
func (m *Metrics) TaskState(agent, state string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(agent, state).Inc()
}

// Job counts a job reaching status.
func (m *Metrics) Job(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

// InstrumentProvider wraps p so every Complete call is counted and timed.
// A nil Metrics returns p unchanged.
func (m *Metrics) InstrumentProvider(p llm.Provider) llm.Provider {
	if m == nil {
		return p
	}
	return &instrumentedProvider{next: p, metrics: m}
}

type instrumentedProvider struct {
	next    llm.Provider
	metrics *Metrics
}

func (ip *instrumentedProvider) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	start := time.Now()
	resp, err := ip.next.Complete(ctx, messages, opts)
	ip.metrics.modelLatency.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ip.metrics.modelRequests.WithLabelValues(outcome).Inc()
	return resp, err
}
