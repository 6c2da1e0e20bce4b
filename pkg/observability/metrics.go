package observability

import (
	"context"
	"net/http"

	"github.com/nvrdftd/evolve-ai-infra/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors.
type Metrics struct {
	gatherer     prometheus.Gatherer
	nodeVisits   *prometheus.CounterVec
	nodeFailures *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry, alongside the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith registers the collectors on reg and serves them from g.
func NewMetricsWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		gatherer: g,
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evolve_node_visits_total",
			Help: "Total number of node visits",
		}, []string{"node"}),
		nodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evolve_node_failures_total",
			Help: "Node handler invocations that returned an error",
		}, []string{"node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evolve_node_duration_seconds",
			Help:    "Duration of node handler executions",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"node"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evolve_tool_calls_total",
			Help: "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "evolve_tool_duration_seconds",
			Help: "Duration of tool executions",
		}, []string{"tool"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evolve_runs_total",
			Help: "Finished runs by graph and status",
		}, []string{"graph", "status"}),
	}
	reg.MustRegister(m.nodeVisits, m.nodeFailures, m.nodeDuration, m.toolCalls, m.toolDuration, m.runs)
	return m
}

// Hooks records node and tool activity.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.Node).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeFailures.WithLabelValues(e.Node).Inc()
			}
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			outcome := "ok"
			if e.IsError {
				outcome = "error"
			}
			m.toolCalls.WithLabelValues(e.ToolName, outcome).Inc()
			m.toolDuration.WithLabelValues(e.ToolName).Observe(e.Duration.Seconds())
		},
	}
}

// ObserveRun counts a finished run.
func (m *Metrics) ObserveRun(graph string, status domain.RunStatus) {
	m.runs.WithLabelValues(graph, string(status)).Inc()
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
