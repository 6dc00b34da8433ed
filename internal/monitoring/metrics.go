// Package monitoring exposes Prometheus metrics for intake runs and raises
// webhook alerts when recent runs cross failure or cost thresholds.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/doc-intake/internal/model"
)

const namespace = "doc_intake"

// Metrics holds every collector the pipeline and server update.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	NodeDuration  *prometheus.HistogramVec
	NodesDegraded *prometheus.CounterVec
	EmailsTotal   *prometheus.CounterVec
	TokensTotal   *prometheus.CounterVec
	CostUSD       prometheus.Counter

	RecentRuns     *prometheus.GaugeVec
	RecentFailRate prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Intake runs finished, by final status.",
		}, []string{"status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Graph node wall time, by node and outcome.",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"node", "status"}),
		NodesDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_degraded_total",
			Help:      "Graph nodes that failed and contributed nothing.",
		}, []string{"node"}),
		EmailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Notification emails, by result.",
		}, []string{"result"}),
		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Model tokens consumed, by kind.",
		}, []string{"kind"}),
		CostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Estimated model spend in USD.",
		}),
		RecentRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recent_runs",
			Help:      "Runs inside the monitoring lookback window, by status.",
		}, []string{"status"}),
		RecentFailRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recent_fail_rate",
			Help:      "Share of finished runs in the lookback window that failed.",
		}),
	}

	m.registry.MustRegister(
		m.RunsTotal, m.NodeDuration, m.NodesDegraded, m.EmailsTotal,
		m.TokensTotal, m.CostUSD, m.RecentRuns, m.RecentFailRate,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveNode records one finished graph node.
func (m *Metrics) ObserveNode(r model.NodeResult) {
	if m == nil {
		return
	}
	m.NodeDuration.WithLabelValues(r.Node, string(r.Status)).Observe(float64(r.DurationMs) / 1000)
	if r.Degraded() {
		m.NodesDegraded.WithLabelValues(r.Node).Inc()
	}
	m.observeUsage(r.TokenUsage)
}

// ObserveRun records a finished run and its notification outcomes.
func (m *Metrics) ObserveRun(status model.RunStatus, outcomes []model.Outcome) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	for _, o := range outcomes {
		if o.Success {
			m.EmailsTotal.WithLabelValues("sent").Inc()
		} else {
			m.EmailsTotal.WithLabelValues("failed").Inc()
		}
	}
}

// SetSnapshot publishes the lookback-window gauges.
func (m *Metrics) SetSnapshot(s *Snapshot) {
	if m == nil || s == nil {
		return
	}
	m.RecentRuns.WithLabelValues(string(model.RunStatusComplete)).Set(float64(s.RunsComplete))
	m.RecentRuns.WithLabelValues(string(model.RunStatusFailed)).Set(float64(s.RunsFailed))
	m.RecentRuns.WithLabelValues(string(model.RunStatusRunning)).Set(float64(s.RunsRunning))
	m.RecentFailRate.Set(s.FailRate)
}

func (m *Metrics) observeUsage(u model.TokenUsage) {
	if u.InputTokens > 0 {
		m.TokensTotal.WithLabelValues("input").Add(float64(u.InputTokens))
	}
	if u.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues("output").Add(float64(u.OutputTokens))
	}
	if u.CacheReadTokens > 0 {
		m.TokensTotal.WithLabelValues("cache_read").Add(float64(u.CacheReadTokens))
	}
	if u.Cost > 0 {
		m.CostUSD.Add(u.Cost)
	}
}
