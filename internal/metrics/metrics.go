// Package metrics exposes Prometheus metrics for layout renders, query
// dispatches and sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OFFIS-RIT/lineage/pkg/layout"
	"github.com/OFFIS-RIT/lineage/pkg/query"
)

const namespace = "lineage"

// Metrics implements layout.Observer and query.Tracer.
type Metrics struct {
	// layoutAttempts counts strategy attempts.
	// Labels: strategy, status (ok, error)
	layoutAttempts *prometheus.CounterVec

	// layoutDuration measures how long a strategy took to lay out.
	// Labels: strategy
	layoutDuration *prometheus.HistogramVec

	// renders counts finished renders.
	// Labels: outcome (success, degraded, failure), emergency (true, false)
	renders *prometheus.CounterVec

	// dispatches counts dispatch lifecycle events.
	// Labels: event (dispatched, resolved, failed, rendered, no_data), kind
	dispatches *prometheus.CounterVec

	// resolverLatency measures resolver round trips.
	// Labels: status (ok, error)
	resolverLatency *prometheus.HistogramVec

	// sessions is the number of live explorer sessions.
	sessions prometheus.Gauge
}

// New registers all metrics with reg. Use prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		layoutAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "attempts_total",
			Help:      "Layout strategy attempts by strategy and status",
		}, []string{"strategy", "status"}),
		layoutDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "duration_seconds",
			Help:      "Time a layout strategy took until it stopped",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"strategy"}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layout",
			Name:      "renders_total",
			Help:      "Finished renders by outcome",
		}, []string{"outcome", "emergency"}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "events_total",
			Help:      "Query dispatch events by type and response kind",
		}, []string{"event", "kind"}),
		resolverLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "resolver_latency_seconds",
			Help:      "Resolver round trip latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live explorer sessions",
		}),
	}
}

func (m *Metrics) ObserveAttempt(strategy string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.layoutAttempts.WithLabelValues(strategy, status).Inc()
	if err == nil {
		m.layoutDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveRender(res layout.Result) {
	emergency := "false"
	if res.Emergency {
		emergency = "true"
	}
	m.renders.WithLabelValues(string(res.Outcome), emergency).Inc()
}

func (m *Metrics) Record(ev query.TraceEvent) {
	m.dispatches.WithLabelValues(string(ev.Kind), string(ev.ResponseKind)).Inc()
	switch ev.Kind {
	case query.TraceEventResolved:
		m.resolverLatency.WithLabelValues("ok").Observe(ev.Duration.Seconds())
	case query.TraceEventFailed:
		m.resolverLatency.WithLabelValues("error").Observe(ev.Duration.Seconds())
	}
}

// SetSessions reports the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}
