package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Render outcomes, in addition to the resolver error kinds.
const (
	OutcomeOK       = "ok"
	OutcomeCached   = "cached"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	registry       *prometheus.Registry
	renders        *prometheus.CounterVec
	renderDuration prometheus.Histogram
	healthChecks   *prometheus.CounterVec
}

// New builds collectors on a private registry so tests can create many.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cowsay_renders_total",
				Help: "Render requests by outcome.",
			},
			[]string{"outcome"},
		),
		renderDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cowsay_render_duration_seconds",
				Help:    "Time spent resolving and running cowsay for a render.",
				Buckets: prometheus.DefBuckets,
			},
		),
		healthChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cowsay_health_checks_total",
				Help: "Health checks by reported status.",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		m.renders,
		m.renderDuration,
		m.healthChecks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ObserveRender(outcome string, elapsed time.Duration) {
	m.renders.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected && outcome != OutcomeCached {
		m.renderDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveHealth(status string) {
	m.healthChecks.WithLabelValues(status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
