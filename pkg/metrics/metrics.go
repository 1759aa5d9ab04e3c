// Package metrics pkg/metrics/metrics.go exposes Prometheus instruments for
// the reconciliation engines.
package metrics

import (
	"github.com/mfreeman451/statustracker/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "statustracker"

// Metrics groups the collectors updated by the engines. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	tickDuration *prometheus.HistogramVec
	ticks        *prometheus.CounterVec
	writes       *prometheus.CounterVec
	probes       *prometheus.CounterVec
	terminals    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one engine pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"engine"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Engine passes by result.",
		}, []string{"engine", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Partial updates issued to the store.",
		}, []string{"engine", "result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Reachability probes by outcome.",
		}, []string{"outcome"}),
		terminals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_evaluations_total",
			Help:      "Terminal evaluations by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.tickDuration, m.ticks, m.writes, m.probes, m.terminals)
	}

	return m
}

// ObserveTick records a finished engine pass.
func (m *Metrics) ObserveTick(s *models.TickSummary) {
	if m == nil {
		return
	}

	result := "ok"
	if s.Error != "" {
		result = "error"
	}

	m.tickDuration.WithLabelValues(s.Engine).Observe(s.Duration.Seconds())
	m.ticks.WithLabelValues(s.Engine, result).Inc()
}

// Write records one store update attempt.
func (m *Metrics) Write(engine string, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.writes.WithLabelValues(engine, result).Inc()
}

// Probe records one probe outcome.
func (m *Metrics) Probe(reachable bool) {
	if m == nil {
		return
	}

	outcome := "unreachable"
	if reachable {
		outcome = "reachable"
	}

	m.probes.WithLabelValues(outcome).Inc()
}

// Terminal records one terminal evaluation.
func (m *Metrics) Terminal(reason string) {
	if m == nil {
		return
	}

	m.terminals.WithLabelValues(reason).Inc()
}
