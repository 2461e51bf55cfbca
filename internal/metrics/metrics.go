// Package metrics exposes the pipeline's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netspectra_ids"

// Metrics groups the pipeline instruments on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	PacketsClassified *prometheus.CounterVec
	PacketsDropped    prometheus.Counter
	PacketsSkipped    prometheus.Counter
	ClassifyDuration  prometheus.Histogram
	ClassifyAttempts  prometheus.Counter
	SessionActive     prometheus.Gauge
	ClassifierHealthy prometheus.Gauge
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		PacketsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_classified_total",
			Help:      "Packets classified, by verdict and call status.",
		}, []string{"verdict", "status"}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets dropped because the worker queue was full.",
		}),
		PacketsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_skipped_total",
			Help:      "Packets skipped before classification (non-IPv4 or undecodable).",
		}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Wall time of a classification call including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ClassifyAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_attempts_total",
			Help:      "HTTP attempts made against the classifier.",
		}),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a capture session is running.",
		}),
		ClassifierHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classifier_healthy",
			Help:      "1 when the last classifier health check passed.",
		}),
	}
	r.MustRegister(
		m.PacketsClassified,
		m.PacketsDropped,
		m.PacketsSkipped,
		m.ClassifyDuration,
		m.ClassifyAttempts,
		m.SessionActive,
		m.ClassifierHealthy,
	)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveClassification records one finished classification.
func (m *Metrics) ObserveClassification(attack, success bool, seconds float64) {
	if m == nil {
		return
	}
	verdict := "normal"
	if attack {
		verdict = "attack"
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.PacketsClassified.WithLabelValues(verdict, status).Inc()
	m.ClassifyDuration.Observe(seconds)
}

// IncAttempts counts one HTTP attempt against the classifier.
func (m *Metrics) IncAttempts() {
	if m == nil {
		return
	}
	m.ClassifyAttempts.Inc()
}

// IncDropped counts one packet lost to a full queue.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.PacketsDropped.Inc()
}

// IncSkipped counts one packet that never reached the classifier.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.PacketsSkipped.Inc()
}

// SetSessionActive flips the session gauge.
func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	m.SessionActive.Set(boolToFloat(active))
}

// SetClassifierHealthy records the outcome of the last health check.
func (m *Metrics) SetClassifierHealthy(healthy bool) {
	if m == nil {
		return
	}
	m.ClassifierHealthy.Set(boolToFloat(healthy))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
