// Package middleware provides cross-cutting concerns for the judgement
// engine and session runner: Prometheus metrics and OpenTelemetry tracing.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-acj/internal/application"
	"github.com/ahrav/go-acj/internal/ports"
)

// Label keys understood by PrometheusMetrics. Labels missing from a
// recording are reported as "unknown".
const (
	LabelPolicy      = "policy"
	LabelParticipant = "participant"
	LabelItem        = "item"
	LabelReason      = "reason"
	LabelResponse    = "response"
)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It exposes comparison throughput, missed trials, per-item quality
// estimates, expected-winner probabilities and reaction times.
type PrometheusMetrics struct {
	events           *prometheus.CounterVec
	rejected         *prometheus.CounterVec
	trials           *prometheus.CounterVec
	itemQuality      *prometheus.GaugeVec
	expected         *prometheus.HistogramVec
	reactionTime     *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers all
// metrics with reg. A nil reg uses the global default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acj_engine_events_total",
				Help: "Engine events: selections, resolved comparisons, missed trials and exhaustion.",
			},
			[]string{"event", LabelPolicy, LabelParticipant},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: application.MetricRejected,
				Help: "Resolutions rejected because of an unknown item, a self-pair or a foreign winner.",
			},
			[]string{LabelReason, LabelPolicy, LabelParticipant},
		),
		trials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTrials,
				Help: "Trials presented to participants by response.",
			},
			[]string{LabelResponse, LabelParticipant},
		),
		itemQuality: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: application.MetricItemQuality,
				Help: "Current latent quality estimate of each item.",
			},
			[]string{LabelItem, LabelPolicy, LabelParticipant},
		),
		expected: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    application.MetricExpected,
				Help:    "Model probability of the observed winner just before each update.",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
			},
			[]string{LabelPolicy},
		),
		reactionTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricReactionTime,
				Help:    "Participant reaction time for answered trials.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
			},
			[]string{LabelParticipant},
		),
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acj_operation_duration_seconds",
				Help:    "Execution time of engine and session operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", LabelPolicy},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "acj_system_state",
				Help: "Other state values reported through the metrics collector.",
			},
			[]string{"metric", LabelParticipant},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, label(labels, LabelPolicy)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case application.MetricRejected:
		pm.rejected.WithLabelValues(
			label(labels, LabelReason),
			label(labels, LabelPolicy),
			label(labels, LabelParticipant),
		).Add(value)
	case MetricTrials:
		pm.trials.WithLabelValues(
			label(labels, LabelResponse),
			label(labels, LabelParticipant),
		).Add(value)
	default:
		pm.events.WithLabelValues(
			metric,
			label(labels, LabelPolicy),
			label(labels, LabelParticipant),
		).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case application.MetricItemQuality:
		pm.itemQuality.WithLabelValues(
			label(labels, LabelItem),
			label(labels, LabelPolicy),
			label(labels, LabelParticipant),
		).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, label(labels, LabelParticipant)).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram. Unknown metrics are folded into the
// operation duration histogram under their own operation name.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case application.MetricExpected:
		pm.expected.WithLabelValues(label(labels, LabelPolicy)).Observe(value)
	case MetricReactionTime:
		pm.reactionTime.WithLabelValues(label(labels, LabelParticipant)).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, label(labels, LabelPolicy)).Observe(value)
	}
}

func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
