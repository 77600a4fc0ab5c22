// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_live_copilot"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	Listening        prometheus.Gauge
	ListeningSeconds prometheus.Counter
	SessionRefusals  *prometheus.CounterVec

	// Transcript metrics
	UtterancesFinal prometheus.Counter
	InterimUpdates  prometheus.Counter
	KeyMoments      *prometheus.CounterVec

	// Recognizer metrics
	RecognizerRestarts prometheus.Counter
	RecognizerErrors   *prometheus.CounterVec
	RecognizerFailures *prometheus.CounterVec

	// Enrichment metrics
	EnrichmentCalls    *prometheus.CounterVec
	EnrichmentDeferred prometheus.Counter
	EnrichmentLatency  prometheus.Histogram
	EnrichmentDegraded prometheus.Counter

	// Billing metrics
	Debits        *prometheus.CounterVec
	Signals       *prometheus.CounterVec
	DemoSeconds   prometheus.Counter
	CachedCredits prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// API metrics
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
	EventSubscribers prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of listening sessions started",
		}),
		Listening: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "1 while the session is listening",
		}),
		ListeningSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listening_seconds_total",
			Help:      "Total billing ticks observed while listening",
		}),
		SessionRefusals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refusals_total",
			Help:      "Start requests refused by a guard",
		}, []string{"reason"}),

		UtterancesFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_final_total",
			Help:      "Total number of finalized utterances appended to the transcript",
		}),
		InterimUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interim_updates_total",
			Help:      "Total number of interim text replacements",
		}),
		KeyMoments: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_moments_total",
			Help:      "Finalized utterances by key-moment tag",
		}, []string{"tag"}),

		RecognizerRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_restarts_total",
			Help:      "Transparent recognition engine restarts",
		}),
		RecognizerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_errors_total",
			Help:      "Non-fatal recognition engine faults",
		}, []string{"provider"}),
		RecognizerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_failures_total",
			Help:      "Terminal recognition failures",
		}, []string{"reason"}),

		EnrichmentCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_calls_total",
			Help:      "Enrichment calls by outcome",
		}, []string{"outcome"}),
		EnrichmentDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_deferred_total",
			Help:      "Notifications deferred to the pending retry slot",
		}),
		EnrichmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_latency_seconds",
			Help:      "Enrichment call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		EnrichmentDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_degraded_total",
			Help:      "Enrichment responses replaced by the fallback card",
		}),

		Debits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debits_total",
			Help:      "Ledger debits by outcome",
		}, []string{"outcome"}),
		Signals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "One-shot signals raised",
		}, []string{"signal"}),
		DemoSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demo_seconds_total",
			Help:      "Demo seconds consumed",
		}),
		CachedCredits: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_credits",
			Help:      "Last known credit balance",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status",
		}, []string{"route", "code"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EventSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected event stream subscribers",
		}),
	}
}

// RecordSessionStart records a listening session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.Listening.Set(1)
}

// RecordSessionStop records the listening session stopping.
func (m *Metrics) RecordSessionStop() {
	m.Listening.Set(0)
}

// RecordRefusal records a start request refused by a guard.
func (m *Metrics) RecordRefusal(reason string) {
	m.SessionRefusals.WithLabelValues(reason).Inc()
}

// RecordFinal records a finalized utterance and its key-moment tag.
func (m *Metrics) RecordFinal(tag string) {
	m.UtterancesFinal.Inc()
	if tag == "" {
		tag = "none"
	}
	m.KeyMoments.WithLabelValues(tag).Inc()
}

// RecordInterim records an interim text replacement.
func (m *Metrics) RecordInterim() {
	m.InterimUpdates.Inc()
}

// RecordRecognizerError records a non-fatal engine fault.
func (m *Metrics) RecordRecognizerError(provider string) {
	m.RecognizerErrors.WithLabelValues(provider).Inc()
}

// RecordRecognizerFailure records a terminal recognition failure.
func (m *Metrics) RecordRecognizerFailure(reason string) {
	m.RecognizerFailures.WithLabelValues(reason).Inc()
}

// RecordEnrichment records a completed enrichment call.
func (m *Metrics) RecordEnrichment(outcome string, latencySeconds float64) {
	m.EnrichmentCalls.WithLabelValues(outcome).Inc()
	m.EnrichmentLatency.Observe(latencySeconds)
}

// RecordDebit records a ledger debit outcome and the resulting balance.
func (m *Metrics) RecordDebit(outcome string, credits int) {
	m.Debits.WithLabelValues(outcome).Inc()
	if credits >= 0 {
		m.CachedCredits.Set(float64(credits))
	}
}

// RecordSignal records a raised one-shot signal.
func (m *Metrics) RecordSignal(signal string) {
	m.Signals.WithLabelValues(signal).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTP records an API request.
func (m *Metrics) RecordHTTP(route string, code int, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(latencySeconds)
}
