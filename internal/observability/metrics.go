// Package observability owns the Prometheus collectors exported on /metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "moodsync"

var (
	subscribersGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Number of subscribers currently attached to a channel.",
	}, []string{"channel"})

	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "events_published_total",
		Help:      "Number of events published, labeled by channel and event type.",
	}, []string{"channel", "type"})

	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "deliveries_total",
		Help:      "Number of successful per-subscriber deliveries.",
	}, []string{"channel"})

	evictedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "subscribers_evicted_total",
		Help:      "Number of subscribers removed after a failed or timed out send.",
	}, []string{"channel"})

	lastTickGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "last_tick_timestamp_seconds",
		Help:      "Unix timestamp of the most recent reading appended to history.",
	})

	heartRateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "heart_rate_bpm",
		Help:      "Heart rate of the most recent reading.",
	})

	ingestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Sensor feed messages by outcome (processed, decode_error, handler_error).",
	}, []string{"topic", "outcome"})

	classificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "requests_total",
		Help:      "Classification calls by classifier and outcome.",
	}, []string{"classifier", "outcome"})

	classificationLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "request_duration_seconds",
		Help:      "Latency of classification calls.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"classifier"})

	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "actuation",
		Name:      "current_state",
		Help:      "1 for the mental state currently driving the environment, 0 otherwise.",
	}, []string{"state"})

	sinkErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "actuation",
		Name:      "sink_errors_total",
		Help:      "Failed deliveries of actuation settings to downstream sinks.",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(
		subscribersGauge,
		publishedCounter,
		deliveredCounter,
		evictedCounter,
		lastTickGauge,
		heartRateGauge,
		ingestCounter,
		classificationCounter,
		classificationLatency,
		stateGauge,
		sinkErrorCounter,
	)
}

// SetSubscribers records the subscriber count of a channel.
func SetSubscribers(channel string, n int) {
	subscribersGauge.WithLabelValues(channel).Set(float64(n))
}

// RecordPublish counts a publish and its per-subscriber outcome.
func RecordPublish(channel, eventType string, delivered, evicted int) {
	publishedCounter.WithLabelValues(channel, eventType).Inc()
	if delivered > 0 {
		deliveredCounter.WithLabelValues(channel).Add(float64(delivered))
	}
	if evicted > 0 {
		evictedCounter.WithLabelValues(channel).Add(float64(evicted))
	}
}

// RecordReading updates the telemetry watermark.
func RecordReading(ts time.Time, heartRate int) {
	if ts.IsZero() {
		return
	}
	lastTickGauge.Set(float64(ts.Unix()))
	heartRateGauge.Set(float64(heartRate))
}

// RecordIngest counts a sensor feed message outcome.
func RecordIngest(topic, outcome string) {
	ingestCounter.WithLabelValues(topic, outcome).Inc()
}

// RecordClassification counts a classifier call and observes its latency.
func RecordClassification(classifier, outcome string, elapsed time.Duration) {
	classificationCounter.WithLabelValues(classifier, outcome).Inc()
	classificationLatency.WithLabelValues(classifier).Observe(elapsed.Seconds())
}

// RecordState flags the active mental state.
func RecordState(active string) {
	for _, s := range []string{"stressed", "neutral", "relaxed"} {
		v := 0.0
		if s == active {
			v = 1
		}
		stateGauge.WithLabelValues(s).Set(v)
	}
}

// RecordSinkError counts a failed sink delivery.
func RecordSinkError(sink string) {
	sinkErrorCounter.WithLabelValues(sink).Inc()
}

// SinkErrors exposes the sink failure counter to external callers such as tests.
func SinkErrors(sink string) prometheus.Counter {
	return sinkErrorCounter.WithLabelValues(sink)
}

// Classifications exposes the classification counter to external callers such as tests.
func Classifications(classifier, outcome string) prometheus.Counter {
	return classificationCounter.WithLabelValues(classifier, outcome)
}

// IngestMessages exposes the ingest counter to external callers such as tests.
func IngestMessages(topic, outcome string) prometheus.Counter {
	return ingestCounter.WithLabelValues(topic, outcome)
}
