// Package metrics exposes bridge counters and gauges in Prometheus format.
//
// All collectors live on a private registry so tests can create as many
// instances as they like without colliding on the global default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mavbridge"

// Metrics holds the bridge collectors. It satisfies mavlink.MetricsRecorder.
type Metrics struct {
	registry *prometheus.Registry

	recordsReceived  *prometheus.CounterVec
	recordsDiscarded prometheus.Counter
	listenerErrors   prometheus.Counter
	publishes        *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	cacheEntries     prometheus.Gauge
	listenerRunning  prometheus.Gauge
	brokerConnected  prometheus.Gauge
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_received_total",
			Help:      "Decoded records written to the cache, by message type.",
		}, []string{"type"}),
		recordsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_discarded_total",
			Help:      "Records dropped because their message ID is not in the dialect.",
		}),
		listenerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_errors_total",
			Help:      "Receive failures that ended a listen session.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Successful MQTT publishes, by message type.",
		}, []string{"type"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Failed MQTT publishes, by message type.",
		}, []string{"type"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time spent in a single MQTT publish call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Distinct message types seen this session.",
		}),
		listenerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listener_running",
			Help:      "1 while the UDP listener is receiving.",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 while a broker session exists.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recordsReceived,
		m.recordsDiscarded,
		m.listenerErrors,
		m.publishes,
		m.publishFailures,
		m.publishDuration,
		m.cacheEntries,
		m.listenerRunning,
		m.brokerConnected,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordReceived counts one cached record.
func (m *Metrics) RecordReceived(msgType string) {
	m.recordsReceived.WithLabelValues(msgType).Inc()
}

// RecordDiscarded counts one unknown-category record.
func (m *Metrics) RecordDiscarded() {
	m.recordsDiscarded.Inc()
}

// RecordListenerError counts one fail-stop of the listener.
func (m *Metrics) RecordListenerError() {
	m.listenerErrors.Inc()
}

// RecordPublish counts one publish attempt and, when it reached the
// broker, observes its duration.
func (m *Metrics) RecordPublish(msgType string, took time.Duration, err error) {
	if err != nil {
		m.publishFailures.WithLabelValues(msgType).Inc()
	} else {
		m.publishes.WithLabelValues(msgType).Inc()
	}
	if took > 0 {
		m.publishDuration.Observe(took.Seconds())
	}
}

// SetCacheEntries sets the cache size gauge.
func (m *Metrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

// SetListening sets the listener gauge.
func (m *Metrics) SetListening(listening bool) {
	m.listenerRunning.Set(boolToFloat(listening))
}

// SetBrokerConnected sets the broker gauge.
func (m *Metrics) SetBrokerConnected(connected bool) {
	m.brokerConnected.Set(boolToFloat(connected))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
