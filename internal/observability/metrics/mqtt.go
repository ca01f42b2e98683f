package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics tracks the broker connection and published messages. A nil
// *MQTTMetrics discards everything.
type MQTTMetrics struct {
	Connected      prometheus.Gauge
	LastConnect    prometheus.Gauge
	Published      prometheus.Counter
	Errors         prometheus.Counter
	Reconnects     prometheus.Counter
	PayloadBytes   prometheus.Histogram
	PublishLatency prometheus.Histogram
	registry       *prometheus.Registry
}

// NewMQTTMetrics creates the MQTT metrics and registers them.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batrec_mqtt_connected",
		Help: "1 while connected to the MQTT broker, 0 otherwise",
	})
	m.LastConnect = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batrec_mqtt_last_connect_timestamp_seconds",
		Help: "Unix time of the last successful broker connection",
	})
	m.Published = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batrec_mqtt_messages_published_total",
		Help: "Total number of status and clip messages acknowledged by the broker",
	})
	m.Errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batrec_mqtt_errors_total",
		Help: "Total number of failed connects, publishes and lost connections",
	})
	m.Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batrec_mqtt_reconnects_total",
		Help: "Total number of automatic reconnection attempts",
	})
	m.PayloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batrec_mqtt_payload_bytes",
		Help:    "Size of published payloads",
		Buckets: prometheus.ExponentialBuckets(BucketStart64B, BucketFactor2, BucketCount10),
	})
	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batrec_mqtt_publish_latency_seconds",
		Help:    "Time from publish to broker acknowledgement",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})
}

// SetConnected records a connection state change.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
		m.LastConnect.SetToCurrentTime()
		return
	}
	m.Connected.Set(0)
}

// Delivered records an acknowledged publish that started at start.
func (m *MQTTMetrics) Delivered(payloadBytes int, start time.Time) {
	if m == nil {
		return
	}
	m.Published.Inc()
	m.PayloadBytes.Observe(float64(payloadBytes))
	m.PublishLatency.Observe(time.Since(start).Seconds())
}

// Error counts a failed broker operation.
func (m *MQTTMetrics) Error() {
	if m != nil {
		m.Errors.Inc()
	}
}

// Reconnect counts an automatic reconnection attempt.
func (m *MQTTMetrics) Reconnect() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

// Describe implements prometheus.Collector.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Connected.Describe(ch)
	m.LastConnect.Describe(ch)
	m.Published.Describe(ch)
	m.Errors.Describe(ch)
	m.Reconnects.Describe(ch)
	m.PayloadBytes.Describe(ch)
	m.PublishLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Connected.Collect(ch)
	m.LastConnect.Collect(ch)
	m.Published.Collect(ch)
	m.Errors.Collect(ch)
	m.Reconnects.Collect(ch)
	m.PayloadBytes.Collect(ch)
	m.PublishLatency.Collect(ch)
}
