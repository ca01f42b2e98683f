package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for fault notifications.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	Suppressed       *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Total number of notification deliveries by status",
	}, []string{"status"})
	m.DeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "notification_delivery_duration_seconds",
		Help:    "Time taken to deliver a notification",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})
	m.Suppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_suppressed_total",
		Help: "Total number of notifications not sent",
	}, []string{"reason"})

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordDelivery counts a delivery attempt and its latency.
func (m *NotificationMetrics) RecordDelivery(status string, seconds float64) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryDuration.Observe(seconds)
}

// RecordSuppressed counts a notification dropped before sending.
func (m *NotificationMetrics) RecordSuppressed(reason string) {
	if m != nil {
		m.Suppressed.WithLabelValues(reason).Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	ch <- m.DeliveryDuration.Desc()
	m.Suppressed.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	ch <- m.DeliveryDuration
	m.Suppressed.Collect(ch)
}
