// Package metrics provides custom Prometheus metrics for the recorder.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/batrec/internal/audiocore"
)

// RecorderMetrics counts capture, detection and file output events. It
// implements audiocore.Metrics; a nil *RecorderMetrics discards everything.
type RecorderMetrics struct {
	BlocksCaptured *prometheus.CounterVec
	BlocksDropped  *prometheus.CounterVec
	Overruns       *prometheus.CounterVec
	ProtocolFaults *prometheus.CounterVec
	CallsDetected  prometheus.Counter
	ClipsWritten   *prometheus.CounterVec
	ClipsFailed    *prometheus.CounterVec
	StorageMisses  prometheus.Counter
	Restarts       *prometheus.CounterVec
	State          prometheus.Gauge
	ClipLength     prometheus.Histogram
	registry       *prometheus.Registry
}

var _ audiocore.Metrics = (*RecorderMetrics)(nil)

// NewRecorderMetrics creates the recorder metrics and registers them.
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recorder metrics: %w", err)
	}
	return m, nil
}

func (m *RecorderMetrics) initMetrics() {
	m.BlocksCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_blocks_captured_total",
		Help: "Total number of audio blocks delivered by the capture source",
	}, []string{"source"})

	m.BlocksDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_blocks_dropped_total",
		Help: "Total number of audio blocks dropped because the pipeline queue was full",
	}, []string{"source"})

	m.Overruns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_capture_overruns_total",
		Help: "Total number of device buffer overruns",
	}, []string{"source"})

	m.ProtocolFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_protocol_faults_total",
		Help: "Total number of empty or failed device reads",
	}, []string{"source"})

	m.CallsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batrec_calls_detected_total",
		Help: "Total number of blocks that triggered a clip",
	})

	m.ClipsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_clips_written_total",
		Help: "Total number of complete clips written",
	}, []string{"rec_type"})

	m.ClipsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_clips_failed_total",
		Help: "Total number of clips that were skipped or left partial",
	}, []string{"reason"})

	m.StorageMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batrec_storage_unavailable_total",
		Help: "Total number of times no storage target had enough free space",
	})

	m.Restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batrec_restarts_requested_total",
		Help: "Total number of pipeline restarts requested",
	}, []string{"reason"})

	m.State = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "batrec_pipeline_state",
		Help: "Current pipeline state (0 idle, 1 starting, 2 running, 3 draining, 4 stopped, 5 faulted)",
	})

	m.ClipLength = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "batrec_clip_length_seconds",
		Help:    "Length of written clips in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10),
	})
}

func (m *RecorderMetrics) BlockCaptured(source string) {
	if m != nil {
		m.BlocksCaptured.WithLabelValues(source).Inc()
	}
}

func (m *RecorderMetrics) BlockDropped(source string) {
	if m != nil {
		m.BlocksDropped.WithLabelValues(source).Inc()
	}
}

func (m *RecorderMetrics) Overrun(source string) {
	if m != nil {
		m.Overruns.WithLabelValues(source).Inc()
	}
}

func (m *RecorderMetrics) ProtocolFault(source string) {
	if m != nil {
		m.ProtocolFaults.WithLabelValues(source).Inc()
	}
}

func (m *RecorderMetrics) CallDetected() {
	if m != nil {
		m.CallsDetected.Inc()
	}
}

func (m *RecorderMetrics) ClipWritten(recType string) {
	if m != nil {
		m.ClipsWritten.WithLabelValues(recType).Inc()
	}
}

func (m *RecorderMetrics) ClipFailed(reason string) {
	if m != nil {
		m.ClipsFailed.WithLabelValues(reason).Inc()
	}
}

func (m *RecorderMetrics) StorageUnavailable() {
	if m != nil {
		m.StorageMisses.Inc()
	}
}

func (m *RecorderMetrics) RestartRequested(reason string) {
	if m != nil {
		m.Restarts.WithLabelValues(reason).Inc()
	}
}

func (m *RecorderMetrics) PipelineState(state audiocore.StreamState) {
	if m != nil {
		m.State.Set(float64(state))
	}
}

// ObserveClipLength records the length of a finished clip.
func (m *RecorderMetrics) ObserveClipLength(seconds float64) {
	if m != nil {
		m.ClipLength.Observe(seconds)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.BlocksCaptured.Describe(ch)
	m.BlocksDropped.Describe(ch)
	m.Overruns.Describe(ch)
	m.ProtocolFaults.Describe(ch)
	ch <- m.CallsDetected.Desc()
	m.ClipsWritten.Describe(ch)
	m.ClipsFailed.Describe(ch)
	ch <- m.StorageMisses.Desc()
	m.Restarts.Describe(ch)
	ch <- m.State.Desc()
	ch <- m.ClipLength.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.BlocksCaptured.Collect(ch)
	m.BlocksDropped.Collect(ch)
	m.Overruns.Collect(ch)
	m.ProtocolFaults.Collect(ch)
	ch <- m.CallsDetected
	m.ClipsWritten.Collect(ch)
	m.ClipsFailed.Collect(ch)
	ch <- m.StorageMisses
	m.Restarts.Collect(ch)
	ch <- m.State
	m.ClipLength.Collect(ch)
}
