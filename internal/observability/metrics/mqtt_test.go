package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(reg)
	require.NoError(t, err)

	m.SetConnected(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Connected), 0)
	assert.Positive(t, testutil.ToFloat64(m.LastConnect))

	m.Delivered(128, time.Now().Add(-5*time.Millisecond))
	m.Delivered(64, time.Now())
	m.Error()
	m.Reconnect()
	m.SetConnected(false)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Published), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Reconnects), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Connected), 0)

	count, err := testutil.GatherAndCount(reg, "batrec_mqtt_publish_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMQTTMetricsNilSafe(t *testing.T) {
	t.Parallel()
	var m *MQTTMetrics
	assert.NotPanics(t, func() {
		m.SetConnected(true)
		m.Delivered(10, time.Now())
		m.Error()
		m.Reconnect()
	})
}
