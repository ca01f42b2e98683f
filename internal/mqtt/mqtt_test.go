package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/audiocore/export"
	"github.com/tphakala/batrec/internal/conf"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic   string
	payload string
	retain  bool
}

// fakeClient records publishes. connectErrs are returned by successive
// Connect calls before it succeeds.
type fakeClient struct {
	mu           sync.Mutex
	connectErrs  []error
	connects     int
	connected    bool
	disconnected bool
	messages     []published
	notify       chan struct{}
}

func newFakeClient(connectErrs ...error) *fakeClient {
	return &fakeClient{connectErrs: connectErrs, notify: make(chan struct{}, 64)}
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(ctx context.Context, topic, payload string) error {
	return f.PublishWithRetain(ctx, topic, payload, false)
}

func (f *fakeClient) PublishWithRetain(_ context.Context, topic, payload string, retain bool) error {
	f.mu.Lock()
	f.messages = append(f.messages, published{topic, payload, retain})
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeClient) snapshot() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func waitMessages(t *testing.T, f *fakeClient, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.notify:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d messages, got %d", n, len(f.snapshot()))
		}
	}
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()
	cfg := ConfigFromSettings(&conf.MQTTSettings{
		Broker:   "tcp://broker:1883",
		Topic:    "field/site1",
		Username: "u",
		Retain:   true,
	})
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "field/site1", cfg.Topic)
	assert.Equal(t, "batrec", cfg.ClientID)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)

	assert.Equal(t, "field/site1/status", StatusTopic(cfg.Topic))
	assert.Equal(t, "field/site1/clip", ClipTopic(cfg.Topic))
	assert.Equal(t, "field/site1/availability", AvailabilityTopic(cfg.Topic))
}

func TestPublisherDeliversInOrder(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	p := NewPublisher(PublisherConfig{Client: fc, BaseTopic: "batrec", QueueSize: 4})

	now := time.Date(2026, 6, 21, 22, 0, 0, 0, time.UTC)
	require.True(t, p.PublishStatus(NewStatusDTO("Microphone is on.", audiocore.StateRunning, "run-1", now)))
	require.True(t, p.PublishClip(NewClipDTO(export.ClipEvent{
		Path:   "/media/pi/usb0/batrec/a.wav",
		Frames: 384000 * 6,
		Peak:   &audiocore.Peak{FrequencyHz: 42180, LevelDBFS: -31.04},
	}, 384000, now)))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitMessages(t, fc, 2)
	cancel()
	require.NoError(t, <-done)

	msgs := fc.snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "batrec/status", msgs[0].topic)
	assert.JSONEq(t, `{"status":"Microphone is on.","state":"running","runId":"run-1","time":"2026-06-21T22:00:00Z"}`, msgs[0].payload)

	assert.Equal(t, "batrec/clip", msgs[1].topic)
	var clip ClipDTO
	require.NoError(t, json.Unmarshal([]byte(msgs[1].payload), &clip))
	assert.Equal(t, "a.wav", clip.File)
	assert.Equal(t, "/media/pi/usb0/batrec", clip.Dir)
	assert.InDelta(t, 6.0, clip.LengthSeconds, 1e-9)
	require.NotNil(t, clip.PeakFreqKHz)
	assert.InDelta(t, 42.2, *clip.PeakFreqKHz, 1e-9)
	assert.InDelta(t, -31.0, *clip.PeakDBFS, 1e-9)

	fc.mu.Lock()
	assert.True(t, fc.disconnected)
	fc.mu.Unlock()
}

func TestPublisherQueueFull(t *testing.T) {
	t.Parallel()
	p := NewPublisher(PublisherConfig{Client: newFakeClient(), BaseTopic: "b", QueueSize: 1})
	s := StatusDTO{Status: "x"}
	assert.True(t, p.PublishStatus(s))
	assert.False(t, p.PublishStatus(s))
}

func TestPublisherRetriesConnect(t *testing.T) {
	t.Parallel()
	fc := newFakeClient(errors.New("refused"), errors.New("refused"))
	p := NewPublisher(PublisherConfig{Client: fc, BaseTopic: "b", RetryDelay: time.Millisecond})
	p.PublishStatus(StatusDTO{Status: "ok"})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	waitMessages(t, fc, 1)
	cancel()
	require.NoError(t, <-done)

	fc.mu.Lock()
	assert.Equal(t, 3, fc.connects)
	fc.mu.Unlock()
}

func TestPublisherCancelledBeforeConnect(t *testing.T) {
	t.Parallel()
	fc := newFakeClient(errors.New("down"))
	p := NewPublisher(PublisherConfig{Client: fc, BaseTopic: "b", RetryDelay: time.Hour})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Empty(t, fc.snapshot())
}

func TestNewClipDTOWithoutPeak(t *testing.T) {
	t.Parallel()
	dto := NewClipDTO(export.ClipEvent{Path: "x/y.wav", Frames: 100}, 0, time.Unix(0, 0).UTC())
	assert.Nil(t, dto.PeakFreqKHz)
	assert.Nil(t, dto.PeakDBFS)
	assert.Zero(t, dto.LengthSeconds)

	data, err := json.Marshal(dto)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "peakFreqKHz")
}

func TestSanitizeID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"batrec", "batrec"},
		{"field site/1", "field_site_1"},
		{"__a..b__", "a_b"},
		{"***", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeID(tt.in), tt.in)
	}
}

func TestDiscoveryPublish(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	d := NewDiscoveryPublisher(fc, &DiscoveryConfig{
		BaseTopic: "batrec",
		NodeID:    "site 1",
		Model:     "Pettersson M500",
		Version:   "1.0.0",
	})

	require.NoError(t, d.PublishDiscovery(t.Context()))
	msgs := fc.snapshot()
	require.Len(t, msgs, len(AllSensorTypes))

	byTopic := make(map[string]DiscoveryPayload)
	for _, m := range msgs {
		assert.True(t, m.retain, m.topic)
		var p DiscoveryPayload
		require.NoError(t, json.Unmarshal([]byte(m.payload), &p))
		byTopic[m.topic] = p
	}

	status, ok := byTopic["homeassistant/sensor/site_1/site_1_status/config"]
	require.True(t, ok)
	assert.Equal(t, "batrec/status", status.StateTopic)
	assert.Equal(t, "batrec/availability", status.AvailabilityTopic)
	assert.Equal(t, "batrec_site_1_status", status.UniqueID)
	assert.Equal(t, []string{"batrec_site_1"}, status.Device.Identifiers)
	assert.Equal(t, "Pettersson M500", status.Device.Model)

	state, ok := byTopic["homeassistant/binary_sensor/site_1/site_1_state/config"]
	require.True(t, ok)
	assert.Equal(t, "running", state.PayloadOn)

	freq, ok := byTopic["homeassistant/sensor/site_1/site_1_peak_frequency/config"]
	require.True(t, ok)
	assert.Equal(t, "batrec/clip", freq.StateTopic)
	assert.Equal(t, "kHz", freq.UnitOfMeasurement)
}

func TestDiscoveryRemove(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	d := NewDiscoveryPublisher(fc, &DiscoveryConfig{BaseTopic: "batrec", NodeID: "n"})
	require.NoError(t, d.RemoveDiscovery(t.Context()))

	msgs := fc.snapshot()
	require.Len(t, msgs, len(AllSensorTypes))
	for _, m := range msgs {
		assert.Empty(t, m.payload)
		assert.True(t, m.retain)
	}
}

func TestPublisherPublishesDiscoveryAfterConnect(t *testing.T) {
	t.Parallel()
	fc := newFakeClient()
	d := NewDiscoveryPublisher(fc, &DiscoveryConfig{BaseTopic: "b", NodeID: "n"})
	p := NewPublisher(PublisherConfig{Client: fc, BaseTopic: "b", Discovery: d})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	waitMessages(t, fc, len(AllSensorTypes))
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, fc.snapshot(), len(AllSensorTypes))
}
