// discovery.go: Home Assistant MQTT auto-discovery for the recorder.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/batrec/internal/logger"
)

// Sensor type constants to avoid magic strings
const (
	SensorStatus    = "status"
	SensorState     = "state"
	SensorLastClip  = "last_clip"
	SensorPeakFreq  = "peak_frequency"
	SensorPeakLevel = "peak_level"
)

// deviceIDPrefix is the standard prefix for all recorder device identifiers
const deviceIDPrefix = "batrec"

const defaultDiscoveryPrefix = "homeassistant"

// AllSensorTypes lists all sensor types for iteration (e.g., during removal)
var AllSensorTypes = []string{
	SensorStatus,
	SensorState,
	SensorLastClip,
	SensorPeakFreq,
	SensorPeakLevel,
}

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name                string           `json:"name"`
	UniqueID            string           `json:"unique_id"`
	StateTopic          string           `json:"state_topic"`
	ValueTemplate       string           `json:"value_template,omitempty"`
	UnitOfMeasurement   string           `json:"unit_of_measurement,omitempty"`
	DeviceClass         string           `json:"device_class,omitempty"`
	StateClass          string           `json:"state_class,omitempty"`
	Icon                string           `json:"icon,omitempty"`
	EntityCategory      string           `json:"entity_category,omitempty"`
	PayloadOn           string           `json:"payload_on,omitempty"`
	PayloadOff          string           `json:"payload_off,omitempty"`
	PayloadAvailable    string           `json:"payload_available,omitempty"`
	PayloadNotAvailable string           `json:"payload_not_available,omitempty"`
	AvailabilityTopic   string           `json:"availability_topic,omitempty"`
	Device              DiscoveryDevice  `json:"device"`
	Origin              *DiscoveryOrigin `json:"origin,omitempty"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryOrigin provides information about the software creating the discovery message.
type DiscoveryOrigin struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix string // Home Assistant discovery topic prefix (default: homeassistant)
	BaseTopic       string // Base MQTT topic for state messages (e.g., batrec)
	DeviceName      string // Display name of the device
	NodeID          string // Node identifier, typically the client ID
	Model           string // Capture device name
	Version         string // Software version
}

// DiscoveryPublisher handles publishing Home Assistant discovery messages.
type DiscoveryPublisher struct {
	client Client
	config DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher.
func NewDiscoveryPublisher(client Client, config *DiscoveryConfig) *DiscoveryPublisher {
	cfg := *config
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "Bat Recorder"
	}
	return &DiscoveryPublisher{client: client, config: cfg}
}

// PublishDiscovery publishes discovery configs for every recorder sensor.
// All sensors are attempted; the first error is returned.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context) error {
	log := GetLogger()
	log.Info("Publishing Home Assistant discovery messages",
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	var firstErr error
	for _, sensor := range AllSensorTypes {
		payload := p.payloadFor(sensor)
		if err := p.publishPayload(ctx, p.topicFor(sensor), &payload); err != nil {
			log.Error("Failed to publish sensor discovery",
				logger.String("sensor", sensor),
				logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("failed to publish discovery for one or more sensors: %w", firstErr)
	}
	return nil
}

// RemoveDiscovery publishes empty payloads to remove all discovery entries.
func (p *DiscoveryPublisher) RemoveDiscovery(ctx context.Context) error {
	log := GetLogger()
	log.Info("Removing Home Assistant discovery messages")
	for _, sensor := range AllSensorTypes {
		topic := p.topicFor(sensor)
		if err := p.client.PublishWithRetain(ctx, topic, "", true); err != nil {
			log.Warn("Failed to remove sensor discovery",
				logger.String("topic", topic),
				logger.Error(err))
		}
	}
	return nil
}

func (p *DiscoveryPublisher) deviceID() string {
	return fmt.Sprintf("%s_%s", deviceIDPrefix, SanitizeID(p.config.NodeID))
}

func (p *DiscoveryPublisher) payloadFor(sensor string) DiscoveryPayload {
	deviceID := p.deviceID()
	base := p.config.BaseTopic
	payload := DiscoveryPayload{
		UniqueID:          deviceID + "_" + sensor,
		AvailabilityTopic: AvailabilityTopic(base),
		Device: DiscoveryDevice{
			Identifiers:  []string{deviceID},
			Name:         p.config.DeviceName,
			Manufacturer: "batrec",
			Model:        p.config.Model,
			SWVersion:    p.config.Version,
		},
		Origin: &DiscoveryOrigin{Name: "batrec", SWVersion: p.config.Version},
	}

	switch sensor {
	case SensorStatus:
		payload.Name = "Status"
		payload.StateTopic = StatusTopic(base)
		payload.ValueTemplate = "{{ value_json.status }}"
		payload.Icon = "mdi:microphone"
	case SensorState:
		payload.Name = "Recording"
		payload.StateTopic = StatusTopic(base)
		payload.ValueTemplate = "{{ value_json.state }}"
		payload.PayloadOn = "running"
		payload.PayloadOff = "stopped"
		payload.DeviceClass = "running"
		payload.EntityCategory = "diagnostic"
	case SensorLastClip:
		payload.Name = "Last Clip"
		payload.StateTopic = ClipTopic(base)
		payload.ValueTemplate = "{{ value_json.file }}"
		payload.Icon = "mdi:file-music"
	case SensorPeakFreq:
		payload.Name = "Peak Frequency"
		payload.StateTopic = ClipTopic(base)
		payload.ValueTemplate = "{{ value_json.peakFreqKHz | default(this.state) }}"
		payload.UnitOfMeasurement = "kHz"
		payload.StateClass = "measurement"
		payload.Icon = "mdi:sine-wave"
	case SensorPeakLevel:
		payload.Name = "Peak Level"
		payload.StateTopic = ClipTopic(base)
		payload.ValueTemplate = "{{ value_json.peakDBFS | default(this.state) }}"
		payload.UnitOfMeasurement = "dBFS"
		payload.StateClass = "measurement"
		payload.Icon = "mdi:volume-high"
	}
	return payload
}

// topicFor constructs the discovery topic for a sensor. The recording state
// is a binary sensor, everything else a plain sensor.
func (p *DiscoveryPublisher) topicFor(sensor string) string {
	component := "sensor"
	if sensor == SensorState {
		component = "binary_sensor"
	}
	nodeID := SanitizeID(p.config.NodeID)
	return fmt.Sprintf("%s/%s/%s/%s_%s/config", p.config.DiscoveryPrefix, component, nodeID, nodeID, sensor)
}

// publishPayload marshals and publishes a discovery payload.
func (p *DiscoveryPublisher) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery payload: %w", err)
	}

	GetLogger().Debug("Publishing discovery message",
		logger.String("topic", topic),
		logger.Int("payload_size", len(data)))

	// Discovery messages must be retained
	return p.client.PublishWithRetain(ctx, topic, string(data), true)
}
