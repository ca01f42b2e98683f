// Package mqtt publishes recorder status, clip events and Home Assistant
// discovery configs to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	// It returns an error if the connection fails.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic using the configured retain flag.
	Publish(ctx context.Context, topic, payload string) error

	// PublishWithRetain sends a message with an explicit retain flag.
	PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // base topic
	Retain   bool   // true to retain messages at the broker
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnectDelay time.Duration
}

// Availability payloads published on AvailabilityTopic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "batrec",
		Topic:             "batrec",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnectDelay: 5 * time.Minute,
	}
}

// ConfigFromSettings fills DefaultConfig from the mqtt settings section.
func ConfigFromSettings(s *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	return cfg
}

// StatusTopic carries recorder status messages.
func StatusTopic(base string) string { return base + "/status" }

// ClipTopic carries one message per finished clip.
func ClipTopic(base string) string { return base + "/clip" }

// AvailabilityTopic carries the online/offline will message.
func AvailabilityTopic(base string) string { return base + "/availability" }

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
