package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
	"github.com/tphakala/batrec/internal/observability/metrics"
)

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	mu             sync.Mutex
	metrics        *metrics.MQTTMetrics
	log            logger.Logger
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics) Client {
	return &client{
		config:  cfg,
		metrics: m,
		log:     GetLogger().With(logger.String("broker", cfg.Broker)),
	}
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", c.config.Broker).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("host", host).
				Build()
		}
	}

	availability := AvailabilityTopic(c.config.Topic)
	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(c.config.MaxReconnectDelay)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetWill(availability, PayloadOffline, 1, true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		c.metrics.Reconnect()
	})

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if err := waitToken(ctx, token, c.config.ConnectTimeout); err != nil {
		c.metrics.Error()
		return fmt.Errorf("connection error: %w", err)
	}
	return nil
}

// Publish sends a message using the configured retain flag.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	return c.PublishWithRetain(ctx, topic, payload, c.config.Retain)
}

// PublishWithRetain sends a message to topic.
func (c *client) PublishWithRetain(ctx context.Context, topic, payload string, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 1, retain, payload)
	if err := waitToken(ctx, token, c.config.PublishTimeout); err != nil {
		c.metrics.Error()
		c.log.Warn("publish failed", logger.String("topic", topic), logger.Error(err))
		return err
	}
	c.metrics.Delivered(len(payload), start)
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect publishes the offline payload and closes the connection.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.IsConnected() {
		return
	}
	token := c.internalClient.Publish(AvailabilityTopic(c.config.Topic), 1, true, PayloadOffline)
	token.WaitTimeout(c.config.DisconnectTimeout)
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.metrics.SetConnected(false)
}

func (c *client) onConnect(pc paho.Client) {
	c.log.Info("connected to MQTT broker")
	c.metrics.SetConnected(true)
	// The will message is retained, so overwrite it on every (re)connect.
	pc.Publish(AvailabilityTopic(c.config.Topic), 1, true, PayloadOnline)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost", logger.Error(err))
	c.metrics.SetConnected(false)
	c.metrics.Error()
}

// waitToken waits for token completion, the timeout, or ctx.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("mqtt operation timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
