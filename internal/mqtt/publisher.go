package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/batrec/internal/logger"
)

const (
	defaultQueueSize  = 32
	defaultRetryDelay = 5 * time.Second
	maxRetryDelay     = 5 * time.Minute
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Client    Client
	BaseTopic string
	QueueSize int
	// RetryDelay is the initial delay between connection attempts.
	RetryDelay time.Duration
	// Discovery, when set, is published after every successful Connect.
	Discovery *DiscoveryPublisher
}

type message struct {
	topic   string
	payload string
}

// Publisher sends status and clip messages from a queue so that callers on
// the recording path never wait for the broker.
type Publisher struct {
	cfg   PublisherConfig
	queue chan message
	log   logger.Logger
}

// NewPublisher creates a publisher. Call Run to start delivering.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Publisher{
		cfg:   cfg,
		queue: make(chan message, cfg.QueueSize),
		log:   GetLogger(),
	}
}

// PublishStatus queues a status message. It reports false when the queue is full.
func (p *Publisher) PublishStatus(s StatusDTO) bool {
	return p.enqueue(StatusTopic(p.cfg.BaseTopic), s)
}

// PublishClip queues a clip message. It reports false when the queue is full.
func (p *Publisher) PublishClip(c ClipDTO) bool {
	return p.enqueue(ClipTopic(p.cfg.BaseTopic), c)
}

func (p *Publisher) enqueue(topic string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Error("failed to marshal payload", logger.String("topic", topic), logger.Error(err))
		return false
	}
	select {
	case p.queue <- message{topic: topic, payload: string(data)}:
		return true
	default:
		p.log.Warn("publish queue full, message dropped", logger.String("topic", topic))
		return false
	}
}

// Run connects and delivers queued messages until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.connect(ctx) {
		return nil
	}
	defer p.cfg.Client.Disconnect()

	if p.cfg.Discovery != nil {
		if err := p.cfg.Discovery.PublishDiscovery(ctx); err != nil {
			p.log.Warn("discovery publish failed", logger.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-p.queue:
			if err := p.cfg.Client.Publish(ctx, m.topic, m.payload); err != nil {
				p.log.Debug("message not delivered",
					logger.String("topic", m.topic),
					logger.Error(err))
			}
		}
	}
}

// connect retries with exponential backoff. It returns false if ctx ended first.
func (p *Publisher) connect(ctx context.Context) bool {
	delay := p.cfg.RetryDelay
	for {
		err := p.cfg.Client.Connect(ctx)
		if err == nil {
			return true
		}
		p.log.Warn("failed to connect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}
