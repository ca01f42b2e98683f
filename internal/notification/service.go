package notification

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tphakala/batrec/internal/conf"
	"github.com/tphakala/batrec/internal/logger"
	"github.com/tphakala/batrec/internal/observability/metrics"
)

const (
	defaultQueueSize    = 16
	defaultDedupWindow  = 15 * time.Minute
	defaultSendTimeout  = 30 * time.Second
	defaultRateInterval = time.Minute
	defaultBurst        = 3
)

// Delivery statuses reported to metrics.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Providers []Provider
	Metrics   *metrics.NotificationMetrics
	QueueSize int
	// DedupWindow suppresses identical notifications for this long.
	DedupWindow time.Duration
	// Limit and Burst bound the delivery rate.
	Limit rate.Limit
	Burst int
}

// Service queues notifications and delivers them to all providers that
// accept their type.
type Service struct {
	providers []Provider
	metrics   *metrics.NotificationMetrics
	queue     chan *Notification
	seen      *cache.Cache
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewService validates providers and creates a service. Providers that fail
// validation are logged and skipped.
func NewService(cfg ServiceConfig) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	if cfg.Limit == 0 {
		cfg.Limit = rate.Every(defaultRateInterval)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	log := GetLogger()
	var providers []Provider
	for _, p := range cfg.Providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			log.Warn("notification provider disabled",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			continue
		}
		providers = append(providers, p)
	}

	return &Service{
		providers: providers,
		metrics:   cfg.Metrics,
		queue:     make(chan *Notification, cfg.QueueSize),
		seen:      cache.New(cfg.DedupWindow, 2*cfg.DedupWindow),
		limiter:   rate.NewLimiter(cfg.Limit, cfg.Burst),
		log:       log,
	}
}

// NewServiceFromSettings builds a service with one shoutrrr provider for
// all configured URLs. It returns nil when notifications are disabled.
func NewServiceFromSettings(s *conf.NotificationSettings, m *metrics.NotificationMetrics) *Service {
	if !s.Enabled {
		return nil
	}
	return NewService(ServiceConfig{
		Providers: []Provider{NewShoutrrrProvider("shoutrrr", true, s.URLs, nil, defaultSendTimeout)},
		Metrics:   m,
	})
}

// Notify queues n. Duplicates within the dedup window and notifications
// arriving on a full queue are dropped; the result reports whether n was
// queued. A nil Service accepts and drops everything.
func (s *Service) Notify(n *Notification) bool {
	if s == nil || len(s.providers) == 0 {
		return false
	}
	if err := s.seen.Add(n.dedupKey(), struct{}{}, cache.DefaultExpiration); err != nil {
		s.metrics.RecordSuppressed("duplicate")
		return false
	}
	select {
	case s.queue <- n:
		return true
	default:
		s.metrics.RecordSuppressed("queue_full")
		s.log.Warn("notification queue full", logger.String("title", n.Title))
		return false
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.queue:
			if !s.limiter.Allow() {
				s.metrics.RecordSuppressed("rate_limited")
				s.log.Debug("notification rate limited", logger.String("title", n.Title))
				continue
			}
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n *Notification) {
	for _, p := range s.providers {
		if !p.SupportsType(n.Type) {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
		start := time.Now()
		err := p.Send(sendCtx, n)
		cancel()
		if err != nil {
			s.metrics.RecordDelivery(statusError, time.Since(start).Seconds())
			s.log.Warn("notification delivery failed",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			continue
		}
		s.metrics.RecordDelivery(statusSuccess, time.Since(start).Seconds())
	}
}
