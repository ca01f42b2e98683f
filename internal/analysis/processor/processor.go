// Package processor is the middle pipeline stage. It keeps a sliding window of
// recent blocks, runs the sound detector on each one and cuts clips once a
// call has been followed by enough post-roll. It also watches for clock drift
// and a silent source, both of which end the run and ask for a restart.
package processor

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

const componentName = "processor"

// Restart reasons passed to RequestRestart.
const (
	ReasonDrift    = "clock_drift"
	ReasonWatchdog = "watchdog"
)

// Detector classifies one block.
type Detector interface {
	Detect(block *audiocore.AudioBlock) audiocore.DetectionResult
}

// Config configures a Processor.
type Config struct {
	// WindowBlocks is the clip length in blocks.
	WindowBlocks int
	// PreRollBlocks is the number of blocks kept up to and including the
	// trigger block. Between 1 and WindowBlocks-1.
	PreRollBlocks int
	// DriftThreshold is the largest tolerated wall/device clock difference.
	// Zero disables the check.
	DriftThreshold time.Duration
	// Watchdog is the longest tolerated gap between items. Zero disables it.
	Watchdog time.Duration
	Detector Detector
	// RequestRestart is called at most once per run when a timing fault ends it.
	RequestRestart func(reason string)
	Metrics        audiocore.Metrics
	Logger         logger.Logger
}

// Processor implements audiocore.Processor. A new one is built for every run.
type Processor struct {
	cfg     Config
	log     logger.Logger
	window  *Window
	tracker *clipTracker
	restart sync.Once
}

// New creates a processor with an empty window.
func New(cfg Config) *Processor {
	if cfg.Metrics == nil {
		cfg.Metrics = audiocore.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	cfg.PreRollBlocks = min(max(cfg.PreRollBlocks, 1), max(cfg.WindowBlocks-1, 1))
	return &Processor{
		cfg:     cfg,
		log:     cfg.Logger,
		window:  NewWindow(cfg.WindowBlocks),
		tracker: newClipTracker(cfg.WindowBlocks, cfg.PreRollBlocks),
	}
}

// State returns the clip boundary state. Only meaningful when Run is not active.
func (p *Processor) State() ClipState {
	return p.tracker.state
}

// Run consumes in until Terminate, cancellation or a timing fault.
func (p *Processor) Run(ctx context.Context, in <-chan audiocore.Item, out chan<- audiocore.Item) error {
	log := p.log.WithContext(ctx)

	var watchdog <-chan time.Time
	var timer *time.Timer
	if p.cfg.Watchdog > 0 {
		timer = time.NewTimer(p.cfg.Watchdog)
		defer timer.Stop()
		watchdog = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-watchdog:
			log.Warn("no audio received within watchdog interval",
				logger.Duration("watchdog", p.cfg.Watchdog))
			return p.fault(ctx, in, out, ReasonWatchdog,
				errors.Newf("no audio received for %s", p.cfg.Watchdog).
					Component(componentName).
					Category(errors.CategoryTiming).
					Context("reason", ReasonWatchdog).
					Build())

		case it, ok := <-in:
			if !ok {
				it = audiocore.TerminateItem()
			}
			if timer != nil {
				timer.Reset(p.cfg.Watchdog)
			}

			switch it.Kind {
			case audiocore.ItemTerminate:
				p.send(ctx, out, audiocore.TerminateItem())
				return nil

			case audiocore.ItemFlush:
				dropped, terminated := audiocore.DrainUntilTerminate(in)
				p.window.Clear()
				p.tracker.reset()
				if dropped > 0 {
					log.Debug("discarded blocks queued behind flush", logger.Int("blocks", dropped))
				}
				if !p.send(ctx, out, audiocore.FlushItem()) {
					return nil
				}
				if terminated {
					p.send(ctx, out, audiocore.TerminateItem())
					return nil
				}

			case audiocore.ItemData:
				if it.Block == nil {
					continue
				}
				if err := p.checkDrift(it.Block); err != nil {
					log.Warn("clock drift beyond threshold, restarting",
						logger.Time("device_time", it.Block.DeviceTime),
						logger.Time("wall_time", it.Block.WallTime),
						logger.Duration("drift", it.Block.Drift()))
					return p.fault(ctx, in, out, ReasonDrift, err)
				}
				if !p.handleBlock(ctx, log, out, it.Block) {
					return nil
				}
			}
		}
	}
}

func (p *Processor) checkDrift(b *audiocore.AudioBlock) error {
	if p.cfg.DriftThreshold <= 0 || b.Drift() <= p.cfg.DriftThreshold {
		return nil
	}
	return errors.Newf("clock drift %s exceeds %s", b.Drift(), p.cfg.DriftThreshold).
		Component(componentName).
		Category(errors.CategoryTiming).
		Context("reason", ReasonDrift).
		Context("device_time", b.DeviceTime.Format(time.RFC3339)).
		Build()
}

// handleBlock returns false when the run was cancelled while emitting.
func (p *Processor) handleBlock(ctx context.Context, log logger.Logger, out chan<- audiocore.Item, b *audiocore.AudioBlock) bool {
	p.window.Push(b)

	res := p.cfg.Detector.Detect(b)
	if res.CallPresent {
		p.cfg.Metrics.CallDetected()
	}
	wasTriggered := p.tracker.state == StateTriggered
	complete := p.tracker.step(res, p.window.Full())

	if !wasTriggered && p.tracker.state == StateTriggered {
		fields := []logger.Field{logger.Time("device_time", b.DeviceTime)}
		if res.Peak != nil {
			fields = append(fields,
				logger.Float64("peak_khz", res.Peak.FrequencyHz/1000),
				logger.Float64("peak_dbfs", res.Peak.LevelDBFS))
		}
		log.Info("sound peak detected", fields...)
	}

	if !complete {
		return true
	}
	return p.emit(ctx, out)
}

// emit sends the whole window as one clip and starts over with an empty window.
func (p *Processor) emit(ctx context.Context, out chan<- audiocore.Item) bool {
	blocks := p.window.Blocks()
	peak := p.tracker.peak
	p.window.Clear()
	p.tracker.reset()

	last := len(blocks) - 1
	for i, b := range blocks {
		it := audiocore.DataItem(b)
		if i == 0 {
			it.NewFile = true
			it.Peak = peak
		}
		if i == last {
			it.CloseFile = true
		}
		if !p.send(ctx, out, it) {
			return false
		}
	}
	return true
}

// fault discards everything queued upstream, tells the sink to drop any open
// clip and asks for a restart. The pipeline sends Terminate after Run returns.
func (p *Processor) fault(ctx context.Context, in <-chan audiocore.Item, out chan<- audiocore.Item, reason string, err error) error {
	dropped, _ := audiocore.DrainUntilTerminate(in)
	p.window.Clear()
	p.tracker.reset()
	p.send(ctx, out, audiocore.FlushItem())

	p.restart.Do(func() {
		p.cfg.Metrics.RestartRequested(reason)
		p.log.Info("requesting pipeline restart",
			logger.String("reason", reason),
			logger.Int("discarded_items", dropped))
		if p.cfg.RequestRestart != nil {
			p.cfg.RequestRestart(reason)
		}
	})
	return err
}

func (p *Processor) send(ctx context.Context, out chan<- audiocore.Item, it audiocore.Item) bool {
	select {
	case out <- it:
		return true
	case <-ctx.Done():
		return false
	}
}
