// Package malgo captures from a generic sound card through miniaudio.
package malgo

import (
	"context"
	"time"

	"github.com/gen2brain/malgo"
	"golang.org/x/time/rate"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

const (
	componentName = "malgo"
	// defaultPeriodFrames keeps callbacks short at ultrasonic rates.
	defaultPeriodFrames = 4096
)

// Config configures a CardSource.
type Config struct {
	Device       DeviceInfo
	SampleRate   int
	PeriodFrames uint32
	Metrics      audiocore.Metrics
	Logger       logger.Logger
}

// CardSource implements audiocore.Source for a miniaudio capture device.
type CardSource struct {
	cfg Config
	log logger.Logger
}

// NewCardSource creates a source for an already resolved device.
func NewCardSource(cfg Config) *CardSource {
	if cfg.PeriodFrames == 0 {
		cfg.PeriodFrames = defaultPeriodFrames
	}
	if cfg.Metrics == nil {
		cfg.Metrics = audiocore.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = audiocore.GetLogger()
	}
	return &CardSource{
		cfg: cfg,
		log: cfg.Logger.Module("card").With(logger.String("device", cfg.Device.Name)),
	}
}

// Name returns the device name
func (s *CardSource) Name() string {
	return s.cfg.Device.Name
}

// Latency is the capture delay of one period at the configured rate.
func (s *CardSource) Latency() time.Duration {
	return time.Duration(s.cfg.PeriodFrames) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Run opens the device and streams half-second blocks to out until ctx is
// cancelled or the device stops on its own.
func (s *CardSource) Run(ctx context.Context, out chan<- audiocore.Item) error {
	mctx, err := initContext()
	if err != nil {
		return err
	}
	defer freeContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryHardware).
			Context("operation", "enumerate_devices").
			Build()
	}
	selected, err := SelectDevice(describe(infos), []string{s.cfg.Device.ID, s.cfg.Device.Name})
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = s.cfg.PeriodFrames
	deviceConfig.Alsa.NoMMap = 1

	acc := newBlockAccumulator(s.cfg.SampleRate / audiocore.BlocksPerSecond)
	clock := audiocore.NewBlockClock(s.Latency(), nil)
	dropLog := rate.NewLimiter(rate.Every(10*time.Second), 1)
	stopped := make(chan struct{}, 1)
	name := s.Name()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			clock.Begin()
			for _, samples := range acc.push(input) {
				deviceTime, wallTime := clock.Stamp(len(samples), s.cfg.SampleRate)
				block := &audiocore.AudioBlock{
					DeviceTime: deviceTime,
					WallTime:   wallTime,
					Samples:    samples,
					SampleRate: s.cfg.SampleRate,
				}
				if audiocore.TrySend(out, audiocore.DataItem(block)) {
					s.cfg.Metrics.BlockCaptured(name)
					continue
				}
				s.cfg.Metrics.BlockDropped(name)
				if dropLog.Allow() {
					s.log.Warn("pipeline queue full, dropping audio block")
				}
			}
		},
		Stop: func() {
			select {
			case stopped <- struct{}{}:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryHardware).
			Context("operation", "init_device").
			Context("device", name).
			Build()
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryHardware).
			Context("operation", "start_device").
			Context("device", name).
			Build()
	}

	s.log.Info("capture started",
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Duration("latency", s.Latency()))

	select {
	case <-ctx.Done():
		_ = device.Stop()
		s.log.Info("capture stopped")
		return nil
	case <-stopped:
		s.cfg.Metrics.Overrun(name)
		return errors.Newf("capture device stopped unexpectedly").
			Component(componentName).
			Category(errors.CategoryHardware).
			Context("device", name).
			Build()
	}
}
