// Package m500 captures from the Pettersson M500 USB bat microphone.
//
// The M500 has no audio class interface. It is started and stopped with
// command frames on a bulk OUT endpoint and streams raw 16-bit samples on a
// bulk IN endpoint in chunks of arbitrary size, which are re-sliced into
// half-second blocks here.
package m500

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/smallnest/ringbuffer"
	"golang.org/x/time/rate"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

const (
	componentName = "m500"
	// DeviceName is reported as the source name.
	DeviceName = "Pettersson M500"

	bytesPerSample   = 2
	blockBytes       = SampleRate / audiocore.BlocksPerSecond * bytesPerSample
	defaultMaxFaults = 10
)

// Config configures a Source.
type Config struct {
	// Open defaults to OpenUSB.
	Open    Opener
	Metrics audiocore.Metrics
	Logger  logger.Logger
	// MaxFaults is the number of consecutive failed reads before Run gives up.
	MaxFaults int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Source implements audiocore.Source for the M500.
type Source struct {
	cfg Config
	log logger.Logger
}

// NewSource creates an M500 source. The device is opened by Run.
func NewSource(cfg Config) *Source {
	if cfg.Open == nil {
		cfg.Open = OpenUSB
	}
	if cfg.Metrics == nil {
		cfg.Metrics = audiocore.NopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = audiocore.GetLogger()
	}
	if cfg.MaxFaults <= 0 {
		cfg.MaxFaults = defaultMaxFaults
	}
	return &Source{cfg: cfg, log: cfg.Logger.Module(componentName)}
}

// Name returns the device name
func (s *Source) Name() string {
	return DeviceName
}

// SampleRate returns the fixed device rate.
func (s *Source) SampleRate() int {
	return SampleRate
}

// Latency is the duration of one bulk transfer.
func (s *Source) Latency() time.Duration {
	return time.Duration(readSize/bytesPerSample) * time.Second / SampleRate
}

// Run opens the microphone, starts streaming and forwards blocks to out
// until ctx is cancelled. The device is stopped, reset and released on return
// so the next run can open it again.
func (s *Source) Run(ctx context.Context, out chan<- audiocore.Item) error {
	t, err := s.cfg.Open()
	if err != nil {
		return err
	}
	defer s.shutdown(t)

	for _, op := range []Opcode{OpStart, OpLEDOn} {
		if err := t.Write(ctx, Frame(op)); err != nil {
			return errors.New(err).
				Component(componentName).
				Category(errors.CategoryHardware).
				Context("command", op.String()).
				Build()
		}
	}
	s.log.Info("capture started", logger.Int("sample_rate", SampleRate))

	rb := ringbuffer.New(2*blockBytes + readSize)
	buf := make([]byte, readSize)
	raw := make([]byte, blockBytes)
	clock := audiocore.NewBlockClock(s.Latency(), s.cfg.Now)
	faultLog := rate.NewLimiter(rate.Every(10*time.Second), 1)
	dropLog := rate.NewLimiter(rate.Every(10*time.Second), 1)
	faults := 0

	for {
		if ctx.Err() != nil {
			s.log.Info("capture stopped")
			return nil
		}

		n, err := t.Read(ctx, buf)
		if ctx.Err() != nil {
			s.log.Info("capture stopped")
			return nil
		}
		if err != nil || n == 0 {
			faults++
			s.cfg.Metrics.ProtocolFault(componentName)
			if faultLog.Allow() {
				s.log.Warn("empty or failed read from M500",
					logger.Int("consecutive", faults),
					logger.Error(err))
			}
			if faults >= s.cfg.MaxFaults {
				builder := errors.Newf("M500 returned no data for %d consecutive reads", faults)
				if err != nil {
					builder = errors.New(err)
				}
				return builder.
					Component(componentName).
					Category(errors.CategoryHardware).
					Context("consecutive_faults", faults).
					Build()
			}
			continue
		}
		faults = 0
		clock.Begin()

		if _, err := rb.Write(buf[:n]); err != nil {
			// Cannot happen while blocks are drained below after every read.
			rb.Reset()
			s.cfg.Metrics.Overrun(componentName)
			s.log.Warn("M500 staging buffer overrun, discarding", logger.Error(err))
			continue
		}

		for rb.Length() >= blockBytes {
			if _, err := rb.Read(raw); err != nil {
				break
			}
			samples := decodeSamples(raw)
			deviceTime, wallTime := clock.Stamp(len(samples), SampleRate)
			block := &audiocore.AudioBlock{
				DeviceTime: deviceTime,
				WallTime:   wallTime,
				Samples:    samples,
				SampleRate: SampleRate,
			}
			if audiocore.TrySend(out, audiocore.DataItem(block)) {
				s.cfg.Metrics.BlockCaptured(componentName)
				continue
			}
			s.cfg.Metrics.BlockDropped(componentName)
			if dropLog.Allow() {
				s.log.Warn("pipeline queue full, dropping audio block")
			}
		}
	}
}

// shutdown stops streaming and power-cycles the device. It runs detached from
// the run context, which is usually already cancelled.
func (s *Source) shutdown(t Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*writeTimeout)
	defer cancel()

	if err := t.Write(ctx, Frame(OpStop)); err != nil {
		s.log.Warn("failed to send stop command", logger.Error(err))
	}
	if err := t.Reset(); err != nil {
		s.log.Warn("failed to reset M500", logger.Error(err))
	}
	if err := t.Close(); err != nil {
		s.log.Warn("failed to release M500", logger.Error(err))
	}
}

func decodeSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:]))
	}
	return samples
}
