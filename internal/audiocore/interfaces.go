package audiocore

import "context"

// Source produces blocks onto out until ctx is cancelled or the device fails.
// Sends must not block: when out is full the block is dropped.
// The pipeline emits Terminate on out after Run returns.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- Item) error
}

// Processor consumes channel A and produces channel B. It must forward Flush
// and Terminate, and return after forwarding Terminate.
type Processor interface {
	Run(ctx context.Context, in <-chan Item, out chan<- Item) error
}

// Sink consumes channel B and returns after Terminate.
type Sink interface {
	Run(ctx context.Context, in <-chan Item) error
}

// Stages is one run's set of freshly constructed stages.
type Stages struct {
	Source    Source
	Processor Processor
	Sink      Sink
}

// RunInfo identifies a pipeline run to the stage factory.
type RunInfo struct {
	ID string
}

// StageFactory builds the stages for a run. It resolves the capture device,
// so a missing device surfaces as a factory error.
type StageFactory func(ctx context.Context, run RunInfo) (*Stages, error)

// Metrics receives pipeline counters. Implementations must be safe for
// concurrent use; the capture callbacks call them from device threads.
type Metrics interface {
	BlockCaptured(source string)
	BlockDropped(source string)
	Overrun(source string)
	ProtocolFault(source string)
	CallDetected()
	ClipWritten(recType string)
	ClipFailed(reason string)
	StorageUnavailable()
	RestartRequested(reason string)
	PipelineState(state StreamState)
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) BlockCaptured(string)      {}
func (NopMetrics) BlockDropped(string)       {}
func (NopMetrics) Overrun(string)            {}
func (NopMetrics) ProtocolFault(string)      {}
func (NopMetrics) CallDetected()             {}
func (NopMetrics) ClipWritten(string)        {}
func (NopMetrics) ClipFailed(string)         {}
func (NopMetrics) StorageUnavailable()       {}
func (NopMetrics) RestartRequested(string)   {}
func (NopMetrics) PipelineState(StreamState) {}
