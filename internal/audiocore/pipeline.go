package audiocore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/batrec/internal/errors"
	"github.com/tphakala/batrec/internal/logger"
)

// DefaultQueueSize is the capacity of each pipeline channel in items.
const DefaultQueueSize = 1200

// StateObserver is called after every state change, outside the pipeline lock.
// err is the first stage error of a finished run.
type StateObserver func(runID string, state StreamState, err error)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Factory   StageFactory
	QueueSize int
	Observer  StateObserver
	Logger    logger.Logger
}

// Pipeline runs one source, processor and sink per Start. It is safe for concurrent use.
type Pipeline struct {
	factory   StageFactory
	queueSize int
	observer  StateObserver
	log       logger.Logger

	mu            sync.Mutex
	state         StreamState
	runID         string
	runCtx        context.Context
	cancelAll     context.CancelFunc
	cancelSource  context.CancelFunc
	chA           chan Item
	done          chan struct{}
	err           error
	stopPending   bool
	stopImmediate bool
}

// NewPipeline creates an idle pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	return &Pipeline{
		factory:   cfg.Factory,
		queueSize: cfg.QueueSize,
		observer:  cfg.Observer,
		log:       cfg.Logger.Module("pipeline"),
		state:     StateIdle,
	}
}

// Start builds fresh stages and channels and launches the three stage goroutines.
// It fails with ErrAlreadyRunning while a previous run has not finished.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state.Active() {
		p.mu.Unlock()
		return errors.New(ErrAlreadyRunning).
			Component(componentAudioCore).
			Category(errors.CategoryState).
			Context("state", p.state.String()).
			Build()
	}
	runID := uuid.NewString()
	p.state = StateStarting
	p.runID = runID
	p.err = nil
	p.stopPending = false
	p.stopImmediate = false
	p.mu.Unlock()
	p.notify(runID, StateStarting, nil)

	stages, err := p.factory(ctx, RunInfo{ID: runID})
	if err != nil {
		p.mu.Lock()
		p.state = StateStopped
		p.err = err
		p.mu.Unlock()
		p.notify(runID, StateStopped, err)
		return err
	}

	runCtx, cancelAll := context.WithCancel(logger.WithTraceID(ctx, runID))
	srcCtx, cancelSource := context.WithCancel(runCtx)
	chA := make(chan Item, p.queueSize)
	chB := make(chan Item, p.queueSize)
	procDone := make(chan struct{})
	sinkDone := make(chan struct{})
	done := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		err := stages.Source.Run(srcCtx, chA)
		// The source has released the device; tell downstream to finish.
		select {
		case chA <- TerminateItem():
		case <-runCtx.Done():
		case <-procDone:
		}
		return err
	})
	g.Go(func() error {
		defer close(procDone)
		defer cancelSource()
		err := stages.Processor.Run(runCtx, chA, chB)
		// Guarantees the sink finishes even if the processor bailed out early.
		// A sink that already saw Terminate leaves this item unread.
		select {
		case chB <- TerminateItem():
		case <-runCtx.Done():
		case <-sinkDone:
		}
		return err
	})
	g.Go(func() error {
		defer close(sinkDone)
		return stages.Sink.Run(runCtx, chB)
	})

	p.mu.Lock()
	p.state = StateRunning
	p.runCtx = runCtx
	p.cancelAll = cancelAll
	p.cancelSource = cancelSource
	p.chA = chA
	p.done = done
	stopPending, stopImmediate := p.stopPending, p.stopImmediate
	p.stopPending = false
	p.mu.Unlock()

	log := p.log.WithContext(runCtx)
	log.Info("pipeline started",
		logger.String("source", stages.Source.Name()),
		logger.Int("queue_size", p.queueSize))
	p.notify(runID, StateRunning, nil)
	if stopPending {
		log.Debug("applying stop requested during start")
		p.Stop(stopImmediate)
	}

	go func() {
		started := time.Now()
		err := g.Wait()
		cancelAll()

		final := StateStopped
		if errors.IsCategory(err, errors.CategoryTiming) {
			final = StateFaulted
		}

		p.mu.Lock()
		p.state = final
		p.err = err
		p.chA = nil
		p.mu.Unlock()
		close(done)

		if err != nil {
			log.Warn("pipeline ended with error",
				logger.String("state", final.String()),
				logger.Duration("uptime", time.Since(started)),
				logger.Error(err))
		} else {
			log.Info("pipeline stopped", logger.Duration("uptime", time.Since(started)))
		}
		p.notify(runID, final, err)
	}()

	return nil
}

// Stop ends the current run. With immediate all stages are cancelled; otherwise
// only the source is cancelled and the rest drain through Terminate.
// Stop does not wait; call Wait. It is idempotent and safe in any state.
// A Stop while the factory is still building stages is applied as soon as
// the run is up.
func (p *Pipeline) Stop(immediate bool) {
	p.mu.Lock()
	if p.state == StateStarting {
		p.stopPending = true
		p.stopImmediate = p.stopImmediate || immediate
		p.mu.Unlock()
		return
	}
	if p.state != StateRunning && p.state != StateDraining {
		p.mu.Unlock()
		return
	}
	if immediate {
		p.cancelAll()
	} else {
		p.cancelSource()
	}
	changed := p.state != StateDraining
	p.state = StateDraining
	runID := p.runID
	p.mu.Unlock()

	if changed {
		p.notify(runID, StateDraining, nil)
	}
}

// Wait blocks until the current run's goroutines have returned and reports the
// first stage error. It returns immediately if the pipeline never started.
func (p *Pipeline) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Flush asks every stage to discard queued data and any partial clip.
// If channel A is full, queued data is discarded to make room; a Terminate
// found while doing so is re-queued after the Flush.
func (p *Pipeline) Flush() {
	p.mu.Lock()
	ch := p.chA
	runCtx := p.runCtx
	running := p.state == StateRunning
	p.mu.Unlock()
	if !running || ch == nil {
		return
	}

	terminate := false
	for {
		if TrySend(ch, FlushItem()) {
			break
		}
		select {
		case it := <-ch:
			if it.Kind == ItemTerminate {
				terminate = true
			}
		case <-runCtx.Done():
			return
		default:
		}
	}
	if terminate {
		select {
		case ch <- TerminateItem():
		case <-runCtx.Done():
		}
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() StreamState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RunID returns the identifier of the current or last run.
func (p *Pipeline) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runID
}

func (p *Pipeline) notify(runID string, state StreamState, err error) {
	if p.observer != nil {
		p.observer(runID, state, err)
	}
}
