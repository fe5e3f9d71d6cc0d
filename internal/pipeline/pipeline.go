// Package pipeline is the concurrency shell around the coordinator: one
// worker pulls frames from a source, analyzes them and publishes the results
// to a bounded buffer that keeps the freshest analyses.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/coordinator"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/ring"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

var (
	ErrNotInitialized  = errors.New("analyzers not initialized")
	ErrAlreadyRunning  = errors.New("pipeline already running")
	ErrNotRunning      = errors.New("pipeline not running")
	ErrStopTimeout     = errors.New("worker did not stop in time")
	ErrInvalidCapacity = errors.New("buffer capacity must be positive")
)

// Config configures buffering and pacing.
type Config struct {
	InputQueueSize   int           `yaml:"input_queue_size"`
	OutputBufferSize int           `yaml:"output_buffer_size"`
	FrameInterval    time.Duration `yaml:"frame_interval"` // pause after each frame
	StopTimeout      time.Duration `yaml:"stop_timeout"`
	RecentDefault    int           `yaml:"recent_default"` // GetRecent n when n <= 0
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		InputQueueSize:   30,
		OutputBufferSize: 100,
		FrameInterval:    33 * time.Millisecond,
		StopTimeout:      5 * time.Second,
		RecentDefault:    10,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.InputQueueSize <= 0 || c.OutputBufferSize <= 0 {
		return fmt.Errorf("%w: input=%d output=%d", ErrInvalidCapacity, c.InputQueueSize, c.OutputBufferSize)
	}
	if c.FrameInterval < 0 {
		return fmt.Errorf("frame_interval must be non-negative, got %v", c.FrameInterval)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %v", c.StopTimeout)
	}
	if c.RecentDefault <= 0 {
		return fmt.Errorf("recent_default must be positive, got %d", c.RecentDefault)
	}
	return nil
}

// Processor is the per-frame analysis the worker drives.
type Processor interface {
	Initialized() bool
	Process(frame *types.Frame) *types.FrameAnalysis
	Stats() coordinator.Snapshot
}

// Stats is the pipeline status snapshot.
type Stats struct {
	coordinator.Snapshot
	RunID          string `json:"run_id,omitempty"`
	Running        bool   `json:"running"`
	Buffered       int    `json:"buffered"`
	BufferCapacity int    `json:"buffer_capacity"`
	Evicted        uint64 `json:"evicted"`
	InputQueued    int    `json:"input_queued"`
	InputDropped   uint64 `json:"input_dropped"`
}

// run is one Start..worker exit cycle.
type run struct {
	id       string
	stop     chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func (r *run) signal() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.cancel()
	})
}

func (r *run) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Pipeline owns the input queue and the output buffer.
type Pipeline struct {
	cfg     Config
	proc    Processor
	metrics *metrics.Metrics
	input   *source.Queue
	log     *logger.Module

	mu      sync.Mutex
	results *ring.Ring[*types.FrameAnalysis]
	evicted uint64

	runMu   sync.Mutex
	current *run
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithMetrics publishes per-frame metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New allocates the buffers. It fails when a capacity is not positive.
func New(cfg Config, proc Processor, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if proc == nil {
		return nil, errors.New("pipeline requires a processor")
	}
	p := &Pipeline{
		cfg:     cfg,
		proc:    proc,
		input:   source.NewQueue(cfg.InputQueueSize),
		results: ring.New[*types.FrameAnalysis](cfg.OutputBufferSize),
		log:     logger.For("Pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the worker over src. A nil src consumes the pipeline's own
// input queue (see Submit). Start fails if the analyzers are not initialized
// or a worker is already running.
func (p *Pipeline) Start(src source.Source) error {
	if !p.proc.Initialized() {
		return ErrNotInitialized
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.current != nil && !p.current.exited() {
		return ErrAlreadyRunning
	}
	if src == nil {
		src = p.input
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:     uuid.NewString(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	p.current = r
	if p.metrics != nil {
		p.metrics.SetRunning(true)
	}

	p.log.Info("Starting run %s (buffer=%d, interval=%v)", r.id, p.cfg.OutputBufferSize, p.cfg.FrameInterval)
	go p.worker(ctx, r, src)
	return nil
}

// worker is the only goroutine that calls Process.
func (p *Pipeline) worker(ctx context.Context, r *run, src source.Source) {
	defer close(r.done)
	defer r.cancel()
	defer func() {
		if p.metrics != nil {
			p.metrics.SetRunning(false)
		}
	}()
	defer func() {
		if err := src.Close(); err != nil {
			p.log.Warn("Source close error: %v", err)
		}
	}()

	frames := 0
	for {
		select {
		case <-r.stop:
			p.log.Info("Run %s stopped after %d frames", r.id, frames)
			return
		default:
		}

		frame, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				p.log.Info("Run %s: source exhausted after %d frames", r.id, frames)
			case ctx.Err() != nil:
				p.log.Info("Run %s stopped after %d frames", r.id, frames)
			default:
				p.log.Warn("Run %s: acquisition failed after %d frames: %v", r.id, frames, err)
			}
			return
		}

		p.publish(p.proc.Process(frame))
		frames++

		if p.cfg.FrameInterval > 0 {
			select {
			case <-r.stop:
			case <-time.After(p.cfg.FrameInterval):
			}
		}
	}
}

// publish appends a to the output buffer, evicting the oldest unread result
// when full.
func (p *Pipeline) publish(a *types.FrameAnalysis) {
	p.mu.Lock()
	_, evicted := p.results.Push(a)
	if evicted {
		p.evicted++
	}
	used := p.results.Len()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ObserveAnalysis(a)
		if evicted {
			p.metrics.ResultsEvicted.Add(1)
		}
		p.metrics.UpdateBufferUsage(used, p.cfg.OutputBufferSize, p.input.Len(), p.input.Cap())
	}
}

// Stop signals the worker and waits up to timeout (StopTimeout when <= 0)
// for it to finish the frame in flight. A worker that does not exit in time
// is logged and reported as ErrStopTimeout.
func (p *Pipeline) Stop(timeout time.Duration) error {
	p.runMu.Lock()
	r := p.current
	p.runMu.Unlock()

	if r == nil {
		return ErrNotRunning
	}
	if timeout <= 0 {
		timeout = p.cfg.StopTimeout
	}

	r.signal()
	select {
	case <-r.done:
	case <-time.After(timeout):
		p.log.Error("Run %s: worker did not stop within %v", r.id, timeout)
		return fmt.Errorf("%w (%v)", ErrStopTimeout, timeout)
	}

	p.runMu.Lock()
	if p.current == r {
		p.current = nil
	}
	p.runMu.Unlock()
	return nil
}

// Wait blocks until the current worker exits or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.runMu.Lock()
	r := p.current
	p.runMu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a worker is active.
func (p *Pipeline) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.current != nil && !p.current.exited()
}

// RunID returns the id of the current or last run.
func (p *Pipeline) RunID() string {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.id
}

// Submit pushes a frame into the input queue without blocking. It reports
// false when the frame was dropped because the queue is full. The queue is
// closed once a worker consuming it exits.
func (p *Pipeline) Submit(frame *types.Frame) (bool, error) {
	ok, err := p.input.Push(frame)
	if err == nil && !ok && p.metrics != nil {
		p.metrics.InputDropped.Add(1)
	}
	return ok, err
}

// CloseInput ends the input stream; the worker drains it and exits.
func (p *Pipeline) CloseInput() error {
	return p.input.Close()
}

// GetRecent returns up to n analyses, most recent first, without removing
// them. n <= 0 means RecentDefault.
func (p *Pipeline) GetRecent(n int) []*types.FrameAnalysis {
	if n <= 0 {
		n = p.cfg.RecentDefault
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results.Newest(n)
}

// Poll removes and returns the oldest buffered analysis.
func (p *Pipeline) Poll() (*types.FrameAnalysis, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results.PopFront()
}

// Len returns the number of buffered analyses.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results.Len()
}

// Stats returns the coordinator snapshot plus buffer state.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		Snapshot:       p.proc.Stats(),
		RunID:          p.RunID(),
		Running:        p.Running(),
		BufferCapacity: p.cfg.OutputBufferSize,
		InputQueued:    p.input.Len(),
		InputDropped:   p.input.Dropped(),
	}
	p.mu.Lock()
	st.Buffered = p.results.Len()
	st.Evicted = p.evicted
	p.mu.Unlock()
	return st
}
