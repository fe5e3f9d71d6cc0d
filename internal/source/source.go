// Package source provides the frame acquisition side of the pipeline.
//
// A Source yields frames until it returns io.EOF (or any other error), which
// ends the worker loop cleanly.
package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Source yields frames in order.
type Source interface {
	// Next blocks until a frame is available, the source is exhausted
	// (io.EOF) or ctx is done.
	Next(ctx context.Context) (*types.Frame, error)
	// Close releases acquisition resources. It is safe to call twice.
	Close() error
}

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded push source. Producers never block: when the queue is
// full the incoming frame is dropped and counted.
type Queue struct {
	frames  chan *types.Frame
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewQueue returns a queue holding at most capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		frames: make(chan *types.Frame, capacity),
		done:   make(chan struct{}),
	}
}

// Push enqueues f without blocking. It reports false when f was dropped
// because the queue is full.
func (q *Queue) Push(f *types.Frame) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false, ErrQueueClosed
	}
	select {
	case q.frames <- f:
		return true, nil
	default:
		q.dropped.Add(1)
		return false, nil
	}
}

// Next returns the oldest queued frame. After Close, remaining frames are
// drained before io.EOF is returned.
func (q *Queue) Next(ctx context.Context) (*types.Frame, error) {
	select {
	case f := <-q.frames:
		return f, nil
	default:
	}

	select {
	case f := <-q.frames:
		return f, nil
	case <-q.done:
		select {
		case f := <-q.frames:
			return f, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks end of stream.
func (q *Queue) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
	return nil
}

// Len returns the number of queued frames.
func (q *Queue) Len() int { return len(q.frames) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.frames) }

// Dropped returns the number of frames rejected because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Slice is a finite in-memory source, mostly for tests.
type Slice struct {
	frames []*types.Frame
	pos    int
	closed atomic.Bool
}

// FromFrames returns a source yielding frames then io.EOF.
func FromFrames(frames ...*types.Frame) *Slice {
	return &Slice{frames: frames}
}

// Next returns the next frame.
func (s *Slice) Next(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() || s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Close stops the source.
func (s *Slice) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Slice) Closed() bool { return s.closed.Load() }
