package coordinator

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/ring"
)

// AnalyzerStats is the per-analyzer part of a Snapshot.
type AnalyzerStats struct {
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	CallCount           uint64  `json:"call_count"`
	Failures            uint64  `json:"failures"`
}

// Snapshot is a consistent copy of the performance counters.
type Snapshot struct {
	TotalFrames         uint64                   `json:"total_frames"`
	TotalProcessingMs   float64                  `json:"total_processing_time_ms"`
	AvgProcessingTimeMs float64                  `json:"avg_processing_time_ms"`
	FramesPerSecond     float64                  `json:"fps"`
	Analyzers           map[string]AnalyzerStats `json:"agent_stats"`
}

// Stats tracks per-analyzer durations over a bounded window plus pipeline
// totals. The worker writes; any goroutine may call Snapshot.
type Stats struct {
	mu          sync.Mutex
	window      int
	durations   map[string]*ring.Ring[time.Duration]
	calls       map[string]uint64
	failures    map[string]uint64
	totalFrames uint64
	totalTime   time.Duration
}

// NewStats returns empty stats for the named analyzers. window bounds the
// number of durations averaged per analyzer.
func NewStats(window int, analyzers []string) *Stats {
	if window <= 0 {
		window = DefaultConfig().StatsWindow
	}
	s := &Stats{
		window:    window,
		durations: make(map[string]*ring.Ring[time.Duration], len(analyzers)),
		calls:     make(map[string]uint64, len(analyzers)),
		failures:  make(map[string]uint64, len(analyzers)),
	}
	for _, name := range analyzers {
		s.durations[name] = ring.New[time.Duration](window)
	}
	return s
}

// RecordAnalyzer adds one call of the named analyzer.
func (s *Stats) RecordAnalyzer(name string, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.durations[name]
	if !ok {
		r = ring.New[time.Duration](s.window)
		s.durations[name] = r
	}
	r.Push(d)
	s.calls[name]++
	if failed {
		s.failures[name]++
	}
}

// RecordFrame adds one completed frame and its total processing time.
func (s *Stats) RecordFrame(d time.Duration) {
	s.mu.Lock()
	s.totalFrames++
	s.totalTime += d
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalFrames:       s.totalFrames,
		TotalProcessingMs: ms(s.totalTime),
		Analyzers:         make(map[string]AnalyzerStats, len(s.durations)),
	}
	if s.totalFrames > 0 {
		snap.AvgProcessingTimeMs = snap.TotalProcessingMs / float64(s.totalFrames)
	}
	if snap.AvgProcessingTimeMs > 0 {
		snap.FramesPerSecond = 1000.0 / snap.AvgProcessingTimeMs
	}

	for name, r := range s.durations {
		as := AnalyzerStats{CallCount: s.calls[name], Failures: s.failures[name]}
		if r.Len() > 0 {
			samples := make([]float64, 0, r.Len())
			r.Do(func(d time.Duration) { samples = append(samples, ms(d)) })
			as.AvgProcessingTimeMs = stat.Mean(samples, nil)
		}
		snap.Analyzers[name] = as
	}
	return snap
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, r := range s.durations {
		r.Reset()
		delete(s.calls, name)
		delete(s.failures, name)
	}
	s.totalFrames = 0
	s.totalTime = 0
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
