// Package coordinator runs the analyzers over one frame in dependency order,
// merges their outputs into a FrameAnalysis and tracks their performance.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/anomaly"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/collab"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/extractor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/motion"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// MotionAnalyzer reduces a motion mask to motion data.
type MotionAnalyzer interface {
	Initialize() error
	Analyze(mask *types.Mask) (types.MotionResult, error)
}

// AnomalyScorer scores a frame against its baseline.
type AnomalyScorer interface {
	Initialize() error
	Score(in anomaly.Input) types.AnomalyResult
}

// ConsensusAnalyzer cross-validates detections and computes consensus.
type ConsensusAnalyzer interface {
	Initialize() error
	Analyze(in collab.Input) types.ConsensusResult
}

// Analyzers are the capability handles the coordinator drives. They are
// passed in so several coordinators may share or isolate backends.
type Analyzers struct {
	Extractor extractor.Extractor
	Motion    MotionAnalyzer
	Anomaly   AnomalyScorer
	Consensus ConsensusAnalyzer
}

// Config configures the coordinator.
type Config struct {
	// StatsWindow is the number of durations averaged per analyzer.
	StatsWindow int `yaml:"stats_window"`
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{StatsWindow: 100}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.StatsWindow <= 0 {
		return fmt.Errorf("stats_window must be positive, got %d", c.StatsWindow)
	}
	return nil
}

// InitReport is the outcome of Initialize for every analyzer.
type InitReport struct {
	Errors    map[string]error // nil entry means success
	Succeeded int
	Total     int
}

// OK reports whether every analyzer initialized.
func (r InitReport) OK() bool {
	return r.Total > 0 && r.Succeeded == r.Total
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator is driven by a single worker: Process must not be called
// concurrently. Stats and FrameCount are safe from any goroutine.
type Coordinator struct {
	analyzers Analyzers
	stats     *Stats
	now       func() time.Time
	log       *logger.Module

	frameID atomic.Uint64

	initMu      sync.Mutex
	initialized bool
	report      InitReport
}

// New returns a coordinator over a. Call Initialize before processing.
func New(cfg Config, a Analyzers, opts ...Option) *Coordinator {
	c := &Coordinator{
		analyzers: a,
		stats:     NewStats(cfg.StatsWindow, types.Stages),
		now:       time.Now,
		log:       logger.For("Coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefault builds the stock analyzer set from per-component configs.
func NewDefault(cfg Config, ec extractor.Config, mc motion.Config, ac anomaly.Config, cc collab.Config, opts ...Option) *Coordinator {
	c := New(cfg, Analyzers{
		Extractor: extractor.New(ec),
		Motion:    motion.NewAnalyzer(mc),
		Consensus: collab.NewAnalyzer(cc),
	}, opts...)
	c.analyzers.Anomaly = anomaly.NewScorer(ac, c.now)
	return c
}

// Initialize initializes every analyzer and reports each outcome. Once all
// analyzers have succeeded, further calls return the same report.
func (c *Coordinator) Initialize() (InitReport, error) {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return c.report, nil
	}

	report := InitReport{Errors: make(map[string]error, len(types.Stages)), Total: len(types.Stages)}
	var errs []error
	for _, stage := range types.Stages {
		err := c.initStage(stage)
		report.Errors[stage] = err
		if err != nil {
			c.log.Error("Failed to initialize %s: %v", stage, err)
			errs = append(errs, fmt.Errorf("%s: %w", stage, err))
			continue
		}
		report.Succeeded++
	}

	c.log.Info("Initialized %d/%d analyzers", report.Succeeded, report.Total)
	if len(errs) > 0 {
		return report, fmt.Errorf("analyzer initialization failed: %w", errors.Join(errs...))
	}
	c.initialized = true
	c.report = report
	return report, nil
}

func (c *Coordinator) initStage(stage string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	var init interface{ Initialize() error }
	switch stage {
	case types.StageExtraction:
		if c.analyzers.Extractor != nil {
			init = c.analyzers.Extractor
		}
	case types.StageMotion:
		if c.analyzers.Motion != nil {
			init = c.analyzers.Motion
		}
	case types.StageAnomaly:
		if c.analyzers.Anomaly != nil {
			init = c.analyzers.Anomaly
		}
	case types.StageConsensus:
		if c.analyzers.Consensus != nil {
			init = c.analyzers.Consensus
		}
	}
	if init == nil {
		return errors.New("analyzer not configured")
	}
	return init.Initialize()
}

// Initialized reports whether Initialize has succeeded.
func (c *Coordinator) Initialized() bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initialized
}

// Process analyzes one frame. It always returns an analysis and always
// consumes the next frame id; a failing stage contributes an empty result
// and is recorded in Results.Errors.
func (c *Coordinator) Process(frame *types.Frame) *types.FrameAnalysis {
	id := c.frameID.Add(1)
	start := c.now()

	analysis := &types.FrameAnalysis{
		FrameID:    id,
		Timestamp:  start,
		Detections: []types.Detection{},
		Alerts:     []types.Alert{},
	}
	results := &analysis.Results

	// Feature extraction
	ext := extractor.Empty(frame)
	d, err := c.run(id, types.StageExtraction, func() error {
		ext = c.analyzers.Extractor.Extract(frame, id)
		if !ext.Mask.Valid() {
			return errors.New("extractor returned an invalid mask")
		}
		if ext.Detections == nil {
			ext.Detections = []types.Detection{}
		}
		return nil
	})
	if err != nil {
		ext = extractor.Empty(frame)
		c.fail(results, types.StageExtraction, err)
	} else {
		results.Extraction = &types.ExtractionResult{
			Detections:          ext.Detections,
			ConfidenceThreshold: c.analyzers.Extractor.ConfidenceThreshold(),
			ProcessingTime:      d,
		}
	}

	// Motion analysis
	var motionData *types.MotionResult
	d, err = c.run(id, types.StageMotion, func() error {
		mr, err := c.analyzers.Motion.Analyze(ext.Mask)
		if err != nil {
			return err
		}
		motionData = &mr
		return nil
	})
	if err != nil {
		motionData = nil
		c.fail(results, types.StageMotion, err)
	} else {
		motionData.ProcessingTime = d
		results.Motion = motionData
	}

	// Anomaly detection, with detections and motion as context
	var scored types.AnomalyResult
	d, err = c.run(id, types.StageAnomaly, func() error {
		scored = c.analyzers.Anomaly.Score(anomaly.Input{
			Frame:      frame,
			Detections: ext.Detections,
			Motion:     motionData,
			FrameID:    id,
		})
		return nil
	})
	if err != nil {
		scored = types.AnomalyResult{}
		c.fail(results, types.StageAnomaly, err)
	} else {
		scored.ProcessingTime = d
		results.Anomaly = &scored
		analysis.Alerts = append(analysis.Alerts, scored.Alerts...)
	}

	// Collaborative analysis
	in := collab.Input{Detections: ext.Detections, AnomalyScore: scored.Score}
	if motionData != nil {
		in.Regions = motionData.Regions
		in.HasSignificantMotion = motionData.HasSignificantMotion
	}
	var consensus types.ConsensusResult
	d, err = c.run(id, types.StageConsensus, func() error {
		consensus = c.analyzers.Consensus.Analyze(in)
		return nil
	})
	if err != nil {
		analysis.Detections = append(analysis.Detections, ext.Detections...)
		c.fail(results, types.StageConsensus, err)
	} else {
		consensus.ProcessingTime = d
		results.Consensus = &consensus
		analysis.Detections = append(analysis.Detections, consensus.CrossValidated...)
	}

	analysis.ProcessingTime = c.now().Sub(start)
	c.stats.RecordFrame(analysis.ProcessingTime)

	c.log.Debug("Frame %d: %d detections, %d alerts, %v",
		id, len(analysis.Detections), len(analysis.Alerts), analysis.ProcessingTime)
	return analysis
}

// run times fn as the named stage and converts a panic into an error.
func (c *Coordinator) run(id uint64, stage string, fn func() error) (d time.Duration, err error) {
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		d = c.now().Sub(start)
		c.stats.RecordAnalyzer(stage, d, err != nil)
		if err != nil {
			c.log.Warn("Frame %d: %s failed: %v", id, stage, err)
		}
	}()
	return 0, fn()
}

func (c *Coordinator) fail(results *types.AnalyzerResults, stage string, err error) {
	if results.Errors == nil {
		results.Errors = make(map[string]string)
	}
	results.Errors[stage] = err.Error()
}

// Stats returns a snapshot of the performance counters.
func (c *Coordinator) Stats() Snapshot {
	return c.stats.Snapshot()
}

// FrameCount returns the id of the last frame processed.
func (c *Coordinator) FrameCount() uint64 {
	return c.frameID.Load()
}

// Reset clears frame numbering and performance counters. Analyzer state is
// untouched. It must not run concurrently with Process.
func (c *Coordinator) Reset() {
	c.frameID.Store(0)
	c.stats.Reset()
}
