package coordinator

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/anomaly"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/collab"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/extractor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/motion"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// stepClock advances by step on every call.
type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func frame(v uint8) *types.Frame {
	f := types.NewFrame(64, 48, time.Unix(1700000000, 0))
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

// fixedExtractor returns the same detections and an empty mask every frame.
type fixedExtractor struct {
	dets    []types.Detection
	initErr error
}

func (e *fixedExtractor) Initialize() error            { return e.initErr }
func (e *fixedExtractor) ConfidenceThreshold() float64 { return 0.5 }
func (e *fixedExtractor) Extract(f *types.Frame, _ uint64) extractor.Extraction {
	out := extractor.Empty(f)
	out.Detections = append(out.Detections, e.dets...)
	return out
}

// flakyMotion fails on the listed frame calls (1-based) and panics on others.
type flakyMotion struct {
	inner  *motion.Analyzer
	calls  int
	errOn  map[int]bool
	panics map[int]bool
}

func (m *flakyMotion) Initialize() error { return nil }
func (m *flakyMotion) Analyze(mask *types.Mask) (types.MotionResult, error) {
	m.calls++
	if m.errOn[m.calls] {
		return types.MotionResult{}, errors.New("sensor glitch")
	}
	if m.panics[m.calls] {
		panic("motion backend crashed")
	}
	return m.inner.Analyze(mask)
}

type panickingScorer struct{}

func (panickingScorer) Initialize() error                     { return nil }
func (panickingScorer) Score(anomaly.Input) types.AnomalyResult { panic("boom") }

func stock(t *testing.T, opts ...Option) *Coordinator {
	t.Helper()
	c := NewDefault(DefaultConfig(), extractor.DefaultConfig(), motion.DefaultConfig(),
		anomaly.DefaultConfig(), collab.DefaultConfig(), opts...)
	report, err := c.Initialize()
	require.NoError(t, err)
	require.True(t, report.OK())
	return c
}

func TestFrameIDsIncreaseByOne(t *testing.T) {
	c := stock(t)
	for want := uint64(1); want <= 20; want++ {
		a := c.Process(frame(uint8(want)))
		require.Equal(t, want, a.FrameID)
	}
	assert.Equal(t, uint64(20), c.FrameCount())
}

func TestFrameIDsIncreaseDespiteFailures(t *testing.T) {
	m := &flakyMotion{
		inner:  motion.NewAnalyzer(motion.DefaultConfig()),
		errOn:  map[int]bool{2: true},
		panics: map[int]bool{4: true},
	}
	c := New(DefaultConfig(), Analyzers{
		Extractor: &fixedExtractor{},
		Motion:    m,
		Anomaly:   anomaly.NewScorer(anomaly.DefaultConfig(), nil),
		Consensus: collab.NewAnalyzer(collab.DefaultConfig()),
	})
	_, err := c.Initialize()
	require.NoError(t, err)

	for want := uint64(1); want <= 5; want++ {
		a := c.Process(frame(10))
		require.Equal(t, want, a.FrameID)

		switch want {
		case 2:
			assert.Equal(t, "sensor glitch", a.Results.Errors[types.StageMotion])
			assert.Nil(t, a.Results.Motion)
			assert.NotNil(t, a.Results.Anomaly, "later stages still run")
			assert.NotNil(t, a.Results.Consensus)
		case 4:
			assert.Contains(t, a.Results.Errors[types.StageMotion], "panic")
			assert.True(t, a.Failed())
		default:
			assert.False(t, a.Failed())
			assert.NotNil(t, a.Results.Motion)
		}
	}

	snap := c.Stats()
	assert.Equal(t, uint64(5), snap.TotalFrames)
	assert.Equal(t, uint64(5), snap.Analyzers[types.StageMotion].CallCount)
	assert.Equal(t, uint64(2), snap.Analyzers[types.StageMotion].Failures)
}

func TestAnomalyFailureContributesEmptyResult(t *testing.T) {
	c := New(DefaultConfig(), Analyzers{
		Extractor: &fixedExtractor{dets: []types.Detection{{ClassName: "cat", Confidence: 0.9}}},
		Motion:    motion.NewAnalyzer(motion.DefaultConfig()),
		Anomaly:   panickingScorer{},
		Consensus: collab.NewAnalyzer(collab.DefaultConfig()),
	})
	_, err := c.Initialize()
	require.NoError(t, err)

	a := c.Process(frame(0))
	assert.Nil(t, a.Results.Anomaly)
	assert.Empty(t, a.Alerts)
	require.NotNil(t, a.Results.Consensus)
	// Score 0 counts as normal: detections 0.3 + normal 0.4.
	assert.InDelta(t, 0.7, a.Results.Consensus.Confidence, 1e-12)
	assert.Len(t, a.Detections, 1)
}

func TestIdenticalFramesScenario(t *testing.T) {
	c := New(DefaultConfig(), Analyzers{
		Extractor: &fixedExtractor{},
		Motion:    motion.NewAnalyzer(motion.DefaultConfig()),
		Anomaly:   anomaly.NewScorer(anomaly.DefaultConfig(), nil),
		Consensus: collab.NewAnalyzer(collab.DefaultConfig()),
	})
	_, err := c.Initialize()
	require.NoError(t, err)

	for i := 1; i <= 15; i++ {
		a := c.Process(frame(90))
		require.NotNil(t, a.Results.Anomaly)
		assert.Equal(t, 0.0, a.Results.Anomaly.Score, "frame %d", i)
		assert.Empty(t, a.Alerts, "frame %d", i)
		assert.Equal(t, min(i, 100), a.Results.Anomaly.BaselineSize)
	}
}

func TestDetectionsAreCrossValidatedCopies(t *testing.T) {
	original := types.Detection{ClassName: "dog", Confidence: 0.95, BBox: types.BoundingBox{X: 0, Y: 0, W: 20, H: 20}}

	// Motion covering the detection box exactly.
	motionMask := func(*types.Mask) (types.MotionResult, error) {
		return types.MotionResult{
			Intensity:            40,
			HasSignificantMotion: true,
			NumMovingObjects:     1,
			Regions:              []types.MotionRegion{{BBox: original.BBox, Area: 400}},
		}, nil
	}

	c := New(DefaultConfig(), Analyzers{
		Extractor: &fixedExtractor{dets: []types.Detection{original}},
		Motion:    motionFunc(motionMask),
		Anomaly:   anomaly.NewScorer(anomaly.DefaultConfig(), nil),
		Consensus: collab.NewAnalyzer(collab.DefaultConfig()),
	})
	_, err := c.Initialize()
	require.NoError(t, err)

	a := c.Process(frame(0))
	require.Len(t, a.Detections, 1)
	assert.Equal(t, 1.0, a.Detections[0].Confidence)
	assert.Equal(t, 0.95, a.Results.Extraction.Detections[0].Confidence, "raw result keeps the original")
	assert.Equal(t, 1, a.Results.Consensus.Correlated)
	assert.InDelta(t, 1.0, a.Results.Consensus.Confidence, 1e-12)
}

type motionFunc func(*types.Mask) (types.MotionResult, error)

func (f motionFunc) Initialize() error                                  { return nil }
func (f motionFunc) Analyze(m *types.Mask) (types.MotionResult, error) { return f(m) }

func TestInitializeReportsPerAnalyzer(t *testing.T) {
	ext := &fixedExtractor{initErr: errors.New("model missing")}
	c := New(DefaultConfig(), Analyzers{
		Extractor: ext,
		Motion:    motion.NewAnalyzer(motion.DefaultConfig()),
		Anomaly:   anomaly.NewScorer(anomaly.DefaultConfig(), nil),
	})

	report, err := c.Initialize()
	require.Error(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 4, report.Total)
	assert.EqualError(t, report.Errors[types.StageExtraction], "model missing")
	assert.Error(t, report.Errors[types.StageConsensus], "missing analyzer")
	assert.NoError(t, report.Errors[types.StageMotion])
	assert.False(t, c.Initialized())

	ext.initErr = nil
	c.analyzers.Consensus = collab.NewAnalyzer(collab.DefaultConfig())
	report, err = c.Initialize()
	require.NoError(t, err)
	assert.True(t, report.OK())

	again, err := c.Initialize()
	require.NoError(t, err)
	if diff := cmp.Diff(report, again); diff != "" {
		t.Errorf("second Initialize differs (-first +second):\n%s", diff)
	}
}

func TestStatsSnapshot(t *testing.T) {
	clk := &stepClock{t: time.Unix(0, 0), step: time.Millisecond}
	c := New(DefaultConfig(), Analyzers{
		Extractor: &fixedExtractor{},
		Motion:    motion.NewAnalyzer(motion.DefaultConfig()),
		Anomaly:   anomaly.NewScorer(anomaly.DefaultConfig(), nil),
		Consensus: collab.NewAnalyzer(collab.DefaultConfig()),
	}, WithClock(clk.Now))
	_, err := c.Initialize()
	require.NoError(t, err)

	// Every clock read advances 1ms: each stage measures 1ms and the frame
	// spans start + 4 stages * 2 reads + end = 9ms.
	for i := 0; i < 4; i++ {
		c.Process(frame(1))
	}

	snap := c.Stats()
	assert.Equal(t, uint64(4), snap.TotalFrames)
	assert.InDelta(t, 36.0, snap.TotalProcessingMs, 1e-9)
	assert.InDelta(t, 9.0, snap.AvgProcessingTimeMs, 1e-9)
	assert.InDelta(t, 1000.0/9.0, snap.FramesPerSecond, 1e-9)

	require.Len(t, snap.Analyzers, 4)
	for _, stage := range types.Stages {
		assert.Equal(t, uint64(4), snap.Analyzers[stage].CallCount, stage)
		assert.InDelta(t, 1.0, snap.Analyzers[stage].AvgProcessingTimeMs, 1e-9, stage)
	}

	c.Reset()
	snap = c.Stats()
	assert.Zero(t, snap.TotalFrames)
	assert.Zero(t, snap.FramesPerSecond)
	assert.Zero(t, c.FrameCount())
}

func TestStatsWindowBoundsAverageNotCallCount(t *testing.T) {
	s := NewStats(3, []string{"a"})
	for _, d := range []time.Duration{10, 10, 10, 1, 1, 1} {
		s.RecordAnalyzer("a", d*time.Millisecond, false)
	}
	snap := s.Snapshot()
	assert.Equal(t, uint64(6), snap.Analyzers["a"].CallCount)
	assert.InDelta(t, 1.0, snap.Analyzers["a"].AvgProcessingTimeMs, 1e-9)
	assert.Zero(t, snap.FramesPerSecond, "no frames recorded")
}
