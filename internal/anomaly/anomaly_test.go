package anomaly

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func clock() time.Time { return fixedNow }

func grayFrame(v uint8) *types.Frame {
	f := types.NewFrame(32, 24, fixedNow)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

func dets(n int, conf float64) []types.Detection {
	out := make([]types.Detection, n)
	for i := range out {
		out[i] = types.Detection{ClassName: "person", Confidence: conf}
	}
	return out
}

func TestFeatures(t *testing.T) {
	frame := types.NewFrame(2, 2, fixedNow)
	copy(frame.Pix, []uint8{0, 100, 100, 200})

	fv := Features(frame, dets(2, 0.8), &types.MotionResult{Intensity: 12.5, NumMovingObjects: 3})

	assert.InDelta(t, 100.0, fv[types.FeatureBrightness], 1e-9)
	assert.InDelta(t, 70.710678, fv[types.FeatureContrast], 1e-6)
	assert.Equal(t, 2.0, fv[types.FeatureNumDetections])
	assert.InDelta(t, 0.8, fv[types.FeatureAvgConfidence], 1e-12)
	assert.Equal(t, 12.5, fv[types.FeatureMotionIntensity])
	assert.Equal(t, 3.0, fv[types.FeatureNumMovingObjects])
}

func TestFeaturesWithoutMotionOrDetections(t *testing.T) {
	fv := Features(nil, nil, nil)
	assert.Equal(t, 0.0, fv[types.FeatureAvgConfidence])
	assert.Equal(t, 0.0, fv[types.FeatureNumDetections])
	assert.NotContains(t, fv, types.FeatureMotionIntensity)
	assert.NotContains(t, fv, types.FeatureBrightness)
}

func TestColdStartScoresZero(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)

	for i := 0; i < 10; i++ {
		// Wildly varying input; the baseline is too short to judge it.
		res := s.Score(Input{
			Frame:      grayFrame(uint8(i * 25)),
			Detections: dets(i%4, 0.9),
			Motion:     &types.MotionResult{Intensity: float64(i * 3)},
			FrameID:    uint64(i + 1),
		})
		assert.Equal(t, 0.0, res.Score, "frame %d", i+1)
		assert.Equal(t, i+1, res.BaselineSize)
	}
}

func TestIdenticalFramesNeverAnomalous(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)

	for i := 1; i <= 15; i++ {
		res := s.Score(Input{
			Frame:   grayFrame(128),
			Motion:  &types.MotionResult{},
			FrameID: uint64(i),
		})
		assert.Equal(t, 0.0, res.Score, "frame %d", i)
		for _, a := range res.Alerts {
			assert.NotEqual(t, types.AlertHighAnomaly, a.Type)
		}
	}
}

func TestDeviationAgainstBaseline(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)

	// num_detections alternates 0,2 (mean 1, std 1); avg_confidence
	// alternates 0,0.5 (mean 0.25, std 0.25).
	for i := 0; i < 10; i++ {
		n := 0
		if i%2 == 1 {
			n = 2
		}
		s.Score(Input{Detections: dets(n, 0.5), FrameID: uint64(i + 1)})
	}

	res := s.Score(Input{Detections: dets(4, 0.5), FrameID: 11})
	// num_detections: |4-1|/1 = 3 (at cap); avg_confidence: |0.5-0.25|/0.25 = 1.
	assert.InDelta(t, 2.0, res.Score, 1e-12)

	require.Len(t, res.Alerts, 1)
	alert := res.Alerts[0]
	assert.Equal(t, types.AlertHighAnomaly, alert.Type)
	assert.Equal(t, 5, alert.Severity)
	assert.Equal(t, 1.0, alert.Confidence)
	assert.Equal(t, uint64(11), alert.FrameID)
	assert.Equal(t, fixedNow, alert.Timestamp)
}

func TestDeviationIsCapped(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)
	for i := 0; i < 10; i++ {
		s.Score(Input{Detections: dets(i%2, 0.5), FrameID: uint64(i + 1)})
	}
	// Both features vary in the baseline and both deviations hit the cap.
	score := s.Deviation(types.FeatureVector{
		types.FeatureNumDetections: 1000,
		types.FeatureAvgConfidence: 1000,
	})
	assert.Equal(t, 3.0, score)
}

func TestCurrentFrameDoesNotBiasItsOwnScore(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)
	for i := 0; i < 10; i++ {
		s.Score(Input{Detections: dets(i%2, 0.5), FrameID: uint64(i + 1)})
	}
	probe := Features(nil, dets(5, 0.5), nil)
	expected := s.Deviation(probe)

	res := s.Score(Input{Detections: dets(5, 0.5), FrameID: 11})
	assert.Equal(t, expected, res.Score)
	assert.InDelta(t, 2.0, res.Score, 1e-12)
	assert.Equal(t, 11, s.BaselineLen(), "appended after scoring")
	assert.NotEqual(t, expected, s.Deviation(probe), "baseline now includes the frame")
}

func TestBaselineWindowFIFO(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 5
	cfg.MinBaseline = 2
	s := NewScorer(cfg, clock)

	for i := 1; i <= 6; i++ {
		s.Score(Input{Detections: dets(i, 0.5), FrameID: uint64(i)})
	}

	assert.Equal(t, 5, s.BaselineLen())
	base := s.Baseline()
	require.Len(t, base, 5)
	assert.Equal(t, 2.0, base[0][types.FeatureNumDetections], "oldest evicted")
	assert.Equal(t, 6.0, base[4][types.FeatureNumDetections])

	s.Reset()
	assert.Zero(t, s.BaselineLen())
}

func TestHighMotionAlertOnly(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)
	res := s.Score(Input{
		Frame:   grayFrame(10),
		Motion:  &types.MotionResult{Intensity: 80},
		FrameID: 1,
	})

	require.Len(t, res.Alerts, 1)
	a := res.Alerts[0]
	assert.Equal(t, types.AlertHighMotion, a.Type)
	assert.Equal(t, 3, a.Severity)
	assert.Equal(t, 0.8, a.Confidence)
	assert.Contains(t, a.Description, "80.0%")
}

func TestCrowdAlert(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)

	res := s.Score(Input{Detections: dets(5, 0.7), FrameID: 1})
	assert.Empty(t, res.Alerts, "five objects is not a crowd")

	res = s.Score(Input{Detections: dets(6, 0.7), Motion: &types.MotionResult{Intensity: 60}, FrameID: 2})
	require.Len(t, res.Alerts, 2)
	assert.Equal(t, types.AlertHighMotion, res.Alerts[0].Type)
	assert.Equal(t, types.AlertCrowdDetected, res.Alerts[1].Type)
	assert.Equal(t, 2, res.Alerts[1].Severity)
	assert.Equal(t, 0.7, res.Alerts[1].Confidence)
}

func TestHighAnomalySeverity(t *testing.T) {
	s := NewScorer(DefaultConfig(), clock)

	cases := []struct {
		score    float64
		severity int
		fires    bool
	}{
		{0.7, 0, false},
		{0.75, 2, true},
		{1.0, 3, true},
		{1.9, 4, true},
		{2.4, 5, true},
		{3.0, 5, true},
	}
	for _, tc := range cases {
		alerts := s.Alerts(tc.score, types.FeatureVector{}, 9)
		if !tc.fires {
			assert.Empty(t, alerts, "score %.2f", tc.score)
			continue
		}
		require.Len(t, alerts, 1, "score %.2f", tc.score)
		assert.Equal(t, tc.severity, alerts[0].Severity, "score %.2f", tc.score)
		assert.Equal(t, min(1.0, tc.score), alerts[0].Confidence)
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	run := func() []types.AnomalyResult {
		s := NewScorer(DefaultConfig(), clock)
		var out []types.AnomalyResult
		for i := 0; i < 30; i++ {
			out = append(out, s.Score(Input{
				Frame:      grayFrame(uint8(100 + i%7)),
				Detections: dets(i%3, 0.6+float64(i%4)*0.1),
				Motion:     &types.MotionResult{Intensity: float64(i % 11), NumMovingObjects: i % 2},
				FrameID:    uint64(i + 1),
			}))
		}
		return out
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Fatalf("scores differ between identical runs:\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MinBaseline = 200
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CrowdSeverity = 6
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.WindowSize = 0
	assert.Error(t, NewScorer(cfg, nil).Initialize())
}
