// Package anomaly scores how far a frame's features deviate from a sliding
// baseline of recent frames and raises alerts.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/ring"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Config holds the scoring window and alert policy.
type Config struct {
	WindowSize     int     `yaml:"window_size"`
	MinBaseline    int     `yaml:"min_baseline"`
	DeviationCap   float64 `yaml:"deviation_cap"`
	AlertThreshold float64 `yaml:"alert_threshold"`

	HighMotionThreshold  float64 `yaml:"high_motion_threshold"`
	HighMotionSeverity   int     `yaml:"high_motion_severity"`
	HighMotionConfidence float64 `yaml:"high_motion_confidence"`

	CrowdThreshold  int     `yaml:"crowd_threshold"`
	CrowdSeverity   int     `yaml:"crowd_severity"`
	CrowdConfidence float64 `yaml:"crowd_confidence"`
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:     100,
		MinBaseline:    10,
		DeviationCap:   3.0,
		AlertThreshold: 0.7,

		HighMotionThreshold:  50,
		HighMotionSeverity:   3,
		HighMotionConfidence: 0.8,

		CrowdThreshold:  5,
		CrowdSeverity:   2,
		CrowdConfidence: 0.7,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", c.WindowSize)
	}
	if c.MinBaseline < 0 || c.MinBaseline > c.WindowSize {
		return fmt.Errorf("min_baseline must be in [0, window_size], got %d", c.MinBaseline)
	}
	if c.DeviationCap <= 0 {
		return fmt.Errorf("deviation_cap must be positive, got %f", c.DeviationCap)
	}
	if c.AlertThreshold < 0 {
		return fmt.Errorf("alert_threshold must be non-negative, got %f", c.AlertThreshold)
	}
	for _, sev := range []int{c.HighMotionSeverity, c.CrowdSeverity} {
		if sev < 1 || sev > 5 {
			return fmt.Errorf("alert severity must be between 1 and 5, got %d", sev)
		}
	}
	for _, conf := range []float64{c.HighMotionConfidence, c.CrowdConfidence} {
		if conf < 0 || conf > 1 {
			return fmt.Errorf("alert confidence must be between 0 and 1, got %f", conf)
		}
	}
	return nil
}

// Input is everything the scorer needs for one frame. Motion is nil when the
// motion stage failed; its features are then left out of the vector.
type Input struct {
	Frame      *types.Frame
	Detections []types.Detection
	Motion     *types.MotionResult
	FrameID    uint64
}

// Scorer owns the baseline window. Not safe for concurrent use: the
// coordinator's worker is the only caller.
type Scorer struct {
	cfg      Config
	baseline *ring.Ring[types.FeatureVector]
	now      func() time.Time
}

// NewScorer returns a scorer with an empty baseline. now stamps alerts;
// nil means time.Now.
func NewScorer(cfg Config, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	size := cfg.WindowSize
	if size <= 0 {
		size = DefaultConfig().WindowSize
	}
	return &Scorer{
		cfg:      cfg,
		baseline: ring.New[types.FeatureVector](size),
		now:      now,
	}
}

// Initialize validates configuration.
func (s *Scorer) Initialize() error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("anomaly config: %w", err)
	}
	return nil
}

// Score extracts the frame's features, scores them against the baseline,
// then appends them to the baseline. The current frame never contributes to
// its own score.
func (s *Scorer) Score(in Input) types.AnomalyResult {
	features := Features(in.Frame, in.Detections, in.Motion)
	score := s.Deviation(features)
	alerts := s.Alerts(score, features, in.FrameID)

	s.baseline.Push(features)

	return types.AnomalyResult{
		Score:        score,
		Alerts:       alerts,
		Features:     features,
		BaselineSize: s.baseline.Len(),
	}
}

// Deviation returns the mean capped z-score of features against the
// baseline, or 0 while the baseline holds fewer than MinBaseline vectors.
// Features with constant history are not compared.
func (s *Scorer) Deviation(features types.FeatureVector) float64 {
	if s.baseline.Len() < s.cfg.MinBaseline {
		return 0.0
	}

	// Sorted keys keep the floating point sum independent of map order.
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var total float64
	compared := 0
	history := make([]float64, 0, s.baseline.Len())
	for _, key := range keys {
		history = history[:0]
		s.baseline.Do(func(v types.FeatureVector) {
			if x, ok := v[key]; ok {
				history = append(history, x)
			}
		})
		if len(history) == 0 || floats.Min(history) == floats.Max(history) {
			continue
		}

		mean, std := stat.PopMeanStdDev(history, nil)
		if std == 0 {
			continue
		}
		dev := math.Abs(features[key]-mean) / std
		total += math.Min(dev, s.cfg.DeviationCap)
		compared++
	}

	if compared == 0 {
		return 0.0
	}
	return total / float64(compared)
}

// Alerts applies the alert policy. Conditions fire independently.
func (s *Scorer) Alerts(score float64, features types.FeatureVector, frameID uint64) []types.Alert {
	alerts := []types.Alert{}
	now := s.now()

	if score > s.cfg.AlertThreshold {
		alerts = append(alerts, types.Alert{
			Type:        types.AlertHighAnomaly,
			Severity:    min(5, int(math.Floor(score*2))+1),
			Description: fmt.Sprintf("High anomaly detected (score: %.2f)", score),
			Confidence:  math.Min(1.0, score),
			Timestamp:   now,
			FrameID:     frameID,
		})
	}

	if intensity := features[types.FeatureMotionIntensity]; intensity > s.cfg.HighMotionThreshold {
		alerts = append(alerts, types.Alert{
			Type:        types.AlertHighMotion,
			Severity:    s.cfg.HighMotionSeverity,
			Description: fmt.Sprintf("High motion activity detected (%.1f%%)", intensity),
			Confidence:  s.cfg.HighMotionConfidence,
			Timestamp:   now,
			FrameID:     frameID,
		})
	}

	if n := features[types.FeatureNumDetections]; n > float64(s.cfg.CrowdThreshold) {
		alerts = append(alerts, types.Alert{
			Type:        types.AlertCrowdDetected,
			Severity:    s.cfg.CrowdSeverity,
			Description: fmt.Sprintf("Large number of objects detected (%d)", int(n)),
			Confidence:  s.cfg.CrowdConfidence,
			Timestamp:   now,
			FrameID:     frameID,
		})
	}

	return alerts
}

// BaselineLen returns the number of vectors in the baseline window.
func (s *Scorer) BaselineLen() int { return s.baseline.Len() }

// Baseline returns a copy of the window, oldest first.
func (s *Scorer) Baseline() []types.FeatureVector {
	out := s.baseline.Slice()
	for i, v := range out {
		out[i] = v.Clone()
	}
	return out
}

// Reset empties the baseline.
func (s *Scorer) Reset() { s.baseline.Reset() }

// Features builds the per-frame vector. Brightness and contrast are the mean
// and population standard deviation of the luma samples.
func Features(frame *types.Frame, detections []types.Detection, m *types.MotionResult) types.FeatureVector {
	fv := types.FeatureVector{}

	if frame.Valid() {
		pix := make([]float64, len(frame.Pix))
		for i, p := range frame.Pix {
			pix[i] = float64(p)
		}
		mean, std := stat.PopMeanStdDev(pix, nil)
		fv[types.FeatureBrightness] = mean
		fv[types.FeatureContrast] = std
	}

	fv[types.FeatureNumDetections] = float64(len(detections))
	avg := 0.0
	if len(detections) > 0 {
		confs := make([]float64, len(detections))
		for i, d := range detections {
			confs[i] = d.Confidence
		}
		avg = stat.Mean(confs, nil)
	}
	fv[types.FeatureAvgConfidence] = avg

	if m != nil {
		fv[types.FeatureMotionIntensity] = m.Intensity
		fv[types.FeatureNumMovingObjects] = float64(m.NumMovingObjects)
	}
	return fv
}
