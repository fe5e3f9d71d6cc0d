// Package collab cross-checks detections against motion regions and folds
// the stage outputs into a single consensus confidence.
package collab

import (
	"fmt"
	"math"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Config holds the correlation and consensus weights.
type Config struct {
	// IoUThreshold is the overlap a detection needs with some motion region
	// (strictly greater) to be considered corroborated.
	IoUThreshold float64 `yaml:"iou_threshold"`
	// Boost is added to a corroborated detection's confidence, capped at 1.
	Boost float64 `yaml:"boost"`

	DetectionWeight float64 `yaml:"detection_weight"`
	MotionWeight    float64 `yaml:"motion_weight"`
	NormalWeight    float64 `yaml:"normal_weight"`
	// NormalScore is the anomaly score below which a frame counts as normal.
	NormalScore float64 `yaml:"normal_score"`
}

// DefaultConfig returns the consensus defaults.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:    0.3,
		Boost:           0.1,
		DetectionWeight: 0.3,
		MotionWeight:    0.3,
		NormalWeight:    0.4,
		NormalScore:     0.5,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", c.IoUThreshold)
	}
	if c.Boost < 0 || c.Boost > 1 {
		return fmt.Errorf("boost must be between 0 and 1, got %f", c.Boost)
	}
	for _, w := range []float64{c.DetectionWeight, c.MotionWeight, c.NormalWeight} {
		if w < 0 {
			return fmt.Errorf("consensus weights must be non-negative, got %f", w)
		}
	}
	if sum := c.DetectionWeight + c.MotionWeight + c.NormalWeight; sum > 1+1e-9 {
		return fmt.Errorf("consensus weights must sum to at most 1, got %f", sum)
	}
	return nil
}

// Input carries the outputs of the earlier stages for one frame.
type Input struct {
	Detections           []types.Detection
	Regions              []types.MotionRegion
	HasSignificantMotion bool
	AnomalyScore         float64
}

// Analyzer is stateless across frames.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer returns an analyzer using cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Initialize validates configuration.
func (a *Analyzer) Initialize() error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("collab config: %w", err)
	}
	return nil
}

// Analyze returns the cross-validated detections and the consensus score.
// The input detections are never modified; CrossValidated holds copies, in
// input order, with corroborated ones boosted.
func (a *Analyzer) Analyze(in Input) types.ConsensusResult {
	validated := make([]types.Detection, 0, len(in.Detections))
	correlated := 0

	for _, det := range in.Detections {
		if a.corroborated(det.BBox, in.Regions) {
			correlated++
			det = det.WithConfidence(math.Min(1.0, det.Confidence+a.cfg.Boost))
		}
		validated = append(validated, det)
	}

	return types.ConsensusResult{
		Confidence:     a.Consensus(len(in.Detections) > 0, in.HasSignificantMotion, in.AnomalyScore < a.cfg.NormalScore),
		CrossValidated: validated,
		Correlated:     correlated,
	}
}

func (a *Analyzer) corroborated(box types.BoundingBox, regions []types.MotionRegion) bool {
	for _, r := range regions {
		if IoU(box, r.BBox) > a.cfg.IoUThreshold {
			return true
		}
	}
	return false
}

// Consensus weighs the three evidence flags. With the defaults a frame that
// has detections, significant motion and a normal anomaly score reaches 1.0.
func (a *Analyzer) Consensus(hasDetections, hasMotion, normal bool) float64 {
	score := 0.0
	if hasDetections {
		score += a.cfg.DetectionWeight
	}
	if hasMotion {
		score += a.cfg.MotionWeight
	}
	if normal {
		score += a.cfg.NormalWeight
	}
	return math.Min(1.0, score)
}

// IoU returns the intersection over union of two boxes, 0 when the union is
// empty.
func IoU(a, b types.BoundingBox) float64 {
	x1, y1 := max(a.X, b.X), max(a.Y, b.Y)
	x2, y2 := min(a.X+a.W, b.X+b.W), min(a.Y+a.H, b.Y+b.H)

	inter := 0
	if x2 > x1 && y2 > y1 {
		inter = (x2 - x1) * (y2 - y1)
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}
