package types

import "time"

// BoundingBox is an axis-aligned rectangle in pixel coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W*H.
func (b BoundingBox) Area() int {
	return b.W * b.H
}

// Detection is a labelled box reported by the extractor.
type Detection struct {
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Timestamp  time.Time   `json:"timestamp"`
}

// WithConfidence returns a copy of d carrying confidence c.
func (d Detection) WithConfidence(c float64) Detection {
	d.Confidence = c
	return d
}

// MotionRegion is one connected component of a motion mask.
type MotionRegion struct {
	BBox BoundingBox `json:"bbox"`
	Area int         `json:"area"`
}

// Feature names used by the anomaly scorer.
const (
	FeatureBrightness       = "brightness"
	FeatureContrast         = "contrast"
	FeatureNumDetections    = "num_detections"
	FeatureAvgConfidence    = "avg_confidence"
	FeatureMotionIntensity  = "motion_intensity"
	FeatureNumMovingObjects = "num_moving_objects"
)

// FeatureVector maps a metric name to its value for one frame.
type FeatureVector map[string]float64

// Clone returns an independent copy.
func (v FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Alert types.
const (
	AlertHighAnomaly   = "high_anomaly"
	AlertHighMotion    = "high_motion"
	AlertCrowdDetected = "crowd_detected"
)

// Alert is an append-only fact raised while scoring a frame.
type Alert struct {
	Type        string    `json:"alert_type"`
	Severity    int       `json:"severity"` // 1-5, 5 being most severe
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	FrameID     uint64    `json:"frame_id"`
}

// ExtractionResult is the raw output of the feature extractor stage.
type ExtractionResult struct {
	Detections          []Detection   `json:"detections"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	ProcessingTime      time.Duration `json:"processing_time"`
}

// MotionResult is the raw output of the motion analyzer.
type MotionResult struct {
	Intensity            float64        `json:"motion_intensity"`
	HasSignificantMotion bool           `json:"has_significant_motion"`
	NumMovingObjects     int            `json:"num_moving_objects"`
	LargestMotionArea    int            `json:"largest_motion_area"`
	Regions              []MotionRegion `json:"motion_regions"`
	ProcessingTime       time.Duration  `json:"processing_time"`
}

// AnomalyResult is the raw output of the anomaly scorer.
type AnomalyResult struct {
	Score          float64       `json:"anomaly_score"`
	Alerts         []Alert       `json:"alerts"`
	Features       FeatureVector `json:"features"`
	BaselineSize   int           `json:"baseline_size"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// ConsensusResult is the raw output of the collaborative analyzer.
type ConsensusResult struct {
	Confidence     float64       `json:"confidence_score"`
	CrossValidated []Detection   `json:"cross_validated_detections"`
	Correlated     int           `json:"correlated_detections"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Stage names, used as keys for per-analyzer stats and errors.
const (
	StageExtraction = "feature_extraction"
	StageMotion     = "motion_analysis"
	StageAnomaly    = "anomaly_detection"
	StageConsensus  = "collaborative_analysis"
)

// Stages lists the analyzers in execution order.
var Stages = []string{StageExtraction, StageMotion, StageAnomaly, StageConsensus}

// AnalyzerResults groups the raw result of every stage for one frame.
// A stage that failed leaves its entry nil and records the failure in Errors.
type AnalyzerResults struct {
	Extraction *ExtractionResult `json:"feature_extraction,omitempty"`
	Motion     *MotionResult     `json:"motion_analysis,omitempty"`
	Anomaly    *AnomalyResult    `json:"anomaly_detection,omitempty"`
	Consensus  *ConsensusResult  `json:"collaborative_analysis,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// FrameAnalysis is the merged, immutable per-frame output.
type FrameAnalysis struct {
	FrameID        uint64          `json:"frame_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Detections     []Detection     `json:"detections"`
	Alerts         []Alert         `json:"alerts"`
	Results        AnalyzerResults `json:"agent_results"`
	ProcessingTime time.Duration   `json:"processing_time"`
}

// Failed reports whether any stage failed on this frame.
func (a *FrameAnalysis) Failed() bool {
	return len(a.Results.Errors) > 0
}
