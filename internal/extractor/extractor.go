// Package extractor defines the boundary between the analysis core and the
// detection backend. The core only consumes labelled boxes and a motion mask;
// how they are produced is up to the Extractor implementation.
package extractor

import (
	"errors"
	"fmt"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// Extraction is the extractor output for one frame.
type Extraction struct {
	Detections []types.Detection
	Mask       *types.Mask
}

// Empty returns the failure result for a frame: no detections and an
// all-zero mask sized like the frame (0x0 when the frame is unusable).
func Empty(frame *types.Frame) Extraction {
	w, h := 0, 0
	if frame != nil && frame.Width > 0 && frame.Height > 0 {
		w, h = frame.Width, frame.Height
	}
	return Extraction{Detections: []types.Detection{}, Mask: types.NewMask(w, h)}
}

// Extractor turns a frame into raw detections and a motion mask.
//
// Extract must not panic or return errors: on internal failure it logs and
// returns Empty(frame). Confidences lie in [0,1] and boxes inside the frame.
type Extractor interface {
	Initialize() error
	Extract(frame *types.Frame, frameID uint64) Extraction
	ConfidenceThreshold() float64
}

// Detector produces labelled boxes for a frame.
type Detector interface {
	Detect(frame *types.Frame, frameID uint64) []types.Detection
}

// MotionBackend produces a motion mask for a frame. Implementations may keep
// adaptive state across frames.
type MotionBackend interface {
	Apply(frame *types.Frame) *types.Mask
	Reset()
}

// ErrNotInitialized is logged when Extract runs before Initialize.
var ErrNotInitialized = errors.New("extractor not initialized")

// Config configures the default extractor.
type Config struct {
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	MinObjects          int      `yaml:"min_objects"`
	MaxObjects          int      `yaml:"max_objects"`
	MinConfidence       float64  `yaml:"min_confidence"`
	MaxConfidence       float64  `yaml:"max_confidence"`
	ClassNames          []string `yaml:"class_names"`
	Seed                uint64   `yaml:"seed"`
	LearningRate        float64  `yaml:"learning_rate"`
	DiffThreshold       float64  `yaml:"diff_threshold"`
}

// DefaultClassNames is the label table used by the simulated detector.
var DefaultClassNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus",
	"train", "truck", "boat", "traffic light", "fire hydrant",
	"stop sign", "parking meter", "bench",
}

// DefaultConfig returns the extractor defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		MinObjects:          1,
		MaxObjects:          3,
		MinConfidence:       0.6,
		MaxConfidence:       0.95,
		ClassNames:          DefaultClassNames,
		LearningRate:        0.05,
		DiffThreshold:       25,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", c.ConfidenceThreshold)
	}
	if c.MinObjects < 0 || c.MaxObjects < c.MinObjects {
		return fmt.Errorf("object count range [%d, %d] is invalid", c.MinObjects, c.MaxObjects)
	}
	if c.MinConfidence < 0 || c.MaxConfidence > 1 || c.MaxConfidence < c.MinConfidence {
		return fmt.Errorf("confidence range [%f, %f] is invalid", c.MinConfidence, c.MaxConfidence)
	}
	if len(c.ClassNames) == 0 {
		return errors.New("class_names must not be empty")
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning_rate must be in (0, 1], got %f", c.LearningRate)
	}
	if c.DiffThreshold < 0 || c.DiffThreshold > 255 {
		return fmt.Errorf("diff_threshold must be between 0 and 255, got %f", c.DiffThreshold)
	}
	return nil
}

// Composite joins a Detector and a MotionBackend behind the Extractor contract.
type Composite struct {
	cfg         Config
	detector    Detector
	motion      MotionBackend
	initialized bool
	log         *logger.Module
}

// New builds the default extractor: simulated detections plus a running
// average background model for the motion mask.
func New(cfg Config) *Composite {
	return NewComposite(cfg, NewSimulatedDetector(cfg), NewBackgroundSubtractor(cfg.LearningRate, cfg.DiffThreshold))
}

// NewComposite wires arbitrary backends. Either may be swapped for a real
// model without touching the analysis core.
func NewComposite(cfg Config, detector Detector, motion MotionBackend) *Composite {
	return &Composite{
		cfg:      cfg,
		detector: detector,
		motion:   motion,
		log:      logger.For("Extractor"),
	}
}

// Initialize validates configuration. Calling it again is a no-op once it
// has succeeded.
func (c *Composite) Initialize() error {
	if c.initialized {
		return nil
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("extractor config: %w", err)
	}
	if c.detector == nil || c.motion == nil {
		return errors.New("extractor backends not configured")
	}
	c.initialized = true
	c.log.Info("Initialized (threshold=%.2f, classes=%d)", c.cfg.ConfidenceThreshold, len(c.cfg.ClassNames))
	return nil
}

// ConfidenceThreshold returns the minimum confidence a detection must have.
func (c *Composite) ConfidenceThreshold() float64 {
	return c.cfg.ConfidenceThreshold
}

// Extract runs both backends. Backend panics are logged and produce the
// empty result.
func (c *Composite) Extract(frame *types.Frame, frameID uint64) (out Extraction) {
	if !c.initialized {
		c.log.Warn("Frame %d: %v", frameID, ErrNotInitialized)
		return Empty(frame)
	}
	if !frame.Valid() {
		c.log.Error("Frame %d: invalid frame buffer", frameID)
		return Empty(frame)
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Frame %d: backend panic: %v", frameID, r)
			out = Empty(frame)
		}
	}()

	raw := c.detector.Detect(frame, frameID)
	detections := make([]types.Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence >= c.cfg.ConfidenceThreshold {
			detections = append(detections, d)
		}
	}

	mask := c.motion.Apply(frame)
	if !mask.Valid() || mask.Width != frame.Width || mask.Height != frame.Height {
		c.log.Error("Frame %d: motion backend returned mismatched mask", frameID)
		return Empty(frame)
	}

	return Extraction{Detections: detections, Mask: mask}
}
