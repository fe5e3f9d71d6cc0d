// Package motion reduces a motion mask to an intensity score and a set of
// bounded moving regions.
package motion

import (
	"errors"
	"fmt"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// ErrMaskSize is returned for a mask whose buffer does not match its dimensions.
var ErrMaskSize = errors.New("mask buffer does not match dimensions")

// Config holds the motion thresholds.
type Config struct {
	// SignificantThreshold is the intensity (percent of moving cells) above
	// which a frame has significant motion.
	SignificantThreshold float64 `yaml:"significant_threshold"`
	// MinRegionArea filters noise: components must have strictly more cells.
	MinRegionArea int `yaml:"min_region_area"`
}

// DefaultConfig returns the motion defaults.
func DefaultConfig() Config {
	return Config{
		SignificantThreshold: 30.0,
		MinRegionArea:        100,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.SignificantThreshold < 0 || c.SignificantThreshold > 100 {
		return fmt.Errorf("significant_threshold must be between 0 and 100, got %f", c.SignificantThreshold)
	}
	if c.MinRegionArea < 0 {
		return fmt.Errorf("min_region_area must be non-negative, got %d", c.MinRegionArea)
	}
	return nil
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
		return fmt.Errorf("motion config: %w", err)
	}
	return nil
}

// Analyze computes intensity and regions for mask.
func (a *Analyzer) Analyze(mask *types.Mask) (types.MotionResult, error) {
	if !mask.Valid() {
		return types.MotionResult{}, ErrMaskSize
	}

	res := types.MotionResult{Regions: []types.MotionRegion{}}
	total := len(mask.Data)
	if total == 0 {
		return res, nil
	}

	res.Intensity = float64(mask.CountNonZero()) * 100.0 / float64(total)
	res.HasSignificantMotion = res.Intensity > a.cfg.SignificantThreshold

	for _, region := range Components(mask) {
		if region.Area > res.LargestMotionArea {
			res.LargestMotionArea = region.Area
		}
		if region.Area > a.cfg.MinRegionArea {
			res.Regions = append(res.Regions, region)
		}
	}
	res.NumMovingObjects = len(res.Regions)
	return res, nil
}

// Components labels the 8-connected groups of non-zero cells in mask and
// returns each as its bounding box and cell count, in scan order of the
// first cell found.
func Components(mask *types.Mask) []types.MotionRegion {
	w, h := mask.Width, mask.Height
	seen := make([]bool, len(mask.Data))
	var regions []types.MotionRegion
	var stack []int

	for start, v := range mask.Data {
		if v == 0 || seen[start] {
			continue
		}

		minX, minY := w, h
		maxX, maxY := -1, -1
		area := 0

		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			x, y := idx%w, idx/w
			area++
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w || (dx == 0 && dy == 0) {
						continue
					}
					n := ny*w + nx
					if mask.Data[n] != 0 && !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		regions = append(regions, types.MotionRegion{
			BBox: types.BoundingBox{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1},
			Area: area,
		})
	}
	return regions
}
