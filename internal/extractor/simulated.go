package extractor

import (
	"math/rand/v2"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// SimulatedDetector stands in for a model. Output depends only on the frame
// dimensions, the frame id and the configured seed.
type SimulatedDetector struct {
	cfg Config
}

// NewSimulatedDetector returns a detector driven by cfg.
func NewSimulatedDetector(cfg Config) *SimulatedDetector {
	return &SimulatedDetector{cfg: cfg}
}

// Detect returns MinObjects..MaxObjects boxes that fit inside the frame.
func (s *SimulatedDetector) Detect(frame *types.Frame, frameID uint64) []types.Detection {
	rng := rand.New(rand.NewPCG(frameID, s.cfg.Seed))

	n := s.cfg.MinObjects
	if extra := s.cfg.MaxObjects - s.cfg.MinObjects; extra > 0 {
		n += rng.IntN(extra + 1)
	}

	out := make([]types.Detection, 0, n)
	for i := 0; i < n; i++ {
		classID := rng.IntN(len(s.cfg.ClassNames))
		conf := s.cfg.MinConfidence + rng.Float64()*(s.cfg.MaxConfidence-s.cfg.MinConfidence)

		x, w := span(rng, frame.Width)
		y, h := span(rng, frame.Height)

		out = append(out, types.Detection{
			ClassID:    classID,
			ClassName:  s.cfg.ClassNames[classID],
			Confidence: conf,
			BBox:       types.BoundingBox{X: x, Y: y, W: w, H: h},
			Timestamp:  frame.Timestamp,
		})
	}
	return out
}

// span picks an origin in the first half of size and an extent of 50-200
// pixels, shrunk so origin+extent never exceeds size.
func span(rng *rand.Rand, size int) (origin, extent int) {
	if size >= 2 {
		origin = rng.IntN(size / 2)
	}
	maxExt := min(200, size-origin)
	minExt := min(50, maxExt)
	extent = minExt
	if maxExt > minExt {
		extent += rng.IntN(maxExt - minExt + 1)
	}
	return origin, extent
}
