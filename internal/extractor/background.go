package extractor

import (
	"math"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// BackgroundSubtractor keeps a per-pixel running average of the scene and
// marks pixels that differ from it by more than a threshold.
//
// The first frame (or the first after a size change) seeds the model and
// yields an all-zero mask. Not safe for concurrent use.
type BackgroundSubtractor struct {
	alpha     float64
	threshold float64

	background    []float64
	width, height int
}

// NewBackgroundSubtractor returns a model with learning rate alpha and
// per-pixel difference threshold.
func NewBackgroundSubtractor(alpha, threshold float64) *BackgroundSubtractor {
	return &BackgroundSubtractor{alpha: alpha, threshold: threshold}
}

// Apply returns the foreground mask for frame and folds it into the model.
func (b *BackgroundSubtractor) Apply(frame *types.Frame) *types.Mask {
	mask := types.NewMask(frame.Width, frame.Height)

	if b.background == nil || b.width != frame.Width || b.height != frame.Height {
		b.seed(frame)
		return mask
	}

	for i, p := range frame.Pix {
		v := float64(p)
		if math.Abs(v-b.background[i]) > b.threshold {
			mask.Data[i] = 255
		}
		b.background[i] += b.alpha * (v - b.background[i])
	}
	return mask
}

// Reset forgets the learned background.
func (b *BackgroundSubtractor) Reset() {
	b.background = nil
	b.width, b.height = 0, 0
}

func (b *BackgroundSubtractor) seed(frame *types.Frame) {
	b.background = make([]float64, len(frame.Pix))
	for i, p := range frame.Pix {
		b.background[i] = float64(p)
	}
	b.width, b.height = frame.Width, frame.Height
}
