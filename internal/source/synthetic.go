package source

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// SyntheticConfig describes a generated scene: a bright square bouncing
// across a dark background, with optional sensor noise.
type SyntheticConfig struct {
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	Frames     int           `yaml:"frames"` // 0 means unbounded
	SquareSize int           `yaml:"square_size"`
	Speed      int           `yaml:"speed"` // pixels per frame on each axis
	Background uint8         `yaml:"background"`
	Foreground uint8         `yaml:"foreground"`
	Noise      uint8         `yaml:"noise"` // max +/- jitter per pixel
	Seed       uint64        `yaml:"seed"`
	Interval   time.Duration `yaml:"interval"` // timestamp spacing
}

// DefaultSyntheticConfig returns a 320x240 scene.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:      320,
		Height:     240,
		Frames:     300,
		SquareSize: 40,
		Speed:      6,
		Background: 30,
		Foreground: 220,
		Noise:      4,
		Seed:       1,
		Interval:   33 * time.Millisecond,
	}
}

// Validate checks value ranges.
func (c SyntheticConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("synthetic frame size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Frames < 0 {
		return fmt.Errorf("frames must be non-negative, got %d", c.Frames)
	}
	if c.SquareSize <= 0 || c.SquareSize > c.Width || c.SquareSize > c.Height {
		return fmt.Errorf("square_size %d does not fit a %dx%d frame", c.SquareSize, c.Width, c.Height)
	}
	if c.Speed < 0 {
		return fmt.Errorf("speed must be non-negative, got %d", c.Speed)
	}
	return nil
}

// Synthetic generates frames deterministically from its config.
type Synthetic struct {
	cfg    SyntheticConfig
	start  time.Time
	n      int
	closed atomic.Bool
}

// NewSynthetic returns a generator whose first frame is stamped start.
func NewSynthetic(cfg SyntheticConfig, start time.Time) (*Synthetic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Synthetic{cfg: cfg, start: start}, nil
}

// Next renders the next frame.
func (s *Synthetic) Next(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() || (s.cfg.Frames > 0 && s.n >= s.cfg.Frames) {
		return nil, io.EOF
	}
	f := s.Render(s.n)
	s.n++
	return f, nil
}

// Render draws frame i of the sequence.
func (s *Synthetic) Render(i int) *types.Frame {
	cfg := s.cfg
	f := types.NewFrame(cfg.Width, cfg.Height, s.start.Add(time.Duration(i)*cfg.Interval))
	f.Seq = uint64(i)

	for p := range f.Pix {
		f.Pix[p] = cfg.Background
	}

	x0 := bounce(i*cfg.Speed, cfg.Width-cfg.SquareSize)
	y0 := bounce(i*cfg.Speed/2, cfg.Height-cfg.SquareSize)
	for y := y0; y < y0+cfg.SquareSize; y++ {
		row := f.Pix[y*cfg.Width : (y+1)*cfg.Width]
		for x := x0; x < x0+cfg.SquareSize; x++ {
			row[x] = cfg.Foreground
		}
	}

	if cfg.Noise > 0 {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
		span := int(cfg.Noise)*2 + 1
		for p, v := range f.Pix {
			jittered := int(v) + rng.IntN(span) - int(cfg.Noise)
			f.Pix[p] = uint8(min(255, max(0, jittered)))
		}
	}
	return f
}

// Close stops the generator.
func (s *Synthetic) Close() error {
	s.closed.Store(true)
	return nil
}

// bounce folds pos into [0, limit] as if reflecting off both walls.
func bounce(pos, limit int) int {
	if limit <= 0 {
		return 0
	}
	period := 2 * limit
	pos %= period
	if pos < 0 {
		pos += period
	}
	if pos > limit {
		return period - pos
	}
	return pos
}
