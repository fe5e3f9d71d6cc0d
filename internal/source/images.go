package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for LoadDir
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

// ToFrame converts img to a grayscale frame of width x height. Images of a
// different size are scaled bilinearly.
func ToFrame(img image.Image, width, height int, ts time.Time) *types.Frame {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	f := types.NewFrame(width, height, ts)
	for y := 0; y < height; y++ {
		copy(f.Pix[y*width:(y+1)*width], dst.Pix[y*dst.Stride:y*dst.Stride+width])
	}
	return f
}

// Images yields a fixed sequence of images as frames of one size.
type Images struct {
	images   []image.Image
	width    int
	height   int
	start    time.Time
	interval time.Duration
	pos      int
	closed   atomic.Bool
}

// NewImages returns a source over images. A zero width or height takes the
// size of the first image.
func NewImages(images []image.Image, width, height int, start time.Time, interval time.Duration) (*Images, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images")
	}
	if width <= 0 || height <= 0 {
		b := images[0].Bounds()
		width, height = b.Dx(), b.Dy()
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("first image is empty")
	}
	return &Images{
		images:   images,
		width:    width,
		height:   height,
		start:    start,
		interval: interval,
	}, nil
}

// Next converts the next image.
func (s *Images) Next(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() || s.pos >= len(s.images) {
		return nil, io.EOF
	}
	ts := s.start.Add(time.Duration(s.pos) * s.interval)
	f := ToFrame(s.images[s.pos], s.width, s.height, ts)
	f.Seq = uint64(s.pos)
	s.pos++
	return f, nil
}

// Close stops the source and drops the image references.
func (s *Images) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.images = nil
	}
	return nil
}

// LoadDir decodes every PNG or JPEG file in dir, in name order.
func LoadDir(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	images := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
