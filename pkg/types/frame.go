package types

import "time"

// Frame is a single grayscale snapshot handed to the analyzers.
// Pix is row-major, one byte per pixel, len(Pix) == Width*Height.
type Frame struct {
	Pix       []uint8   // Luma samples
	Width     int       // Frame width in pixels
	Height    int       // Frame height in pixels
	Timestamp time.Time // Capture timestamp
	Seq       uint64    // Source sequence number (informational; not the analysis frame id)
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int, ts time.Time) *Frame {
	return &Frame{
		Pix:       make([]uint8, width*height),
		Width:     width,
		Height:    height,
		Timestamp: ts,
	}
}

// Valid reports whether the pixel buffer matches the declared dimensions.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height
}

// At returns the luma value at (x, y).
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// Mask is a motion mask with the same dimensions as the frame it was derived from.
// Any non-zero cell marks motion.
type Mask struct {
	Data   []uint8
	Width  int
	Height int
}

// NewMask allocates an all-zero mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Data:   make([]uint8, width*height),
		Width:  width,
		Height: height,
	}
}

// Valid reports whether the mask buffer matches the declared dimensions.
// An empty 0x0 mask is valid and carries no motion.
func (m *Mask) Valid() bool {
	return m != nil && m.Width >= 0 && m.Height >= 0 && len(m.Data) == m.Width*m.Height
}

// Set marks (x, y) with value v.
func (m *Mask) Set(x, y int, v uint8) {
	m.Data[y*m.Width+x] = v
}

// CountNonZero returns the number of motion cells.
func (m *Mask) CountNonZero() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}
