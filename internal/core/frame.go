package core

import (
	"image"
	"time"
)

// Frame is one captured image of the game window.
// Frames are immutable once published; consumers must not write to Pix.
type Frame struct {
	// Seq increases by one for every new capture. An unchanged Seq across
	// two reads means the frame is stale.
	Seq uint64

	// CapturedAt carries the monotonic clock reading of the capture.
	CapturedAt time.Time

	Width    int
	Height   int
	Channels int // 4 for RGBA

	// Pix holds Height*Width*Channels bytes in row-major order.
	Pix []byte
}

// IsZero reports whether no frame has ever been captured.
func (f Frame) IsZero() bool {
	return f.Seq == 0 && len(f.Pix) == 0
}

// Stride returns the number of bytes per row.
func (f Frame) Stride() int {
	return f.Width * f.Channels
}

// At returns the channel values of the pixel at (x, y).
// Returns nil for out-of-bounds coordinates.
func (f Frame) At(x, y int) []byte {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		return nil
	}
	off := y*f.Stride() + x*f.Channels
	return f.Pix[off : off+f.Channels]
}

// Age returns how long ago the frame was captured relative to now.
func (f Frame) Age(now time.Time) time.Duration {
	if f.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(f.CapturedAt)
}

// Image wraps the pixel buffer as an RGBA image without copying.
// Returns nil for non-RGBA frames.
func (f Frame) Image() *image.RGBA {
	if f.Channels != 4 || len(f.Pix) < f.Height*f.Stride() {
		return nil
	}
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride(),
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
