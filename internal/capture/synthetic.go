package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Synthetic is an in-process Source that renders a moving gradient.
// Every Capture produces a new frame unless the source is made unavailable.
// Used for dry runs and tests.
type Synthetic struct {
	width, height int

	mu   sync.Mutex
	last core.Frame

	unavailable atomic.Bool
	closed      atomic.Bool
}

// NewSynthetic creates a synthetic source producing w×h RGBA frames.
func NewSynthetic(w, h int) *Synthetic {
	return &Synthetic{width: w, height: h}
}

// SetAvailable toggles simulated window availability.
func (s *Synthetic) SetAvailable(ok bool) {
	s.unavailable.Store(!ok)
}

// Capture implements Source.
func (s *Synthetic) Capture() (core.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return s.last, fmt.Errorf("%w: source closed", core.ErrCaptureUnavailable)
	}
	if s.unavailable.Load() {
		return s.last, fmt.Errorf("%w: synthetic window hidden", core.ErrCaptureUnavailable)
	}

	seq := s.last.Seq + 1
	pix := make([]byte, s.width*s.height*4)
	shift := int(seq)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			off := (y*s.width + x) * 4
			pix[off] = byte(x + shift)
			pix[off+1] = byte(y)
			pix[off+2] = byte(shift)
			pix[off+3] = 0xff
		}
	}

	s.last = core.Frame{
		Seq:        seq,
		CapturedAt: time.Now(),
		Width:      s.width,
		Height:     s.height,
		Channels:   4,
		Pix:        pix,
	}
	return s.last, nil
}

// Close implements Source.
func (s *Synthetic) Close() error {
	s.closed.Store(true)
	return nil
}
