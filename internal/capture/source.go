// Package capture implements the FrameSource side of the agent: a background
// Grabber that publishes downscaled frames into a last-value-wins slot, the
// X11 window capturer and an in-process synthetic source.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthonynsimon/bild/transform"
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/buffer"
	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Source is the contract the scheduler consumes.
type Source interface {
	// Capture returns the most recent frame without blocking. When nothing
	// new arrived since the previous call the same frame (same Seq) is
	// returned. Errors wrap core.ErrCaptureUnavailable.
	Capture() (core.Frame, error)

	// Close releases the underlying capture handle.
	Close() error
}

// Capturer grabs a single image synchronously. Implemented per platform.
type Capturer interface {
	Grab(ctx context.Context) (image.Image, error)
	Close() error
}

// GrabberConfig holds configuration for the Grabber.
type GrabberConfig struct {
	RateHz     float64 // grab attempts per second
	MaxRetries int     // extra attempts per cycle before reporting unavailability
	OutWidth   int
	OutHeight  int
}

// Grabber runs a Capturer on its own goroutine and publishes frames into a
// single slot, decoupling capture jitter from the tick rate.
type Grabber struct {
	capturer Capturer
	config   GrabberConfig
	logger   *log.Logger

	latest  buffer.Slot[core.Frame]
	lastErr atomic.Pointer[error]
	seq     uint64 // producer-owned

	grabs    atomic.Uint64
	failures atomic.Uint64

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// NewGrabber creates a grabber. Call Start to begin capturing.
func NewGrabber(c Capturer, cfg GrabberConfig, logger *log.Logger) *Grabber {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 30
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	g := &Grabber{
		capturer: c,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}
	noFrame := fmt.Errorf("%w: no frame captured yet", core.ErrCaptureUnavailable)
	g.lastErr.Store(&noFrame)
	return g
}

// Start begins the background capture loop.
func (g *Grabber) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		ctx, g.cancel = context.WithCancel(ctx)
		go g.run(ctx)
	})
}

func (g *Grabber) run(ctx context.Context) {
	defer close(g.done)

	interval := time.Duration(float64(time.Second) / g.config.RateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.cycle(ctx)
	for {
		select {
		case <-ticker.C:
			g.cycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// cycle performs one grab with bounded retries and publishes the result.
func (g *Grabber) cycle(ctx context.Context) {
	var err error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		var img image.Image
		img, err = g.capturer.Grab(ctx)
		if err == nil {
			g.publish(img)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	g.failures.Add(1)
	if !errors.Is(err, core.ErrCaptureUnavailable) {
		err = fmt.Errorf("%w: %w", core.ErrCaptureUnavailable, err)
	}
	if prev := g.lastErr.Swap(&err); prev == nil && g.logger != nil {
		g.logger.Warn("capture unavailable", "error", err)
	}
}

func (g *Grabber) publish(img image.Image) {
	g.seq++
	g.latest.Store(ToFrame(img, g.seq, time.Now(), g.config.OutWidth, g.config.OutHeight))
	g.grabs.Add(1)
	if prev := g.lastErr.Swap(nil); prev != nil && g.seq > 1 && g.logger != nil {
		g.logger.Info("capture recovered", "seq", g.seq)
	}
}

// Capture implements Source.
func (g *Grabber) Capture() (core.Frame, error) {
	frame, _ := g.latest.Load()
	if errp := g.lastErr.Load(); errp != nil {
		return frame, *errp
	}
	return frame, nil
}

// Stats returns successful grabs and failed cycles so far.
func (g *Grabber) Stats() (grabs, failures uint64) {
	return g.grabs.Load(), g.failures.Load()
}

// Close stops the loop and closes the capturer.
func (g *Grabber) Close() error {
	var err error
	g.closeOnce.Do(func() {
		if g.cancel != nil {
			g.cancel()
			<-g.done
		}
		err = g.capturer.Close()
	})
	return err
}

// ToFrame converts an image into an RGBA frame, downscaling to w×h when
// the sizes differ. A zero w or h keeps the source size.
func ToFrame(img image.Image, seq uint64, at time.Time, w, h int) core.Frame {
	b := img.Bounds()
	if w <= 0 || h <= 0 {
		w, h = b.Dx(), b.Dy()
	}

	var rgba *image.RGBA
	switch src, ok := img.(*image.RGBA); {
	case ok && b.Dx() == w && b.Dy() == h && b.Min == (image.Point{}) && src.Stride == 4*w:
		rgba = src
	case b.Dx() == w && b.Dy() == h:
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	default:
		rgba = transform.Resize(img, w, h, transform.Linear)
	}

	return core.Frame{
		Seq:        seq,
		CapturedAt: at,
		Width:      w,
		Height:     h,
		Channels:   4,
		Pix:        rgba.Pix,
	}
}
