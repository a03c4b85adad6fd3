package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BurntSushi/xgbutil/xgraphics"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// fakeCapturer returns solid images, or fails while failing is set.
type fakeCapturer struct {
	failing atomic.Bool
	calls   atomic.Int64
	closed  atomic.Bool
}

func (f *fakeCapturer) Grab(context.Context) (image.Image, error) {
	f.calls.Add(1)
	if f.failing.Load() {
		return nil, errors.New("window not found")
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img, nil
}

func (f *fakeCapturer) Close() error {
	f.closed.Store(true)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestGrabberPublishesDownscaledFrames(t *testing.T) {
	fc := &fakeCapturer{}
	g := NewGrabber(fc, GrabberConfig{RateHz: 200, OutWidth: 32, OutHeight: 18}, nil)
	g.Start(context.Background())
	defer g.Close()

	waitFor(t, func() bool {
		_, err := g.Capture()
		return err == nil
	})

	f, err := g.Capture()
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if f.Width != 32 || f.Height != 18 || len(f.Pix) != 32*18*4 {
		t.Errorf("frame = %dx%d (%d bytes), expected 32x18", f.Width, f.Height, len(f.Pix))
	}
	if f.Seq == 0 || f.CapturedAt.IsZero() {
		t.Errorf("frame not stamped: %+v", f)
	}
}

func TestGrabberReportsUnavailableAndRecovers(t *testing.T) {
	fc := &fakeCapturer{}
	g := NewGrabber(fc, GrabberConfig{RateHz: 200, MaxRetries: 2}, nil)
	g.Start(context.Background())
	defer g.Close()

	waitFor(t, func() bool { _, err := g.Capture(); return err == nil })
	good, _ := g.Capture()

	fc.failing.Store(true)
	waitFor(t, func() bool { _, err := g.Capture(); return err != nil })

	stale, err := g.Capture()
	if !errors.Is(err, core.ErrCaptureUnavailable) {
		t.Fatalf("Capture() error = %v, expected ErrCaptureUnavailable", err)
	}
	if stale.Seq < good.Seq {
		t.Errorf("stale frame went backwards: %d < %d", stale.Seq, good.Seq)
	}
	_, failures := g.Stats()
	if failures == 0 {
		t.Error("failures should be counted")
	}

	fc.failing.Store(false)
	waitFor(t, func() bool { _, err := g.Capture(); return err == nil })
}

func TestGrabberBeforeFirstFrame(t *testing.T) {
	g := NewGrabber(&fakeCapturer{}, GrabberConfig{}, nil)
	f, err := g.Capture()
	if !errors.Is(err, core.ErrCaptureUnavailable) || !f.IsZero() {
		t.Errorf("Capture() before Start = %+v, %v", f, err)
	}
}

func TestGrabberCloseClosesCapturer(t *testing.T) {
	fc := &fakeCapturer{}
	g := NewGrabber(fc, GrabberConfig{RateHz: 100}, nil)
	g.Start(context.Background())
	if err := g.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !fc.closed.Load() {
		t.Error("capturer not closed")
	}
	calls := fc.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if fc.calls.Load() != calls {
		t.Error("grabbing continued after Close")
	}
}

func TestSyntheticSequenceAndAvailability(t *testing.T) {
	s := NewSynthetic(8, 4)

	f1, err := s.Capture()
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	f2, _ := s.Capture()
	if f2.Seq != f1.Seq+1 {
		t.Errorf("Seq = %d, expected %d", f2.Seq, f1.Seq+1)
	}

	s.SetAvailable(false)
	f3, err := s.Capture()
	if !errors.Is(err, core.ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	if f3.Seq != f2.Seq {
		t.Errorf("unavailable capture should return previous frame, got seq %d", f3.Seq)
	}
}

func TestToFrameKeepsSizeWhenUnset(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 5))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	f := ToFrame(img, 7, time.Now(), 0, 0)
	if f.Width != 10 || f.Height != 5 || f.Seq != 7 {
		t.Errorf("frame = %+v", f)
	}
	if px := f.At(0, 0); px[0] != 255 {
		t.Errorf("pixel = %v", px)
	}
}

func TestToFrameFromServerImage(t *testing.T) {
	ximg := xgraphics.New(nil, image.Rect(0, 0, 4, 2))
	ximg.SetBGRA(0, 0, xgraphics.BGRA{B: 1, G: 2, R: 3, A: 255})
	ximg.SetBGRA(2, 1, xgraphics.BGRA{B: 4, G: 5, R: 6, A: 255})

	f := ToFrame(ximg, 1, time.Time{}, 0, 0)
	if f.Width != 4 || f.Height != 2 {
		t.Fatalf("frame size = %dx%d, expected 4x2", f.Width, f.Height)
	}
	if px := f.At(0, 0); px[0] != 3 || px[1] != 2 || px[2] != 1 || px[3] != 255 {
		t.Errorf("pixel (0,0) = %v, expected [3 2 1 255]", px)
	}

	// A region of the root keeps its offset until conversion
	sub := ximg.SubImage(image.Rect(2, 1, 4, 2))
	f = ToFrame(sub, 2, time.Time{}, 0, 0)
	if f.Width != 2 || f.Height != 1 {
		t.Fatalf("sub frame size = %dx%d, expected 2x1", f.Width, f.Height)
	}
	if px := f.At(0, 0); px[0] != 6 || px[1] != 5 || px[2] != 4 {
		t.Errorf("sub pixel = %v, expected [6 5 4 255]", px)
	}
}
