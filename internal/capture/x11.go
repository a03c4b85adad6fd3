package capture

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xgraphics"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// X11Capturer grabs a window (by title) or a fixed root region from an X server.
type X11Capturer struct {
	xu     *xgbutil.XUtil
	title  string
	region core.Rect

	mu  sync.Mutex
	win xproto.Window // cached match for title, 0 when unknown
}

// NewX11Capturer connects to display (empty = $DISPLAY).
// With a title the matching top-level window's client area is captured,
// otherwise region in root coordinates.
func NewX11Capturer(display, title string, region core.Rect) (*X11Capturer, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("capture: cannot connect to X display %q: %w", display, err)
	}
	return &X11Capturer{
		xu:     xu,
		title:  strings.ToLower(title),
		region: region,
	}, nil
}

// Grab implements Capturer.
func (c *X11Capturer) Grab(_ context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	full, err := c.target()
	if err != nil {
		return nil, err
	}

	scr := c.xu.Screen()
	rect := full.Intersect(core.NewRect(0, 0, int(scr.WidthInPixels), int(scr.HeightInPixels)))
	if rect.Empty() {
		return nil, fmt.Errorf("%w: target is off screen", core.ErrCaptureUnavailable)
	}

	// A window fully on screen is read directly, anything else through the root
	if c.win != 0 && rect == full {
		img, err := xgraphics.NewDrawable(c.xu, xproto.Drawable(c.win))
		if err != nil {
			c.win = 0
			return nil, fmt.Errorf("%w: read window: %w", core.ErrCaptureUnavailable, err)
		}
		return img, nil
	}

	root, err := xgraphics.NewDrawable(c.xu, xproto.Drawable(c.xu.RootWin()))
	if err != nil {
		c.win = 0
		return nil, fmt.Errorf("%w: read root: %w", core.ErrCaptureUnavailable, err)
	}
	return root.SubImage(image.Rect(rect.X, rect.Y, rect.Right(), rect.Bottom())), nil
}

// target resolves the capture rectangle in root coordinates.
func (c *X11Capturer) target() (core.Rect, error) {
	if c.title == "" {
		return c.region, nil
	}

	if c.win == 0 {
		win, err := c.findWindow()
		if err != nil {
			return core.Rect{}, err
		}
		c.win = win
	}

	conn := c.xu.Conn()
	attrs, err := xproto.GetWindowAttributes(conn, c.win).Reply()
	if err != nil {
		c.win = 0
		return core.Rect{}, fmt.Errorf("%w: window gone: %w", core.ErrCaptureUnavailable, err)
	}
	if attrs.MapState != xproto.MapStateViewable {
		return core.Rect{}, fmt.Errorf("%w: window %q is minimized or unmapped", core.ErrCaptureUnavailable, c.title)
	}

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(c.win)).Reply()
	if err != nil {
		c.win = 0
		return core.Rect{}, fmt.Errorf("%w: geometry: %w", core.ErrCaptureUnavailable, err)
	}
	origin, err := xproto.TranslateCoordinates(conn, c.win, c.xu.RootWin(), 0, 0).Reply()
	if err != nil {
		c.win = 0
		return core.Rect{}, fmt.Errorf("%w: translate: %w", core.ErrCaptureUnavailable, err)
	}

	return core.NewRect(int(origin.DstX), int(origin.DstY), int(geom.Width), int(geom.Height)), nil
}

// findWindow searches the EWMH client list for a title containing c.title.
func (c *X11Capturer) findWindow() (xproto.Window, error) {
	clients, err := ewmh.ClientListGet(c.xu)
	if err != nil {
		return 0, fmt.Errorf("%w: client list: %w", core.ErrCaptureUnavailable, err)
	}
	for _, win := range clients {
		name, err := ewmh.WmNameGet(c.xu, win)
		if err != nil || name == "" {
			name, _ = icccm.WmNameGet(c.xu, win)
		}
		if strings.Contains(strings.ToLower(name), c.title) {
			return win, nil
		}
	}
	return 0, fmt.Errorf("%w: no window titled %q", core.ErrCaptureUnavailable, c.title)
}

// Close implements Capturer.
func (c *X11Capturer) Close() error {
	c.xu.Conn().Close()
	return nil
}
