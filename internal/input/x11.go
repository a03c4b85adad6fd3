package input

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// keysyms maps action-space key names to X keysym names where they differ.
var keysyms = map[string]string{
	"left_shift":  "Shift_L",
	"right_shift": "Shift_R",
	"shift":       "Shift_L",
	"ctrl":        "Control_L",
	"left_ctrl":   "Control_L",
	"alt":         "Alt_L",
	"esc":         "Escape",
	"escape":      "Escape",
	"enter":       "Return",
	"tab":         "Tab",
	"space":       "space",
	"backspace":   "BackSpace",
	"up":          "Up",
	"down":        "Down",
	"left":        "Left",
	"right":       "Right",
	"f10":         "F10",
	"f11":         "F11",
	"f12":         "F12",
}

// buttons maps button names to X pointer button numbers.
var buttons = map[string]byte{
	"mouse_left":       1,
	"mouse_middle":     2,
	"mouse_right":      3,
	"mouse_wheel_up":   4,
	"mouse_wheel_down": 5,
}

// X11Injector injects events through the XTEST extension.
type X11Injector struct {
	xu   *xgbutil.XUtil
	root xproto.Window

	codes *keycodeCache
}

// NewX11Injector connects to display (empty = $DISPLAY) and enables XTEST.
func NewX11Injector(display string) (*X11Injector, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("input: cannot connect to X display %q: %w", display, err)
	}
	if err := xtest.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("input: XTEST extension unavailable: %w", err)
	}
	keybind.Initialize(xu)

	return &X11Injector{
		xu:    xu,
		root:  xu.RootWin(),
		codes: newKeycodeCache(xu),
	}, nil
}

// Press implements Injector.
func (x *X11Injector) Press(in core.Input) error {
	return x.emit(in, true)
}

// Release implements Injector.
func (x *X11Injector) Release(in core.Input) error {
	return x.emit(in, false)
}

// Move implements Injector.
func (x *X11Injector) Move(p core.PointerMove) error {
	return xtest.FakeInputChecked(x.xu.Conn(), xproto.MotionNotify, 0, 0,
		x.root, int16(p.X), int16(p.Y), 0).Check()
}

func (x *X11Injector) emit(in core.Input, down bool) error {
	switch v := in.(type) {
	case core.Key:
		codes, err := x.codes.lookup(v.Code)
		if err != nil {
			return err
		}
		code := codes[0]
		typ := byte(xproto.KeyRelease)
		if down {
			typ = xproto.KeyPress
		}
		return xtest.FakeInputChecked(x.xu.Conn(), typ, byte(code), 0, x.root, 0, 0, 0).Check()

	case core.Button:
		btn, ok := buttons[v.Code]
		if !ok {
			return fmt.Errorf("input: unknown button %q", v.Code)
		}
		typ := byte(xproto.ButtonRelease)
		if down {
			typ = xproto.ButtonPress
		}
		return xtest.FakeInputChecked(x.xu.Conn(), typ, btn, 0, x.root, 0, 0, 0).Check()

	default:
		return fmt.Errorf("input: %s inputs cannot be pressed", in.Device())
	}
}

// keycodeCache resolves key names to keycodes once per connection.
type keycodeCache struct {
	xu *xgbutil.XUtil

	mu    sync.Mutex
	codes map[string][]xproto.Keycode
}

func newKeycodeCache(xu *xgbutil.XUtil) *keycodeCache {
	return &keycodeCache{xu: xu, codes: make(map[string][]xproto.Keycode)}
}

// lookup returns every keycode that produces the named key.
func (c *keycodeCache) lookup(name string) ([]xproto.Keycode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if codes, ok := c.codes[name]; ok {
		return codes, nil
	}
	sym := name
	if mapped, ok := keysyms[strings.ToLower(name)]; ok {
		sym = mapped
	}
	codes := keybind.StrToKeycodes(c.xu, sym)
	if len(codes) == 0 {
		return nil, fmt.Errorf("input: no keycode for key %q", name)
	}
	c.codes[name] = codes
	return codes, nil
}

// Close implements Injector.
func (x *X11Injector) Close() error {
	x.xu.Conn().Close()
	return nil
}
