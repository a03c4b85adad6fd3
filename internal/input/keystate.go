package input

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// KeyReader reports which of the named inputs a person is holding right now.
type KeyReader interface {
	Held(names []string) ([]string, error)
	Close() error
}

// buttonMasks maps button numbers to their pointer state bits.
var buttonMasks = map[byte]uint16{
	1: xproto.KeyButMaskButton1,
	2: xproto.KeyButMaskButton2,
	3: xproto.KeyButMaskButton3,
	4: xproto.KeyButMaskButton4,
	5: xproto.KeyButMaskButton5,
}

// X11KeyReader polls the server's keyboard and pointer state. It reads the
// whole keymap in one round trip, so it sees keys pressed in any window.
type X11KeyReader struct {
	xu    *xgbutil.XUtil
	codes *keycodeCache
}

// NewX11KeyReader connects to display (empty = $DISPLAY).
func NewX11KeyReader(display string) (*X11KeyReader, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("input: cannot connect to X display %q: %w", display, err)
	}
	keybind.Initialize(xu)
	return &X11KeyReader{xu: xu, codes: newKeycodeCache(xu)}, nil
}

// Held implements KeyReader. Names the server has no keycode for are
// never reported as held.
func (r *X11KeyReader) Held(names []string) ([]string, error) {
	keymap, err := xproto.QueryKeymap(r.xu.Conn()).Reply()
	if err != nil {
		return nil, fmt.Errorf("input: query keymap: %w", err)
	}

	var (
		mask      uint16
		maskKnown bool
		held      []string
	)
	for _, name := range names {
		in, err := core.ParseInput(name)
		if err != nil {
			continue
		}
		switch v := in.(type) {
		case core.Key:
			codes, err := r.codes.lookup(v.Code)
			if err != nil {
				continue
			}
			for _, code := range codes {
				b := byte(code)
				if keymap.Keys[b/8]&(1<<(b%8)) != 0 {
					held = append(held, name)
					break
				}
			}

		case core.Button:
			btn, ok := buttons[v.Code]
			if !ok {
				continue
			}
			if !maskKnown {
				ptr, err := xproto.QueryPointer(r.xu.Conn(), r.xu.RootWin()).Reply()
				if err != nil {
					return nil, fmt.Errorf("input: query pointer: %w", err)
				}
				mask, maskKnown = ptr.Mask, true
			}
			if mask&buttonMasks[btn] != 0 {
				held = append(held, name)
			}
		}
	}
	return held, nil
}

// Close implements KeyReader.
func (r *X11KeyReader) Close() error {
	r.xu.Conn().Close()
	return nil
}
