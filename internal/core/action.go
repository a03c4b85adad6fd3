package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Device identifies which kind of input device an Input targets.
type Device int

const (
	DeviceKeyboard Device = iota
	DeviceButton          // mouse or controller buttons
	DevicePointer         // absolute pointer motion
)

// String returns a human-readable name for the device.
func (d Device) String() string {
	switch d {
	case DeviceKeyboard:
		return "Keyboard"
	case DeviceButton:
		return "Button"
	case DevicePointer:
		return "Pointer"
	default:
		return "Unknown"
	}
}

// Input is one input event variant carried by an Action.
// The set is open: new devices add a variant without changing Action.
type Input interface {
	Device() Device
	String() string
	isInput()
}

// Key is a keyboard key identified by its key name (e.g. "d", "left_shift").
type Key struct {
	Code string
}

func (Key) isInput()         {}
func (Key) Device() Device   { return DeviceKeyboard }
func (k Key) String() string { return k.Code }

// Button is a mouse or controller button (e.g. "mouse_left").
type Button struct {
	Code string
}

func (Button) isInput()         {}
func (Button) Device() Device   { return DeviceButton }
func (b Button) String() string { return b.Code }

// PointerMove moves the pointer to absolute screen coordinates.
type PointerMove struct {
	X, Y int
}

func (PointerMove) isInput()         {}
func (PointerMove) Device() Device   { return DevicePointer }
func (p PointerMove) String() string { return fmt.Sprintf("pointer:%d,%d", p.X, p.Y) }

// Holdable reports whether the input has press/release semantics.
func Holdable(in Input) bool {
	switch in.(type) {
	case Key, Button:
		return true
	}
	return false
}

// ParseInput converts a config/key-map name into an Input.
// Names prefixed with "mouse_" or "pad_" are buttons, "pointer:X,Y" is a
// pointer move, everything else is a keyboard key.
func ParseInput(name string) (Input, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	switch {
	case name == "":
		return nil, fmt.Errorf("empty input name")
	case strings.HasPrefix(name, "pointer:"):
		xy := strings.SplitN(strings.TrimPrefix(name, "pointer:"), ",", 2)
		if len(xy) != 2 {
			return nil, fmt.Errorf("invalid pointer input %q", name)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(xy[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(xy[1]))
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("invalid pointer input %q", name)
		}
		return PointerMove{X: x, Y: y}, nil
	case strings.HasPrefix(name, "mouse_"), strings.HasPrefix(name, "pad_"):
		return Button{Code: name}, nil
	default:
		return Key{Code: name}, nil
	}
}

// Action is the policy's decision for one tick.
// Actions are immutable values; copy with Clone before modifying Inputs.
type Action struct {
	// Name is the action-space label (e.g. "right", "noop").
	Name string

	// Inputs are held for the action's duration. Inputs held by the previous
	// action that are absent here are released first.
	Inputs []Input

	// Duration is how long Inputs are held within the tick.
	// Zero means hold until the next tick's action replaces them.
	Duration time.Duration
}

// NoOp returns the action that holds nothing.
func NoOp() Action {
	return Action{Name: "noop"}
}

// IsNoOp reports whether the action presses nothing.
func (a Action) IsNoOp() bool {
	return len(a.Inputs) == 0
}

// HoldsUntilNextTick reports whether inputs stay pressed across the tick boundary.
func (a Action) HoldsUntilNextTick() bool {
	return a.Duration == 0
}

// Equal compares two actions by name, duration and inputs (order-sensitive).
func (a Action) Equal(b Action) bool {
	if a.Name != b.Name || a.Duration != b.Duration || len(a.Inputs) != len(b.Inputs) {
		return false
	}
	for i := range a.Inputs {
		if a.Inputs[i] != b.Inputs[i] {
			return false
		}
	}
	return true
}

// Clone creates a copy of this action with its own Inputs slice.
func (a Action) Clone() Action {
	clone := a
	if a.Inputs != nil {
		clone.Inputs = append([]Input(nil), a.Inputs...)
	}
	return clone
}

// String returns a compact description such as "right[d]" or "noop".
func (a Action) String() string {
	if a.IsNoOp() {
		if a.Name == "" {
			return "noop"
		}
		return a.Name
	}
	names := make([]string, len(a.Inputs))
	for i, in := range a.Inputs {
		names[i] = in.String()
	}
	s := a.Name + "[" + strings.Join(names, "+") + "]"
	if a.Duration > 0 {
		s += "/" + a.Duration.String()
	}
	return s
}
