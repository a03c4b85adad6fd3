// Package core holds the data model shared by every part of the agent runtime:
// frames, reward signals, actions, ticks and episodes, plus the error taxonomy.
// It has no dependencies on capture, input or UI packages so that policies and
// tests can use it freely.
package core

import "fmt"

// Rect is an axis-aligned screen region in pixels, used for capture regions.
type Rect struct {
	X int `yaml:"left"`
	Y int `yaml:"top"`
	W int `yaml:"width"`
	H int `yaml:"height"`
}

// NewRect creates a new rectangle with the given position and dimensions.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Right returns the x-coordinate of the right edge.
func (r Rect) Right() int {
	return r.X + r.W
}

// Bottom returns the y-coordinate of the bottom edge.
func (r Rect) Bottom() int {
	return r.Y + r.H
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersect returns the overlapping part of two rectangles, or the zero
// Rect when they do not overlap.
func (r Rect) Intersect(other Rect) Rect {
	x0, y0 := max(r.X, other.X), max(r.Y, other.Y)
	x1, y1 := min(r.Right(), other.Right()), min(r.Bottom(), other.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// String formats the rectangle as an X geometry, e.g. "1280x720+320+212".
func (r Rect) String() string {
	return fmt.Sprintf("%dx%d%+d%+d", r.W, r.H, r.X, r.Y)
}
