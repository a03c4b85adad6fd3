package tui

import (
	"fmt"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// halfBlock draws two vertically stacked pixels per cell: the foreground
// colours the top half, the background the bottom half.
const halfBlock = "▀"

// fitFrame returns the largest cols x rows (rows counted in cells, two pixels
// each) that fits maxW x maxH cells while keeping the frame's aspect ratio.
func fitFrame(fw, fh, maxW, maxH int) (cols, rows int) {
	if fw <= 0 || fh <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	cols = maxW
	pixRows := cols * fh / fw
	if pixRows > maxH*2 {
		pixRows = maxH * 2
		cols = pixRows * fw / fh
	}
	rows = (pixRows + 1) / 2
	if cols < 1 || rows < 1 {
		return 0, 0
	}
	return cols, rows
}

// RenderFrame converts a captured frame into half-block terminal art that
// fits within maxW x maxH cells. Non-RGBA or empty frames render as "".
func RenderFrame(f core.Frame, maxW, maxH int) string {
	img := f.Image()
	if img == nil {
		return ""
	}
	cols, rows := fitFrame(f.Width, f.Height, maxW, maxH)
	if cols == 0 {
		return ""
	}
	small := transform.Resize(img, cols, rows*2, transform.NearestNeighbor)

	var sb strings.Builder
	sb.Grow(rows * (cols + 1))
	for y := range rows {
		if y > 0 {
			sb.WriteRune('\n')
		}
		for x := range cols {
			top := small.RGBAAt(x, y*2)
			bottom := small.RGBAAt(x, y*2+1)
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", top.R, top.G, top.B))).
				Background(lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", bottom.R, bottom.G, bottom.B)))
			sb.WriteString(style.Render(halfBlock))
		}
	}
	return sb.String()
}
