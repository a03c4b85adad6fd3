package input

import (
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// DryRun is an Injector that only logs events. Nothing reaches the OS.
type DryRun struct {
	logger *log.Logger
}

// NewDryRun creates a logging injector. A nil logger discards events.
func NewDryRun(logger *log.Logger) *DryRun {
	return &DryRun{logger: logger}
}

func (d *DryRun) Press(in core.Input) error {
	if d.logger != nil {
		d.logger.Debug("press", "input", in.String(), "device", in.Device().String())
	}
	return nil
}

func (d *DryRun) Release(in core.Input) error {
	if d.logger != nil {
		d.logger.Debug("release", "input", in.String(), "device", in.Device().String())
	}
	return nil
}

func (d *DryRun) Move(p core.PointerMove) error {
	if d.logger != nil {
		d.logger.Debug("move", "x", p.X, "y", p.Y)
	}
	return nil
}

func (d *DryRun) Close() error { return nil }
