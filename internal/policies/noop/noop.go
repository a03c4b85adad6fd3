// Package noop provides the idle policy: it always returns the default action.
package noop

import (
	"context"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/registry"
)

// Policy holds the default action forever.
type Policy struct {
	action core.Action
}

func init() {
	registry.Register("noop", func() registry.Policy { return New() })
}

// New creates an idle policy.
func New() *Policy {
	return &Policy{action: core.NoOp()}
}

func (p *Policy) ID() string    { return "noop" }
func (p *Policy) Title() string { return "Idle (default action)" }

func (p *Policy) Reset(params core.PolicyParams) error {
	p.action = params.Default
	if p.action.Name == "" {
		p.action = core.NoOp()
	}
	return nil
}

func (p *Policy) Decide(context.Context, core.Observation) (core.Action, error) {
	return p.action, nil
}
