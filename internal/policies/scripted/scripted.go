// Package scripted replays a fixed sequence of actions, one step per tick.
package scripted

import (
	"context"
	"fmt"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/registry"
)

type step struct {
	action core.Action
	ticks  int
}

// Policy walks the script tick by tick. Once the script ends it returns the
// default action, or starts over when looping.
type Policy struct {
	steps    []step
	loop     bool
	fallback core.Action

	index     int // current step
	remaining int // ticks left in the current step
	episodeID string
}

func init() {
	registry.Register("scripted", func() registry.Policy { return &Policy{} })
}

func (p *Policy) ID() string    { return "scripted" }
func (p *Policy) Title() string { return "Scripted sequence" }

// Reset resolves script action names against the action space.
func (p *Policy) Reset(params core.PolicyParams) error {
	p.steps = p.steps[:0]
	for i, s := range params.Script {
		a, ok := params.Lookup(s.Action)
		if !ok {
			return fmt.Errorf("scripted: step %d: unknown action %q", i, s.Action)
		}
		if s.Ticks < 1 {
			return fmt.Errorf("scripted: step %d: ticks must be >= 1", i)
		}
		p.steps = append(p.steps, step{action: a, ticks: s.Ticks})
	}
	p.loop = params.Loop
	p.fallback = params.Default
	p.rewind()
	return nil
}

func (p *Policy) rewind() {
	p.index = 0
	p.remaining = 0
	if len(p.steps) > 0 {
		p.remaining = p.steps[0].ticks
	}
}

// Decide returns the current step's action and advances by one tick.
// A new episode restarts the script.
func (p *Policy) Decide(_ context.Context, obs core.Observation) (core.Action, error) {
	if obs.EpisodeID != "" && obs.EpisodeID != p.episodeID {
		if p.episodeID != "" {
			p.rewind()
		}
		p.episodeID = obs.EpisodeID
	}

	if p.index >= len(p.steps) {
		return p.fallback, nil
	}

	a := p.steps[p.index].action
	p.remaining--
	if p.remaining <= 0 {
		p.index++
		if p.index >= len(p.steps) && p.loop {
			p.index = 0
		}
		if p.index < len(p.steps) {
			p.remaining = p.steps[p.index].ticks
		}
	}
	return a, nil
}
