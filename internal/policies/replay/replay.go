// Package replay plays back the actions of a recorded rollout.
package replay

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/registry"
	"github.com/vovakirdan/pixelpilot/internal/rollout"
)

// Policy returns the recorded action of step N on the Nth decision.
type Policy struct {
	actions  []core.Action
	loop     bool
	fallback core.Action
	pos      int
}

func init() {
	registry.Register("replay", func() registry.Policy { return &Policy{} })
}

func (p *Policy) ID() string    { return "replay" }
func (p *Policy) Title() string { return "Rollout replay" }

// Reset loads the rollout named by params.Rollout.
func (p *Policy) Reset(params core.PolicyParams) error {
	if params.Rollout == "" {
		return fmt.Errorf("replay: no rollout directory configured")
	}
	m, err := rollout.Load(params.Rollout)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	p.actions = make([]core.Action, 0, len(m.Steps))
	for _, s := range m.Steps {
		p.actions = append(p.actions, resolve(params, s, m.Keymap))
	}
	p.loop = params.Loop
	p.fallback = params.Default
	p.pos = 0
	return nil
}

// resolve maps a recorded step to an action-space action: by name first,
// then by an action whose inputs encode to the same vector under the
// recorded keymap (names and aliases), else an ad-hoc action holding one
// key per active dimension.
func resolve(params core.PolicyParams, s rollout.Step, keymap []rollout.KeySpec) core.Action {
	if s.ActionName != "" {
		if a, ok := params.Lookup(s.ActionName); ok {
			return a
		}
	}

	var active []int
	for i, v := range s.Action {
		if v == 1 {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return params.Default
	}

	known := make(map[string]bool)
	for _, a := range params.Actions {
		vec, held := rollout.Encode(keymap, a)
		if len(held) > 0 && slices.Equal(vec, s.Action) {
			return a
		}
		for _, k := range held {
			known[k] = true
		}
	}

	names := make([]string, 0, len(active))
	a := core.Action{}
	for _, i := range active {
		if i >= len(keymap) {
			continue
		}
		spec := keymap[i]
		names = append(names, spec.Name)
		if in, err := core.ParseInput(pickKey(spec, known)); err == nil {
			a.Inputs = append(a.Inputs, in)
		}
	}
	a.Name = strings.Join(names, "+")
	return a
}

// pickKey chooses the key to hold for a recorded dimension, preferring one
// the action space already uses.
func pickKey(spec rollout.KeySpec, known map[string]bool) string {
	for _, alias := range spec.Aliases {
		if known[alias] {
			return alias
		}
	}
	if known[spec.Name] || len(spec.Aliases) == 0 {
		return spec.Name
	}
	return spec.Aliases[0]
}

// Len returns the number of recorded steps.
func (p *Policy) Len() int {
	return len(p.actions)
}

func (p *Policy) Decide(context.Context, core.Observation) (core.Action, error) {
	if p.pos >= len(p.actions) {
		if !p.loop || len(p.actions) == 0 {
			return p.fallback, nil
		}
		p.pos = 0
	}
	a := p.actions[p.pos]
	p.pos++
	return a, nil
}
