// Package teleop records a person playing: every tick the keys they hold
// become the tick's action, so the rollout recorder stores human play in the
// same format as agent play. Nothing is injected.
package teleop

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/config"
	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/input"
	"github.com/vovakirdan/pixelpilot/internal/rollout"
)

// ID names teleop sessions in the session store and rollout header.
const ID = "teleop"

// Keymap converts configured bindings into recorded dimensions.
func Keymap(bindings []config.KeyBinding) []rollout.KeySpec {
	specs := make([]rollout.KeySpec, 0, len(bindings))
	for _, b := range bindings {
		aliases := make([]string, 0, len(b.Keys))
		for _, k := range b.Keys {
			aliases = append(aliases, strings.ToLower(strings.TrimSpace(k)))
		}
		slices.Sort(aliases)
		specs = append(specs, rollout.KeySpec{Name: b.Name, Aliases: slices.Compact(aliases)})
	}
	return specs
}

// Policy reports the held keys as the action. Holding the stop key calls
// the OnStop callback once.
type Policy struct {
	reader  input.KeyReader
	keymap  []rollout.KeySpec
	watch   []string
	stopKey string
	logger  *log.Logger

	mu      sync.Mutex
	onStop  func()
	stopped bool
}

// New creates a teleop policy watching every alias of keymap plus stopKey.
func New(reader input.KeyReader, keymap []rollout.KeySpec, stopKey string, logger *log.Logger) *Policy {
	stopKey = strings.ToLower(strings.TrimSpace(stopKey))
	var watch []string
	for _, k := range keymap {
		watch = append(watch, k.Aliases...)
	}
	if stopKey != "" {
		watch = append(watch, stopKey)
	}
	slices.Sort(watch)
	return &Policy{
		reader:  reader,
		keymap:  keymap,
		watch:   slices.Compact(watch),
		stopKey: stopKey,
		logger:  logger,
	}
}

// OnStop sets the function called when the stop key is first seen held.
func (p *Policy) OnStop(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStop = fn
}

func (p *Policy) ID() string    { return ID }
func (p *Policy) Title() string { return "Human teleoperation" }

// Reset implements registry.Policy. The keymap is fixed at construction.
func (p *Policy) Reset(core.PolicyParams) error {
	if len(p.keymap) == 0 {
		return fmt.Errorf("teleop: empty keymap")
	}
	return nil
}

// Decide reads the held keys. A read error is returned as is, so the tick
// falls back to the previous action.
func (p *Policy) Decide(_ context.Context, _ core.Observation) (core.Action, error) {
	held, err := p.reader.Held(p.watch)
	if err != nil {
		return core.Action{}, err
	}

	var keys []string
	for _, name := range held {
		if name == p.stopKey {
			p.stop()
			continue
		}
		keys = append(keys, name)
	}
	if len(keys) == 0 {
		return core.NoOp(), nil
	}

	a := core.Action{Name: p.label(keys)}
	for _, k := range keys {
		if in, err := core.ParseInput(k); err == nil {
			a.Inputs = append(a.Inputs, in)
		}
	}
	return a, nil
}

// label joins the names of the dimensions the held keys set.
func (p *Policy) label(keys []string) string {
	var names []string
	for _, spec := range p.keymap {
		for _, k := range keys {
			if k == spec.Name || slices.Contains(spec.Aliases, k) {
				names = append(names, spec.Name)
				break
			}
		}
	}
	if len(names) == 0 {
		return strings.Join(keys, "+")
	}
	return strings.Join(names, "+")
}

func (p *Policy) stop() {
	p.mu.Lock()
	fn := p.onStop
	first := !p.stopped
	p.stopped = true
	p.mu.Unlock()

	if !first {
		return
	}
	if p.logger != nil {
		p.logger.Info("stop key held, ending recording", "key", p.stopKey)
	}
	if fn != nil {
		fn()
	}
}
