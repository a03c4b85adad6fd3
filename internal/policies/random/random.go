// Package random samples actions uniformly (or by weight) from the action space.
package random

import (
	"context"
	"math/rand"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/registry"
)

// Policy picks a random action every tick, optionally repeating it for a few
// ticks so movement is visible at high tick rates.
type Policy struct {
	rng     *rand.Rand
	actions []core.Action
	weights []float64
	repeat  int

	current core.Action
	left    int
}

func init() {
	registry.Register("random", func() registry.Policy { return &Policy{repeat: 3} })
}

func (p *Policy) ID() string    { return "random" }
func (p *Policy) Title() string { return "Random exploration" }

// Reset seeds the generator. Seed 0 uses the current time.
func (p *Policy) Reset(params core.PolicyParams) error {
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p.rng = rand.New(rand.NewSource(seed))
	p.actions = params.Actions
	if len(p.actions) == 0 {
		p.actions = []core.Action{params.Default}
	}
	p.weights = nil
	p.left = 0
	return nil
}

// SetWeights biases sampling. Weights are normalized; a length mismatch
// restores uniform sampling.
func (p *Policy) SetWeights(w []float64) {
	if len(w) != len(p.actions) {
		p.weights = nil
		return
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum <= 0 {
		p.weights = nil
		return
	}
	p.weights = make([]float64, len(w))
	for i, v := range w {
		p.weights[i] = v / sum
	}
}

func (p *Policy) Decide(context.Context, core.Observation) (core.Action, error) {
	if p.left > 0 {
		p.left--
		return p.current, nil
	}
	p.current = p.actions[p.sample()]
	p.left = p.repeat - 1
	return p.current, nil
}

func (p *Policy) sample() int {
	if p.weights == nil {
		return p.rng.Intn(len(p.actions))
	}
	threshold := p.rng.Float64()
	var cumulative float64
	for i, prob := range p.weights {
		cumulative += prob
		if threshold <= cumulative {
			return i
		}
	}
	return len(p.weights) - 1
}
