// Package registry provides a global registry for policy factories.
// Policies register themselves in init() functions, allowing the agent
// to discover and instantiate them without hardcoded dependencies.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Policy maps an observation to an action.
// Policies hold no OS resources; the scheduler owns capture and input.
type Policy interface {
	// ID returns a unique identifier for this policy (e.g., "scripted").
	// Used for CLI flags and session records.
	ID() string

	// Title returns a human-readable name for display.
	Title() string

	// Reset prepares the policy for a session.
	// Called once before the first tick; an error aborts the session.
	Reset(params core.PolicyParams) error

	// Decide returns the action for this tick. It should return promptly
	// once ctx is done; late results are discarded by the scheduler.
	Decide(ctx context.Context, obs core.Observation) (core.Action, error)
}

// PolicyInfo contains metadata about a registered policy.
type PolicyInfo struct {
	ID    string
	Title string
}

// Factory is a function that creates a new instance of a policy.
type Factory func() Policy

var (
	factories = make(map[string]Factory)
	titles    = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a policy factory to the registry.
// Panics if a policy with the same ID is already registered.
func Register(id string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[id]; exists {
		panic(fmt.Sprintf("registry: policy %q already registered", id))
	}

	factories[id] = f
	titles[id] = f().Title()
}

// List returns information about all registered policies, sorted by ID.
func List() []PolicyInfo {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]PolicyInfo, 0, len(factories))
	for id := range factories {
		result = append(result, PolicyInfo{
			ID:    id,
			Title: titles[id],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Create instantiates a new policy by its ID.
func Create(id string) (Policy, error) {
	mu.RLock()
	defer mu.RUnlock()

	f, ok := factories[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown policy %q", id)
	}

	return f(), nil
}

// Exists checks if a policy with the given ID is registered.
func Exists(id string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := factories[id]
	return ok
}

// Func adapts a plain function to a Policy. Used for tests and ad-hoc agents.
type Func func(ctx context.Context, obs core.Observation) (core.Action, error)

func (f Func) ID() string                    { return "func" }
func (f Func) Title() string                 { return "Function" }
func (f Func) Reset(core.PolicyParams) error { return nil }
func (f Func) Decide(ctx context.Context, obs core.Observation) (core.Action, error) {
	return f(ctx, obs)
}
