package core

import "time"

// Observation is everything a policy sees for one tick.
type Observation struct {
	Tick Tick

	// Frame is the latest captured frame. It is the zero Frame when nothing
	// has been captured yet.
	Frame Frame

	// Stale is set when Frame is the same frame the previous tick saw.
	Stale bool

	// Reward is the signal consumed this tick, valid when HasReward is set.
	Reward    RewardSignal
	HasReward bool

	// LastReward is the latest signal consumed so far, this tick included.
	// It is the zero signal until the first one arrives.
	LastReward RewardSignal

	// EpisodeID is the open episode, empty between episodes.
	EpisodeID string

	// Event is what the previous tick's commit, or an operator reset since
	// then, did to the episode.
	Event EpisodeEvent

	// Previous is the action dispatched on the last tick.
	Previous Action
}

// ScriptStep holds one named action for a number of ticks.
type ScriptStep struct {
	Action string `yaml:"action" json:"action"`
	Ticks  int    `yaml:"ticks" json:"ticks"`
}

// PolicyParams configures a policy instance before the session starts.
type PolicyParams struct {
	Actions []Action // the action space, noop first
	Default Action   // used when a policy has nothing to say
	Seed    int64
	Script  []ScriptStep
	Loop    bool
	Rollout string        // recording directory for replay
	Period  time.Duration // tick period of the session
}

// Lookup returns the action named name from the action space.
func (p PolicyParams) Lookup(name string) (Action, bool) {
	for _, a := range p.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}
