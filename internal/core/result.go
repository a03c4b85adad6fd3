package core

import "time"

// TickResult summarizes one committed tick for observers (recorders, UIs).
type TickResult struct {
	Tick  Tick
	Frame Frame // zero when nothing has been captured yet
	Stale bool

	Action   Action
	Fallback bool // the policy missed its hard deadline or failed
	Latency  time.Duration

	Reward    RewardSignal
	HasReward bool
	EpisodeID string
	Event     EpisodeEvent

	// DispatchErr is set when the action could not be injected.
	DispatchErr error
}
