package core

import "time"

// RewardSignal is one message from the game mod/API.
// It is used for reward and episode bookkeeping only, never as observation.
type RewardSignal struct {
	Timestamp time.Time          `json:"ts"`
	Reward    float64            `json:"reward"`
	EpisodeID string             `json:"episode_id"`
	Terminal  bool               `json:"terminal"`
	Reset     bool               `json:"reset,omitempty"` // explicit reset event from the mod
	Info      map[string]float64 `json:"info,omitempty"`
}

// IsBoundary reports whether the signal marks an episode boundary.
// Boundary signals must never be dropped by buffers.
func (s RewardSignal) IsBoundary() bool {
	return s.Terminal || s.Reset
}
