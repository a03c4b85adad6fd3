package core

import "time"

// EpisodeEvent is the result of feeding a reward signal to the episode manager.
type EpisodeEvent int

const (
	EpisodeNone       EpisodeEvent = iota // signal ignored (e.g. duplicate terminal)
	EpisodeStarted                        // a new episode opened
	EpisodeContinued                      // signal belongs to the open episode
	EpisodeTerminated                     // the open episode closed
)

// String returns a human-readable name for the event.
func (e EpisodeEvent) String() string {
	switch e {
	case EpisodeNone:
		return "None"
	case EpisodeStarted:
		return "Started"
	case EpisodeContinued:
		return "Continued"
	case EpisodeTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Episode outcomes.
const (
	OutcomeTerminal   = "terminal"   // closed by a terminal signal
	OutcomeReset      = "reset"      // closed by an explicit reset
	OutcomeSuperseded = "superseded" // a new episode id arrived while open
	OutcomeAborted    = "aborted"    // session stopped with the episode open
)

// Episode is one bounded play session from reset to terminal signal.
type Episode struct {
	ID      string
	Start   time.Time
	End     time.Time // zero while open; written once
	Outcome string
	Return  float64 // sum of consumed rewards
	Steps   int     // reward signals consumed
}

// Open reports whether the episode has not ended yet.
func (e Episode) Open() bool {
	return e.End.IsZero()
}

// Duration returns the episode length, or the elapsed time until now if open.
func (e Episode) Duration(now time.Time) time.Duration {
	if e.Open() {
		return now.Sub(e.Start)
	}
	return e.End.Sub(e.Start)
}
