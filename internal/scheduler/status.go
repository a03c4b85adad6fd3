package scheduler

import (
	"time"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Counters are cumulative per-session statistics. Per-tick recoverable
// errors end up here instead of being returned.
type Counters struct {
	Ticks      uint64 // committed ticks
	Dispatched uint64 // ActionSink.Dispatch calls

	Overruns     uint64 // ticks whose work ran past the next boundary
	SkippedTicks uint64 // boundaries skipped because of overruns

	DecideOverruns uint64 // hard deadline misses
	SoftMisses     uint64 // soft deadline misses that still made the hard deadline
	DecideErrors   uint64
	DecideBusy     uint64 // ticks where the previous decision was still running
	DefaultActions uint64 // ticks that dispatched the default before any frame

	CaptureFailures uint64
	StaleTicks      int // consecutive CaptureUnavailable ticks

	DispatchFailures            uint64
	ConsecutiveDispatchFailures int
	ReleaseAlls                 uint64

	Rewards uint64 // reward signals consumed
}

// Status is a snapshot for operators.
type Status struct {
	State  State
	Reason core.Reason
	Since  time.Time

	Tick       core.Tick
	LastAction core.Action
	FrameSeq   uint64
	Episode    string
	Latency    time.Duration // last decide latency

	Counters Counters
}
