package core

import "errors"

// Error taxonomy. Per-tick errors are absorbed by the scheduler as counters;
// only threshold crossings surface as state transitions.
var (
	// ErrCaptureUnavailable: the target window is missing, minimized or occluded.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrDispatchFailed: an action could not be injected atomically.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrSourceLost: capture stayed unavailable for too many ticks.
	ErrSourceLost = errors.New("source lost")

	// ErrConsecutiveDispatchFailure: dispatch failed too many ticks in a row.
	ErrConsecutiveDispatchFailure = errors.New("consecutive dispatch failure")

	// ErrConfiguration: invalid configuration; the loop never starts.
	ErrConfiguration = errors.New("configuration error")
)

// Reason explains why the scheduler is in its current state.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonOperator
	ReasonSourceLost
	ReasonConsecutiveDispatchFailure
)

// String returns a human-readable name for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonOperator:
		return "Operator"
	case ReasonSourceLost:
		return "SourceLost"
	case ReasonConsecutiveDispatchFailure:
		return "ConsecutiveDispatchFailure"
	default:
		return "Unknown"
	}
}

// Fatal reports whether the reason requires operator intervention.
func (r Reason) Fatal() bool {
	return r == ReasonSourceLost || r == ReasonConsecutiveDispatchFailure
}

// Err returns the sentinel error matching a fatal reason, or nil.
func (r Reason) Err() error {
	switch r {
	case ReasonSourceLost:
		return ErrSourceLost
	case ReasonConsecutiveDispatchFailure:
		return ErrConsecutiveDispatchFailure
	default:
		return nil
	}
}

// Process exit codes.
const (
	ExitOK                         = 0
	ExitFailure                    = 1
	ExitSourceLost                 = 2
	ExitConsecutiveDispatchFailure = 3
	ExitConfigurationError         = 4
)

// ExitCode maps an error from a session to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfiguration):
		return ExitConfigurationError
	case errors.Is(err, ErrSourceLost):
		return ExitSourceLost
	case errors.Is(err, ErrConsecutiveDispatchFailure):
		return ExitConsecutiveDispatchFailure
	default:
		return ExitFailure
	}
}
