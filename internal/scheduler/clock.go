package scheduler

import "time"

// Clock abstracts time for AwaitTick so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the scheduler uses.
type Timer interface {
	Chan() <-chan time.Time
	Stop() bool
}

// RealClock is the wall/monotonic clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

type realTimer struct {
	*time.Timer
}

func (t realTimer) Chan() <-chan time.Time { return t.C }

// nextBoundary returns the index of the first tick boundary at or after now
// that is strictly greater than done. Boundaries are epoch + (i-base)*period.
// The second result is how many boundaries were skipped.
func nextBoundary(epoch time.Time, base uint64, period time.Duration, done uint64, now time.Time) (next uint64, skipped uint64) {
	next = done + 1
	elapsed := now.Sub(epoch)
	if elapsed <= 0 || period <= 0 {
		return next, 0
	}

	// ceil(elapsed / period)
	k := uint64(elapsed / period)
	if elapsed%period != 0 {
		k++
	}
	if due := base + k; due > next {
		return due, due - next
	}
	return next, 0
}

// boundaryTime returns the scheduled start of tick index.
func boundaryTime(epoch time.Time, base uint64, period time.Duration, index uint64) time.Time {
	return epoch.Add(time.Duration(index-base) * period)
}
