// Package buffer provides the two hand-off structures between producer
// goroutines and the control loop: a single-slot last-value-wins Slot and a
// bounded FIFO Queue for events that must not be lost.
package buffer

import "sync/atomic"

// Slot is a single-writer/single-reader last-value-wins handoff.
// A Store overwrites any unread value; no locking beyond an atomic pointer swap.
type Slot[T any] struct {
	p      atomic.Pointer[T]
	writes atomic.Uint64
}

// Store publishes v, replacing any previous value.
func (s *Slot[T]) Store(v T) {
	s.p.Store(&v)
	s.writes.Add(1)
}

// Load returns the latest value without consuming it.
func (s *Slot[T]) Load() (T, bool) {
	if p := s.p.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Take returns the latest value and empties the slot, so each value is
// observed at most once.
func (s *Slot[T]) Take() (T, bool) {
	if p := s.p.Swap(nil); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Writes returns the number of Store calls so far.
func (s *Slot[T]) Writes() uint64 {
	return s.writes.Load()
}
