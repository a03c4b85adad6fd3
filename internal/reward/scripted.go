package reward

import (
	"sync"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Scripted replays a fixed schedule: entry i is returned by the i-th Poll,
// nil entries mean "nothing arrived". After the schedule ends Poll is empty.
type Scripted struct {
	mu       sync.Mutex
	schedule []*core.RewardSignal
	next     int
	closed   bool
}

// NewScripted creates a scripted channel.
func NewScripted(schedule ...*core.RewardSignal) *Scripted {
	return &Scripted{schedule: schedule}
}

// Poll implements Channel.
func (s *Scripted) Poll() (core.RewardSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.next >= len(s.schedule) {
		return core.RewardSignal{}, false
	}
	sig := s.schedule[s.next]
	s.next++
	if sig == nil {
		return core.RewardSignal{}, false
	}
	return *sig, true
}

// Closed reports whether Close was called.
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements Channel.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
