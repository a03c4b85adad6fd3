package core

import "time"

// Tick describes one iteration of the control loop. It is never persisted.
type Tick struct {
	Index     uint64    // boundary index; skipped boundaries leave gaps
	Scheduled time.Time // epoch + index*period
	Started   time.Time // when the tick actually began
}

// Lateness returns how far behind schedule the tick started.
func (t Tick) Lateness() time.Duration {
	return t.Started.Sub(t.Scheduled)
}
