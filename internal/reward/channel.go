// Package reward implements the consumer side of the game mod/API reward
// channel: a buffer that keeps the latest scalar reward and queues episode
// boundaries, a JSON-lines socket listener feeding it, and scripted channels
// for tests.
package reward

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/buffer"
	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Channel is the contract the scheduler consumes.
type Channel interface {
	// Poll returns the next signal without blocking, or false when nothing
	// new arrived since the last poll.
	Poll() (core.RewardSignal, bool)

	// Close releases the transport.
	Close() error
}

// Buffer stores the latest scalar reward (last-value-wins) and a bounded FIFO
// of boundary signals (terminal or reset) that are delivered first and are
// never dropped under the default block policy.
type Buffer struct {
	latest     buffer.Slot[core.RewardSignal]
	boundaries *buffer.Queue[core.RewardSignal]

	mu     sync.Mutex // serializes producers
	lastTS time.Time

	published atomic.Uint64
	discarded atomic.Uint64
	now       func() time.Time
}

// NewBuffer creates a buffer whose boundary queue holds capacity signals.
func NewBuffer(capacity int, overflow buffer.Overflow) *Buffer {
	return &Buffer{
		boundaries: buffer.NewQueue[core.RewardSignal](capacity, overflow),
		now:        time.Now,
	}
}

// Publish stores a signal. Scalar signals older than the newest accepted
// timestamp are discarded; boundary signals are never discarded, their
// timestamp is clamped instead so delivery stays monotonic.
// With the block overflow policy Publish waits for queue space until ctx is done.
func (b *Buffer) Publish(ctx context.Context, sig core.RewardSignal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sig.Timestamp.IsZero() {
		sig.Timestamp = b.now()
	}

	if sig.Timestamp.Before(b.lastTS) {
		if !sig.IsBoundary() {
			b.discarded.Add(1)
			return nil
		}
		sig.Timestamp = b.lastTS
	}

	if sig.IsBoundary() {
		// An unpolled scalar goes ahead of the boundary so it still counts
		// toward the episode it belongs to.
		if pending, ok := b.latest.Take(); ok {
			if err := b.boundaries.Push(ctx, pending); err != nil {
				b.latest.Store(pending)
				return err
			}
		}
		if err := b.boundaries.Push(ctx, sig); err != nil {
			return err
		}
	} else {
		b.latest.Store(sig)
	}

	b.lastTS = sig.Timestamp
	b.published.Add(1)
	return nil
}

// Poll implements Channel. The FIFO, holding boundaries and the scalars
// that preceded them, is drained before the scalar slot.
func (b *Buffer) Poll() (core.RewardSignal, bool) {
	if sig, ok := b.boundaries.TryPop(); ok {
		return sig, true
	}
	return b.latest.Take()
}

// Stats reports accepted, discarded (out of order) and dropped (queue
// overflow) signals.
func (b *Buffer) Stats() (published, discarded, dropped uint64) {
	return b.published.Load(), b.discarded.Load(), b.boundaries.Dropped()
}

// Pending returns the number of queued boundary signals.
func (b *Buffer) Pending() int {
	return b.boundaries.Len()
}

// Close wakes producers blocked on a full boundary queue.
func (b *Buffer) Close() error {
	b.boundaries.Close()
	return nil
}

// Silent is a Channel that never delivers anything. Used when no reward
// transport is configured; the scheduler then treats reward as 0.
type Silent struct{}

// Poll implements Channel.
func (Silent) Poll() (core.RewardSignal, bool) { return core.RewardSignal{}, false }

// Close implements Channel.
func (Silent) Close() error { return nil }
