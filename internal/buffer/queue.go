package buffer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("buffer: queue closed")

// Overflow selects what Push does when the queue is full.
type Overflow int

const (
	// OverflowBlock makes the producer wait for space. Nothing is lost.
	OverflowBlock Overflow = iota

	// OverflowDropOldest discards the oldest queued item to make room.
	OverflowDropOldest
)

// String returns the config name of the policy.
func (o Overflow) String() string {
	switch o {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop_oldest"
	default:
		return "unknown"
	}
}

// ParseOverflow converts a config value into an Overflow policy.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return OverflowBlock, nil
	case "drop_oldest", "drop-oldest":
		return OverflowDropOldest, nil
	default:
		return OverflowBlock, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Queue is a bounded FIFO backed by a buffered channel.
type Queue[T any] struct {
	items    chan T
	overflow Overflow
	dropped  atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue[T any](capacity int, overflow Overflow) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items:    make(chan T, capacity),
		overflow: overflow,
		done:     make(chan struct{}),
	}
}

// Push appends v. With OverflowBlock it waits for space until ctx is done
// or the queue is closed; with OverflowDropOldest it never waits.
func (q *Queue[T]) Push(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	if q.overflow == OverflowDropOldest {
		for {
			select {
			case q.items <- v:
				return nil
			default:
			}
			// Full: drop oldest and retry
			select {
			case <-q.items:
				q.dropped.Add(1)
			default:
			}
		}
	}

	select {
	case q.items <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// TryPop removes and returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.items:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Pop waits for the oldest item. It returns false once the queue is closed
// and drained, or when ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, bool) {
	select {
	case v := <-q.items:
		return v, true
	default:
	}

	select {
	case v := <-q.items:
		return v, true
	case <-ctx.Done():
	case <-q.done:
	}
	return q.TryPop()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Dropped returns how many items OverflowDropOldest has discarded.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Close wakes blocked producers. Queued items remain poppable.
// Safe to call multiple times.
func (q *Queue[T]) Close() {
	q.doneOnce.Do(func() {
		close(q.done)
	})
}
