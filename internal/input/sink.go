// Package input implements the ActionSink: it turns actions into ordered
// press/release events and guarantees that a failed dispatch never leaves
// inputs pressed.
package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Sink is the contract the scheduler consumes.
type Sink interface {
	// Dispatch injects the action. It either succeeds completely or returns
	// an error wrapping core.ErrDispatchFailed after undoing its own presses.
	Dispatch(ctx context.Context, a core.Action) error

	// ReleaseAll releases every input the sink believes is held.
	ReleaseAll(ctx context.Context) error

	// Close releases everything and closes the device.
	Close() error
}

// Injector emits single synthetic input events. Implemented per platform.
type Injector interface {
	Press(in core.Input) error
	Release(in core.Input) error
	Move(p core.PointerMove) error
	Close() error
}

// Keyboard is the Sink used for every backend. It tracks held inputs,
// releases before pressing, and rolls back on failure.
type Keyboard struct {
	inj    Injector
	logger *log.Logger

	mu   sync.Mutex
	held []core.Input

	dispatches atomic.Uint64
	failures   atomic.Uint64
	releases   atomic.Uint64

	// sleep waits for timed holds; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewKeyboard creates a sink over an injector.
func NewKeyboard(inj Injector, logger *log.Logger) *Keyboard {
	return &Keyboard{
		inj:    inj,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Dispatch implements Sink.
func (k *Keyboard) Dispatch(ctx context.Context, a core.Action) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.dispatches.Add(1)
	if err := k.dispatch(ctx, a); err != nil {
		k.failures.Add(1)
		if !errors.Is(err, core.ErrDispatchFailed) {
			err = fmt.Errorf("%w: %w", core.ErrDispatchFailed, err)
		}
		return err
	}
	return nil
}

func (k *Keyboard) dispatch(ctx context.Context, a core.Action) error {
	want := holdables(a.Inputs)

	// Release what the new action no longer holds
	kept := k.held[:0:0]
	for _, in := range k.held {
		if contains(want, in) {
			kept = append(kept, in)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := k.inj.Release(in); err != nil {
			return fmt.Errorf("release %s: %w", in, err)
		}
	}
	k.held = kept

	for _, in := range a.Inputs {
		if p, ok := in.(core.PointerMove); ok {
			if err := k.inj.Move(p); err != nil {
				return fmt.Errorf("move %s: %w", p, err)
			}
		}
	}

	var pressed []core.Input
	for _, in := range want {
		if contains(k.held, in) {
			continue
		}
		if err := ctx.Err(); err != nil {
			k.rollback(pressed)
			return err
		}
		if err := k.inj.Press(in); err != nil {
			k.rollback(pressed)
			return fmt.Errorf("press %s: %w", in, err)
		}
		pressed = append(pressed, in)
	}
	k.held = append(k.held, pressed...)

	if a.Duration <= 0 {
		return nil
	}

	// Timed action: hold, then release within the tick
	sleepErr := k.sleep(ctx, a.Duration)
	if err := k.releaseHeld(); err != nil {
		return err
	}
	return sleepErr
}

// rollback releases inputs pressed during a failed dispatch, newest first.
func (k *Keyboard) rollback(pressed []core.Input) {
	for i := len(pressed) - 1; i >= 0; i-- {
		if err := k.inj.Release(pressed[i]); err != nil && k.logger != nil {
			k.logger.Error("rollback release failed", "input", pressed[i].String(), "error", err)
		}
	}
}

// releaseHeld releases every held input in reverse press order.
// The held set is cleared even when some releases fail.
func (k *Keyboard) releaseHeld() error {
	var errs []error
	for i := len(k.held) - 1; i >= 0; i-- {
		if err := k.inj.Release(k.held[i]); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", k.held[i], err))
		}
	}
	k.held = nil
	return errors.Join(errs...)
}

// ReleaseAll implements Sink.
func (k *Keyboard) ReleaseAll(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.releases.Add(1)
	if err := k.releaseHeld(); err != nil {
		return fmt.Errorf("%w: release all: %w", core.ErrDispatchFailed, err)
	}
	return nil
}

// Held returns a copy of the currently held inputs.
func (k *Keyboard) Held() []core.Input {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]core.Input(nil), k.held...)
}

// Stats returns dispatch calls, failed dispatches and release-all calls.
func (k *Keyboard) Stats() (dispatches, failures, releases uint64) {
	return k.dispatches.Load(), k.failures.Load(), k.releases.Load()
}

// Close implements Sink.
func (k *Keyboard) Close() error {
	releaseErr := k.ReleaseAll(context.Background())
	return errors.Join(releaseErr, k.inj.Close())
}

func holdables(inputs []core.Input) []core.Input {
	out := make([]core.Input, 0, len(inputs))
	for _, in := range inputs {
		if core.Holdable(in) && !contains(out, in) {
			out = append(out, in)
		}
	}
	return out
}

func contains(list []core.Input, in core.Input) bool {
	for _, x := range list {
		if x == in {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
