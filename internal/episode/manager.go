// Package episode tracks the episode lifecycle from reward signals.
package episode

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

const (
	defaultHistory   = 100
	defaultClosedIDs = 4096
)

// Options configures a Manager.
type Options struct {
	// History is how many closed episodes are kept in memory.
	History int

	// ClosedIDs is how many closed episode ids are remembered so late
	// signals for them are ignored. A signal for an id older than that
	// opens a new episode.
	ClosedIDs int

	// NewID names episodes opened by an operator reset or an id-less reset
	// signal. Defaults to "episode-N".
	NewID func() string

	// OnClose is called, outside the lock, for every closed episode.
	OnClose func(core.Episode)

	Now    func() time.Time
	Logger *log.Logger
}

// Manager turns reward signals into episode events. Safe for concurrent use;
// the scheduler is the only writer.
type Manager struct {
	opts Options

	mu        sync.Mutex
	current   *core.Episode
	history   []core.Episode
	closed    map[string]bool
	closedIDs []string // FIFO of ids in closed, oldest first
	counter   int

	started    int
	terminated int
}

// NewManager creates a manager with no open episode.
func NewManager(opts Options) *Manager {
	if opts.History <= 0 {
		opts.History = defaultHistory
	}
	if opts.ClosedIDs <= 0 {
		opts.ClosedIDs = defaultClosedIDs
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		opts:   opts,
		closed: make(map[string]bool),
	}
	if m.opts.NewID == nil {
		m.opts.NewID = func() string {
			m.counter++
			return fmt.Sprintf("episode-%d", m.counter)
		}
	}
	return m
}

// Observe feeds one reward signal and reports what happened.
//
// A new episode id opens an episode (closing a still-open one as
// superseded). A terminal flag closes the open episode. Signals for one of
// the last Options.ClosedIDs closed episodes, including duplicate
// terminals, are no-ops.
func (m *Manager) Observe(sig core.RewardSignal) core.EpisodeEvent {
	var done []core.Episode
	ev := m.observe(sig, &done)
	m.notify(done)
	return ev
}

func (m *Manager) observe(sig core.RewardSignal, done *[]core.Episode) core.EpisodeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := sig.Timestamp
	if at.IsZero() {
		at = m.opts.Now()
	}

	id := sig.EpisodeID
	if sig.Reset {
		if m.current != nil {
			*done = append(*done, m.closeLocked(at, core.OutcomeReset))
		}
		if id == "" || m.closed[id] {
			id = m.opts.NewID()
		}
		m.openLocked(id, at)
		return m.applyLocked(sig, at, done, core.EpisodeStarted)
	}

	if id == "" {
		if m.current == nil {
			return core.EpisodeNone
		}
		id = m.current.ID
	}

	if m.closed[id] {
		return core.EpisodeNone
	}

	if m.current != nil && m.current.ID == id {
		return m.applyLocked(sig, at, done, core.EpisodeContinued)
	}

	if m.current != nil {
		*done = append(*done, m.closeLocked(at, core.OutcomeSuperseded))
	}
	m.openLocked(id, at)
	return m.applyLocked(sig, at, done, core.EpisodeStarted)
}

// applyLocked accumulates the reward into the open episode and closes it on
// a terminal flag.
func (m *Manager) applyLocked(sig core.RewardSignal, at time.Time, done *[]core.Episode, ev core.EpisodeEvent) core.EpisodeEvent {
	m.current.Return += sig.Reward
	m.current.Steps++
	if sig.Terminal {
		*done = append(*done, m.closeLocked(at, core.OutcomeTerminal))
		return core.EpisodeTerminated
	}
	return ev
}

func (m *Manager) openLocked(id string, at time.Time) {
	m.current = &core.Episode{ID: id, Start: at}
	m.started++
	if m.opts.Logger != nil {
		m.opts.Logger.Info("episode started", "episode", id)
	}
}

func (m *Manager) closeLocked(at time.Time, outcome string) core.Episode {
	ep := *m.current
	if at.Before(ep.Start) {
		at = ep.Start
	}
	ep.End = at
	ep.Outcome = outcome
	m.current = nil
	if outcome == core.OutcomeTerminal {
		m.terminated++
	}

	m.history = append(m.history, ep)
	if len(m.history) > m.opts.History {
		m.history = m.history[len(m.history)-m.opts.History:]
	}

	m.closed[ep.ID] = true
	m.closedIDs = append(m.closedIDs, ep.ID)
	if len(m.closedIDs) > m.opts.ClosedIDs {
		delete(m.closed, m.closedIDs[0])
		m.closedIDs = m.closedIDs[1:]
	}

	if m.opts.Logger != nil {
		m.opts.Logger.Info("episode closed",
			"episode", ep.ID,
			"outcome", outcome,
			"return", ep.Return,
			"steps", ep.Steps,
			"duration", ep.Duration(at))
	}
	return ep
}

func (m *Manager) notify(done []core.Episode) {
	if m.opts.OnClose == nil {
		return
	}
	for _, ep := range done {
		m.opts.OnClose(ep)
	}
}

// Reset handles an operator reset: the open episode closes with outcome
// "reset" and a fresh one opens.
func (m *Manager) Reset() core.EpisodeEvent {
	var done []core.Episode
	m.mu.Lock()
	now := m.opts.Now()
	if m.current != nil {
		done = append(done, m.closeLocked(now, core.OutcomeReset))
	}
	m.openLocked(m.opts.NewID(), now)
	m.mu.Unlock()

	m.notify(done)
	return core.EpisodeStarted
}

// Abort closes the open episode, if any, with outcome "aborted".
func (m *Manager) Abort() {
	var done []core.Episode
	m.mu.Lock()
	if m.current != nil {
		done = append(done, m.closeLocked(m.opts.Now(), core.OutcomeAborted))
	}
	m.mu.Unlock()
	m.notify(done)
}

// Current returns the open episode.
func (m *Manager) Current() (core.Episode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return core.Episode{}, false
	}
	return *m.current, true
}

// CurrentID returns the open episode id, or "".
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.ID
}

// History returns closed episodes, oldest first.
func (m *Manager) History() []core.Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Episode(nil), m.history...)
}

// Counts returns how many episodes started and terminated normally.
func (m *Manager) Counts() (started, terminated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, m.terminated
}
