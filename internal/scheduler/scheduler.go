// Package scheduler runs the fixed-rate perception-action loop:
// AwaitTick, Capture, Decide, Act, Commit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/pixelpilot/internal/config"
	"github.com/vovakirdan/pixelpilot/internal/core"
)

// FrameSource returns the latest frame without blocking. An error wrapping
// core.ErrCaptureUnavailable means the target cannot be captured right now.
type FrameSource interface {
	Capture() (core.Frame, error)
	Close() error
}

// RewardChannel returns the next reward signal, if any, without blocking.
type RewardChannel interface {
	Poll() (core.RewardSignal, bool)
	Close() error
}

// ActionSink injects actions. Dispatch is atomic: on error nothing it
// pressed stays pressed.
type ActionSink interface {
	Dispatch(ctx context.Context, a core.Action) error
	ReleaseAll(ctx context.Context) error
	Close() error
}

// Policy decides one action per tick.
type Policy interface {
	Decide(ctx context.Context, obs core.Observation) (core.Action, error)
}

// Episodes receives every consumed reward signal at commit time.
type Episodes interface {
	Observe(sig core.RewardSignal) core.EpisodeEvent
	Reset() core.EpisodeEvent
	CurrentID() string
	Abort()
}

// Config holds the timing and escalation limits of a session.
type Config struct {
	Period          time.Duration
	SoftDeadline    time.Duration
	HardDeadline    time.Duration
	DispatchTimeout time.Duration

	StaleThreshold           int
	DispatchFailureThreshold int

	// Default is dispatched before the first frame and when a decision
	// fails with no previous action to repeat.
	Default core.Action
}

// FromConfig derives scheduler settings from a validated config.
func FromConfig(cfg config.Config) (Config, error) {
	space, err := cfg.ActionSpace()
	if err != nil {
		return Config{}, err
	}
	def, ok := config.LookupAction(space, cfg.DefaultAction)
	if !ok {
		return Config{}, fmt.Errorf("%w: default_action %q is not in the action space", core.ErrConfiguration, cfg.DefaultAction)
	}
	return Config{
		Period:                   cfg.TickPeriod(),
		SoftDeadline:             cfg.SoftDeadline(),
		HardDeadline:             cfg.HardDeadline(),
		DispatchTimeout:          cfg.DispatchTimeout(),
		StaleThreshold:           cfg.StaleTickThreshold,
		DispatchFailureThreshold: cfg.DispatchFailureThreshold,
		Default:                  def,
	}, nil
}

func (c Config) validate() error {
	var errs []error
	if c.Period <= 0 {
		errs = append(errs, errors.New("tick period must be positive"))
	}
	if c.SoftDeadline <= 0 || c.HardDeadline < c.SoftDeadline {
		errs = append(errs, errors.New("decide deadlines must satisfy 0 < soft <= hard"))
	}
	if c.DispatchTimeout <= 0 {
		errs = append(errs, errors.New("dispatch timeout must be positive"))
	}
	if c.StaleThreshold < 1 || c.DispatchFailureThreshold < 1 {
		errs = append(errs, errors.New("thresholds must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdResetEpisode
)

type decision struct {
	action core.Action
	err    error
}

// Scheduler owns the control loop. Capture/Decide/Act/Commit run on the
// goroutine that calls Run; everything else only sends commands.
type Scheduler struct {
	cfg      Config
	clock    Clock
	source   FrameSource
	rewards  RewardChannel
	sink     ActionSink
	policy   Policy
	episodes Episodes
	logger   *log.Logger

	commands chan commandKind
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	status  Status
	running bool
	onTick  []func(core.TickResult)
	onState []func(State, core.Reason)

	// Loop state, owned by Run
	epoch     time.Time
	epochBase uint64
	lastFrame core.Frame
	prevSeq   uint64
	prev      core.Action
	hasPrev   bool
	inflight  chan decision

	lastReward core.RewardSignal
	lastEvent  core.EpisodeEvent
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithEpisodes attaches the episode tracker.
func WithEpisodes(e Episodes) Option {
	return func(s *Scheduler) { s.episodes = e }
}

// New validates cfg and creates an Idle scheduler.
func New(cfg Config, source FrameSource, rewards RewardChannel, sink ActionSink, policy Policy, opts ...Option) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if source == nil || rewards == nil || sink == nil || policy == nil {
		return nil, fmt.Errorf("%w: scheduler needs a frame source, reward channel, action sink and policy", core.ErrConfiguration)
	}
	s := &Scheduler{
		cfg:      cfg,
		clock:    RealClock{},
		source:   source,
		rewards:  rewards,
		sink:     sink,
		policy:   policy,
		commands: make(chan commandKind, 16),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	s.status = Status{State: StateIdle, Since: s.clock.Now()}
	return s, nil
}

// OnTick registers an observer called after every committed tick, on the
// loop goroutine. Observers must return quickly.
func (s *Scheduler) OnTick(fn func(core.TickResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTick = append(s.onTick, fn)
}

// OnStateChange registers an observer for state transitions.
func (s *Scheduler) OnStateChange(fn func(State, core.Reason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = append(s.onState, fn)
}

// Status returns a snapshot of the current state and counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pause asks the loop to pause at the next tick boundary.
func (s *Scheduler) Pause() error { return s.send(cmdPause) }

// Resume asks a paused loop to continue.
func (s *Scheduler) Resume() error { return s.send(cmdResume) }

// ResetEpisode asks the loop to close the open episode and start a new one.
func (s *Scheduler) ResetEpisode() error { return s.send(cmdResetEpisode) }

// Stop asks the loop to tear down at the next tick boundary. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Command errors returned by Pause, Resume and ResetEpisode.
var (
	ErrStopped   = errors.New("scheduler: stopped")
	ErrQueueFull = errors.New("scheduler: command queue full")
)

func (s *Scheduler) send(c commandKind) error {
	select {
	case <-s.stop:
		return ErrStopped
	default:
	}
	select {
	case s.commands <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run drives the loop until Stop is called or ctx is done. It returns nil
// for a normal stop, or the fatal reason's error when the session was
// stopped while paused by SourceLost or ConsecutiveDispatchFailure.
// A Scheduler runs once.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.status.State != StateIdle {
		s.mu.Unlock()
		return errors.New("scheduler: already started")
	}
	s.running = true
	s.mu.Unlock()

	s.epoch = s.clock.Now()
	s.epochBase = 0
	s.setState(StateRunning, core.ReasonNone)
	s.logger.Info("scheduler started",
		"period", s.cfg.Period,
		"soft_deadline", s.cfg.SoftDeadline,
		"hard_deadline", s.cfg.HardDeadline)

	var next uint64
	for {
		switch s.Status().State {
		case StateRunning:
			scheduled := boundaryTime(s.epoch, s.epochBase, s.cfg.Period, next)
			if !s.awaitTick(ctx, scheduled) {
				continue // paused or stopping
			}
			if s.Status().State != StateRunning {
				continue
			}

			s.runTick(ctx, core.Tick{Index: next, Scheduled: scheduled, Started: s.clock.Now()})

			n, skipped := nextBoundary(s.epoch, s.epochBase, s.cfg.Period, next, s.clock.Now())
			if skipped > 0 {
				s.update(func(st *Status) {
					st.Counters.Overruns++
					st.Counters.SkippedTicks += skipped
				})
				s.logger.Warn("tick overrun", "tick", next, "skipped", skipped, "overruns", s.Status().Counters.Overruns)
			}
			next = n

		case StatePaused:
			if !s.awaitCommand(ctx) {
				continue
			}
			if s.Status().State == StateRunning {
				// Rebase so resume does not count the pause as overrun
				s.epoch = s.clock.Now()
				s.epochBase = next
			}

		case StateStopped:
			return s.teardown()
		}
	}
}

// awaitTick blocks until the scheduled boundary. Stop requests and
// queued commands take priority over a due boundary; false means the tick
// must not run.
func (s *Scheduler) awaitTick(ctx context.Context, at time.Time) bool {
	for {
		select {
		case <-s.stop:
			s.setState(StateStopped, s.Status().Reason)
			return false
		case <-ctx.Done():
			s.setState(StateStopped, s.Status().Reason)
			return false
		default:
		}

		select {
		case c := <-s.commands:
			if !s.handleCommand(ctx, c) {
				return false
			}
			continue
		default:
		}

		wait := at.Sub(s.clock.Now())
		if wait <= 0 {
			return true
		}

		timer := s.clock.NewTimer(wait)
		select {
		case <-timer.Chan():
			return true
		case <-s.stop:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		case c := <-s.commands:
			timer.Stop()
			if !s.handleCommand(ctx, c) {
				return false
			}
		}
	}
}

// awaitCommand blocks while paused. Returns true when the state changed.
func (s *Scheduler) awaitCommand(ctx context.Context) bool {
	select {
	case <-s.stop:
		s.setState(StateStopped, s.Status().Reason)
		return true
	case <-ctx.Done():
		s.setState(StateStopped, s.Status().Reason)
		return true
	case c := <-s.commands:
		s.handleCommand(ctx, c)
		return s.Status().State != StatePaused
	}
}

// handleCommand applies an operator command. It returns false if the loop
// left the Running state.
func (s *Scheduler) handleCommand(ctx context.Context, c commandKind) bool {
	state := s.Status().State
	switch c {
	case cmdPause:
		if state == StateRunning {
			s.pause(ctx, core.ReasonOperator)
			return false
		}
	case cmdResume:
		if state == StatePaused {
			s.update(func(st *Status) {
				st.Counters.StaleTicks = 0
				st.Counters.ConsecutiveDispatchFailures = 0
			})
			s.setState(StateRunning, core.ReasonNone)
			s.logger.Info("scheduler resumed")
		}
	case cmdResetEpisode:
		if s.episodes != nil {
			s.lastEvent = s.episodes.Reset()
			s.update(func(st *Status) { st.Episode = s.episodes.CurrentID() })
		}
	}
	return s.Status().State == StateRunning
}

// pause moves to Paused and leaves the sink with nothing held.
func (s *Scheduler) pause(ctx context.Context, reason core.Reason) {
	s.releaseAll(ctx)
	s.setState(StatePaused, reason)
	if reason.Fatal() {
		s.logger.Error("scheduler paused", "reason", reason.String())
	} else {
		s.logger.Info("scheduler paused", "reason", reason.String())
	}
}

func (s *Scheduler) releaseAll(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
	defer cancel()
	s.update(func(st *Status) { st.Counters.ReleaseAlls++ })
	if err := s.sink.ReleaseAll(rctx); err != nil {
		s.logger.Error("release all failed", "error", err)
	}
}

// runTick performs Capture, Decide, Act and Commit for one boundary.
func (s *Scheduler) runTick(ctx context.Context, tick core.Tick) {
	// Capture
	frame, stale, ok := s.capture(ctx)
	if !ok {
		return
	}
	sig, hasReward := s.rewards.Poll()
	if hasReward {
		s.lastReward = sig
	}

	// Decide
	var (
		action   core.Action
		fallback bool
		latency  time.Duration
	)
	if frame.IsZero() {
		action = s.cfg.Default
		s.update(func(st *Status) { st.Counters.DefaultActions++ })
	} else {
		episodeID := sig.EpisodeID
		if episodeID == "" && s.episodes != nil {
			episodeID = s.episodes.CurrentID()
		}
		obs := core.Observation{
			Tick:      tick,
			Frame:     frame,
			Stale:     stale,
			Reward:     sig,
			HasReward:  hasReward,
			LastReward: s.lastReward,
			EpisodeID:  episodeID,
			Event:      s.lastEvent,
			Previous:   s.prev,
		}
		action, fallback, latency = s.decide(ctx, obs)
	}

	// Act
	dispatchErr := s.act(ctx, action)

	// Commit
	result := core.TickResult{
		Tick:        tick,
		Frame:       frame,
		Stale:       stale,
		Action:      action,
		Fallback:    fallback,
		Latency:     latency,
		Reward:      sig,
		HasReward:   hasReward,
		DispatchErr: dispatchErr,
	}
	s.commit(result)

	if s.Status().Counters.ConsecutiveDispatchFailures >= s.cfg.DispatchFailureThreshold {
		s.pause(ctx, core.ReasonConsecutiveDispatchFailure)
	}
}

// capture reads the frame source. ok is false when the tick was aborted
// because the source is lost.
func (s *Scheduler) capture(ctx context.Context) (frame core.Frame, stale bool, ok bool) {
	f, err := s.source.Capture()
	if err != nil {
		var lost bool
		s.update(func(st *Status) {
			st.Counters.CaptureFailures++
			st.Counters.StaleTicks++
			lost = st.Counters.StaleTicks >= s.cfg.StaleThreshold
		})
		if lost {
			s.logger.Error("frame source lost", "error", err, "stale_ticks", s.cfg.StaleThreshold)
			s.pause(ctx, core.ReasonSourceLost)
			return core.Frame{}, false, false
		}
		s.logger.Debug("capture unavailable, reusing last frame", "error", err)
		return s.lastFrame, true, true
	}

	s.update(func(st *Status) { st.Counters.StaleTicks = 0 })
	if f.Seq < s.lastFrame.Seq {
		// Never go backwards within a session
		f = s.lastFrame
	}
	stale = !f.IsZero() && f.Seq == s.prevSeq
	s.lastFrame = f
	return f, stale, true
}

// decide calls the policy with the hard deadline and returns the action
// to dispatch. fallback is set when the policy's answer was not used.
func (s *Scheduler) decide(ctx context.Context, obs core.Observation) (core.Action, bool, time.Duration) {
	if s.inflight != nil {
		select {
		case <-s.inflight:
			s.inflight = nil // late result, discarded
		default:
			s.update(func(st *Status) { st.Counters.DecideBusy++ })
			s.logger.Warn("previous decision still running, using fallback", "tick", obs.Tick.Index)
			return s.fallbackAction(), true, 0
		}
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.HardDeadline)
	defer cancel()

	result := make(chan decision, 1)
	started := s.clock.Now()
	go func() {
		a, err := s.policy.Decide(dctx, obs)
		result <- decision{action: a, err: err}
	}()

	select {
	case d := <-result:
		latency := s.clock.Now().Sub(started)
		if dctx.Err() != nil {
			// Answered, but only after the deadline
			return s.overrun(obs, started), true, latency
		}
		if latency > s.cfg.SoftDeadline {
			s.update(func(st *Status) { st.Counters.SoftMisses++ })
			s.logger.Warn("decide missed soft deadline", "tick", obs.Tick.Index, "latency", latency)
		}
		if d.err != nil {
			s.update(func(st *Status) { st.Counters.DecideErrors++ })
			s.logger.Warn("decide failed, using fallback", "tick", obs.Tick.Index, "error", d.err)
			return s.fallbackAction(), true, latency
		}
		return d.action, false, latency

	case <-dctx.Done():
		s.inflight = result
		return s.overrun(obs, started), true, s.clock.Now().Sub(started)
	}
}

// overrun records a hard deadline miss and returns the fallback action.
func (s *Scheduler) overrun(obs core.Observation, started time.Time) core.Action {
	s.update(func(st *Status) { st.Counters.DecideOverruns++ })
	s.logger.Warn("decide missed hard deadline, using fallback",
		"tick", obs.Tick.Index,
		"deadline", s.cfg.HardDeadline,
		"elapsed", s.clock.Now().Sub(started))
	return s.fallbackAction()
}

func (s *Scheduler) fallbackAction() core.Action {
	if s.hasPrev {
		return s.prev
	}
	return s.cfg.Default
}

// act dispatches exactly once. On failure the sink is released.
func (s *Scheduler) act(ctx context.Context, action core.Action) error {
	// Never interrupted by Stop, only by the dispatch timeout
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
	err := s.sink.Dispatch(actx, action)
	cancel()

	s.prev = action
	s.hasPrev = true

	if err == nil {
		s.update(func(st *Status) {
			st.Counters.Dispatched++
			st.Counters.ConsecutiveDispatchFailures = 0
		})
		return nil
	}

	var consecutive int
	s.update(func(st *Status) {
		st.Counters.Dispatched++
		st.Counters.DispatchFailures++
		st.Counters.ConsecutiveDispatchFailures++
		consecutive = st.Counters.ConsecutiveDispatchFailures
	})
	s.logger.Warn("dispatch failed", "action", action.String(), "consecutive", consecutive, "error", err)
	s.releaseAll(ctx)
	return err
}

// commit updates episode bookkeeping, publishes the tick and notifies observers.
func (s *Scheduler) commit(res core.TickResult) {
	if res.HasReward && s.episodes != nil {
		res.Event = s.episodes.Observe(res.Reward)
	}
	if s.episodes != nil {
		res.EpisodeID = s.episodes.CurrentID()
		if res.EpisodeID == "" && res.Event == core.EpisodeTerminated {
			res.EpisodeID = res.Reward.EpisodeID
		}
	}
	s.prevSeq = res.Frame.Seq
	s.lastEvent = res.Event

	var observers []func(core.TickResult)
	s.update(func(st *Status) {
		st.Counters.Ticks++
		if res.HasReward {
			st.Counters.Rewards++
		}
		st.Tick = res.Tick
		st.LastAction = res.Action
		st.FrameSeq = res.Frame.Seq
		st.Episode = res.EpisodeID
		st.Latency = res.Latency
		observers = s.onTick
	})
	for _, fn := range observers {
		fn(res)
	}
}

// teardown closes every handle. Stop is terminal.
func (s *Scheduler) teardown() error {
	if s.episodes != nil {
		s.episodes.Abort()
	}
	err := errors.Join(
		s.sink.Close(),
		s.source.Close(),
		s.rewards.Close(),
	)
	st := s.Status()
	s.logger.Info("scheduler stopped",
		"ticks", st.Counters.Ticks,
		"overruns", st.Counters.Overruns,
		"dispatch_failures", st.Counters.DispatchFailures)
	if err != nil {
		s.logger.Warn("teardown errors", "error", err)
	}
	return st.Reason.Err()
}

func (s *Scheduler) setState(state State, reason core.Reason) {
	var observers []func(State, core.Reason)
	changed := false
	s.update(func(st *Status) {
		if st.State == state && st.Reason == reason {
			return
		}
		changed = true
		st.State = state
		st.Reason = reason
		st.Since = s.clock.Now()
		observers = s.onState
	})
	if !changed {
		return
	}
	for _, fn := range observers {
		fn(state, reason)
	}
}

func (s *Scheduler) update(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}
