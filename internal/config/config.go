// Package config provides YAML-based configuration loading, presets and
// validation for the agent runtime.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/buffer"
	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Config contains every recognized option of a session.
type Config struct {
	// Control loop
	TickRateHz                 float64 `yaml:"tick_rate_hz"`
	DecideSoftDeadlineMs       int     `yaml:"decide_soft_deadline_ms"`
	DecideHardDeadlineMs       int     `yaml:"decide_hard_deadline_ms"`
	StaleTickThreshold         int     `yaml:"stale_tick_threshold"`
	DispatchFailureThreshold   int     `yaml:"dispatch_failure_threshold"`
	TerminalEventQueueCapacity int     `yaml:"terminal_event_queue_capacity"`
	DispatchTimeoutMs          int     `yaml:"dispatch_timeout_ms"`
	TerminalOverflow           string  `yaml:"terminal_overflow"` // "block" or "drop_oldest"
	DefaultAction              string  `yaml:"default_action"`

	Capture CaptureConfig `yaml:"capture"`
	Reward  RewardConfig  `yaml:"reward"`
	Input   InputConfig   `yaml:"input"`
	Actions []ActionSpec  `yaml:"actions"`
	Policy  PolicyConfig  `yaml:"policy"`
	Teleop  TeleopConfig  `yaml:"teleop"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// CaptureConfig defines where frames come from.
type CaptureConfig struct {
	Backend     string    `yaml:"backend"`      // "x11" or "synthetic"
	Display     string    `yaml:"display"`      // X display, empty = $DISPLAY
	WindowTitle string    `yaml:"window_title"` // substring match; empty = use Region on root
	Region      core.Rect `yaml:"region"`
	OutWidth    int       `yaml:"out_width"`
	OutHeight   int       `yaml:"out_height"`
	RateHz      float64   `yaml:"rate_hz"`
	MaxRetries  int       `yaml:"max_retries"`
}

// RewardConfig defines the reward channel transport.
type RewardConfig struct {
	Network string `yaml:"network"` // "tcp" or "unix"
	Address string `yaml:"address"` // empty disables the channel
}

// InputConfig defines how actions reach the OS.
type InputConfig struct {
	Backend string `yaml:"backend"` // "x11" or "dry-run"
	Display string `yaml:"display"`
}

// ActionSpec is one entry of the action space.
type ActionSpec struct {
	Name       string   `yaml:"name"`
	Keys       []string `yaml:"keys"`
	DurationMs int      `yaml:"duration_ms"` // 0 = hold until next tick
}

// ScriptStep holds one action for a number of ticks.
type ScriptStep = core.ScriptStep

// PolicyConfig selects and parameterizes the policy.
type PolicyConfig struct {
	Name    string       `yaml:"name"`
	Seed    int64        `yaml:"seed"`
	Script  []ScriptStep `yaml:"script"`
	Loop    bool         `yaml:"loop"`
	Rollout string       `yaml:"rollout"` // recording replayed by the "replay" policy
}

// TeleopConfig defines human recording with `pilot run --teleop`.
type TeleopConfig struct {
	Keymap       []KeyBinding `yaml:"keymap"`
	StopKey      string       `yaml:"stop_key"` // ends the recording; empty = never
	Dir          string       `yaml:"dir"`      // parent of timestamped rollouts
	StartDelayMs int          `yaml:"start_delay_ms"`
}

// KeyBinding is one recorded dimension: a name and the keys that set it.
type KeyBinding struct {
	Name string   `yaml:"name"`
	Keys []string `yaml:"keys"`
}

// StartDelay returns the pause before the first recorded tick.
func (t TeleopConfig) StartDelay() time.Duration {
	return time.Duration(t.StartDelayMs) * time.Millisecond
}

// StorageConfig defines the episode database.
type StorageConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

// LoggingConfig defines log verbosity and destination.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // used when the console owns the terminal
}

// TickPeriod returns the control loop period.
func (c Config) TickPeriod() time.Duration {
	if c.TickRateHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.TickRateHz)
}

// SoftDeadline returns the Decide soft deadline.
func (c Config) SoftDeadline() time.Duration {
	return time.Duration(c.DecideSoftDeadlineMs) * time.Millisecond
}

// HardDeadline returns the Decide hard deadline.
func (c Config) HardDeadline() time.Duration {
	return time.Duration(c.DecideHardDeadlineMs) * time.Millisecond
}

// DispatchTimeout returns the Act timeout.
func (c Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMs) * time.Millisecond
}

// Overflow returns the terminal queue overflow policy.
func (c Config) Overflow() buffer.Overflow {
	o, _ := buffer.ParseOverflow(c.TerminalOverflow)
	return o
}

// ActionSpace converts the configured actions into core actions, in order.
// A "noop" entry is always present, first if not configured.
func (c Config) ActionSpace() ([]core.Action, error) {
	space := make([]core.Action, 0, len(c.Actions)+1)
	seen := make(map[string]bool)
	for _, spec := range c.Actions {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("action with empty name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate action %q", name)
		}
		seen[name] = true

		a := core.Action{Name: name, Duration: time.Duration(spec.DurationMs) * time.Millisecond}
		for _, k := range spec.Keys {
			in, err := core.ParseInput(k)
			if err != nil {
				return nil, fmt.Errorf("action %q: %w", name, err)
			}
			a.Inputs = append(a.Inputs, in)
		}
		space = append(space, a)
	}
	if !seen["noop"] {
		space = append([]core.Action{core.NoOp()}, space...)
	}
	return space, nil
}

// LookupAction finds an action by name in the action space.
func LookupAction(space []core.Action, name string) (core.Action, bool) {
	for _, a := range space {
		if a.Name == name {
			return a, true
		}
	}
	return core.Action{}, false
}

// PolicyParams builds the parameters handed to Policy.Reset.
func (c Config) PolicyParams() (core.PolicyParams, error) {
	space, err := c.ActionSpace()
	if err != nil {
		return core.PolicyParams{}, fmt.Errorf("%w: actions: %w", core.ErrConfiguration, err)
	}
	def, ok := LookupAction(space, c.DefaultAction)
	if !ok {
		def = core.NoOp()
	}
	rolloutDir, err := ExpandHome(c.Policy.Rollout)
	if err != nil {
		return core.PolicyParams{}, err
	}
	return core.PolicyParams{
		Actions: space,
		Default: def,
		Seed:    c.Policy.Seed,
		Script:  append([]ScriptStep(nil), c.Policy.Script...),
		Loop:    c.Policy.Loop,
		Rollout: rolloutDir,
		Period:  c.TickPeriod(),
	}, nil
}

// Validate checks the configuration and reports every problem at once.
// The returned error wraps core.ErrConfiguration.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.TickRateHz <= 0 || c.TickRateHz > 1000 {
		add("tick_rate_hz must be in (0, 1000], got %v", c.TickRateHz)
	}
	if c.DecideSoftDeadlineMs <= 0 {
		add("decide_soft_deadline_ms must be positive")
	}
	if c.DecideHardDeadlineMs < c.DecideSoftDeadlineMs {
		add("decide_hard_deadline_ms (%d) must be >= decide_soft_deadline_ms (%d)",
			c.DecideHardDeadlineMs, c.DecideSoftDeadlineMs)
	}
	if period := c.TickPeriod(); period > 0 && c.HardDeadline() >= period {
		add("decide_hard_deadline_ms (%d) must be shorter than the tick period (%s)",
			c.DecideHardDeadlineMs, period)
	}
	if c.DispatchTimeoutMs <= 0 {
		add("dispatch_timeout_ms must be positive")
	}
	if c.StaleTickThreshold < 1 {
		add("stale_tick_threshold must be >= 1")
	}
	if c.DispatchFailureThreshold < 1 {
		add("dispatch_failure_threshold must be >= 1")
	}
	if c.TerminalEventQueueCapacity < 1 {
		add("terminal_event_queue_capacity must be >= 1")
	}
	if _, err := buffer.ParseOverflow(c.TerminalOverflow); err != nil {
		add("terminal_overflow: %v", err)
	}

	switch c.Capture.Backend {
	case "x11", "synthetic":
	default:
		add("capture.backend must be x11 or synthetic, got %q", c.Capture.Backend)
	}
	if c.Capture.OutWidth <= 0 || c.Capture.OutHeight <= 0 {
		add("capture.out_width and capture.out_height must be positive")
	}
	if c.Capture.RateHz <= 0 {
		add("capture.rate_hz must be positive")
	}
	if c.Capture.MaxRetries < 0 {
		add("capture.max_retries must be >= 0")
	}
	if c.Capture.WindowTitle == "" && c.Capture.Backend == "x11" && c.Capture.Region.Empty() {
		add("capture needs window_title or a non-empty region")
	}

	switch c.Input.Backend {
	case "x11", "dry-run":
	default:
		add("input.backend must be x11 or dry-run, got %q", c.Input.Backend)
	}
	switch c.Reward.Network {
	case "tcp", "unix":
	default:
		if c.Reward.Address != "" {
			add("reward.network must be tcp or unix, got %q", c.Reward.Network)
		}
	}

	space, err := c.ActionSpace()
	if err != nil {
		add("actions: %v", err)
	} else {
		for _, a := range space {
			if a.Duration > 0 && a.Duration >= c.DispatchTimeout() {
				add("action %q duration_ms must be shorter than dispatch_timeout_ms", a.Name)
			}
		}
		if c.DefaultAction != "" {
			if _, ok := LookupAction(space, c.DefaultAction); !ok {
				add("default_action %q is not in the action space", c.DefaultAction)
			}
		}
		for i, step := range c.Policy.Script {
			if _, ok := LookupAction(space, step.Action); !ok {
				add("policy.script[%d]: unknown action %q", i, step.Action)
			}
			if step.Ticks < 1 {
				add("policy.script[%d]: ticks must be >= 1", i)
			}
		}
	}

	seenBinding := make(map[string]bool)
	for i, b := range c.Teleop.Keymap {
		switch {
		case strings.TrimSpace(b.Name) == "":
			add("teleop.keymap[%d]: empty name", i)
		case seenBinding[b.Name]:
			add("teleop.keymap[%d]: duplicate name %q", i, b.Name)
		case len(b.Keys) == 0:
			add("teleop.keymap[%d]: %q has no keys", i, b.Name)
		}
		seenBinding[b.Name] = true
	}
	if c.Teleop.StartDelayMs < 0 {
		add("teleop.start_delay_ms must be >= 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", core.ErrConfiguration, errors.Join(errs...))
}
