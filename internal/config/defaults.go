package config

import (
	_ "embed"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

//go:embed defaults/pilot.yaml
var defaultPilotYAML []byte

// Default returns the built-in configuration.
// It mirrors defaults/pilot.yaml and is used when the embedded file cannot be parsed.
func Default() Config {
	return Config{
		TickRateHz:                 10,
		DecideSoftDeadlineMs:       50,
		DecideHardDeadlineMs:       80,
		StaleTickThreshold:         10,
		DispatchFailureThreshold:   5,
		TerminalEventQueueCapacity: 64,
		DispatchTimeoutMs:          60,
		TerminalOverflow:           "block",
		DefaultAction:              "noop",
		Capture: CaptureConfig{
			Backend:     "x11",
			WindowTitle: "Stardew Valley",
			Region:      core.NewRect(320, 212, 1280, 720),
			OutWidth:    320,
			OutHeight:   180,
			RateHz:      30,
			MaxRetries:  3,
		},
		Reward: RewardConfig{
			Network: "tcp",
			Address: "127.0.0.1:7878",
		},
		Input: InputConfig{
			Backend: "x11",
		},
		Actions: []ActionSpec{
			{Name: "noop"},
			{Name: "up", Keys: []string{"w"}},
			{Name: "down", Keys: []string{"s"}},
			{Name: "left", Keys: []string{"a"}},
			{Name: "right", Keys: []string{"d"}},
			{Name: "use_tool", Keys: []string{"c"}},
			{Name: "interact", Keys: []string{"x"}},
			{Name: "menu", Keys: []string{"esc"}, DurationMs: 20},
			{Name: "run_right", Keys: []string{"d", "left_shift"}},
		},
		Policy: PolicyConfig{
			Name: "scripted",
			Loop: true,
			Script: []ScriptStep{
				{Action: "right", Ticks: 10},
				{Action: "noop", Ticks: 40},
			},
		},
		Teleop: TeleopConfig{
			Keymap: []KeyBinding{
				{Name: "up", Keys: []string{"w", "up"}},
				{Name: "down", Keys: []string{"s", "down"}},
				{Name: "left", Keys: []string{"a", "left"}},
				{Name: "right", Keys: []string{"d", "right"}},
				{Name: "use_tool", Keys: []string{"mouse_left", "c"}},
				{Name: "interact", Keys: []string{"x", "e", "enter"}},
				{Name: "menu", Keys: []string{"esc", "tab"}},
				{Name: "run", Keys: []string{"left_shift", "right_shift"}},
			},
			StopKey:      "f12",
			Dir:          "~/.pilot/teleop",
			StartDelayMs: 3000,
		},
		Storage: StorageConfig{
			Path: "~/.pilot/pilot.db",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.pilot/pilot.log",
		},
	}
}

// DefaultYAML returns the embedded default configuration file.
func DefaultYAML() []byte {
	return defaultPilotYAML
}
