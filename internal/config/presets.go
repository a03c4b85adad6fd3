package config

import "fmt"

// Preset represents a named timing profile.
type Preset string

const (
	PresetRollout Preset = "rollout" // 5 Hz, generous deadlines
	PresetTeleop  Preset = "teleop"  // 10 Hz, used by run --teleop
	PresetFast    Preset = "fast"    // 20 Hz, tight deadlines
)

// presetRates maps presets to tick rates.
var presetRates = map[Preset]float64{
	PresetRollout: 5,
	PresetTeleop:  10,
	PresetFast:    20,
}

// ApplyPreset sets the tick rate for a preset and rescales deadlines so they
// keep the same fraction of the tick period: soft 50%, hard 80%, dispatch 60%.
func ApplyPreset(cfg *Config, preset Preset) error {
	if preset == "" {
		return nil
	}
	rate, ok := presetRates[preset]
	if !ok {
		return fmt.Errorf("unknown preset %q (use rollout, teleop or fast)", preset)
	}
	cfg.TickRateHz = rate
	periodMs := int(1000 / rate)
	cfg.DecideSoftDeadlineMs = periodMs / 2
	cfg.DecideHardDeadlineMs = periodMs * 8 / 10
	cfg.DispatchTimeoutMs = periodMs * 6 / 10
	return nil
}

// Presets lists the known preset names.
func Presets() []Preset {
	return []Preset{PresetRollout, PresetTeleop, PresetFast}
}
