// Package rollout records sessions to disk as JPEG frames plus a rollout.json
// index, and reads them back for inspection and replay.
package rollout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// MetaFile is the index written next to the frames directory.
const MetaFile = "rollout.json"

// Region is the captured screen area.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// KeySpec is one dimension of the multi-hot action vector.
type KeySpec struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Step is one recorded tick.
type Step struct {
	T          int      `json:"t"`
	TimeUnix   float64  `json:"time_unix"`
	HeldKeys   []string `json:"held_keys"`
	Action     []int    `json:"action"`
	ActionName string   `json:"action_name,omitempty"`
	Frame      string   `json:"frame,omitempty"`
	Reward     float64  `json:"reward,omitempty"`
	EpisodeID  string   `json:"episode_id,omitempty"`
	Fallback   bool     `json:"fallback,omitempty"`
}

// Meta is the content of rollout.json.
type Meta struct {
	SessionID     string    `json:"session_id,omitempty"`
	Policy        string    `json:"policy,omitempty"`
	Region        Region    `json:"region"`
	OutSize       [2]int    `json:"out_size"`
	Hz            float64   `json:"hz"`
	Keymap        []KeySpec `json:"keymap"`
	StartTimeUnix float64   `json:"start_time_unix"`
	Steps         []Step    `json:"steps"`
}

// Names returns the keymap dimension names in order.
func (m *Meta) Names() []string {
	names := make([]string, len(m.Keymap))
	for i, k := range m.Keymap {
		names[i] = k.Name
	}
	return names
}

// Keymap builds the multi-hot dimensions from an action space: one entry
// per distinct holdable input, in first-seen order.
func Keymap(actions []core.Action) []KeySpec {
	var specs []KeySpec
	seen := make(map[string]bool)
	for _, a := range actions {
		for _, in := range a.Inputs {
			if !core.Holdable(in) || seen[in.String()] {
				continue
			}
			seen[in.String()] = true
			specs = append(specs, KeySpec{Name: in.String(), Aliases: []string{in.String()}})
		}
	}
	return specs
}

// Encode converts an action into its multi-hot vector and held key names.
func Encode(keymap []KeySpec, a core.Action) ([]int, []string) {
	vec := make([]int, len(keymap))
	held := []string{}
	for _, in := range a.Inputs {
		if !core.Holdable(in) {
			continue
		}
		held = append(held, in.String())
		for i, k := range keymap {
			if k.Name == in.String() || containsString(k.Aliases, in.String()) {
				vec[i] = 1
			}
		}
	}
	sort.Strings(held)
	return vec, held
}

// Load reads rollout.json from dir.
func Load(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("rollout: read %s: %w", MetaFile, err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("rollout: parse %s: %w", MetaFile, err)
	}
	for i, s := range m.Steps {
		if len(s.Action) != len(m.Keymap) {
			return nil, fmt.Errorf("rollout: step %d has %d action dims, keymap has %d", i, len(s.Action), len(m.Keymap))
		}
	}
	return &m, nil
}

// Save writes rollout.json into dir.
func Save(dir string, m *Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("rollout: encode: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFile), data, 0o644); err != nil {
		return fmt.Errorf("rollout: write %s: %w", MetaFile, err)
	}
	return nil
}

// Combo is one distinct action vector and how often it occurred.
type Combo struct {
	Keys  []string
	Count int
}

// Label returns the combo's keys joined, or "noop".
func (c Combo) Label() string {
	if len(c.Keys) == 0 {
		return "noop"
	}
	return strings.Join(c.Keys, "+")
}

// Summary holds per-dimension activation counts for a rollout.
type Summary struct {
	Frames   int
	Hz       float64
	Names    []string
	OnCounts []int   // parallel to Names
	Combos   []Combo // most frequent first
	Unique   int
}

// Summarize counts how often each action bit is on and the top combos.
func Summarize(m *Meta, top int) Summary {
	names := m.Names()
	s := Summary{
		Frames:   len(m.Steps),
		Hz:       m.Hz,
		Names:    names,
		OnCounts: make([]int, len(names)),
	}

	counts := make(map[string]*Combo)
	var order []string
	for _, step := range m.Steps {
		var keys []string
		for i, v := range step.Action {
			if v == 1 {
				s.OnCounts[i]++
				keys = append(keys, names[i])
			}
		}
		id := strings.Join(keys, "\x00")
		c, ok := counts[id]
		if !ok {
			c = &Combo{Keys: keys}
			counts[id] = c
			order = append(order, id)
		}
		c.Count++
	}

	s.Unique = len(order)
	for _, id := range order {
		s.Combos = append(s.Combos, *counts[id])
	}
	sort.SliceStable(s.Combos, func(i, j int) bool {
		return s.Combos[i].Count > s.Combos[j].Count
	})
	if top > 0 && len(s.Combos) > top {
		s.Combos = s.Combos[:top]
	}
	return s
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
