package policies_test

import (
	"context"
	"testing"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/registry"
	"github.com/vovakirdan/pixelpilot/internal/rollout"

	_ "github.com/vovakirdan/pixelpilot/internal/policies"
)

func space() []core.Action {
	return []core.Action{
		core.NoOp(),
		{Name: "right", Inputs: []core.Input{core.Key{Code: "d"}}},
		{Name: "left", Inputs: []core.Input{core.Key{Code: "a"}}},
		{Name: "run_right", Inputs: []core.Input{core.Key{Code: "d"}, core.Key{Code: "left_shift"}}},
	}
}

func create(t *testing.T, id string, params core.PolicyParams) registry.Policy {
	t.Helper()
	p, err := registry.Create(id)
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", id, err)
	}
	if err := p.Reset(params); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	return p
}

func decideN(t *testing.T, p registry.Policy, n int, episode string) []string {
	t.Helper()
	var names []string
	for i := 0; i < n; i++ {
		a, err := p.Decide(context.Background(), core.Observation{Tick: core.Tick{Index: uint64(i)}, EpisodeID: episode})
		if err != nil {
			t.Fatalf("Decide() failed: %v", err)
		}
		names = append(names, a.Name)
	}
	return names
}

func TestAllPoliciesRegistered(t *testing.T) {
	for _, id := range []string{"noop", "random", "replay", "scripted"} {
		if !registry.Exists(id) {
			t.Errorf("policy %q not registered", id)
		}
	}
}

func TestNoopReturnsDefault(t *testing.T) {
	p := create(t, "noop", core.PolicyParams{Actions: space(), Default: space()[0]})
	for _, name := range decideN(t, p, 3, "") {
		if name != "noop" {
			t.Errorf("noop policy returned %q", name)
		}
	}
}

func TestScriptedStepsAndLoop(t *testing.T) {
	params := core.PolicyParams{
		Actions: space(),
		Default: core.NoOp(),
		Script:  []core.ScriptStep{{Action: "right", Ticks: 2}, {Action: "left", Ticks: 1}},
		Loop:    true,
	}
	p := create(t, "scripted", params)

	got := decideN(t, p, 6, "")
	want := []string{"right", "right", "left", "right", "right", "left"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, expected %v", got, want)
		}
	}
}

func TestScriptedEndsWithDefaultAndRestartsPerEpisode(t *testing.T) {
	params := core.PolicyParams{
		Actions: space(),
		Default: core.NoOp(),
		Script:  []core.ScriptStep{{Action: "right", Ticks: 1}},
	}
	p := create(t, "scripted", params)

	got := decideN(t, p, 2, "e1")
	if got[0] != "right" || got[1] != "noop" {
		t.Errorf("sequence = %v, expected [right noop]", got)
	}
	if got := decideN(t, p, 1, "e2"); got[0] != "right" {
		t.Errorf("new episode should restart the script, got %v", got)
	}
}

func TestScriptedRejectsUnknownAction(t *testing.T) {
	p, _ := registry.Create("scripted")
	err := p.Reset(core.PolicyParams{Actions: space(), Script: []core.ScriptStep{{Action: "fly", Ticks: 1}}})
	if err == nil {
		t.Error("Reset() should reject unknown script actions")
	}
}

func TestRandomIsSeeded(t *testing.T) {
	params := core.PolicyParams{Actions: space(), Default: core.NoOp(), Seed: 42}
	a := decideN(t, create(t, "random", params), 30, "")
	b := decideN(t, create(t, "random", params), 30, "")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different sequences: %v vs %v", a, b)
		}
	}
	valid := map[string]bool{"noop": true, "right": true, "left": true, "run_right": true}
	for _, name := range a {
		if !valid[name] {
			t.Errorf("random returned %q outside the action space", name)
		}
	}
}

func TestReplayFollowsRollout(t *testing.T) {
	dir := t.TempDir()
	km := rollout.Keymap(space())
	enc := func(a core.Action) []int {
		v, _ := rollout.Encode(km, a)
		return v
	}
	m := &rollout.Meta{
		Hz:     10,
		Keymap: km,
		Steps: []rollout.Step{
			{T: 0, Action: enc(space()[1]), ActionName: "right"},
			{T: 1, Action: enc(space()[3])},
			{T: 2, Action: enc(core.NoOp())},
		},
	}
	if err := rollout.Save(dir, m); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	p := create(t, "replay", core.PolicyParams{Actions: space(), Default: core.NoOp(), Rollout: dir})
	got := decideN(t, p, 4, "")
	want := []string{"right", "run_right", "noop", "noop"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replay = %v, expected %v", got, want)
		}
	}
}

func TestReplayResolvesKeymapAliases(t *testing.T) {
	dir := t.TempDir()
	m := &rollout.Meta{
		Hz: 10,
		Keymap: []rollout.KeySpec{
			{Name: "right", Aliases: []string{"d", "right"}},
			{Name: "run", Aliases: []string{"left_shift", "right_shift"}},
			{Name: "up", Aliases: []string{"up", "w"}},
		},
		Steps: []rollout.Step{
			{T: 0, Action: []int{1, 1, 0}, ActionName: "right+run"},
			{T: 1, Action: []int{1, 0, 0}},
			{T: 2, Action: []int{0, 0, 1}},
			{T: 3, Action: []int{1, 0, 1}},
		},
	}
	if err := rollout.Save(dir, m); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	actions := append(space(), core.Action{Name: "up", Inputs: []core.Input{core.Key{Code: "w"}}})
	p := create(t, "replay", core.PolicyParams{Actions: actions, Default: core.NoOp(), Rollout: dir})

	var got []core.Action
	for i := 0; i < 4; i++ {
		a, err := p.Decide(context.Background(), core.Observation{})
		if err != nil {
			t.Fatalf("Decide() failed: %v", err)
		}
		got = append(got, a)
	}

	for i, want := range []string{"run_right", "right", "up", "right+up"} {
		if got[i].Name != want {
			t.Errorf("step %d = %q, expected %q", i, got[i].Name, want)
		}
	}
	combo := got[3].Inputs
	if len(combo) != 2 || combo[0].String() != "d" || combo[1].String() != "w" {
		t.Errorf("ad-hoc action holds %v, expected [d w]", combo)
	}
}

func TestReplayRequiresRollout(t *testing.T) {
	p, _ := registry.Create("replay")
	if err := p.Reset(core.PolicyParams{Actions: space()}); err == nil {
		t.Error("Reset() without a rollout should fail")
	}
}
