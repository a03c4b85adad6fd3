package teleop

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/vovakirdan/pixelpilot/internal/config"
	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/rollout"
)

// fakeReader returns one scripted set of held keys per call.
type fakeReader struct {
	frames [][]string
	calls  int
	asked  []string
	err    error
}

func (r *fakeReader) Held(names []string) ([]string, error) {
	r.asked = names
	if r.err != nil {
		return nil, r.err
	}
	if r.calls >= len(r.frames) {
		return nil, nil
	}
	held := r.frames[r.calls]
	r.calls++
	return held, nil
}

func (r *fakeReader) Close() error { return nil }

func testKeymap() []rollout.KeySpec {
	return Keymap([]config.KeyBinding{
		{Name: "up", Keys: []string{"w", "Up"}},
		{Name: "right", Keys: []string{"d", "right"}},
		{Name: "run", Keys: []string{"left_shift", "right_shift"}},
		{Name: "use_tool", Keys: []string{"mouse_left", "c"}},
	})
}

func TestKeymapSortsAliases(t *testing.T) {
	km := testKeymap()
	if len(km) != 4 {
		t.Fatalf("Keymap() = %v", km)
	}
	if fmt.Sprint(km[0].Aliases) != "[up w]" {
		t.Errorf("up aliases = %v, expected [up w]", km[0].Aliases)
	}
	if km[3].Name != "use_tool" || fmt.Sprint(km[3].Aliases) != "[c mouse_left]" {
		t.Errorf("use_tool = %+v", km[3])
	}
}

func TestDecideReportsHeldKeys(t *testing.T) {
	reader := &fakeReader{frames: [][]string{
		nil,
		{"w"},
		{"d", "left_shift"},
		{"mouse_left"},
	}}
	p := New(reader, testKeymap(), "f12", nil)
	if err := p.Reset(core.PolicyParams{}); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	var names []string
	var last core.Action
	for i := 0; i < 4; i++ {
		a, err := p.Decide(context.Background(), core.Observation{})
		if err != nil {
			t.Fatalf("Decide() failed: %v", err)
		}
		names = append(names, a.Name)
		last = a
	}

	if want := "[noop up right+run use_tool]"; fmt.Sprint(names) != want {
		t.Errorf("actions = %v, expected %s", names, want)
	}
	if len(last.Inputs) != 1 || last.Inputs[0] != (core.Button{Code: "mouse_left"}) {
		t.Errorf("mouse action inputs = %v", last.Inputs)
	}

	want := "[c d f12 left_shift mouse_left right right_shift up w]"
	if fmt.Sprint(reader.asked) != want {
		t.Errorf("watched keys = %v, expected %s", reader.asked, want)
	}
}

func TestDecideEncodesToRecordedVector(t *testing.T) {
	km := testKeymap()
	reader := &fakeReader{frames: [][]string{{"right_shift", "up"}}}
	p := New(reader, km, "", nil)

	a, err := p.Decide(context.Background(), core.Observation{})
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	vec, _ := rollout.Encode(km, a)
	if fmt.Sprint(vec) != "[1 0 1 0]" {
		t.Errorf("Encode() = %v, expected [1 0 1 0]", vec)
	}
}

func TestStopKeyFiresOnce(t *testing.T) {
	reader := &fakeReader{frames: [][]string{{"w", "f12"}, {"f12"}}}
	p := New(reader, testKeymap(), "F12", nil)
	stops := 0
	p.OnStop(func() { stops++ })

	a, err := p.Decide(context.Background(), core.Observation{})
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	if a.Name != "up" {
		t.Errorf("stop key should not be recorded, got %q", a.Name)
	}
	if _, err := p.Decide(context.Background(), core.Observation{}); err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	if stops != 1 {
		t.Errorf("OnStop called %d times, expected 1", stops)
	}
}

func TestDecidePassesReaderError(t *testing.T) {
	reader := &fakeReader{err: errors.New("display gone")}
	p := New(reader, testKeymap(), "f12", nil)
	if _, err := p.Decide(context.Background(), core.Observation{}); err == nil {
		t.Error("Decide() should fail when the keys cannot be read")
	}
	if err := New(reader, nil, "", nil).Reset(core.PolicyParams{}); err == nil {
		t.Error("Reset() with an empty keymap should fail")
	}
}
