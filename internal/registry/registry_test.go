package registry

import (
	"context"
	"testing"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

type stubPolicy struct{ id string }

func (s stubPolicy) ID() string                    { return s.id }
func (s stubPolicy) Title() string                 { return "Stub " + s.id }
func (s stubPolicy) Reset(core.PolicyParams) error { return nil }
func (s stubPolicy) Decide(context.Context, core.Observation) (core.Action, error) {
	return core.NoOp(), nil
}

func TestRegisterCreateList(t *testing.T) {
	Register("stub-b", func() Policy { return stubPolicy{id: "stub-b"} })
	Register("stub-a", func() Policy { return stubPolicy{id: "stub-a"} })

	if !Exists("stub-a") {
		t.Fatal("Exists() = false for registered policy")
	}
	if Exists("missing") {
		t.Error("Exists() = true for unknown policy")
	}

	p, err := Create("stub-b")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if p.ID() != "stub-b" {
		t.Errorf("ID() = %q", p.ID())
	}
	if _, err := Create("missing"); err == nil {
		t.Error("Create() should fail for unknown policy")
	}

	var ids []string
	for _, info := range List() {
		ids = append(ids, info.ID)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			t.Errorf("List() not sorted: %v", ids)
		}
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("stub-dup", func() Policy { return stubPolicy{id: "stub-dup"} })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register() should panic")
		}
	}()
	Register("stub-dup", func() Policy { return stubPolicy{id: "stub-dup"} })
}

func TestFunc(t *testing.T) {
	f := Func(func(_ context.Context, obs core.Observation) (core.Action, error) {
		return core.Action{Name: "tick"}, nil
	})
	a, err := f.Decide(context.Background(), core.Observation{})
	if err != nil || a.Name != "tick" {
		t.Errorf("Decide() = %v, %v", a, err)
	}
}
