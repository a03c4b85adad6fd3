package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		want    Input
		wantErr bool
	}{
		{name: "d", want: Key{Code: "d"}},
		{name: " Left_Shift ", want: Key{Code: "left_shift"}},
		{name: "mouse_left", want: Button{Code: "mouse_left"}},
		{name: "pad_a", want: Button{Code: "pad_a"}},
		{name: "pointer:10,20", want: PointerMove{X: 10, Y: 20}},
		{name: "pointer:10", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInput(tc.name)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseInput(%q) expected error", tc.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInput(%q) failed: %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("ParseInput(%q) = %#v, expected %#v", tc.name, got, tc.want)
			}
		})
	}
}

func TestActionEqualAndClone(t *testing.T) {
	a := Action{Name: "run_right", Inputs: []Input{Key{Code: "d"}, Key{Code: "left_shift"}}}
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("clone should equal original")
	}

	b.Inputs[0] = Key{Code: "a"}
	if a.Inputs[0] != (Key{Code: "d"}) {
		t.Error("mutating clone changed original inputs")
	}
	if a.Equal(b) {
		t.Error("actions with different inputs should not be equal")
	}

	timed := a.Clone()
	timed.Duration = 50 * time.Millisecond
	if a.Equal(timed) {
		t.Error("actions with different durations should not be equal")
	}
	if timed.HoldsUntilNextTick() {
		t.Error("timed action should not hold until next tick")
	}
}

func TestNoOp(t *testing.T) {
	n := NoOp()
	if !n.IsNoOp() {
		t.Error("NoOp() should press nothing")
	}
	if n.String() != "noop" {
		t.Errorf("NoOp().String() = %q", n.String())
	}
	if !Holdable(Key{Code: "w"}) || Holdable(PointerMove{}) {
		t.Error("Holdable() wrong for key/pointer")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{fmt.Errorf("config: %w", ErrConfiguration), ExitConfigurationError},
		{fmt.Errorf("scheduler: %w", ErrSourceLost), ExitSourceLost},
		{ReasonConsecutiveDispatchFailure.Err(), ExitConsecutiveDispatchFailure},
		{errors.New("boom"), ExitFailure},
	}
	for _, tc := range tests {
		if got := ExitCode(tc.err); got != tc.want {
			t.Errorf("ExitCode(%v) = %d, expected %d", tc.err, got, tc.want)
		}
	}
}

func TestFrameAt(t *testing.T) {
	f := Frame{Seq: 1, Width: 2, Height: 2, Channels: 4, Pix: make([]byte, 16)}
	f.Pix[12] = 255 // (1,1) red channel

	if px := f.At(1, 1); px == nil || px[0] != 255 {
		t.Errorf("At(1,1) = %v", px)
	}
	if f.At(2, 0) != nil {
		t.Error("At() out of bounds should be nil")
	}
	if (Frame{}).IsZero() != true || f.IsZero() {
		t.Error("IsZero() wrong")
	}
}
