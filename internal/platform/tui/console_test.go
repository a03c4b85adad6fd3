package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/scheduler"
)

type fakeAgent struct {
	status   scheduler.Status
	calls    []string
	pauseErr error
}

func (a *fakeAgent) Status() scheduler.Status { return a.status }
func (a *fakeAgent) Pause() error {
	a.calls = append(a.calls, "pause")
	return a.pauseErr
}
func (a *fakeAgent) Resume() error {
	a.calls = append(a.calls, "resume")
	return nil
}
func (a *fakeAgent) ResetEpisode() error {
	a.calls = append(a.calls, "reset")
	return nil
}
func (a *fakeAgent) Stop() { a.calls = append(a.calls, "stop") }

type fakeEpisodes struct {
	history []core.Episode
	current core.Episode
	open    bool
}

func (e *fakeEpisodes) History() []core.Episode       { return e.history }
func (e *fakeEpisodes) Current() (core.Episode, bool) { return e.current, e.open }

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func solidFrame(seq uint64, w, h int, c byte) core.Frame {
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = c
	}
	return core.Frame{Seq: seq, Width: w, Height: h, Channels: 4, Pix: pix}
}

func TestConsoleKeysDriveAgent(t *testing.T) {
	agent := &fakeAgent{status: scheduler.Status{State: scheduler.StateRunning}}
	m := NewConsoleModel(agent, ConsoleOptions{}, 80, 24)

	var model tea.Model = m
	for _, k := range []string{"p", "r", "e"} {
		model, _ = model.Update(runeKey(k))
	}

	want := []string{"pause", "resume", "reset"}
	if strings.Join(agent.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", agent.calls, want)
	}
}

func TestConsoleShowsCommandError(t *testing.T) {
	agent := &fakeAgent{
		status:   scheduler.Status{State: scheduler.StateStopped},
		pauseErr: scheduler.ErrStopped,
	}
	m := NewConsoleModel(agent, ConsoleOptions{}, 80, 24)

	model, _ := m.Update(runeKey("p"))
	view := model.View()
	if !strings.Contains(view, "error:") {
		t.Errorf("view missing command error:\n%s", view)
	}
}

func TestConsoleQuitStopsOnlyWhenConfigured(t *testing.T) {
	for _, tc := range []struct {
		quitStops bool
		want      int
	}{
		{quitStops: true, want: 1},
		{quitStops: false, want: 0},
	} {
		agent := &fakeAgent{status: scheduler.Status{State: scheduler.StateRunning}}
		m := NewConsoleModel(agent, ConsoleOptions{QuitStops: tc.quitStops}, 80, 24)

		model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		if cmd == nil {
			t.Fatal("quit returned no command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("quit command did not quit")
		}
		if !model.(ConsoleModel).IsQuitting() {
			t.Errorf("model not quitting")
		}
		if len(agent.calls) != tc.want {
			t.Errorf("QuitStops=%v: calls = %v", tc.quitStops, agent.calls)
		}
	}
}

func TestConsoleExitsWhenAgentStops(t *testing.T) {
	agent := &fakeAgent{status: scheduler.Status{State: scheduler.StateRunning}}
	m := NewConsoleModel(agent, ConsoleOptions{}, 80, 24)

	model, cmd := m.Update(RefreshMsg(time.Now()))
	if model.(ConsoleModel).IsQuitting() {
		t.Fatal("console quit while agent running")
	}
	if cmd == nil {
		t.Fatal("refresh did not reschedule")
	}

	agent.status.State = scheduler.StateStopped
	model, cmd = model.Update(RefreshMsg(time.Now()))
	if !model.(ConsoleModel).IsQuitting() {
		t.Error("console still running after agent stopped")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit command")
	}
}

func TestConsoleViewShowsStatusAndEpisodes(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	agent := &fakeAgent{status: scheduler.Status{
		State:  scheduler.StatePaused,
		Reason: core.ReasonSourceLost,
		Counters: scheduler.Counters{
			Ticks:    42,
			Overruns: 3,
		},
	}}
	episodes := &fakeEpisodes{
		history: []core.Episode{{
			ID:      "episode-one",
			Start:   start,
			End:     start.Add(2 * time.Second),
			Outcome: core.OutcomeTerminal,
			Return:  1.5,
			Steps:   7,
		}},
	}
	m := NewConsoleModel(agent, ConsoleOptions{Title: "session-x", Policy: "random", Episodes: episodes}, 120, 40)

	view := m.View()
	for _, want := range []string{"session-x", "Paused", "SourceLost", "random", "42", "episode-", "1.50"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestConsoleSnapshotWritesPNG(t *testing.T) {
	dir := t.TempDir()
	tap := &FrameTap{}
	tap.OnTick(core.TickResult{Frame: solidFrame(7, 4, 4, 200)})

	agent := &fakeAgent{status: scheduler.Status{State: scheduler.StateRunning}}
	m := NewConsoleModel(agent, ConsoleOptions{Frames: tap, SnapshotDir: dir}, 80, 24)

	path, err := m.saveSnapshot()
	if err != nil {
		t.Fatalf("saveSnapshot() failed: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "frame_000007_") {
		t.Errorf("unexpected snapshot path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
}

func TestConsoleSnapshotWithoutFrame(t *testing.T) {
	agent := &fakeAgent{status: scheduler.Status{State: scheduler.StateRunning}}
	m := NewConsoleModel(agent, ConsoleOptions{Frames: &FrameTap{}, SnapshotDir: t.TempDir()}, 80, 24)

	if _, err := m.saveSnapshot(); err == nil {
		t.Error("expected error before any frame")
	}
}

func TestFrameTapIgnoresEmptyFrames(t *testing.T) {
	tap := &FrameTap{}
	tap.OnTick(core.TickResult{Frame: solidFrame(1, 2, 2, 10)})
	tap.OnTick(core.TickResult{})

	f, ok := tap.Latest()
	if !ok || f.Seq != 1 {
		t.Errorf("Latest() = seq %d, %v; want 1, true", f.Seq, ok)
	}
}

func TestFitFrame(t *testing.T) {
	tests := []struct {
		fw, fh, maxW, maxH int
		cols, rows         int
	}{
		{320, 180, 32, 20, 32, 9},
		{100, 100, 80, 10, 20, 10},
		{10, 10, 0, 10, 0, 0},
	}
	for _, tt := range tests {
		cols, rows := fitFrame(tt.fw, tt.fh, tt.maxW, tt.maxH)
		if cols != tt.cols || rows != tt.rows {
			t.Errorf("fitFrame(%d,%d,%d,%d) = %d,%d; want %d,%d",
				tt.fw, tt.fh, tt.maxW, tt.maxH, cols, rows, tt.cols, tt.rows)
		}
	}
}

func TestRenderFrameDimensions(t *testing.T) {
	out := RenderFrame(solidFrame(1, 8, 8, 128), 4, 4)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		if n := strings.Count(line, halfBlock); n != 4 {
			t.Errorf("line %d has %d cells, want 4", i, n)
		}
	}

	if RenderFrame(core.Frame{}, 4, 4) != "" {
		t.Error("empty frame should render as empty string")
	}
}
