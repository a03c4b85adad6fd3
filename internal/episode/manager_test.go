package episode

import (
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

func sig(sec int, id string, reward float64, terminal bool) core.RewardSignal {
	return core.RewardSignal{
		Timestamp: time.Unix(1700000000+int64(sec), 0),
		EpisodeID: id,
		Reward:    reward,
		Terminal:  terminal,
	}
}

func TestTerminalThenNewEpisode(t *testing.T) {
	m := NewManager(Options{})

	events := []core.EpisodeEvent{
		m.Observe(sig(1, "e1", 1, false)),
		m.Observe(sig(2, "e1", 2, true)),
		m.Observe(sig(3, "e2", 0, false)),
	}
	want := []core.EpisodeEvent{core.EpisodeStarted, core.EpisodeTerminated, core.EpisodeStarted}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("events = %v, expected %v", events, want)
	}

	hist := m.History()
	if len(hist) != 1 {
		t.Fatalf("History() = %v, expected one closed episode", hist)
	}
	if hist[0].Return != 3 || hist[0].Steps != 2 || hist[0].Outcome != core.OutcomeTerminal {
		t.Errorf("closed episode = %+v", hist[0])
	}
	if cur, ok := m.Current(); !ok || cur.ID != "e2" {
		t.Errorf("Current() = %+v, %v", cur, ok)
	}
}

func TestDuplicateTerminalIsNoOp(t *testing.T) {
	m := NewManager(Options{})
	m.Observe(sig(1, "e1", 0, false))

	first := m.Observe(sig(2, "e1", 5, true))
	second := m.Observe(sig(3, "e1", 5, true))
	if first != core.EpisodeTerminated || second != core.EpisodeNone {
		t.Errorf("events = [%v %v], expected [Terminated None]", first, second)
	}

	hist := m.History()
	if len(hist) != 1 {
		t.Fatalf("History() has %d episodes, expected 1", len(hist))
	}
	end := hist[0].End
	m.Observe(sig(9, "e1", 1, false))
	if got := m.History()[0]; !got.End.Equal(end) || got.Return != 5 {
		t.Errorf("closed episode was mutated: %+v", got)
	}
	if _, terminated := m.Counts(); terminated != 1 {
		t.Errorf("terminated = %d, expected 1", terminated)
	}
}

func TestClosedIDsAreRememberedUpToLimit(t *testing.T) {
	m := NewManager(Options{ClosedIDs: 3})
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("e%d", i)
		m.Observe(sig(i*10, id, 1, false))
		m.Observe(sig(i*10+1, id, 0, true))
	}

	// e2 is still remembered, e1 fell out of the window
	if ev := m.Observe(sig(50, "e2", 0, true)); ev != core.EpisodeNone {
		t.Errorf("late terminal for e2 = %v, expected None", ev)
	}
	if ev := m.Observe(sig(51, "e1", 0, true)); ev != core.EpisodeTerminated {
		t.Errorf("late terminal for forgotten e1 = %v, expected a new episode to close", ev)
	}
	if started, _ := m.Counts(); started != 5 {
		t.Errorf("started = %d, expected 5", started)
	}

	if NewManager(Options{}).opts.ClosedIDs != defaultClosedIDs {
		t.Error("ClosedIDs should default when unset")
	}
}

func TestNewIDSupersedesOpenEpisode(t *testing.T) {
	var closed []core.Episode
	m := NewManager(Options{OnClose: func(ep core.Episode) { closed = append(closed, ep) }})

	m.Observe(sig(1, "e1", 1, false))
	if ev := m.Observe(sig(2, "e2", 1, false)); ev != core.EpisodeStarted {
		t.Errorf("event = %v, expected Started", ev)
	}
	if len(closed) != 1 || closed[0].ID != "e1" || closed[0].Outcome != core.OutcomeSuperseded {
		t.Errorf("OnClose got %+v", closed)
	}
}

func TestMissingIDContinuesOpenEpisode(t *testing.T) {
	m := NewManager(Options{})
	if ev := m.Observe(sig(1, "", 1, false)); ev != core.EpisodeNone {
		t.Errorf("id-less signal with no open episode = %v, expected None", ev)
	}

	m.Observe(sig(2, "e1", 1, false))
	if ev := m.Observe(sig(3, "", 2, false)); ev != core.EpisodeContinued {
		t.Errorf("event = %v, expected Continued", ev)
	}
	if cur, _ := m.Current(); cur.Return != 3 {
		t.Errorf("Return = %v, expected 3", cur.Return)
	}
}

func TestResetSignalAndOperatorReset(t *testing.T) {
	m := NewManager(Options{NewID: func() string { return "op" }})

	m.Observe(sig(1, "e1", 1, false))
	ev := m.Observe(core.RewardSignal{Timestamp: time.Unix(1700000002, 0), EpisodeID: "e2", Reset: true})
	if ev != core.EpisodeStarted {
		t.Errorf("reset signal event = %v, expected Started", ev)
	}
	if hist := m.History(); len(hist) != 1 || hist[0].Outcome != core.OutcomeReset {
		t.Errorf("History() = %+v", hist)
	}

	if ev := m.Reset(); ev != core.EpisodeStarted {
		t.Errorf("Reset() = %v, expected Started", ev)
	}
	if m.CurrentID() != "op" {
		t.Errorf("CurrentID() = %q, expected op", m.CurrentID())
	}
}

func TestAbortAndHistoryBound(t *testing.T) {
	m := NewManager(Options{History: 2})
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("e%d", i)
		m.Observe(sig(i*2, id, 1, false))
		m.Observe(sig(i*2+1, id, 0, true))
	}
	hist := m.History()
	if len(hist) != 2 || hist[0].ID != "e2" || hist[1].ID != "e3" {
		t.Errorf("History() = %+v, expected e2, e3", hist)
	}

	m.Observe(sig(20, "e9", 1, false))
	m.Abort()
	if _, ok := m.Current(); ok {
		t.Error("Abort() should close the open episode")
	}
	if last := m.History()[1]; last.ID != "e9" || last.Outcome != core.OutcomeAborted {
		t.Errorf("aborted episode = %+v", last)
	}
	m.Abort()
}
