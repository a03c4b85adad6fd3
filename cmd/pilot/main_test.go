package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/core"
	"github.com/vovakirdan/pixelpilot/internal/rollout"
	"github.com/vovakirdan/pixelpilot/internal/storage"
)

func TestExitReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
		code int
	}{
		{nil, "stopped", core.ExitOK},
		{core.ErrSourceLost, "SourceLost", core.ExitSourceLost},
		{fmt.Errorf("run: %w", core.ErrConsecutiveDispatchFailure), "ConsecutiveDispatchFailure", core.ExitConsecutiveDispatchFailure},
		{fmt.Errorf("%w: bad tick rate", core.ErrConfiguration), "configuration error: bad tick rate", core.ExitConfigurationError},
		{errors.New("boom"), "boom", core.ExitFailure},
	}
	for _, tt := range tests {
		if got := exitReason(tt.err); got != tt.want {
			t.Errorf("exitReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
		if got := core.ExitCode(tt.err); got != tt.code {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.code)
		}
	}
}

func TestReportEpisodesChronological(t *testing.T) {
	entries := []storage.EpisodeEntry{
		{SessionID: "session-abcdef", EpisodeID: "3", Return: 3},
		{SessionID: "session-abcdef", EpisodeID: "2", Return: 2},
		{SessionID: "session-abcdef", EpisodeID: "1", Return: 1},
	}
	reverseEntries(entries)
	eps := reportEpisodes(entries)

	if len(eps) != 3 {
		t.Fatalf("got %d episodes, want 3", len(eps))
	}
	for i, ep := range eps {
		if ep.Return != float64(i+1) {
			t.Errorf("episode %d return = %v, want %d", i, ep.Return, i+1)
		}
		if ep.Session != "session-" {
			t.Errorf("session label = %q, want shortened id", ep.Session)
		}
	}
}

func TestRolloutLength(t *testing.T) {
	if got := rolloutLength(rollout.Summary{Frames: 50, Hz: 10}); got != "5.0s" {
		t.Errorf("rolloutLength = %q, want 5.0s", got)
	}
	if got := rolloutLength(rollout.Summary{Frames: 50}); got != "unknown length" {
		t.Errorf("rolloutLength without rate = %q", got)
	}
	if got := bar(50); got != "##########" {
		t.Errorf("bar(50) = %q", got)
	}
}

func TestTeleopDir(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	got, err := teleopDir("/data/teleop", now)
	if err != nil {
		t.Fatalf("teleopDir() failed: %v", err)
	}
	if want := filepath.Join("/data/teleop", "20260314_092653"); got != want {
		t.Errorf("teleopDir() = %q, expected %q", got, want)
	}

	t.Setenv("HOME", "/home/player")
	got, err = teleopDir("~/.pilot/teleop", now)
	if err != nil {
		t.Fatalf("teleopDir() failed: %v", err)
	}
	if want := filepath.Join("/home/player", ".pilot", "teleop", "20260314_092653"); got != want {
		t.Errorf("teleopDir() = %q, expected %q", got, want)
	}
}
