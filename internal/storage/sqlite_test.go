package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func closedEpisode(id string, start time.Time, ret float64, outcome string) core.Episode {
	return core.Episode{
		ID:      id,
		Start:   start,
		End:     start.Add(30 * time.Second),
		Outcome: outcome,
		Return:  ret,
		Steps:   300,
	}
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	// Check that the file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreSessionLifecycle(t *testing.T) {
	store := openTest(t)
	start := time.UnixMilli(1700000000000)

	if _, err := store.StartSession("s1", "scripted", 10, start, "/tmp/run"); err != nil {
		t.Fatalf("StartSession() failed: %v", err)
	}
	if _, err := store.StartSession("s1", "scripted", 10, start, ""); err == nil {
		t.Error("StartSession() should reject a duplicate session id")
	}

	err := store.FinishSession(SessionEntry{
		SessionID:        "s1",
		EndedAt:          start.Add(time.Minute),
		Ticks:            600,
		Overruns:         2,
		Fallbacks:        1,
		DispatchFailures: 3,
		ExitReason:       "SourceLost",
	})
	if err != nil {
		t.Fatalf("FinishSession() failed: %v", err)
	}
	if err := store.FinishSession(SessionEntry{SessionID: "missing"}); err == nil {
		t.Error("FinishSession() should fail for an unknown session")
	}

	sessions, err := store.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions() failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.Ticks != 600 || got.ExitReason != "SourceLost" || got.RolloutDir != "/tmp/run" {
		t.Errorf("session = %+v", got)
	}
	if !got.StartedAt.Equal(start) || !got.EndedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("times = %v - %v", got.StartedAt, got.EndedAt)
	}
}

func TestStoreEpisodes(t *testing.T) {
	store := openTest(t)
	base := time.UnixMilli(1700000000000)

	_, _ = store.StartSession("s1", "scripted", 10, base, "")
	_, _ = store.StartSession("s2", "random", 10, base.Add(time.Hour), "")

	eps := []struct {
		session string
		ep      core.Episode
	}{
		{"s1", closedEpisode("e1", base, 5, core.OutcomeTerminal)},
		{"s1", closedEpisode("e2", base.Add(time.Minute), 12, core.OutcomeTerminal)},
		{"s1", closedEpisode("e3", base.Add(2*time.Minute), 1, core.OutcomeAborted)},
		{"s2", closedEpisode("e1", base.Add(time.Hour), -3, core.OutcomeTerminal)},
	}
	for _, e := range eps {
		if _, err := store.SaveEpisode(e.session, e.ep); err != nil {
			t.Fatalf("SaveEpisode() failed: %v", err)
		}
	}

	// Duplicate save is ignored
	if _, err := store.SaveEpisode("s1", closedEpisode("e1", base, 99, core.OutcomeTerminal)); err != nil {
		t.Fatalf("SaveEpisode() duplicate failed: %v", err)
	}

	if _, err := store.SaveEpisode("s1", core.Episode{ID: "open", Start: base}); err == nil {
		t.Error("SaveEpisode() should reject an open episode")
	}

	s1, err := store.SessionEpisodes("s1")
	if err != nil {
		t.Fatalf("SessionEpisodes() failed: %v", err)
	}
	if len(s1) != 3 {
		t.Fatalf("Expected 3 episodes for s1, got %d", len(s1))
	}
	if s1[0].EpisodeID != "e1" || s1[0].Return != 5 {
		t.Errorf("first episode = %+v", s1[0])
	}
	if s1[1].Duration() != 30*time.Second {
		t.Errorf("Duration() = %v", s1[1].Duration())
	}

	recent, err := store.RecentEpisodes(2)
	if err != nil {
		t.Fatalf("RecentEpisodes() failed: %v", err)
	}
	if len(recent) != 2 || recent[0].SessionID != "s2" || recent[1].EpisodeID != "e3" {
		t.Errorf("RecentEpisodes() = %+v", recent)
	}

	stats, err := store.GetAllPolicyStats()
	if err != nil {
		t.Fatalf("GetAllPolicyStats() failed: %v", err)
	}
	scripted := stats["scripted"]
	if scripted == nil {
		t.Fatal("missing stats for scripted")
	}
	if scripted.Episodes != 3 || scripted.Terminated != 2 || scripted.BestReturn != 12 {
		t.Errorf("scripted stats = %+v", scripted)
	}
	if stats["random"] == nil || stats["random"].AvgReturn != -3 {
		t.Errorf("random stats = %+v", stats["random"])
	}
}

func TestStoreExpandHomePath(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "deep", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() with nested path failed: %v", err)
	}
	defer store.Close()

	// Verify nested directories were created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}
