// Package storage provides SQLite-based persistence for sessions and episodes.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// SessionEntry is one agent run.
type SessionEntry struct {
	ID               int64
	SessionID        string
	Policy           string
	TickRateHz       float64
	StartedAt        time.Time
	EndedAt          time.Time // zero while running or after a crash
	Ticks            int64
	Overruns         int64
	Fallbacks        int64 // decide overruns and failures
	DispatchFailures int64
	ExitReason       string
	RolloutDir       string
}

// EpisodeEntry is one closed episode.
type EpisodeEntry struct {
	ID        int64
	SessionID string
	EpisodeID string
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   string
	Return    float64
	Steps     int
	CreatedAt time.Time
}

// Duration returns the episode length.
func (e EpisodeEntry) Duration() time.Duration {
	return e.EndedAt.Sub(e.StartedAt)
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
// Session and episode times are unix milliseconds.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			policy TEXT NOT NULL,
			tick_rate_hz REAL NOT NULL,
			started_ms INTEGER NOT NULL,
			ended_ms INTEGER,
			ticks INTEGER NOT NULL DEFAULT 0,
			overruns INTEGER NOT NULL DEFAULT 0,
			fallbacks INTEGER NOT NULL DEFAULT 0,
			dispatch_failures INTEGER NOT NULL DEFAULT 0,
			exit_reason TEXT NOT NULL DEFAULT '',
			rollout_dir TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS episodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			episode_id TEXT NOT NULL,
			started_ms INTEGER NOT NULL,
			ended_ms INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			total_return REAL NOT NULL DEFAULT 0,
			steps INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, episode_id)
		);
		CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id);
		CREATE INDEX IF NOT EXISTS idx_episodes_started ON episodes(started_ms DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartSession records a new session.
// Returns the ID of the inserted record.
func (s *Store) StartSession(sessionID, policy string, tickRateHz float64, startedAt time.Time, rolloutDir string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sessions (session_id, policy, tick_rate_hz, started_ms, rollout_dir)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, policy, tickRateHz, startedAt.UnixMilli(), rolloutDir,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}

	return id, nil
}

// FinishSession writes the final counters of a session.
func (s *Store) FinishSession(e SessionEntry) error {
	res, err := s.db.Exec(
		`UPDATE sessions
		 SET ended_ms = ?, ticks = ?, overruns = ?, fallbacks = ?, dispatch_failures = ?, exit_reason = ?
		 WHERE session_id = ?`,
		e.EndedAt.UnixMilli(), e.Ticks, e.Overruns, e.Fallbacks, e.DispatchFailures, e.ExitReason,
		e.SessionID,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot finish session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storage: unknown session %q", e.SessionID)
	}
	return nil
}

// SaveEpisode records a closed episode. Saving the same episode twice
// keeps the first record.
func (s *Store) SaveEpisode(sessionID string, ep core.Episode) (int64, error) {
	if ep.Open() {
		return 0, fmt.Errorf("storage: episode %q is still open", ep.ID)
	}
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO episodes
		 (session_id, episode_id, started_ms, ended_ms, outcome, total_return, steps)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, ep.ID, ep.Start.UnixMilli(), ep.End.UnixMilli(), ep.Outcome, ep.Return, ep.Steps,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save episode: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}

	return id, nil
}

const episodeColumns = `id, session_id, episode_id, started_ms, ended_ms, outcome, total_return, steps, created_at`

// RecentEpisodes retrieves the most recent episodes across sessions,
// newest first.
func (s *Store) RecentEpisodes(limit int) ([]EpisodeEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT `+episodeColumns+`
		 FROM episodes
		 ORDER BY started_ms DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query episodes: %w", err)
	}
	return scanEpisodes(rows)
}

// SessionEpisodes retrieves all episodes of a session in start order.
func (s *Store) SessionEpisodes(sessionID string) ([]EpisodeEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+episodeColumns+`
		 FROM episodes
		 WHERE session_id = ?
		 ORDER BY started_ms ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query episodes: %w", err)
	}
	return scanEpisodes(rows)
}

func scanEpisodes(rows *sql.Rows) ([]EpisodeEntry, error) {
	defer rows.Close()

	var entries []EpisodeEntry
	for rows.Next() {
		var e EpisodeEntry
		var startedMs, endedMs int64
		var createdAt any
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EpisodeID, &startedMs, &endedMs,
			&e.Outcome, &e.Return, &e.Steps, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedMs)
		e.EndedAt = time.UnixMilli(endedMs)
		e.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return entries, nil
}

// RecentSessions retrieves the most recent sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, policy, tick_rate_hz, started_ms, ended_ms,
		        ticks, overruns, fallbacks, dispatch_failures, exit_reason, rollout_dir
		 FROM sessions
		 ORDER BY started_ms DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionEntry
	for rows.Next() {
		var e SessionEntry
		var startedMs int64
		var endedMs sql.NullInt64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Policy, &e.TickRateHz, &startedMs, &endedMs,
			&e.Ticks, &e.Overruns, &e.Fallbacks, &e.DispatchFailures, &e.ExitReason, &e.RolloutDir); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedMs)
		if endedMs.Valid {
			e.EndedAt = time.UnixMilli(endedMs.Int64)
		}
		results = append(results, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return results, nil
}

// PolicyStats contains aggregated episode statistics for a policy.
type PolicyStats struct {
	Policy     string
	Episodes   int
	Terminated int
	BestReturn float64
	AvgReturn  float64
	TotalSteps int64
	LastPlayed time.Time
}

// GetAllPolicyStats aggregates episodes per policy.
func (s *Store) GetAllPolicyStats() (map[string]*PolicyStats, error) {
	rows, err := s.db.Query(
		`SELECT s.policy, COUNT(*),
		        SUM(CASE WHEN e.outcome = ? THEN 1 ELSE 0 END),
		        MAX(e.total_return), AVG(e.total_return), SUM(e.steps), MAX(e.ended_ms)
		 FROM episodes e
		 JOIN sessions s ON s.session_id = e.session_id
		 GROUP BY s.policy`,
		core.OutcomeTerminal,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get policy stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*PolicyStats)
	for rows.Next() {
		var p PolicyStats
		var lastMs int64
		if err := rows.Scan(&p.Policy, &p.Episodes, &p.Terminated, &p.BestReturn, &p.AvgReturn, &p.TotalSteps, &lastMs); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}
		p.LastPlayed = time.UnixMilli(lastMs)
		stats[p.Policy] = &p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return stats, nil
}

// parseTimestamp handles both time.Time and string DATETIME values.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
