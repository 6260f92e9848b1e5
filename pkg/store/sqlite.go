// Package store persists idle counters and an update journal in SQLite.
//
// This is the host-side key-value collaborator: the core engine never
// touches it. The daemon restores counters at session start and
// checkpoints them periodically and at shutdown.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fieldtrack/fieldtrack/pkg/engine"
	"github.com/fieldtrack/fieldtrack/pkg/idle"
)

const schema = `
CREATE TABLE IF NOT EXISTS idle_counters (
	subject               TEXT PRIMARY KEY,
	total_idle_ms         INTEGER NOT NULL,
	outside_visit_idle_ms INTEGER NOT NULL,
	updated_at            TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS update_journal (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	subject       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	latitude      REAL,
	longitude     REAL,
	step_m        REAL NOT NULL,
	cumulative_m  REAL NOT NULL,
	total_idle_ms INTEGER NOT NULL,
	forced        INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_subject_time
	ON update_journal(subject, created_at);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIdleCounters upserts the persisted idle counters for a subject.
func (s *Store) SaveIdleCounters(subject string, snap idle.Snapshot, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO idle_counters (subject, total_idle_ms, outside_visit_idle_ms, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject) DO UPDATE SET
			total_idle_ms = excluded.total_idle_ms,
			outside_visit_idle_ms = excluded.outside_visit_idle_ms,
			updated_at = excluded.updated_at`,
		subject, snap.TotalIdle.Milliseconds(), snap.OutsideVisitIdle.Milliseconds(), now)
	if err != nil {
		return fmt.Errorf("failed to save idle counters: %w", err)
	}
	return nil
}

// LoadIdleCounters returns the persisted counters for a subject. A missing
// subject yields zero counters, not an error.
func (s *Store) LoadIdleCounters(subject string) (totalIdle, outsideVisitIdle time.Duration, err error) {
	var totalMS, outsideMS int64
	row := s.db.QueryRow(
		`SELECT total_idle_ms, outside_visit_idle_ms FROM idle_counters WHERE subject = ?`, subject)
	switch err := row.Scan(&totalMS, &outsideMS); err {
	case nil:
		return time.Duration(totalMS) * time.Millisecond, time.Duration(outsideMS) * time.Millisecond, nil
	case sql.ErrNoRows:
		return 0, 0, nil
	default:
		return 0, 0, fmt.Errorf("failed to load idle counters: %w", err)
	}
}

// AppendUpdate journals a decided update event for a subject.
func (s *Store) AppendUpdate(subject string, ev engine.UpdateEvent) error {
	var lat, lon interface{}
	if ev.Fix != nil {
		lat, lon = ev.Fix.Latitude, ev.Fix.Longitude
	}

	forced := 0
	if ev.Forced {
		forced = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO update_journal
			(session_id, subject, kind, latitude, longitude, step_m, cumulative_m, total_idle_ms, forced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, subject, string(ev.Kind), lat, lon,
		ev.StepDisplacementM, ev.CumulativeDisplacementM,
		ev.Idle.TotalIdle.Milliseconds(), forced, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to journal update: %w", err)
	}
	return nil
}

// JournaledUpdate is one row of the update journal.
type JournaledUpdate struct {
	SessionID   string
	Kind        engine.UpdateKind
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	StepM       float64
	CumulativeM float64
	TotalIdle   time.Duration
	Forced      bool
	CreatedAt   time.Time
}

// RecentUpdates returns up to limit journal rows for a subject, newest
// first.
func (s *Store) RecentUpdates(subject string, limit int) ([]JournaledUpdate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT session_id, kind, latitude, longitude, step_m, cumulative_m, total_idle_ms, forced, created_at
		FROM update_journal WHERE subject = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []JournaledUpdate
	for rows.Next() {
		var u JournaledUpdate
		var kind string
		var totalMS int64
		var forced int
		if err := rows.Scan(&u.SessionID, &kind, &u.Latitude, &u.Longitude,
			&u.StepM, &u.CumulativeM, &totalMS, &forced, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		u.Kind = engine.UpdateKind(kind)
		u.TotalIdle = time.Duration(totalMS) * time.Millisecond
		u.Forced = forced == 1
		out = append(out, u)
	}
	return out, rows.Err()
}
