// Package ledger keeps the history of index builds in a SQLite database:
// one row per build attempt and one per shard, halted builds included.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/standardbeagle/xref/internal/indexing"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	build_id      TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL,
	version       INTEGER NOT NULL DEFAULT 0,
	started_at    INTEGER NOT NULL,
	duration_ns   INTEGER NOT NULL,
	files         INTEGER NOT NULL,
	removed       INTEGER NOT NULL DEFAULT 0,
	failed_shards INTEGER NOT NULL,
	halt_limit    INTEGER NOT NULL,
	records       INTEGER NOT NULL,
	occurrences   INTEGER NOT NULL,
	malformed     INTEGER NOT NULL,
	degraded      TEXT NOT NULL DEFAULT '[]',
	error         TEXT NOT NULL DEFAULT '',
	persist_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS builds_started ON builds(started_at);
CREATE TABLE IF NOT EXISTS shards (
	build_id    TEXT NOT NULL REFERENCES builds(build_id) ON DELETE CASCADE,
	shard_index INTEGER NOT NULL,
	shard_count INTEGER NOT NULL,
	files       INTEGER NOT NULL,
	state       TEXT NOT NULL,
	records     INTEGER NOT NULL,
	malformed   INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (build_id, shard_index)
);
`

// Ledger records build reports. It implements indexing.BuildRecorder.
type Ledger struct {
	db *sql.DB
}

// Entry is one recorded build
type Entry struct {
	BuildID      string               `json:"build_id"`
	Kind         indexing.BuildKind   `json:"kind"`
	Status       indexing.BuildStatus `json:"status"`
	Version      uint64               `json:"version,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	Duration     time.Duration        `json:"duration_ns"`
	Files        int                  `json:"files"`
	Removed      int                  `json:"removed,omitempty"`
	Failed       int                  `json:"failed_shards"`
	HaltLimit    int                  `json:"halt_limit"`
	Records      int                  `json:"records"`
	Occurrences  int                  `json:"occurrences"`
	Malformed    int                  `json:"malformed"`
	Degraded     []string             `json:"degraded,omitempty"`
	Error        string               `json:"error,omitempty"`
	PersistError string               `json:"persist_error,omitempty"`
	Shards       []ShardEntry         `json:"shards,omitempty"`
}

// ShardEntry is the recorded outcome of one shard
type ShardEntry struct {
	Index     int                 `json:"index"`
	Count     int                 `json:"count"`
	Files     int                 `json:"files"`
	State     indexing.ShardState `json:"state"`
	Records   int                 `json:"records"`
	Malformed int                 `json:"malformed"`
	Duration  time.Duration       `json:"duration_ns"`
	Error     string              `json:"error,omitempty"`
}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory ledger.
func Open(path string) (*Ledger, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, fmt.Errorf("ledger path must not be empty")
	}
	if clean != ":memory:" {
		if info, err := os.Stat(clean); err == nil && info.IsDir() {
			return nil, fmt.Errorf("ledger path %q is a directory, expected file", clean)
		}
		if dir := filepath.Dir(clean); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger directory %q: %w", dir, err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", clean)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w", clean, err)
	}
	// one writer; also keeps an in-memory database on a single connection
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger %q: %w", clean, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger %q: %w", clean, err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record stores a build report with its shard statuses
func (l *Ledger) Record(ctx context.Context, r *indexing.BuildReport) error {
	degraded, err := json.Marshal(orEmpty(r.Degraded))
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO builds
		(build_id, kind, status, version, started_at, duration_ns, files, removed,
		 failed_shards, halt_limit, records, occurrences, malformed, degraded, error, persist_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.BuildID, string(r.Kind), string(r.Status), int64(r.Version), r.StartedAt.UnixNano(),
		int64(r.Duration), r.Files, r.Removed, r.Failed, r.HaltLimit, r.Records,
		r.Occurrences, r.Malformed, string(degraded), r.Error, r.PersistError)
	if err != nil {
		return fmt.Errorf("record build %s: %w", r.BuildID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shards WHERE build_id = ?`, r.BuildID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO shards
		(build_id, shard_index, shard_count, files, state, records, malformed, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range r.Shards {
		if _, err := stmt.ExecContext(ctx, r.BuildID, s.Shard.Index, s.Shard.Count, s.Files,
			string(s.State), s.Records, s.Malformed, int64(s.Duration), s.Error); err != nil {
			return fmt.Errorf("record shard %d of build %s: %w", s.Shard.Index, r.BuildID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to n builds, newest first, without their shards
func (l *Ledger) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := l.db.QueryContext(ctx, `SELECT build_id, kind, status, version, started_at,
		duration_ns, files, removed, failed_shards, halt_limit, records, occurrences, malformed,
		degraded, error, persist_error
		FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one build with its shards
func (l *Ledger) Get(ctx context.Context, buildID string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT build_id, kind, status, version, started_at,
		duration_ns, files, removed, failed_shards, halt_limit, records, occurrences, malformed,
		degraded, error, persist_error
		FROM builds WHERE build_id = ?`, buildID)
	e, err := scanEntry(row)
	if err != nil {
		return Entry{}, err
	}

	rows, err := l.db.QueryContext(ctx, `SELECT shard_index, shard_count, files, state, records,
		malformed, duration_ns, error FROM shards WHERE build_id = ? ORDER BY shard_index`, buildID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var s ShardEntry
		var state string
		var dur int64
		if err := rows.Scan(&s.Index, &s.Count, &s.Files, &state, &s.Records, &s.Malformed, &dur, &s.Error); err != nil {
			return Entry{}, err
		}
		s.State = indexing.ShardState(state)
		s.Duration = time.Duration(dur)
		e.Shards = append(e.Shards, s)
	}
	return e, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                    Entry
		kind, status, degr   string
		version, started, du int64
	)
	if err := s.Scan(&e.BuildID, &kind, &status, &version, &started, &du, &e.Files, &e.Removed,
		&e.Failed, &e.HaltLimit, &e.Records, &e.Occurrences, &e.Malformed, &degr, &e.Error, &e.PersistError); err != nil {
		return Entry{}, err
	}
	e.Kind = indexing.BuildKind(kind)
	e.Status = indexing.BuildStatus(status)
	e.Version = uint64(version)
	e.StartedAt = time.Unix(0, started)
	e.Duration = time.Duration(du)
	if err := json.Unmarshal([]byte(degr), &e.Degraded); err != nil {
		return Entry{}, fmt.Errorf("build %s: bad degraded list: %w", e.BuildID, err)
	}
	if len(e.Degraded) == 0 {
		e.Degraded = nil
	}
	return e, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
