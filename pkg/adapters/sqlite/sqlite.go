// Package sqlite keeps snapshots and the turn audit trail in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aretw0/llmfsm/pkg/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	session_id TEXT PRIMARY KEY,
	current    TEXT NOT NULL,
	completed  INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL,
	id         TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	prior      TEXT NOT NULL,
	next       TEXT NOT NULL,
	data       TEXT NOT NULL,
	PRIMARY KEY (session_id, id)
);
CREATE INDEX IF NOT EXISTS turns_by_seq ON turns (session_id, seq);
`

// DB implements both ports.SnapshotStore and ports.AuditStore.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates it.
// path may be ":memory:" for a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		dsn = path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Save upserts the snapshot.
func (d *DB) Save(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, current, completed, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			current = excluded.current,
			completed = excluded.completed,
			data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		sessionID, snap.Current, snap.Completed, string(data),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", sessionID, err)
	}
	return nil
}

// Load reads the snapshot.
func (d *DB) Load(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	var data string
	err := d.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE session_id = ?`, sessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot %q: %w", sessionID, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Context == nil {
		snap.Context = map[string]any{}
	}
	return snap, nil
}

// Delete removes the snapshot. The audit trail is kept.
func (d *DB) Delete(ctx context.Context, sessionID string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", sessionID, err)
	}
	return nil
}

// List returns all session ids, sorted.
func (d *DB) List(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT session_id FROM snapshots ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Append inserts rec. Re-appending the same record id is an error.
func (d *DB) Append(ctx context.Context, sessionID string, rec domain.TurnRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, id, seq, prior, next, data) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, rec.ID, rec.Seq, rec.PriorState, rec.NextState, string(data),
	)
	if err != nil {
		return fmt.Errorf("append record %q: %w", rec.ID, err)
	}
	return nil
}

// Records returns the session's trail ordered by Seq.
func (d *DB) Records(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT data FROM turns WHERE session_id = ? ORDER BY seq, rowid`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := []domain.TurnRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec domain.TurnRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Audit adapts the database to ports.AuditStore.
// SnapshotStore and AuditStore both declare List, so one type cannot serve both.
func (d *DB) Audit() *AuditLog { return &AuditLog{db: d} }

// AuditLog is the ports.AuditStore view of a DB.
type AuditLog struct {
	db *DB
}

// Append stores rec.
func (a *AuditLog) Append(ctx context.Context, sessionID string, rec domain.TurnRecord) error {
	return a.db.Append(ctx, sessionID, rec)
}

// List returns the session's records ordered by Seq.
func (a *AuditLog) List(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	return a.db.Records(ctx, sessionID)
}

// Transitions counts committed transitions per (prior, next) pair for a session.
func (d *DB) Transitions(ctx context.Context, sessionID string) (map[[2]string]int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT prior, next, COUNT(*) FROM turns WHERE session_id = ? GROUP BY prior, next`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("count transitions: %w", err)
	}
	defer rows.Close()

	out := map[[2]string]int{}
	for rows.Next() {
		var prior, next string
		var n int
		if err := rows.Scan(&prior, &next, &n); err != nil {
			return nil, err
		}
		out[[2]string{prior, next}] = n
	}
	return out, rows.Err()
}
