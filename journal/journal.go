// Package journal persists task lifecycle history in sqlite so the
// queue survives inspection across restarts. It implements the
// meta.Journal interface.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semflow/meta"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	macro TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	priority INTEGER NOT NULL DEFAULT 0,
	owner TEXT NOT NULL DEFAULT '',
	requested_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS task_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id, created_at);
`

// ErrUnknownTask is returned when history is requested for a task the
// journal never saw.
var ErrUnknownTask = errors.New("journal: unknown task")

// Event is one recorded lifecycle transition.
type Event struct {
	ID        int64           `json:"id"`
	TaskID    string          `json:"task_id"`
	From      meta.TaskStatus `json:"from,omitempty"`
	To        meta.TaskStatus `json:"to"`
	Detail    string          `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is a sqlite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the journal tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// RecordTask stores the task row. Recording the same id twice is an
// error since task ids are unique across the lifecycle.
func (s *Store) RecordTask(ctx context.Context, t meta.Task) error {
	payload := []byte("{}")
	if len(t.Payload) > 0 {
		raw, err := json.Marshal(t.Payload)
		if err != nil {
			return fmt.Errorf("marshal task payload: %w", err)
		}
		payload = raw
	}
	requested := t.RequestedAt
	if requested.IsZero() {
		requested = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks(id, macro, payload, priority, owner, requested_at, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Macro, string(payload), t.Priority, t.Owner,
		requested.Unix(), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

// RecordTransition appends one lifecycle event.
func (s *Store) RecordTransition(ctx context.Context, taskID string, from, to meta.TaskStatus, detail string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO task_events(task_id, from_status, to_status, detail, created_at)
		VALUES(?, ?, ?, ?, ?)`,
		taskID, string(from), string(to), detail, time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// GetTask reads back one journaled task.
func (s *Store) GetTask(ctx context.Context, taskID string) (meta.Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, macro, payload, priority, owner, requested_at FROM tasks WHERE id = ?`,
		taskID,
	)
	var t meta.Task
	var payload string
	var requested int64
	if err := row.Scan(&t.ID, &t.Macro, &payload, &t.Priority, &t.Owner, &requested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meta.Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
		}
		return meta.Task{}, fmt.Errorf("get task: %w", err)
	}
	if payload != "" && payload != "{}" {
		if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
			return meta.Task{}, fmt.Errorf("unmarshal task payload: %w", err)
		}
	}
	t.RequestedAt = time.Unix(requested, 0).UTC()
	return t, nil
}

// ListEvents returns a task's lifecycle history in insertion order.
func (s *Store) ListEvents(ctx context.Context, taskID string) ([]Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, task_id, from_status, to_status, detail, created_at
		FROM task_events
		WHERE task_id = ?
		ORDER BY id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var from, to string
		var created int64
		if err := rows.Scan(&ev.ID, &ev.TaskID, &from, &to, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.From = meta.TaskStatus(from)
		ev.To = meta.TaskStatus(to)
		ev.CreatedAt = time.Unix(created, 0).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LatestStatus returns the most recent recorded status for a task.
func (s *Store) LatestStatus(ctx context.Context, taskID string) (meta.TaskStatus, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT to_status FROM task_events WHERE task_id = ? ORDER BY id DESC LIMIT 1`,
		taskID,
	)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
		}
		return "", fmt.Errorf("latest status: %w", err)
	}
	return meta.TaskStatus(status), nil
}

// CountByStatus reports how many tasks currently sit at each terminal
// status, reading the latest event per task.
func (s *Store) CountByStatus(ctx context.Context) (map[meta.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT to_status, COUNT(*)
		FROM task_events e
		WHERE e.id = (SELECT MAX(id) FROM task_events WHERE task_id = e.task_id)
		GROUP BY to_status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[meta.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[meta.TaskStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}
