// Package journal is an optional sqlite-backed audit log of task lifecycle
// events. It consumes the event bus and only ever appends; nothing is read
// back into the engine, so restarting the process still starts from a clean
// slate.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/benfinklea/nofx/internal/events"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        int64
	TaskID    string
	EventType string
	Detail    string
	Timestamp time.Time
}

// Journal appends task lifecycle events to sqlite.
type Journal struct {
	db *sql.DB
}

// Open creates a journal at the given path. Parent directories are created
// as needed; WAL mode and a busy timeout keep concurrent readers happy.
func Open(ctx context.Context, dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// OpenMemory creates an in-memory journal for testing.
func OpenMemory(ctx context.Context) (*Journal, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// initSchema creates the lifecycle table if it doesn't exist.
func (j *Journal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		detail TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_task_events_task_timestamp
		ON task_events(task_id, timestamp);
	`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// Record appends one event row.
func (j *Journal) Record(ctx context.Context, taskID, eventType, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO task_events (task_id, event_type, detail) VALUES (?, ?, ?)`,
		taskID, eventType, detail)
	if err != nil {
		return fmt.Errorf("recording %s for task %q: %w", eventType, taskID, err)
	}
	return nil
}

// History returns the recorded events for a task, oldest first.
func (j *Journal) History(ctx context.Context, taskID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, task_id, event_type, COALESCE(detail, ''), timestamp
		 FROM task_events WHERE task_id = ? ORDER BY timestamp, id`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("querying history for task %q: %w", taskID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.EventType, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Follow drains a bus subscription into the journal until ctx is done or
// the subscription closes. Intended to run in its own goroutine.
func (j *Journal) Follow(ctx context.Context, sub *events.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if ev.TaskID() == "" {
				continue
			}
			detail := ""
			switch e := ev.(type) {
			case events.TaskStateChangedEvent:
				detail = fmt.Sprintf("%s -> %s", e.From, e.To)
			case events.TaskAssignedEvent:
				detail = e.AgentID
			case events.TaskFailedEvent:
				detail = e.Reason
			case events.TaskBlockedEvent:
				detail = fmt.Sprintf("blocked by %v", e.BlockedBy)
			}
			if err := j.Record(ctx, ev.TaskID(), ev.EventType(), detail); err != nil {
				return err
			}
		}
	}
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
