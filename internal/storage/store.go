package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store defines the interface for local event-log operations.
type Store interface {
	// Event repository.
	PutEvent(ctx context.Context, event *Event) error
	InsertEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	PatchEvent(ctx context.Context, id string, patch Patch) (*Event, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]Event, error)
	CountByStatus(ctx context.Context, status string) (int64, error)

	// Retention.
	Trim(ctx context.Context, maxEvents int64) (TrimResult, error)

	// Meta repository.
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
	SetMetaMany(ctx context.Context, pairs map[string]string) error
	NextSeq(ctx context.Context) (int64, error)
	DeviceID(ctx context.Context) (string, error)

	// Diagnostics.
	GetStats(ctx context.Context) (*Stats, error)
	RecordSyncRun(ctx context.Context, run SyncRun) error
	LastSyncRun(ctx context.Context) (*SyncRun, error)
	PurgeAll(ctx context.Context) error

	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool

	// Prepared statements for the hot paths.
	insertEvent *sql.Stmt
	upsertEvent *sql.Stmt
	getEvent    *sql.Stmt
	countStatus *sql.Stmt
	getMeta     *sql.Stmt
	setMeta     *sql.Stmt
}

// Open opens (creating on first use) the event log at path, applies
// pragmas and migrations, and returns a ready store. Safe to call
// repeatedly: schema setup is idempotent and never clobbers existing
// records. Failures to reach the database at all wrap ErrStoreUnavailable
// so callers can degrade to memory-only capture instead of crashing.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create db directory: %v", ErrStoreUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStoreUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connect: %v", ErrStoreUnavailable, err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY between the capture and sync paths.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	runner := NewMigrationRunner(db)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true

	return store, nil
}

// NewSQLiteStore creates a SQLiteStore from an already-opened and migrated
// database. The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertEvent, err = s.db.Prepare(`
		INSERT INTO events (event_id, device_id, seq, status, graph_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	// Replace-by-event_id only. A (device_id, seq) collision against a
	// different event_id still violates the unique index and fails,
	// rather than silently swallowing the earlier record.
	s.upsertEvent, err = s.db.Prepare(`
		INSERT INTO events (event_id, device_id, seq, status, graph_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			device_id  = excluded.device_id,
			seq        = excluded.seq,
			status     = excluded.status,
			graph_id   = excluded.graph_id,
			payload    = excluded.payload,
			created_at = excluded.created_at
	`)
	if err != nil {
		return err
	}

	s.getEvent, err = s.db.Prepare(`
		SELECT event_id, device_id, seq, status, graph_id, payload, created_at
		FROM events WHERE event_id = ?
	`)
	if err != nil {
		return err
	}

	s.countStatus, err = s.db.Prepare(`SELECT COUNT(*) FROM events WHERE status = ?`)
	if err != nil {
		return err
	}

	s.getMeta, err = s.db.Prepare(`SELECT value FROM meta WHERE key = ?`)
	if err != nil {
		return err
	}

	s.setMeta, err = s.db.Prepare(`
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}

	return nil
}

// withTx runs fn inside a single transaction. The transaction is rolled
// back when fn returns an error or the commit fails; the caller must not
// treat fn's writes as durable until withTx itself returns nil.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertEvent inserts a new event record. Inserting a duplicate event_id
// or (device_id, seq) pair fails with ErrConflict and leaves the existing
// record untouched.
func (s *SQLiteStore) InsertEvent(ctx context.Context, event *Event) error {
	_, err := s.insertEvent.ExecContext(ctx,
		event.ID, event.DeviceID, event.Seq, event.Status,
		event.GraphID, payloadText(event.Payload), event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%w: insert event %s: %v", ErrConflict, event.ID, err)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// PutEvent inserts or replaces a full event record by event_id. The
// repository performs no shape validation; constructing a well-formed
// event (including assigning seq via NextSeq) is the caller's job.
func (s *SQLiteStore) PutEvent(ctx context.Context, event *Event) error {
	_, err := s.upsertEvent.ExecContext(ctx,
		event.ID, event.DeviceID, event.Seq, event.Status,
		event.GraphID, payloadText(event.Payload), event.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%w: put event %s: %v", ErrConflict, event.ID, err)
		}
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// GetEvent retrieves a single event by ID. A missing record is not an
// error: it returns (nil, nil).
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.getEvent.QueryRowContext(ctx, id)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// PatchEvent reads the record, overlays the patch, and writes the merged
// record back, all in one transaction. Only the mutable columns are
// updated, so the write-once fields can't drift. Patching a missing ID is
// a no-op returning (nil, nil); no record is created.
func (s *SQLiteStore) PatchEvent(ctx context.Context, id string, patch Patch) (*Event, error) {
	var merged *Event

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT event_id, device_id, seq, status, graph_id, payload, created_at
			FROM events WHERE event_id = ?
		`, id)
		event, err := scanEvent(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}

		if patch.Status != nil {
			event.Status = *patch.Status
		}
		if patch.Payload != nil {
			event.Payload = patch.Payload
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE events SET status = ?, payload = ? WHERE event_id = ?`,
			event.Status, payloadText(event.Payload), id,
		)
		if err != nil {
			if isConstraintErr(err) {
				return fmt.Errorf("%w: patch event %s: %v", ErrConflict, id, err)
			}
			return fmt.Errorf("write event: %w", err)
		}

		merged = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	return merged, nil
}

// ListByStatus retrieves up to limit events with the given status, in
// chronological order (created_at, then event_id for ties).
func (s *SQLiteStore) ListByStatus(ctx context.Context, status string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, device_id, seq, status, graph_id, payload, created_at
		FROM events
		WHERE status = ?
		ORDER BY created_at ASC, event_id ASC
		LIMIT ?
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

// CountByStatus returns the exact number of events with the given status.
func (s *SQLiteStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	if err := s.countStatus.QueryRowContext(ctx, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// PurgeAll deletes all events, meta entries, and sync history.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM events",
			"DELETE FROM meta",
			"DELETE FROM sync_runs",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("purge (%s): %w", stmt, err)
			}
		}
		return nil
	})
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed when the store was built with NewSQLiteStore; Open-built stores
// own their connection and close it too.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.insertEvent, s.upsertEvent, s.getEvent,
		s.countStatus, s.getMeta, s.setMeta,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one event row. Returns sql.ErrNoRows unchanged so
// callers can translate absence into their own soft-miss semantics.
func scanEvent(row scanner) (*Event, error) {
	var e Event
	var payload string
	var createdMillis int64

	err := row.Scan(&e.ID, &e.DeviceID, &e.Seq, &e.Status, &e.GraphID, &payload, &createdMillis)
	if err != nil {
		return nil, err
	}

	e.Payload = json.RawMessage(payload)
	e.CreatedAt = time.UnixMilli(createdMillis).UTC()
	return &e, nil
}

// payloadText normalizes an opaque payload for TEXT storage. Empty
// payloads are stored as the empty JSON object.
func payloadText(p json.RawMessage) string {
	if len(p) == 0 {
		return "{}"
	}
	return string(p)
}
