package storage

import "database/sql"

// migrateV001 creates the initial schema: the events log, the meta
// key/value table, and the sync_runs history. Every statement uses
// IF NOT EXISTS for idempotency.
//
// created_at is stored as unix milliseconds so retention ordering is a
// plain integer comparison. The (status, created_at) index makes
// ListByStatus return chronological order directly instead of raw index
// traversal order.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			event_id   TEXT PRIMARY KEY,
			device_id  TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending'
			           CHECK (status IN ('pending', 'delivered', 'failed')),
			graph_id   TEXT NOT NULL DEFAULT '',
			payload    TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL,
			UNIQUE (device_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS sync_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			uploaded    INTEGER NOT NULL DEFAULT 0,
			failed      INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_status_created ON events(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created        ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_graph          ON events(graph_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started     ON sync_runs(started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
