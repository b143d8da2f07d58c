package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// GetStats returns aggregate statistics about the local event log.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{StatusCounts: map[string]int64{}}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM events GROUP BY status",
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.TotalEvents > 0 {
		var oldest, newest int64
		err = s.db.QueryRowContext(ctx,
			"SELECT MIN(created_at), MAX(created_at) FROM events",
		).Scan(&oldest, &newest)
		if err != nil {
			return nil, fmt.Errorf("event time range: %w", err)
		}
		stats.OldestEvent = time.UnixMilli(oldest).UTC()
		stats.NewestEvent = time.UnixMilli(newest).UTC()
	}

	if id, ok, err := s.GetMeta(ctx, metaKeyDeviceID); err != nil {
		return nil, err
	} else if ok {
		stats.DeviceID = id
	}

	if raw, ok, err := s.GetMeta(ctx, metaKeySeq); err != nil {
		return nil, err
	} else if ok {
		stats.LastSeq, _ = strconv.ParseInt(raw, 10, 64)
	}

	graphRows, err := s.db.QueryContext(ctx, `
		SELECT graph_id, COUNT(*) as cnt FROM events
		WHERE graph_id != ''
		GROUP BY graph_id ORDER BY cnt DESC LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("top graphs: %w", err)
	}
	defer graphRows.Close()
	for graphRows.Next() {
		var gc GraphCount
		if err := graphRows.Scan(&gc.GraphID, &gc.Count); err != nil {
			return nil, err
		}
		stats.TopGraphs = append(stats.TopGraphs, gc)
	}
	if err := graphRows.Err(); err != nil {
		return nil, err
	}

	stats.LastSync, err = s.LastSyncRun(ctx)
	if err != nil {
		return nil, err
	}

	stats.DatabaseSizeBytes = s.databaseSize()

	return stats, nil
}

// RecordSyncRun appends one row of sync history.
func (s *SQLiteStore) RecordSyncRun(ctx context.Context, run SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, finished_at, uploaded, failed, error)
		VALUES (?, ?, ?, ?, ?)
	`, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Uploaded, run.Failed, run.Error)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// LastSyncRun returns the most recent sync run, or nil when the store has
// never synced.
func (s *SQLiteStore) LastSyncRun(ctx context.Context) (*SyncRun, error) {
	var run SyncRun
	var started, finished int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, uploaded, failed, error
		FROM sync_runs ORDER BY id DESC LIMIT 1
	`).Scan(&run.ID, &started, &finished, &run.Uploaded, &run.Failed, &run.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last sync run: %w", err)
	}

	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	return &run, nil
}

// databaseSize reports page_count * page_size, which also works for
// in-memory databases where there is no file to stat.
func (s *SQLiteStore) databaseSize() int64 {
	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}
