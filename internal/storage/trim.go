package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Trim enforces the hard cap on total stored events. When the total
// exceeds maxEvents it deletes the oldest records by created_at (event_id
// breaks ties) until the total is at the cap. Trimming is by count, not
// by status or age: an undelivered pending event past the cap is
// discarded along with everything else. Bounded local storage wins over
// guaranteed delivery here; callers that can't accept that raise the cap
// or sync more often.
//
// The count and the deletes run in one transaction, so a mid-trim failure
// leaves the store untouched.
func (s *SQLiteStore) Trim(ctx context.Context, maxEvents int64) (TrimResult, error) {
	var result TrimResult

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&result.Total); err != nil {
			return fmt.Errorf("count events: %w", err)
		}

		if result.Total <= maxEvents {
			return nil
		}

		excess := result.Total - maxEvents
		res, err := tx.ExecContext(ctx, `
			DELETE FROM events WHERE event_id IN (
				SELECT event_id FROM events
				ORDER BY created_at ASC, event_id ASC
				LIMIT ?
			)
		`, excess)
		if err != nil {
			return fmt.Errorf("delete oldest events: %w", err)
		}

		result.Trimmed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return TrimResult{}, err
	}

	return result, nil
}
