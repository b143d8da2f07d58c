package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Well-known meta keys.
const (
	metaKeyDeviceID = "device_id"
	metaKeySeq      = "seq"
)

// GetMeta returns the stored value for key, with ok=false when the key
// has never been set.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.getMeta.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	return value, true, nil
}

// SetMeta overwrites the value for key. No history is kept.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	if _, err := s.setMeta.ExecContext(ctx, key, value); err != nil {
		return fmt.Errorf("set meta %q: %w", key, err)
	}
	return nil
}

// SetMetaMany overwrites multiple keys atomically: either every pair is
// written or none are.
func (s *SQLiteStore) SetMetaMany(ctx context.Context, pairs map[string]string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for key, value := range pairs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO meta (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
			`, key, value)
			if err != nil {
				return fmt.Errorf("set meta %q: %w", key, err)
			}
		}
		return nil
	})
}

// NextSeq increments and returns the per-device sequence counter. The
// read-increment-write runs in one transaction, so concurrent capture
// calls can never be handed the same value.
func (s *SQLiteStore) NextSeq(ctx context.Context) (int64, error) {
	var next int64

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaKeySeq).Scan(&raw)
		switch {
		case err == sql.ErrNoRows:
			next = 1
		case err != nil:
			return fmt.Errorf("read seq: %w", err)
		default:
			current, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt seq value %q: %w", raw, err)
			}
			next = current + 1
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO meta (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, metaKeySeq, strconv.FormatInt(next, 10))
		if err != nil {
			return fmt.Errorf("write seq: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return next, nil
}

// DeviceID returns this device's stable identifier, minting and storing
// one on first use.
func (s *SQLiteStore) DeviceID(ctx context.Context) (string, error) {
	id, ok, err := s.GetMeta(ctx, metaKeyDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.SetMeta(ctx, metaKeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
