// Package syncer implements the upload half of the offline-first event
// log: pending events are read in batches, posted to the Brain Web
// backend, and flipped to delivered once the backend acknowledges them.
// Retry policy lives here, not in the store; storage operations never
// retry internally.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/brainweb/bwlog/internal/config"
	"github.com/brainweb/bwlog/internal/storage"
)

// metaKeyLastSynced holds the highest seq acknowledged by the backend.
const metaKeyLastSynced = "last_synced_seq"

// Result reports what one sync pass did.
type Result struct {
	Uploaded int64 // events acknowledged and marked delivered
	Failed   int64 // events parked as failed (mark_failed only)
	Pending  int64 // events still pending after the pass
}

// batchRequest is the upload body sent to the backend.
type batchRequest struct {
	DeviceID string          `json:"device_id"`
	Events   []storage.Event `json:"events"`
}

// batchResponse is the backend's acknowledgement.
type batchResponse struct {
	Acked []string `json:"acked"`
}

// Syncer uploads pending events to the backend HTTP API.
type Syncer struct {
	store  *storage.SQLiteStore
	client *http.Client

	endpoint    string
	authToken   string
	batchSize   int
	maxAttempts int
	backoffInit time.Duration
	backoffMax  time.Duration
	markFailed  bool

	// sleep is swapped out in tests so backoff doesn't wall-clock.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Syncer from the sync section of the config. The endpoint
// must be set; everything else falls back to sane values.
func New(store *storage.SQLiteStore, cfg config.SyncConfig) (*Syncer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("sync endpoint not configured")
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoffInit := 500 * time.Millisecond
	if cfg.BackoffInitial != "" {
		d, err := time.ParseDuration(cfg.BackoffInitial)
		if err != nil {
			return nil, fmt.Errorf("invalid backoff_initial %q: %w", cfg.BackoffInitial, err)
		}
		backoffInit = d
	}

	backoffMax := 30 * time.Second
	if cfg.BackoffMax != "" {
		d, err := time.ParseDuration(cfg.BackoffMax)
		if err != nil {
			return nil, fmt.Errorf("invalid backoff_max %q: %w", cfg.BackoffMax, err)
		}
		backoffMax = d
	}

	return &Syncer{
		store:       store,
		client:      &http.Client{Timeout: 30 * time.Second},
		endpoint:    cfg.Endpoint,
		authToken:   cfg.AuthToken,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		backoffInit: backoffInit,
		backoffMax:  backoffMax,
		markFailed:  cfg.MarkFailed,
		sleep:       sleepCtx,
	}, nil
}

// Run performs one sync pass: list a batch of pending events, upload it
// with retries, and patch acknowledged events to delivered. A run is
// always recorded in sync history, success or not.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	started := time.Now().UTC()

	result, runErr := s.runOnce(ctx)

	run := storage.SyncRun{
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Uploaded:   result.Uploaded,
		Failed:     result.Failed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.store.RecordSyncRun(ctx, run); err != nil && runErr == nil {
		runErr = err
	}

	return result, runErr
}

func (s *Syncer) runOnce(ctx context.Context) (Result, error) {
	var result Result

	batch, err := s.store.ListByStatus(ctx, storage.StatusPending, s.batchSize)
	if err != nil {
		return result, fmt.Errorf("list pending: %w", err)
	}
	if len(batch) == 0 {
		return result, nil
	}

	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return result, err
	}

	acked, uploadErr := s.uploadWithRetry(ctx, deviceID, batch)
	if uploadErr != nil {
		if s.markFailed {
			result.Failed = s.parkFailed(ctx, batch)
		}
		result.Pending = s.countPending(ctx)
		return result, fmt.Errorf("upload batch: %w", uploadErr)
	}

	var maxSeq int64
	delivered := storage.StatusDelivered
	for _, id := range acked {
		merged, err := s.store.PatchEvent(ctx, id, storage.Patch{Status: &delivered})
		if err != nil {
			return result, fmt.Errorf("mark delivered %s: %w", id, err)
		}
		if merged == nil {
			// Acked an id we no longer hold; trimmed in between.
			continue
		}
		result.Uploaded++
		if merged.Seq > maxSeq {
			maxSeq = merged.Seq
		}
	}

	if maxSeq > 0 {
		if err := s.store.SetMeta(ctx, metaKeyLastSynced, strconv.FormatInt(maxSeq, 10)); err != nil {
			return result, err
		}
	}

	result.Pending = s.countPending(ctx)
	return result, nil
}

// uploadWithRetry posts the batch, retrying with exponential backoff up
// to maxAttempts. The last transport or status error is returned when all
// attempts are spent.
func (s *Syncer) uploadWithRetry(ctx context.Context, deviceID string, batch []storage.Event) ([]string, error) {
	var lastErr error

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				return nil, err
			}
		}

		acked, err := s.upload(ctx, deviceID, batch)
		if err == nil {
			return acked, nil
		}
		lastErr = err
	}

	return nil, lastErr
}

func (s *Syncer) upload(ctx context.Context, deviceID string, batch []storage.Event) ([]string, error) {
	body, err := json.Marshal(batchRequest{DeviceID: deviceID, Events: batch})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, snippet)
	}

	var ack batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode acknowledgement: %w", err)
	}

	return ack.Acked, nil
}

// backoff returns the delay before the given retry attempt: the initial
// delay doubled per attempt, capped at backoffMax.
func (s *Syncer) backoff(attempt int) time.Duration {
	d := s.backoffInit
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= s.backoffMax {
			return s.backoffMax
		}
	}
	if d > s.backoffMax {
		return s.backoffMax
	}
	return d
}

// parkFailed flips the batch to failed, best effort.
func (s *Syncer) parkFailed(ctx context.Context, batch []storage.Event) int64 {
	var parked int64
	failed := storage.StatusFailed
	for _, e := range batch {
		if merged, err := s.store.PatchEvent(ctx, e.ID, storage.Patch{Status: &failed}); err == nil && merged != nil {
			parked++
		}
	}
	return parked
}

func (s *Syncer) countPending(ctx context.Context) int64 {
	n, err := s.store.CountByStatus(ctx, storage.StatusPending)
	if err != nil {
		return 0
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
