package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainweb/bwlog/internal/config"
	"github.com/brainweb/bwlog/internal/storage"
)

func openTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run())

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func seedPending(t *testing.T, store *storage.SQLiteStore, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		e := &storage.Event{
			ID:        fmt.Sprintf("evt-%d", i),
			DeviceID:  "dev-1",
			Seq:       int64(i + 1),
			Status:    storage.StatusPending,
			GraphID:   "graph-1",
			Payload:   json.RawMessage(`{"selection":"text"}`),
			CreatedAt: time.UnixMilli(int64((i + 1) * 1000)).UTC(),
		}
		require.NoError(t, store.InsertEvent(ctx, e))
	}
}

// newTestSyncer builds a syncer against the given endpoint with instant
// backoff.
func newTestSyncer(t *testing.T, store *storage.SQLiteStore, endpoint string, maxAttempts int) *Syncer {
	t.Helper()
	s, err := New(store, config.SyncConfig{
		Endpoint:       endpoint,
		BatchSize:      10,
		MaxAttempts:    maxAttempts,
		BackoffInitial: "1ms",
		BackoffMax:     "2ms",
	})
	require.NoError(t, err)
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func TestNew_RequiresEndpoint(t *testing.T) {
	store := openTestStore(t)
	_, err := New(store, config.SyncConfig{})
	assert.Error(t, err)
}

func TestRun_EmptyStore_NoRequest(t *testing.T) {
	store := openTestStore(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, store, srv.URL, 3)
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Uploaded)
	assert.Equal(t, 0, requests, "no upload for an empty queue")
}

func TestRun_UploadsAndMarksDelivered(t *testing.T) {
	store := openTestStore(t)
	seedPending(t, store, 3)
	ctx := context.Background()

	var gotBody batchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		acked := make([]string, len(gotBody.Events))
		for i, e := range gotBody.Events {
			acked[i] = e.ID
		}
		json.NewEncoder(w).Encode(batchResponse{Acked: acked})
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, store, srv.URL, 3)
	result, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Uploaded)
	assert.Equal(t, int64(0), result.Pending)

	// The batch carried the device id and the events in order.
	assert.NotEmpty(t, gotBody.DeviceID)
	require.Len(t, gotBody.Events, 3)
	assert.Equal(t, "evt-0", gotBody.Events[0].ID)

	// All events flipped to delivered.
	delivered, err := store.CountByStatus(ctx, storage.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, int64(3), delivered)

	// Sync cursor advanced to the highest acked seq.
	cursor, ok, err := store.GetMeta(ctx, "last_synced_seq")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", cursor)

	// Run is recorded.
	run, err := store.LastSyncRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, int64(3), run.Uploaded)
	assert.Empty(t, run.Error)
}

func TestRun_PartialAck(t *testing.T) {
	store := openTestStore(t)
	seedPending(t, store, 3)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Acknowledge only the first event.
		json.NewEncoder(w).Encode(batchResponse{Acked: []string{"evt-0"}})
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, store, srv.URL, 1)
	result, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Uploaded)
	assert.Equal(t, int64(2), result.Pending, "unacked events stay pending for the next cycle")
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	store := openTestStore(t)
	seedPending(t, store, 1)

	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(batchResponse{Acked: []string{"evt-0"}})
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, store, srv.URL, 5)
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int64(1), result.Uploaded)
}

func TestRun_ExhaustedAttempts_EventsStayPending(t *testing.T) {
	store := openTestStore(t)
	seedPending(t, store, 2)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	s := newTestSyncer(t, store, srv.URL, 2)
	result, err := s.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(0), result.Uploaded)
	assert.Equal(t, int64(2), result.Pending)

	// Failure is recorded in sync history.
	run, err := store.LastSyncRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.NotEmpty(t, run.Error)
}

func TestRun_MarkFailedParksBatch(t *testing.T) {
	store := openTestStore(t)
	seedPending(t, store, 2)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	s, err := New(store, config.SyncConfig{
		Endpoint:       srv.URL,
		MaxAttempts:    1,
		BackoffInitial: "1ms",
		MarkFailed:     true,
	})
	require.NoError(t, err)
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	result, err := s.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(2), result.Failed)

	failed, err := store.CountByStatus(ctx, storage.StatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), failed)
}

func TestRun_SendsBearerToken(t *testing.T) {
	store := openTestStore(t)
	seedPending(t, store, 1)

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(batchResponse{Acked: []string{"evt-0"}})
	}))
	t.Cleanup(srv.Close)

	s, err := New(store, config.SyncConfig{
		Endpoint:  srv.URL,
		AuthToken: "secret-token",
	})
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", auth)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	store := openTestStore(t)
	s, err := New(store, config.SyncConfig{
		Endpoint:       "http://localhost:1",
		BackoffInitial: "100ms",
		BackoffMax:     "400ms",
	})
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, s.backoff(1))
	assert.Equal(t, 200*time.Millisecond, s.backoff(2))
	assert.Equal(t, 400*time.Millisecond, s.backoff(3))
	assert.Equal(t, 400*time.Millisecond, s.backoff(4), "capped at backoff_max")
	assert.Equal(t, 400*time.Millisecond, s.backoff(10))
}
