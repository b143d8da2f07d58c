package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrim_UnderCap_NoOp(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-1", 1, 1000)))
	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-2", 2, 2000)))

	result, err := store.Trim(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Trimmed)
	assert.Equal(t, int64(2), result.Total)
}

// Insert A (created_at=1), B (created_at=2), C (created_at=3), trim to 2:
// A goes, B and C stay, result reports {trimmed: 1, total: 3}.
func TestTrim_RemovesOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-a", 1, 1)))
	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-b", 2, 2)))
	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-c", 3, 3)))

	result, err := store.Trim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Trimmed)
	assert.Equal(t, int64(3), result.Total)

	a, err := store.GetEvent(ctx, "evt-a")
	require.NoError(t, err)
	assert.Nil(t, a, "oldest event should be gone")

	b, err := store.GetEvent(ctx, "evt-b")
	require.NoError(t, err)
	assert.NotNil(t, b)

	c, err := store.GetEvent(ctx, "evt-c")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestTrim_IgnoresStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Oldest event is already delivered, newest are still pending. The
	// cap is on total count, so the delivered one survives and a pending
	// one does not get special treatment either way.
	delivered := testEvent("evt-old", 1, 1)
	delivered.Status = StatusDelivered
	require.NoError(t, store.InsertEvent(ctx, delivered))

	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-mid", 2, 2)))
	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-new", 3, 3)))

	result, err := store.Trim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Trimmed)

	// Only the newest record survives, regardless of status.
	got, err := store.GetEvent(ctx, "evt-new")
	require.NoError(t, err)
	assert.NotNil(t, got)

	gone, err := store.GetEvent(ctx, "evt-old")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTrim_TiesBrokenByEventID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Same created_at; the lexicographically smaller event_id goes first.
	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-b", 2, 100)))
	require.NoError(t, store.InsertEvent(ctx, testEvent("evt-a", 1, 100)))

	result, err := store.Trim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Trimmed)

	a, err := store.GetEvent(ctx, "evt-a")
	require.NoError(t, err)
	assert.Nil(t, a)

	b, err := store.GetEvent(ctx, "evt-b")
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestTrim_BoundHolds(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		e := testEvent(fmt.Sprintf("evt-%02d", i), int64(i+1), int64(i+1))
		require.NoError(t, store.InsertEvent(ctx, e))
	}

	result, err := store.Trim(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), result.Trimmed)
	assert.Equal(t, int64(20), result.Total)

	// Sum over all statuses is at the cap.
	var total int64
	for _, status := range []string{StatusPending, StatusDelivered, StatusFailed} {
		n, err := store.CountByStatus(ctx, status)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, int64(5), total)
}
