package storage

import (
	"encoding/json"
	"time"
)

// Event statuses. An event is enqueued as pending, flipped to delivered
// once the backend acknowledges it, and optionally parked as failed when
// the syncer gives up on it.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Event is a single capture record awaiting synchronization. Every field
// except Status is write-once: set when the event is enqueued, never
// changed afterwards. (DeviceID, Seq) is unique for the lifetime of the
// store and orders events for conflict-free merge on the server.
type Event struct {
	ID        string          `json:"event_id"`
	DeviceID  string          `json:"device_id"`
	Seq       int64           `json:"seq"`
	Status    string          `json:"status"`
	GraphID   string          `json:"graph_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Patch holds the mutable fields of an event. Nil fields are left
// untouched; set fields replace the stored value wholesale.
type Patch struct {
	Status  *string
	Payload json.RawMessage
}

// TrimResult reports what a trim pass did.
type TrimResult struct {
	Trimmed int64 // records deleted
	Total   int64 // total event count observed before trimming
}

// SyncRun records one invocation of the sync flow.
type SyncRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Uploaded   int64
	Failed     int64
	Error      string
}

// Stats holds aggregate statistics about the local event log.
type Stats struct {
	TotalEvents       int64
	StatusCounts      map[string]int64
	OldestEvent       time.Time
	NewestEvent       time.Time
	DeviceID          string
	LastSeq           int64
	TopGraphs         []GraphCount
	LastSync          *SyncRun
	DatabaseSizeBytes int64
}

// GraphCount pairs a knowledge-graph ID with its event count.
type GraphCount struct {
	GraphID string
	Count   int64
}
