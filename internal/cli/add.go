package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/brainweb/bwlog/internal/storage"
)

// Execute implements the go-flags Commander interface for AddCommand.
func (c *AddCommand) Execute(args []string) error {
	if c.Payload != "" && c.PayloadFile != "" {
		return fmt.Errorf("--payload and --payload-file are mutually exclusive")
	}

	store := c.store
	if store == nil {
		var err error
		store, _, err = openStore(c.globals)
		if err != nil {
			return fmt.Errorf("opening event log: %w", err)
		}
		defer store.Close()
	}

	return c.executeWithStore(store)
}

// executeWithStore runs the enqueue logic against a provided store (used by tests).
func (c *AddCommand) executeWithStore(store *storage.SQLiteStore) error {
	if c.Payload != "" && c.PayloadFile != "" {
		return fmt.Errorf("--payload and --payload-file are mutually exclusive")
	}

	payload := []byte(c.Payload)
	if c.PayloadFile != "" {
		data, err := os.ReadFile(c.PayloadFile)
		if err != nil {
			return fmt.Errorf("reading payload file: %w", err)
		}
		payload = data
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}

	ctx := context.Background()

	deviceID, err := store.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("resolve device id: %w", err)
	}

	seq, err := store.NextSeq(ctx)
	if err != nil {
		return fmt.Errorf("assign sequence number: %w", err)
	}

	event := &storage.Event{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Seq:       seq,
		Status:    storage.StatusPending,
		GraphID:   c.Graph,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := store.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("storing event: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"event_id":   event.ID,
			"device_id":  event.DeviceID,
			"seq":        event.Seq,
			"status":     event.Status,
			"graph_id":   event.GraphID,
			"created_at": event.CreatedAt.Format(time.RFC3339),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Enqueued event %s (seq %d)\n", event.ID, event.Seq)
	if event.GraphID != "" {
		fmt.Printf("  Graph:  %s\n", event.GraphID)
	}
	fmt.Printf("  Status: %s\n", event.Status)
	return nil
}
