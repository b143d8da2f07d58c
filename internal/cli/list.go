package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/brainweb/bwlog/internal/storage"
)

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	if err := validStatus(c.Status); err != nil {
		return err
	}

	store := c.store
	if store == nil {
		var err error
		store, _, err = openStore(c.globals)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	return c.executeWithStore(store)
}

// validStatus rejects anything outside the event lifecycle set.
func validStatus(status string) error {
	switch status {
	case storage.StatusPending, storage.StatusDelivered, storage.StatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown status %q (use pending, delivered, or failed)", status)
	}
}

// executeWithStore runs the listing against a provided store (for testing).
func (c *ListCommand) executeWithStore(store *storage.SQLiteStore) error {
	if err := validStatus(c.Status); err != nil {
		return err
	}

	ctx := context.Background()
	events, err := store.ListByStatus(ctx, c.Status, c.Limit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := struct {
			Count  int             `json:"count"`
			Status string          `json:"status"`
			Events []storage.Event `json:"events"`
		}{len(events), c.Status, events}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(events) == 0 {
		fmt.Printf("No %s events\n", c.Status)
		return nil
	}

	eventWord := "events"
	if len(events) == 1 {
		eventWord = "event"
	}
	fmt.Printf("%d %s %s\n\n", len(events), c.Status, eventWord)

	for i, e := range events {
		fmt.Printf("%d. %s\n", i+1, e.ID)
		meta := e.CreatedAt.Local().Format("2006-01-02 15:04:05")
		meta += fmt.Sprintf(" · seq %d", e.Seq)
		if e.GraphID != "" {
			meta += " · " + e.GraphID
		}
		fmt.Printf("   %s\n", meta)

		if i < len(events)-1 {
			fmt.Println()
		}
	}

	return nil
}
