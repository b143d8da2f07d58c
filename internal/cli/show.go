package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brainweb/bwlog/internal/storage"
)

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	if c.ID == "" {
		return fmt.Errorf("--id is required for show command")
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

// executeWithStore runs the lookup against a provided store (for testing).
func (c *ShowCommand) executeWithStore(store *storage.SQLiteStore) error {
	ctx := context.Background()

	event, err := store.GetEvent(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if event == nil {
		return fmt.Errorf("event not found: %s", c.ID)
	}

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(event)
	}

	fmt.Println(event.ID)
	fmt.Printf("Device:   %s\n", event.DeviceID)
	fmt.Printf("Seq:      %d\n", event.Seq)
	fmt.Printf("Status:   %s\n", event.Status)
	fmt.Printf("Graph:    %s\n", event.GraphID)
	fmt.Printf("Created:  %s\n", event.CreatedAt.Local().Format(time.RFC3339))
	fmt.Println()
	fmt.Println("--- Payload ---")
	fmt.Println(string(event.Payload))

	return nil
}
