package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Execute implements the go-flags Commander interface for PurgeCommand.
func (c *PurgeCommand) Execute(args []string) error {
	if !c.All {
		return fmt.Errorf("purge requires --all flag for safety")
	}

	// Confirmation prompt unless --force
	if !c.Force {
		fmt.Println("⚠ WARNING: This will permanently delete ALL local event-log data.")
		fmt.Println("  - All captured events (pending and delivered)")
		fmt.Println("  - Device identity and sequence counter")
		fmt.Println("  - Sync history")
		fmt.Println()
		fmt.Println("Events not yet delivered to the backend are lost for good.")
		fmt.Println()
		fmt.Print(`Type "PURGE" to confirm: `)

		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("aborted: no input received")
		}
		input := strings.TrimSpace(scanner.Text())
		if input != "PURGE" {
			return fmt.Errorf("aborted: confirmation text did not match")
		}
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

	ctx := context.Background()
	if err := store.PurgeAll(ctx); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"purged":  true,
			"message": "all data deleted",
		}
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(out)
	}

	fmt.Println("Purged all data. The event log is empty.")
	return nil
}
