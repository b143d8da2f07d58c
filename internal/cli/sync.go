package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/brainweb/bwlog/internal/config"
	"github.com/brainweb/bwlog/internal/storage"
	"github.com/brainweb/bwlog/internal/syncer"
)

// Execute implements the go-flags Commander interface for SyncCommand.
func (c *SyncCommand) Execute(args []string) error {
	store := c.store
	cfg := config.DefaultConfig()
	if store == nil {
		var err error
		store, cfg, err = openStore(c.globals)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	return c.executeWithStore(store, cfg)
}

// executeWithStore runs one sync pass against a provided store (for testing).
func (c *SyncCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	syncCfg := cfg.Sync
	if c.Endpoint != "" {
		syncCfg.Endpoint = c.Endpoint
	}
	if c.BatchSize > 0 {
		syncCfg.BatchSize = c.BatchSize
	}

	s, err := syncer.New(store, syncCfg)
	if err != nil {
		return err
	}

	result, runErr := s.Run(context.Background())

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"uploaded": result.Uploaded,
			"failed":   result.Failed,
			"pending":  result.Pending,
		}
		if runErr != nil {
			out["error"] = runErr.Error()
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		return runErr
	}

	if runErr != nil {
		fmt.Printf("Sync failed: %v\n", runErr)
		fmt.Printf("  %s events remain pending and will be retried\n", formatNumber(result.Pending))
		return runErr
	}

	if result.Uploaded == 0 && result.Pending == 0 {
		fmt.Println("Nothing to sync.")
		return nil
	}

	fmt.Printf("Uploaded %s events", formatNumber(result.Uploaded))
	if result.Pending > 0 {
		fmt.Printf(", %s still pending", formatNumber(result.Pending))
	}
	fmt.Println()
	return nil
}
