package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/brainweb/bwlog/internal/config"
	"github.com/brainweb/bwlog/internal/storage"
)

// Execute implements the go-flags Commander interface for TrimCommand.
func (c *TrimCommand) Execute(args []string) error {
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

// executeWithStore runs the trim against a provided store (for testing).
func (c *TrimCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	maxEvents := c.Max
	if maxEvents <= 0 {
		maxEvents = cfg.Retention.MaxEvents
	}

	ctx := context.Background()

	if c.DryRun {
		return c.dryRun(ctx, store, maxEvents)
	}

	result, err := store.Trim(ctx, maxEvents)
	if err != nil {
		return fmt.Errorf("trim failed: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"trimmed":    result.Trimmed,
			"total":      result.Total,
			"max_events": maxEvents,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if result.Trimmed == 0 {
		fmt.Printf("Nothing to trim (%s events, cap %s)\n",
			formatNumber(result.Total), formatNumber(maxEvents))
		return nil
	}

	fmt.Printf("Trimmed %s of %s events (cap %s)\n",
		formatNumber(result.Trimmed), formatNumber(result.Total), formatNumber(maxEvents))
	return nil
}

// dryRun reports what a trim would delete without touching the store.
func (c *TrimCommand) dryRun(ctx context.Context, store *storage.SQLiteStore, maxEvents int64) error {
	var total int64
	for _, status := range []string{storage.StatusPending, storage.StatusDelivered, storage.StatusFailed} {
		n, err := store.CountByStatus(ctx, status)
		if err != nil {
			return err
		}
		total += n
	}

	wouldTrim := total - maxEvents
	if wouldTrim < 0 {
		wouldTrim = 0
	}

	if c.globals != nil && c.globals.JSON {
		out := map[string]interface{}{
			"dry_run":    true,
			"would_trim": wouldTrim,
			"total":      total,
			"max_events": maxEvents,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Would trim %s of %s events (cap %s)\n",
		formatNumber(wouldTrim), formatNumber(total), formatNumber(maxEvents))
	return nil
}
