package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brainweb/bwlog/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string           `json:"version"`
	TotalEvents       int64            `json:"total_events"`
	StatusCounts      map[string]int64 `json:"status_counts"`
	OldestEvent       string           `json:"oldest_event,omitempty"`
	NewestEvent       string           `json:"newest_event,omitempty"`
	DeviceID          string           `json:"device_id,omitempty"`
	LastSeq           int64            `json:"last_seq"`
	TopGraphs         []graphCountJSON `json:"top_graphs"`
	LastSync          *syncRunJSON     `json:"last_sync,omitempty"`
	DatabaseSizeBytes int64            `json:"database_size_bytes"`
}

type graphCountJSON struct {
	GraphID string `json:"graph_id"`
	Count   int64  `json:"count"`
}

type syncRunJSON struct {
	FinishedAt string `json:"finished_at"`
	Uploaded   int64  `json:"uploaded"`
	Failed     int64  `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
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

// executeWithStore runs status against a provided store (for testing).
func (c *StatusCommand) executeWithStore(store *storage.SQLiteStore) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return c.printJSON(stats)
	}
	return c.printHuman(stats)
}

func (c *StatusCommand) printHuman(stats *storage.Stats) error {
	fmt.Println("Event Log Status")
	fmt.Println("================")
	fmt.Printf("Version:    %s\n", c.version)
	fmt.Printf("Events:     %s\n", formatNumber(stats.TotalEvents))
	fmt.Printf("  pending:   %s\n", formatNumber(stats.StatusCounts[storage.StatusPending]))
	fmt.Printf("  delivered: %s\n", formatNumber(stats.StatusCounts[storage.StatusDelivered]))
	fmt.Printf("  failed:    %s\n", formatNumber(stats.StatusCounts[storage.StatusFailed]))

	if stats.TotalEvents > 0 {
		fmt.Printf("Oldest:     %s\n", stats.OldestEvent.Local().Format("2006-01-02 15:04"))
		fmt.Printf("Newest:     %s\n", stats.NewestEvent.Local().Format("2006-01-02 15:04"))
	}

	if stats.DeviceID != "" {
		fmt.Printf("Device:     %s\n", stats.DeviceID)
	}
	fmt.Printf("Last seq:   %d\n", stats.LastSeq)
	fmt.Printf("Storage:    %s\n", formatBytes(stats.DatabaseSizeBytes))

	if len(stats.TopGraphs) > 0 {
		fmt.Println()
		fmt.Println("Top Graphs:")
		for _, g := range stats.TopGraphs {
			fmt.Printf("  %-24s %s\n", g.GraphID, formatNumber(g.Count))
		}
	}

	fmt.Println()
	if stats.LastSync == nil {
		fmt.Println("Last sync:  never")
	} else if stats.LastSync.Error != "" {
		fmt.Printf("Last sync:  %s (failed: %s)\n",
			stats.LastSync.FinishedAt.Local().Format("2006-01-02 15:04"), stats.LastSync.Error)
	} else {
		fmt.Printf("Last sync:  %s (%d uploaded)\n",
			stats.LastSync.FinishedAt.Local().Format("2006-01-02 15:04"), stats.LastSync.Uploaded)
	}

	return nil
}

func (c *StatusCommand) printJSON(stats *storage.Stats) error {
	out := statusJSON{
		Version:           c.version,
		TotalEvents:       stats.TotalEvents,
		StatusCounts:      stats.StatusCounts,
		DeviceID:          stats.DeviceID,
		LastSeq:           stats.LastSeq,
		TopGraphs:         make([]graphCountJSON, len(stats.TopGraphs)),
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
	}

	if stats.TotalEvents > 0 {
		out.OldestEvent = stats.OldestEvent.UTC().Format(time.RFC3339)
		out.NewestEvent = stats.NewestEvent.UTC().Format(time.RFC3339)
	}

	for i, g := range stats.TopGraphs {
		out.TopGraphs[i] = graphCountJSON{GraphID: g.GraphID, Count: g.Count}
	}

	if stats.LastSync != nil {
		out.LastSync = &syncRunJSON{
			FinishedAt: stats.LastSync.FinishedAt.UTC().Format(time.RFC3339),
			Uploaded:   stats.LastSync.Uploaded,
			Failed:     stats.LastSync.Failed,
			Error:      stats.LastSync.Error,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
