package cli

import (
	"fmt"
	"strings"

	"github.com/brainweb/bwlog/internal/config"
	"github.com/brainweb/bwlog/internal/storage"
)

// loadConfig resolves the effective config for a command invocation.
// Priority: --config flag > default path (created on first use).
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		return config.Load(globals.Config)
	}
	return config.LoadOrCreate()
}

// openStore opens the event log for a command: --db flag wins, otherwise
// the path comes from the config file.
func openStore(globals *GlobalFlags) (*storage.SQLiteStore, *config.Config, error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, nil, err
	}

	dbPath := ""
	if globals != nil {
		dbPath = globals.DBPath
	}
	if dbPath == "" {
		dbPath, err = cfg.DatabasePath()
		if err != nil {
			return nil, nil, err
		}
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}

	return store, cfg, nil
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
		if len(s) > remainder {
			result.WriteString(",")
		}
	}
	for i := remainder; i < len(s); i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
