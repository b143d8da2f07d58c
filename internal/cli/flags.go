package cli

import "github.com/brainweb/bwlog/internal/storage"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DBPath  string `long:"db" description:"Path to the event log database (overrides config)"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand — show event-log health, per-status counts, sync history.
type StatusCommand struct {
	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore // injectable for testing
}

// AddCommand — enqueue a capture event as pending.
type AddCommand struct {
	Graph       string `long:"graph" description:"Knowledge-graph ID the event belongs to"`
	Payload     string `long:"payload" description:"Inline JSON payload"`
	PayloadFile string `long:"payload-file" description:"Path to file containing the JSON payload"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore
}

// ListCommand — list events by status.
type ListCommand struct {
	Status string `long:"status" description:"Status to filter by: pending | delivered | failed" default:"pending"`
	Limit  int    `long:"limit" description:"Maximum results" default:"20"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore
}

// ShowCommand — print a single event by ID.
type ShowCommand struct {
	ID string `long:"id" description:"Event ID (required)"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore
}

// SyncCommand — upload pending events to the backend once.
type SyncCommand struct {
	Endpoint  string `long:"endpoint" description:"Override the configured sync endpoint"`
	BatchSize int    `long:"batch-size" description:"Override the configured batch size"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore
}

// TrimCommand — enforce the retention cap on total stored events.
type TrimCommand struct {
	Max    int64 `long:"max" description:"Override the configured max event count"`
	DryRun bool  `long:"dry-run" description:"Report what would be trimmed without deleting"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore
}

// PurgeCommand — delete ALL local event-log data with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	store   *storage.SQLiteStore
}
