package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:       "~/.config/brainweb/bwlog",
			SQLiteFile: "bwlog.db",
		},
		Retention: RetentionConfig{
			MaxEvents:         500,
			TrimIntervalHours: 24,
		},
		Sync: SyncConfig{
			Endpoint:       "",
			AuthToken:      "",
			BatchSize:      50,
			MaxAttempts:    5,
			BackoffInitial: "500ms",
			BackoffMax:     "30s",
			MarkFailed:     false,
		},
	}
}
